package schemafile

import (
	"bytes"
	"fmt"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/osvaldoandrade/storemigrate/internal/domain"
)

type document struct {
	Version    domain.Version `json:"version,omitzero"`
	Stores     []storeDoc     `json:"stores"`
	Operations []operationDoc `json:"operations,omitempty"`
}

type storeDoc struct {
	Name          string         `json:"name"`
	KeyPath       keyPathDoc     `json:"keyPath,omitzero"`
	AutoIncrement bool           `json:"autoIncrement,omitzero"`
	CreatedAt     domain.Version `json:"createdAt,omitzero"`
	DroppedAt     domain.Version `json:"droppedAt,omitzero"`
	Indexes       []indexDoc     `json:"indexes"`
}

type indexDoc struct {
	Name       string         `json:"name,omitzero"`
	KeyPath    keyPathDoc     `json:"keyPath"`
	Unique     bool           `json:"unique,omitzero"`
	MultiEntry bool           `json:"multiEntry,omitzero"`
	CreatedAt  domain.Version `json:"createdAt,omitzero"`
	DroppedAt  domain.Version `json:"droppedAt,omitzero"`
}

type operationDoc struct {
	Version    domain.Version `json:"version"`
	Store      string         `json:"store"`
	JSONPatch  jsontext.Value `json:"jsonPatch,omitzero"`
	MergePatch jsontext.Value `json:"mergePatch,omitzero"`
	JQ         string         `json:"jq,omitzero"`
}

// keyPathDoc is a key path written either as a string or as a list.
type keyPathDoc domain.KeyPath

func (k keyPathDoc) IsZero() bool {
	return domain.KeyPath(k).IsZero()
}

func (k keyPathDoc) MarshalJSON() ([]byte, error) {
	if !k.Array && len(k.Paths) == 1 {
		return json.Marshal(k.Paths[0])
	}
	paths := k.Paths
	if paths == nil {
		paths = []string{}
	}
	return json.Marshal(paths)
}

func (k *keyPathDoc) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*k = keyPathDoc{}
	case len(data) > 0 && data[0] == '"':
		var path string
		if err := json.Unmarshal(data, &path); err != nil {
			return err
		}
		*k = keyPathDoc(domain.Path(path))
	case len(data) > 0 && data[0] == '[':
		var paths []string
		if err := json.Unmarshal(data, &paths); err != nil {
			return err
		}
		*k = keyPathDoc(domain.Paths(paths...))
	default:
		return fmt.Errorf("key path must be a string or a list of strings")
	}
	return nil
}

func storesFromDocs(docs []storeDoc) []domain.StoreSpec {
	stores := make([]domain.StoreSpec, 0, len(docs))
	for _, doc := range docs {
		store := domain.StoreSpec{
			Name:          doc.Name,
			KeyPath:       domain.KeyPath(doc.KeyPath).Clone(),
			AutoIncrement: doc.AutoIncrement,
			CreatedAt:     doc.CreatedAt,
			DroppedAt:     doc.DroppedAt,
			Indexes:       make([]domain.IndexSpec, 0, len(doc.Indexes)),
		}
		for _, index := range doc.Indexes {
			store.Indexes = append(store.Indexes, domain.IndexSpec{
				Name:       index.Name,
				KeyPath:    domain.KeyPath(index.KeyPath).Clone(),
				Unique:     index.Unique,
				MultiEntry: index.MultiEntry,
				CreatedAt:  index.CreatedAt,
				DroppedAt:  index.DroppedAt,
			})
		}
		stores = append(stores, store)
	}
	return stores
}

func docsFromStores(stores []domain.StoreSpec) []storeDoc {
	docs := make([]storeDoc, 0, len(stores))
	for _, store := range stores {
		doc := storeDoc{
			Name:          store.Name,
			KeyPath:       keyPathDoc(store.KeyPath),
			AutoIncrement: store.AutoIncrement,
			CreatedAt:     store.CreatedAt,
			DroppedAt:     store.DroppedAt,
			Indexes:       make([]indexDoc, 0, len(store.Indexes)),
		}
		for _, index := range store.Indexes {
			doc.Indexes = append(doc.Indexes, indexDoc{
				Name:       index.Name,
				KeyPath:    keyPathDoc(index.KeyPath),
				Unique:     index.Unique,
				MultiEntry: index.MultiEntry,
				CreatedAt:  index.CreatedAt,
				DroppedAt:  index.DroppedAt,
			})
		}
		docs = append(docs, doc)
	}
	return docs
}

// MarshalStore encodes one store definition in the document form. Engines
// use it to keep the declared shape of every physical store.
func MarshalStore(store domain.StoreSpec) ([]byte, error) {
	return json.Marshal(docsFromStores([]domain.StoreSpec{store})[0], json.Deterministic(true))
}

func UnmarshalStore(data []byte) (domain.StoreSpec, error) {
	var doc storeDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return domain.StoreSpec{}, fmt.Errorf("decode store definition: %w", err)
	}
	return storesFromDocs([]storeDoc{doc})[0], nil
}

// MarshalStores encodes a schema's stores as a JSON array.
func MarshalStores(stores []domain.StoreSpec) ([]byte, error) {
	return json.Marshal(docsFromStores(stores), json.Deterministic(true))
}
