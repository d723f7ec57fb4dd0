// Package schemafile reads declarative schema documents written in YAML or
// JSON and converts them into store specs and data operations.
package schemafile

import (
	"bytes"
	"context"
	_ "embed"
	stdjson "encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-json-experiment/json"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/osvaldoandrade/storemigrate/internal/app/dataop"
	"github.com/osvaldoandrade/storemigrate/internal/domain"
)

//go:embed schema.json
var documentSchema []byte

const documentSchemaURL = "storemigrate.schema.json"

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

// Schema is a decoded schema document. Version is the target version the
// document declares, or NoVersion to use the latest one it references.
type Schema struct {
	Version    domain.Version
	Stores     []domain.StoreSpec
	Operations []dataop.Operation
}

type Source struct{}

func (Source) Load(ctx context.Context, path string) (Schema, error) {
	if err := ctx.Err(); err != nil {
		return Schema{}, err
	}
	if strings.TrimSpace(path) == "" {
		return Schema{}, ErrPathRequired
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Schema{}, fmt.Errorf("read schema: %w", err)
	}
	return Parse(data, strings.EqualFold(filepath.Ext(path), ".json"))
}

// Parse decodes a schema document. YAML is accepted unless isJSON is set.
func Parse(data []byte, isJSON bool) (Schema, error) {
	if !isJSON {
		converted, err := yamlToJSON(data)
		if err != nil {
			return Schema{}, err
		}
		data = converted
	}

	if err := validateDocument(data); err != nil {
		return Schema{}, err
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Schema{}, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	out := Schema{
		Version: doc.Version,
		Stores:  storesFromDocs(doc.Stores),
	}
	for _, op := range doc.Operations {
		out.Operations = append(out.Operations, operationFromDoc(op))
	}
	return out, nil
}

func operationFromDoc(doc operationDoc) dataop.Operation {
	op := dataop.Operation{Version: doc.Version, Store: doc.Store}
	switch {
	case len(doc.JSONPatch) > 0:
		op.Kind = dataop.KindJSONPatch
		op.Patch = append([]byte(nil), doc.JSONPatch...)
	case len(doc.MergePatch) > 0:
		op.Kind = dataop.KindMergePatch
		op.Patch = append([]byte(nil), doc.MergePatch...)
	default:
		op.Kind = dataop.KindJQ
		op.Expr = doc.JQ
	}
	return op
}

func validateDocument(data []byte) error {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(documentSchemaURL, bytes.NewReader(documentSchema)); err != nil {
			compileErr = fmt.Errorf("load document schema: %w", err)
			return
		}
		compiled, compileErr = compiler.Compile(documentSchemaURL)
	})
	if compileErr != nil {
		return compileErr
	}

	dec := stdjson.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if err := compiled.Validate(value); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return nil
}

func yamlToJSON(data []byte) ([]byte, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	normalized, err := normalizeYAML(raw)
	if err != nil {
		return nil, err
	}
	out, err := json.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return out, nil
}

// normalizeYAML turns the generic YAML tree into values the JSON encoder
// accepts: mapping keys must be strings.
func normalizeYAML(value any) (any, error) {
	switch typed := value.(type) {
	case map[string]any:
		for key, item := range typed {
			normalized, err := normalizeYAML(item)
			if err != nil {
				return nil, err
			}
			typed[key] = normalized
		}
		return typed, nil
	case map[any]any:
		out := make(map[string]any, len(typed))
		for key, item := range typed {
			name, ok := key.(string)
			if !ok {
				return nil, fmt.Errorf("%w: mapping key %v is not a string", ErrInvalidDocument, key)
			}
			normalized, err := normalizeYAML(item)
			if err != nil {
				return nil, err
			}
			out[name] = normalized
		}
		return out, nil
	case []any:
		for i, item := range typed {
			normalized, err := normalizeYAML(item)
			if err != nil {
				return nil, err
			}
			typed[i] = normalized
		}
		return typed, nil
	default:
		return typed, nil
	}
}
