package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/go-json-experiment/json/jsontext"

	"github.com/osvaldoandrade/storemigrate/internal/domain"
	"github.com/osvaldoandrade/storemigrate/internal/infra/schemafile"
)

// SHA256 fingerprints a schema as the SHA-256 of its canonical JSON form
// (RFC 8785), so key order and whitespace never change the result.
type SHA256 struct{}

func (SHA256) Fingerprint(stores []domain.StoreSpec) (string, error) {
	data, err := schemafile.MarshalStores(stores)
	if err != nil {
		return "", fmt.Errorf("encode schema: %w", err)
	}
	value := jsontext.Value(data)
	if err := value.Canonicalize(); err != nil {
		return "", fmt.Errorf("canonicalize schema: %w", err)
	}
	sum := sha256.Sum256(value)
	return hex.EncodeToString(sum[:]), nil
}
