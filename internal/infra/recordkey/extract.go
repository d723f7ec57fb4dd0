// Package recordkey reads key and index values out of JSON records. Key
// paths are dotted property paths ("address.city").
package recordkey

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/buger/jsonparser"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/osvaldoandrade/storemigrate/internal/domain"
)

var (
	ErrMissingKey = errors.New("record has no value at key path")
	ErrInvalidKey = errors.New("record key must be a string, number or array")
)

func Segments(path string) []string {
	return strings.Split(path, ".")
}

// Extract returns the key of value under kp as JSON text: the value itself
// for a single path, or a JSON array of values for a compound path.
func Extract(value []byte, kp domain.KeyPath) ([]byte, error) {
	if kp.IsZero() {
		return nil, ErrMissingKey
	}
	if !kp.Array {
		raw, _, err := lookup(value, kp.Paths[0])
		return raw, err
	}

	out := []byte{'['}
	for i, path := range kp.Paths {
		raw, _, err := lookup(value, path)
		if err != nil {
			return nil, err
		}
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, raw...)
	}
	return append(out, ']'), nil
}

// IndexEntries returns the index keys value contributes to. A record with
// no value at the path is not indexed. A multi-entry index over an array
// yields one key per distinct element.
func IndexEntries(value []byte, index domain.IndexSpec) ([][]byte, error) {
	if !index.MultiEntry || index.KeyPath.Array {
		key, err := Extract(value, index.KeyPath)
		if errors.Is(err, ErrMissingKey) || errors.Is(err, ErrInvalidKey) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return [][]byte{key}, nil
	}

	raw, typ, err := lookup(value, index.KeyPath.Paths[0])
	if errors.Is(err, ErrMissingKey) || errors.Is(err, ErrInvalidKey) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if typ != jsonparser.Array {
		return [][]byte{raw}, nil
	}

	var entries [][]byte
	var eachErr error
	_, err = jsonparser.ArrayEach(raw, func(item []byte, itemType jsonparser.ValueType, _ int, _ error) {
		key, ok := keyText(item, itemType)
		if !ok {
			return
		}
		for _, existing := range entries {
			if bytes.Equal(existing, key) {
				return
			}
		}
		entries = append(entries, key)
	})
	if err != nil {
		eachErr = fmt.Errorf("read multi-entry array: %w", err)
	}
	return entries, eachErr
}

func lookup(value []byte, path string) ([]byte, jsonparser.ValueType, error) {
	raw, typ, _, err := jsonparser.Get(value, Segments(path)...)
	if errors.Is(err, jsonparser.KeyPathNotFoundError) || typ == jsonparser.NotExist || typ == jsonparser.Null {
		return nil, typ, fmt.Errorf("%w: %s", ErrMissingKey, path)
	}
	if err != nil {
		return nil, typ, fmt.Errorf("read %s: %w", path, err)
	}
	key, ok := keyText(raw, typ)
	if !ok {
		return nil, typ, fmt.Errorf("%w: %s", ErrInvalidKey, path)
	}
	return key, typ, nil
}

// keyText renders a parsed value back as JSON text. jsonparser strips the
// quotes from strings.
func keyText(raw []byte, typ jsonparser.ValueType) ([]byte, bool) {
	switch typ {
	case jsonparser.String:
		out := make([]byte, 0, len(raw)+2)
		out = append(out, '"')
		out = append(out, raw...)
		return append(out, '"'), true
	case jsonparser.Number, jsonparser.Array:
		return append([]byte(nil), raw...), true
	default:
		return nil, false
	}
}

// Text renders a key for callers: a string key without its JSON quotes,
// any other key as its JSON text.
func Text(key []byte) string {
	if len(key) >= 2 && key[0] == '"' {
		if s, err := jsonparser.ParseString(key[1 : len(key)-1]); err == nil {
			return s
		}
	}
	return string(key)
}

// Check reports whether value is a well-formed JSON object.
func Check(value []byte) error {
	trimmed := bytes.TrimSpace(value)
	if len(trimmed) == 0 || trimmed[0] != '{' || !jsontext.Value(trimmed).IsValid() {
		return domain.ErrInvalidRecord
	}
	return nil
}
