package domain

import "strings"

// KeyPath names the record property (or properties) a key is read from.
// Array distinguishes a declared sequence from a single string path, which
// matters for the key shape even when the sequence has one element.
type KeyPath struct {
	Paths []string
	Array bool
}

func Path(path string) KeyPath {
	return KeyPath{Paths: []string{path}}
}

func Paths(paths ...string) KeyPath {
	return KeyPath{Paths: append([]string(nil), paths...), Array: true}
}

func (k KeyPath) IsZero() bool {
	return len(k.Paths) == 0
}

// Name is the default index name derived from the path.
func (k KeyPath) Name() string {
	return strings.Join(k.Paths, "_")
}

func (k KeyPath) String() string {
	if !k.Array {
		return k.Name()
	}
	return "[" + strings.Join(k.Paths, ", ") + "]"
}

func (k KeyPath) Equal(other KeyPath) bool {
	if k.Array != other.Array || len(k.Paths) != len(other.Paths) {
		return false
	}
	for i := range k.Paths {
		if k.Paths[i] != other.Paths[i] {
			return false
		}
	}
	return true
}

func (k KeyPath) Clone() KeyPath {
	if k.Paths == nil {
		return KeyPath{Array: k.Array}
	}
	return KeyPath{Paths: append([]string(nil), k.Paths...), Array: k.Array}
}
