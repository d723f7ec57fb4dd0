package domain

import (
	"strings"
	"unicode"
)

// ReservedPrefix is kept for engine bookkeeping and cannot start a store or
// index name.
const ReservedPrefix = "__"

func IsValidName(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	if strings.HasPrefix(name, ReservedPrefix) {
		return false
	}
	if strings.ContainsAny(name, "/\\") {
		return false
	}
	if strings.Contains(name, "..") {
		return false
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}
