package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidSchema is matched by every SchemaError.
var ErrInvalidSchema = errors.New("invalid schema")

type Rule string

const (
	RuleInvalidName        Rule = "invalid_name"
	RuleInvalidVersion     Rule = "invalid_version"
	RuleMissingKeyPath     Rule = "missing_key_path"
	RuleDuplicateStore     Rule = "duplicate_store"
	RuleDuplicateIndex     Rule = "duplicate_index"
	RuleStoreOrder         Rule = "store_created_before_dropped"
	RuleIndexOrder         Rule = "index_created_before_dropped"
	RuleIndexCreatedBounds Rule = "index_created_within_store"
	RuleIndexDroppedBounds Rule = "index_dropped_within_store"
	RuleMultiEntryArray    Rule = "multi_entry_single_path"
	RuleAutoIncrementPath  Rule = "auto_increment_single_path"
)

// SchemaError names the store (and index, when relevant) that broke Rule.
type SchemaError struct {
	Store  string
	Index  string
	Rule   Rule
	Detail string
}

func (e *SchemaError) Error() string {
	subject := fmt.Sprintf("store %q", e.Store)
	if e.Index != "" {
		subject = fmt.Sprintf("index %q of store %q", e.Index, e.Store)
	}
	if e.Detail == "" {
		return fmt.Sprintf("schema: %s violates %s", subject, e.Rule)
	}
	return fmt.Sprintf("schema: %s violates %s: %s", subject, e.Rule, e.Detail)
}

func (e *SchemaError) Is(target error) bool {
	return target == ErrInvalidSchema
}
