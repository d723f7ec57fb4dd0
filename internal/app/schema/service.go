// Package schema validates and normalizes store declarations before they are
// handed to the migration engine.
package schema

import (
	"fmt"

	"github.com/osvaldoandrade/storemigrate/internal/domain"
	"go.uber.org/multierr"
)

type Validator struct{}

// Validate returns a normalized copy of stores: nil index lists become empty
// and unnamed indexes are named after their key path. Every rule violation is
// reported; the returned error combines one *domain.SchemaError per violation.
func (Validator) Validate(stores []domain.StoreSpec) ([]domain.StoreSpec, error) {
	return Validate(stores)
}

func Validate(stores []domain.StoreSpec) ([]domain.StoreSpec, error) {
	var errs error
	normalized := make([]domain.StoreSpec, 0, len(stores))
	seenStores := make(map[string]struct{}, len(stores))

	for _, declared := range stores {
		store := declared.Clone()
		if store.Indexes == nil {
			store.Indexes = []domain.IndexSpec{}
		}

		if !domain.IsValidName(store.Name) {
			errs = multierr.Append(errs, violation(store.Name, "", domain.RuleInvalidName, "names must be non-empty, without path separators or the reserved prefix"))
		} else if _, dup := seenStores[store.Name]; dup {
			errs = multierr.Append(errs, violation(store.Name, "", domain.RuleDuplicateStore, ""))
		}
		seenStores[store.Name] = struct{}{}

		errs = multierr.Append(errs, checkStore(store))

		seenIndexes := make(map[string]struct{}, len(store.Indexes))
		for i := range store.Indexes {
			index := &store.Indexes[i]
			if index.Name == "" {
				index.Name = index.KeyPath.Name()
			}
			if _, dup := seenIndexes[index.Name]; dup {
				errs = multierr.Append(errs, violation(store.Name, index.Name, domain.RuleDuplicateIndex, ""))
			}
			seenIndexes[index.Name] = struct{}{}
			errs = multierr.Append(errs, checkIndex(store, *index))
		}

		normalized = append(normalized, store)
	}

	if errs != nil {
		return nil, errs
	}
	return normalized, nil
}

func checkStore(store domain.StoreSpec) error {
	var errs error
	if store.CreatedAt < 0 || store.DroppedAt < 0 {
		errs = multierr.Append(errs, violation(store.Name, "", domain.RuleInvalidVersion, "versions must be positive"))
	}
	if store.CreatedAt.IsSet() && store.DroppedAt.IsSet() && store.CreatedAt >= store.DroppedAt {
		errs = multierr.Append(errs, violation(store.Name, "", domain.RuleStoreOrder,
			fmt.Sprintf("createdAt %d must be lower than droppedAt %d", store.CreatedAt, store.DroppedAt)))
	}
	if err := checkKeyPath(store.KeyPath); err != "" {
		errs = multierr.Append(errs, violation(store.Name, "", domain.RuleMissingKeyPath, err))
	}
	if store.AutoIncrement && store.KeyPath.Array {
		errs = multierr.Append(errs, violation(store.Name, "", domain.RuleAutoIncrementPath, "autoIncrement requires a single key path"))
	}
	return errs
}

func checkIndex(store domain.StoreSpec, index domain.IndexSpec) error {
	var errs error
	if index.Name != "" && !domain.IsValidName(index.Name) {
		errs = multierr.Append(errs, violation(store.Name, index.Name, domain.RuleInvalidName, ""))
	}
	if index.KeyPath.IsZero() {
		errs = multierr.Append(errs, violation(store.Name, index.Name, domain.RuleMissingKeyPath, "indexes require a key path"))
	} else if err := checkKeyPath(index.KeyPath); err != "" {
		errs = multierr.Append(errs, violation(store.Name, index.Name, domain.RuleMissingKeyPath, err))
	}
	if index.MultiEntry && index.KeyPath.Array {
		errs = multierr.Append(errs, violation(store.Name, index.Name, domain.RuleMultiEntryArray, "multiEntry requires a single key path"))
	}
	if index.CreatedAt < 0 || index.DroppedAt < 0 {
		errs = multierr.Append(errs, violation(store.Name, index.Name, domain.RuleInvalidVersion, "versions must be positive"))
		return errs
	}
	if index.CreatedAt.IsSet() && index.DroppedAt.IsSet() && index.CreatedAt >= index.DroppedAt {
		errs = multierr.Append(errs, violation(store.Name, index.Name, domain.RuleIndexOrder,
			fmt.Sprintf("createdAt %d must be lower than droppedAt %d", index.CreatedAt, index.DroppedAt)))
	}

	if index.CreatedAt.IsSet() {
		if store.CreatedAt.IsSet() && index.CreatedAt < store.CreatedAt {
			errs = multierr.Append(errs, violation(store.Name, index.Name, domain.RuleIndexCreatedBounds,
				fmt.Sprintf("createdAt %d precedes store createdAt %d", index.CreatedAt, store.CreatedAt)))
		}
		if store.DroppedAt.IsSet() && index.CreatedAt >= store.DroppedAt {
			errs = multierr.Append(errs, violation(store.Name, index.Name, domain.RuleIndexCreatedBounds,
				fmt.Sprintf("createdAt %d is not before store droppedAt %d", index.CreatedAt, store.DroppedAt)))
		}
	}
	if index.DroppedAt.IsSet() {
		if store.DroppedAt.IsSet() && index.DroppedAt > store.DroppedAt {
			errs = multierr.Append(errs, violation(store.Name, index.Name, domain.RuleIndexDroppedBounds,
				fmt.Sprintf("droppedAt %d follows store droppedAt %d", index.DroppedAt, store.DroppedAt)))
		}
		if store.CreatedAt.IsSet() && index.DroppedAt <= store.CreatedAt {
			errs = multierr.Append(errs, violation(store.Name, index.Name, domain.RuleIndexDroppedBounds,
				fmt.Sprintf("droppedAt %d is not after store createdAt %d", index.DroppedAt, store.CreatedAt)))
		}
	}
	return errs
}

// checkKeyPath returns a description of what is wrong with path, or "".
func checkKeyPath(path domain.KeyPath) string {
	if path.IsZero() {
		if path.Array {
			return "key path sequence is empty"
		}
		return ""
	}
	for _, segment := range path.Paths {
		if segment == "" {
			return "key path segments must be non-empty"
		}
	}
	return ""
}

func violation(store, index string, rule domain.Rule, detail string) error {
	return &domain.SchemaError{Store: store, Index: index, Rule: rule, Detail: detail}
}
