package status

import (
	"github.com/osvaldoandrade/storemigrate/internal/app/migration"
	"github.com/osvaldoandrade/storemigrate/internal/domain"
)

type Request struct {
	Stores []domain.StoreSpec
	// Versions lists versions that only carry custom operations, so they
	// count towards the latest version and the pending plan.
	Versions []domain.Version
	Version  domain.Version
}

type Report struct {
	Stored      domain.SchemaState
	Target      domain.Version
	Fingerprint string
	Drift       bool
	Pending     []migration.StepPlan
	Stores      []domain.StoreSpec
	// Missing and Unexpected compare the physical stores and indexes with
	// what the schema declares at the stored version, as "store" or
	// "store.index" names.
	Missing    []string
	Unexpected []string
}

func (r Report) UpToDate() bool {
	return r.Stored.Version == r.Target && !r.Drift && len(r.Missing) == 0 && len(r.Unexpected) == 0
}
