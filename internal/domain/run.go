package domain

import "time"

type RunMode string

const (
	RunModeInitialize RunMode = "initialize"
	RunModeMigrate    RunMode = "migrate"
)

// SchemaState is what an engine persists about the applied schema.
type SchemaState struct {
	Version     Version
	Fingerprint string
}

// RunRecord describes one completed structural transaction.
type RunRecord struct {
	RunID       string
	From        Version
	To          Version
	Mode        RunMode
	Versions    []Version
	Fingerprint string
	StartedAt   time.Time
	FinishedAt  time.Time
}
