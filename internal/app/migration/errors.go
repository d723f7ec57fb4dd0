package migration

import (
	"errors"
	"fmt"

	"github.com/osvaldoandrade/storemigrate/internal/domain"
)

var (
	ErrInvalidVersion   = errors.New("invalid schema version")
	ErrVersionDowngrade = errors.New("requested version is lower than the stored version")
	ErrManagerReused    = errors.New("migration manager already executed")
	ErrAborted          = errors.New("migration aborted by custom operation")
	ErrDuplicateAdvance = errors.New("advance called more than once")
	ErrDuplicateApply   = errors.New("step applied more than once")
)

// DuplicateCallError is the diagnostic reported when a step is applied or
// advanced a second time. The extra call is ignored.
type DuplicateCallError struct {
	Version domain.Version
	Err     error
}

func (e *DuplicateCallError) Error() string {
	return fmt.Sprintf("version %d: %v", e.Version, e.Err)
}

func (e *DuplicateCallError) Unwrap() error {
	return e.Err
}
