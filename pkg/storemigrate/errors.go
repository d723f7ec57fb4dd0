package storemigrate

import "errors"

var (
	ErrPathRequired       = errors.New("storemigrate: database path required")
	ErrUnknownEngine      = errors.New("storemigrate: unknown engine")
	ErrClosed             = errors.New("storemigrate: client is closed")
	ErrConflictingVersion = errors.New("storemigrate: version has both a data operation and a Go operation")
)
