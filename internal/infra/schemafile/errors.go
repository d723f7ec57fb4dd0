package schemafile

import "errors"

var (
	ErrInvalidDocument = errors.New("invalid schema document")
	ErrPathRequired    = errors.New("schema path is required")
)
