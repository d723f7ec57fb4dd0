package dataop

import "errors"

var (
	ErrRewriteUnsupported = errors.New("transaction cannot rewrite records")
	ErrUnknownKind        = errors.New("unknown data operation kind")
	ErrStoreRequired      = errors.New("data operation store is required")
	ErrEmptyOperation     = errors.New("data operation has no patch or expression")
)
