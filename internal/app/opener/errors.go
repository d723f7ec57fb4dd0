package opener

import "errors"

var (
	ErrEngineRequired = errors.New("engine is required")
	ErrCommit         = errors.New("commit structural transaction")
)
