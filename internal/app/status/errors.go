package status

import "errors"

var ErrInvalidLimit = errors.New("history limit must not be negative")
