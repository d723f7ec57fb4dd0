package domain

import "errors"

var (
	ErrStoreExists   = errors.New("store already exists")
	ErrStoreNotFound = errors.New("store not found")
	ErrIndexExists   = errors.New("index already exists")
	ErrIndexNotFound = errors.New("index not found")
	ErrConstraint    = errors.New("unique constraint violated")

	ErrKeyRequired   = errors.New("record key is required")
	ErrKeyChanged    = errors.New("record rewrite changed its key")
	ErrInvalidRecord = errors.New("record is not a JSON object")
)
