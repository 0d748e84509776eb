package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidBatch = errors.New("invalid batch")
	ErrInvalidID    = errors.New("record id must not be empty")
)
