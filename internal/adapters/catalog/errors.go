package catalog

import "errors"

// Sentinel kinds for catalog loading errors.
var (
	ErrReadCatalog    = errors.New("failed to read catalog")
	ErrInvalidCatalog = errors.New("invalid catalog")
	ErrReadTLE        = errors.New("failed to read TLE data")
)
