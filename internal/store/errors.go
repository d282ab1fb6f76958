package store

import "errors"

var (
	// ErrCacheCorrupt marks a cache database that could not be read. The
	// pipeline degrades to an empty cache instead of aborting.
	ErrCacheCorrupt = errors.New("cache corrupt")

	ErrInvalidInput = errors.New("invalid input")
)
