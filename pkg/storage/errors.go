package storage

import "errors"

// ErrNotFound is returned by Lookup when a key has no value.
var ErrNotFound = errors.New("setting not found")
