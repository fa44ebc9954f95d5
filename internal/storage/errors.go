package storage

import "errors"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("storage: not found")

// ErrUnsupportedURL is returned by Open for a DATABASE_URL it cannot serve.
var ErrUnsupportedURL = errors.New("storage: unsupported database URL")
