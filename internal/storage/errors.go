package storage

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("storage: not found")

	// ErrDuplicateKey is returned when an insert collides with an existing key.
	ErrDuplicateKey = errors.New("storage: duplicate key")

	// ErrInvalidInput is returned when a record is missing its key.
	ErrInvalidInput = errors.New("storage: invalid input")
)
