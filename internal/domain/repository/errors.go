package repository

import "errors"

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateKey is returned when a row with the same timestamp exists.
	ErrDuplicateKey = errors.New("duplicate key")
)
