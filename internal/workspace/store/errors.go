package store

import "errors"

var (
	// ErrNotFound is returned when a requested record doesn't exist.
	ErrNotFound = errors.New("record not found")

	// ErrClosed is returned when the store is used after Close.
	ErrClosed = errors.New("store is closed")
)
