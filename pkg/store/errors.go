package store

import "errors"

var (
	// ErrNotFound signals an absent conversation, message or branch.
	// Query-style callers treat it as a cheap null result, not a fault.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists signals a restore targeting a branch id that is
	// already present.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidOperation signals a mutation whose target or parent does
	// not resolve, or mismatched conversation ownership on fork/import.
	ErrInvalidOperation = errors.New("invalid operation")
)
