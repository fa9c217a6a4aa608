package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Token allocation gave up after its bounded retries.
	ErrTokenAllocationExhausted = errors.New("unique token allocation exhausted")
)
