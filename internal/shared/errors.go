package shared

import "errors"

var (
	// ErrNotFound indicates resource not found within the tenant.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput indicates a malformed request rejected before any write.
	ErrInvalidInput = errors.New("invalid input")
)
