package services

import "errors"

// Sentinel errors handlers translate into HTTP status codes.
var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation failed")
	ErrDuplicateDomain = errors.New("primary domain already in use")
)
