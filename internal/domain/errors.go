// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a write raced with another request for the same key.
var ErrConflict = errors.New("conflict: resource was modified by another request")

// ErrValidation indicates a request the caller can fix: missing fields,
// unknown enum values, malformed payloads.
var ErrValidation = errors.New("validation failed")
