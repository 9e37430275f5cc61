package analysis

import (
	"errors"
	"fmt"
)

// ErrBackendUnavailable is returned by a backend that is not configured. The
// pipeline skips it without counting a failure.
var ErrBackendUnavailable = errors.New("inference backend unavailable")

// ErrRateLimited indicates the provider answered 429 or a quota error.
var ErrRateLimited = errors.New("inference provider rate limited")

// InferenceError is a configured backend failing to answer: timeout, non-2xx,
// rejected credentials.
type InferenceError struct {
	Backend Source
	Cause   error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference %s: %v", e.Backend, e.Cause)
}

func (e *InferenceError) Unwrap() error { return e.Cause }

// BlobFetchError means the image bytes could not be retrieved. Jobs failing
// with it are retried.
type BlobFetchError struct {
	Reference StorageReference
	Cause     error
}

func (e *BlobFetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Reference, e.Cause)
}

func (e *BlobFetchError) Unwrap() error { return e.Cause }
