package jobs

import "errors"

var (
	ErrJobNotFound    = errors.New("job not found")
	ErrInvalidPayload = errors.New("invalid job payload")
	// ErrLeaseLost means the job was reclaimed by another worker after its
	// visibility window ran out; the stale holder must not ack or fail it.
	ErrLeaseLost = errors.New("job lease lost")
	// ErrPermanent marks failures that retrying cannot fix. Such jobs go
	// straight to the dead set.
	ErrPermanent = errors.New("permanent job failure")
)

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() []error {
	return []error{p.err, ErrPermanent}
}

// Permanent wraps err so errors.Is(err, ErrPermanent) holds.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}
