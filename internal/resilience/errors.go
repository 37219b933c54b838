// Package resilience classifies failures from remote services so callers can
// decide whether skipping and moving on is reasonable.
package resilience

import (
	"context"
	"errors"
	"net"

	"github.com/rotisserie/eris"
)

// TransientError marks a failure that would likely succeed on a retry, such
// as a rate-limited or momentarily unavailable remote.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return "transient: " + e.Op + ": " + e.Err.Error()
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as transient. Returns nil when err is nil.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}

// IsTransient reports whether err is marked transient or is a timeout.
func IsTransient(err error) bool {
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// IsTransientHTTPStatus reports whether an HTTP status code indicates a
// failure worth treating as transient.
func IsTransientHTTPStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	}
	return false
}

// Permanent strips any transient marker so the failure is reported as final.
func Permanent(err error) error {
	var te *TransientError
	if errors.As(err, &te) {
		return eris.Wrap(te.Err, te.Op)
	}
	return err
}
