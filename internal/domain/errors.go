package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrAlreadyExists        = errors.New("already exists")
	ErrRateLimited          = errors.New("rate limited")
	ErrTransient            = errors.New("transient request failure")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrDataIntegrity        = errors.New("data integrity violation")
	ErrConfiguration        = errors.New("invalid configuration")
	ErrContextDone          = errors.New("context cancelled")
	ErrWSDisconnect         = errors.New("websocket disconnected")
	ErrPositionsUnsupported = errors.New("position tracking not supported")
	ErrLockHeld             = errors.New("lock already held")
)

// RateLimitError wraps ErrRateLimited with the venue's Retry-After hint so
// the queue can honor it during backoff.
type RateLimitError struct {
	Venue      Venue
	RetryAfter time.Duration // zero when the venue gave no hint
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: rate limited, retry after %s", e.Venue, e.RetryAfter)
	}
	return fmt.Sprintf("%s: rate limited", e.Venue)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// IsRetryable reports whether the queue should retry the error at all, i.e.
// it is either a rate-limit response or a transient network/server failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTransient)
}

// RetryAfterHint extracts the venue's Retry-After duration from an error
// chain, or zero if none was supplied.
func RetryAfterHint(err error) time.Duration {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle.RetryAfter
	}
	return 0
}
