package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds automatic retries for one backend operation. Retries
// apply only to transport-level failures; a BusinessRejection or any 4xx
// is terminal for the attempt.
type RetryPolicy struct {
	MaxAttempts     uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

var (
	// RetryReads covers idempotent reads and the idempotency-keyed booking
	// submit: safe to repeat without changing server state twice.
	RetryReads = RetryPolicy{MaxAttempts: 3, InitialInterval: 200 * time.Millisecond, MaxInterval: 2 * time.Second}

	// RetryNone is for writes that are not safe to repeat automatically
	// (message save, OTP request/verify, suggestion consume).
	RetryNone = RetryPolicy{MaxAttempts: 1}
)

func (p RetryPolicy) backOff() backoff.BackOff {
	if p.MaxAttempts <= 1 {
		return &backoff.StopBackOff{}
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	return backoff.WithMaxRetries(b, p.MaxAttempts-1)
}

// retryable reports whether a failed attempt may be repeated under the
// operation's policy.
func retryable(err error) bool {
	var te *TransportError
	if !errors.As(err, &te) {
		return false
	}
	switch {
	case te.Status == 0:
		return true
	case te.Status >= http.StatusInternalServerError:
		return true
	case te.Status == http.StatusRequestTimeout, te.Status == http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}
