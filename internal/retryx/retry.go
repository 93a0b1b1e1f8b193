// Package retryx implements the exponential backoff shared by the HTTP client,
// object uploads and the live-update reconnect loop.
//
// The delay for attempt n (zero based) is
//
//	min(Base * 2^n + rand[0, Jitter), Max)
//
// Errors are classified by the HTTP status they carry: 429 and 5xx are
// transient, as is any error without a status (a transport failure). Other
// statuses, context cancellation and an expired session are terminal.
package retryx

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/sethvargo/go-retry"
)

// StatusCoder is implemented by errors that carry an HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// Policy is an exponential backoff shape.
type Policy struct {
	// Attempts is the total number of tries, including the first one.
	Attempts int
	Base     time.Duration
	Max      time.Duration
	Jitter   time.Duration
}

// DefaultPolicy is three attempts starting at one second, capped at 30s.
func DefaultPolicy() Policy {
	return Policy{Attempts: 3, Base: time.Second, Max: 30 * time.Second, Jitter: time.Second}
}

// Delay returns the wait before retry number attempt.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := p.Base
	for i := 0; i < attempt && (p.Max <= 0 || d < p.Max); i++ {
		d *= 2
	}
	if p.Jitter > 0 {
		d += rand.N(p.Jitter)
	}
	if p.Max > 0 && d > p.Max {
		d = p.Max
	}
	return d
}

// IsRetryableStatus reports whether an HTTP status is worth retrying.
func IsRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// IsRetryable classifies err as transient or terminal.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, common.ErrSessionExpired) {
		return false
	}
	var sc StatusCoder
	if errors.As(err, &sc) {
		return IsRetryableStatus(sc.StatusCode())
	}
	return true
}

// Backoff adapts p to a go-retry backoff, stopping after p.Attempts tries.
func (p Policy) Backoff() retry.Backoff {
	attempt := 0
	b := retry.BackoffFunc(func() (time.Duration, bool) {
		d := p.Delay(attempt)
		attempt++
		return d, false
	})
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	return retry.WithMaxRetries(uint64(attempts-1), b)
}

// Do runs op until it succeeds, returns a terminal error, or p.Attempts is
// used up. The last error is returned unchanged.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	return retry.Do(ctx, p.Backoff(), func(ctx context.Context) error {
		err := op(ctx)
		if err != nil && IsRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
