// Package retry provides an explicit, injectable retry policy for network
// call boundaries.
package retry

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/lncr/reports-helpbot1/internal/errors"
	"github.com/lncr/reports-helpbot1/internal/logging"
)

// Policy describes how an operation is retried. The zero value retries
// forever with no delay; production policies always set a backoff.
type Policy struct {
	// Backoff is the fixed delay between attempts.
	Backoff time.Duration
	// MaxAttempts caps the number of attempts. Zero means no cap: the
	// operation is retried until it succeeds or the context is done.
	MaxAttempts int
}

// Transient is the default policy for HTTP upstreams: a fixed one second
// backoff, no attempt cap.
var Transient = Policy{Backoff: time.Second}

// ContractCall is the policy for contract reads against the chain node:
// derivation calls are cheap and pure, so they are retried until an answer
// is obtained, two seconds apart.
var ContractCall = Policy{Backoff: 2 * time.Second}

// Once disables retrying entirely.
var Once = Policy{MaxAttempts: 1}

// Func is an operation that can be retried. The attempt counter starts at 1.
type Func func(ctx context.Context, attempt int) error

// Do runs fn under the policy. Non-retryable errors (malformed input,
// upstream semantic errors) abort immediately regardless of the policy.
func Do(ctx context.Context, p Policy, fn Func) error {
	logger := logging.FromContext(ctx)

	for attempt := 1; ; attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		if !apperrors.IsRetryable(err) {
			return err
		}
		if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
			if p.MaxAttempts == 1 {
				return err
			}
			return fmt.Errorf("failed after %d attempts: %w", attempt, err)
		}

		logger.WithError(err).WithField("attempt", attempt).Warn("operation failed, retrying")

		select {
		case <-time.After(p.Backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
