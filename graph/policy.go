package graph

import (
	"math/rand"
	"time"

	"github.com/flowforge/agentgraph/graph/errs"
)

// RetryPolicy configures retry behavior for one error kind, applied by the
// runtime around each node execution.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Retryable   func(error) bool
}

// Validate checks a RetryPolicy's invariants.
func (p *RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return errs.New(errs.KindInternalError, "", "RetryPolicy.MaxAttempts must be >= 1", nil)
	}
	if p.MaxDelay > 0 && p.BaseDelay > 0 && p.MaxDelay < p.BaseDelay {
		return errs.New(errs.KindInternalError, "", "RetryPolicy.MaxDelay must be >= BaseDelay", nil)
	}
	return nil
}

// DefaultRetryPolicies returns the per-error-kind retry table used
// when a node config does not override it.
func DefaultRetryPolicies() map[errs.Kind]*RetryPolicy {
	return map[errs.Kind]*RetryPolicy{
		errs.KindExternalError: {
			MaxAttempts: 3,
			BaseDelay:   1 * time.Second,
			MaxDelay:    30 * time.Second,
		},
		errs.KindAuthError: {
			MaxAttempts: 1,
			BaseDelay:   1 * time.Second,
			MaxDelay:    1 * time.Second,
		},
	}
}

// ComputeBackoff returns exponential backoff with jitter: min(base*2^attempt,
// maxDelay) + jitter(0, base). attempt is zero-based (0 = first retry).
func ComputeBackoff(attempt int, base, maxDelay time.Duration, rng *rand.Rand) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if maxDelay > 0 && delay > maxDelay {
			delay = maxDelay
			break
		}
	}
	jitter := time.Duration(0)
	if rng != nil && base > 0 {
		jitter = time.Duration(rng.Int63n(int64(base)))
	}
	return delay + jitter
}

// NodePolicy configures per-node timeout, retry, and idempotency behavior.
type NodePolicy struct {
	Timeout             time.Duration
	RetryPolicy         *RetryPolicy
	IdempotencyKeyFunc  func(state *State) string
}
