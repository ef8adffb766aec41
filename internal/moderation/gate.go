package moderation

import (
	"context"
	"errors"
	"log"
	"time"
)

// FallbackPolicy decides what happens to a submission when the classifier
// cannot be reached at all.
type FallbackPolicy string

const (
	// FailClosed holds the submission for manual review. This is the
	// default: wrongly publishing unsafe content costs more than a review
	// delay.
	FailClosed FallbackPolicy = "fail_closed"
	// FailOpen publishes the submission immediately.
	FailOpen FallbackPolicy = "fail_open"
)

// ParseFallbackPolicy normalizes a configured policy string, defaulting to
// FailClosed for anything unrecognized.
func ParseFallbackPolicy(raw string) FallbackPolicy {
	if FallbackPolicy(raw) == FailOpen {
		return FailOpen
	}
	return FailClosed
}

// Decision is the gate's normalized outcome after retry and fallback
// policy have been applied. It is never an error: a submission always
// resolves to a visibility state.
type Decision struct {
	Allowed  bool
	Notes    string
	Fallback bool
}

// Gate wraps a Classifier with a per-attempt time budget, bounded retries
// for transient failures, and the configured fallback policy. It holds no
// state between invocations.
type Gate struct {
	classifier Classifier
	timeout    time.Duration
	retries    int
	policy     FallbackPolicy
	backoff    time.Duration
	maxBackoff time.Duration
}

func NewGate(classifier Classifier, timeout time.Duration, retries int, policy FallbackPolicy) *Gate {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if retries < 0 {
		retries = 0
	}
	return &Gate{
		classifier: classifier,
		timeout:    timeout,
		retries:    retries,
		policy:     policy,
		backoff:    100 * time.Millisecond,
		maxBackoff: time.Second,
	}
}

// Review consults the classifier and always returns a Decision. A verdict,
// once obtained, is final; transient failures are retried up to the
// configured budget and then resolved by the fallback policy. Deterministic
// classifier errors are never retried.
func (g *Gate) Review(ctx context.Context, text string) Decision {
	var lastErr error
	for attempt := 0; attempt <= g.retries; attempt++ {
		if attempt > 0 {
			if !g.waitBackoff(ctx, attempt) {
				break
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, g.timeout)
		verdict, err := g.classifier.Classify(attemptCtx, text)
		cancel()

		if err == nil {
			return Decision{Allowed: verdict.Allowed, Notes: verdict.Notes}
		}

		lastErr = err
		var transient *TransientError
		if !errors.As(err, &transient) {
			// Hard failure: the classifier answered but the answer is
			// unusable. Retrying will not change it.
			break
		}
	}

	log.Printf("moderation: classifier unavailable, applying %s: %v", g.policy, lastErr)
	return g.fallback()
}

func (g *Gate) fallback() Decision {
	if g.policy == FailOpen {
		return Decision{Allowed: true, Fallback: true}
	}
	return Decision{Allowed: false, Notes: "held for review: automated screening unavailable", Fallback: true}
}

// waitBackoff sleeps for the bounded exponential delay before the given
// attempt. Returns false if the parent context ended first.
func (g *Gate) waitBackoff(ctx context.Context, attempt int) bool {
	delay := g.backoff << (attempt - 1)
	if delay > g.maxBackoff {
		delay = g.maxBackoff
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
