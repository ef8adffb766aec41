// Package suggest produces advisory reply drafts for forum posts. The flow
// is speculative: nothing it returns is persisted, and an adopted draft
// still goes through the normal comment submission path unchanged.
package suggest

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrInsufficientContext means the post body is too short to draft a
	// useful reply; the service is never called in that case.
	ErrInsufficientContext = errors.New("post body too short for a suggestion")
	// ErrUnavailable means the suggestion backend failed or timed out.
	// Callers proceed without a suggestion.
	ErrUnavailable = errors.New("suggestion service unavailable")
)

// Suggester drafts a candidate reply for a post's body text.
type Suggester interface {
	Suggest(ctx context.Context, text string) (string, error)
}

// Orchestrator enforces the minimum-context threshold and the time budget
// around Suggester calls.
type Orchestrator struct {
	suggester Suggester
	timeout   time.Duration
	minChars  int
}

func NewOrchestrator(suggester Suggester, timeout time.Duration, minChars int) *Orchestrator {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if minChars <= 0 {
		minChars = 10
	}
	return &Orchestrator{suggester: suggester, timeout: timeout, minChars: minChars}
}

// Draft returns a candidate reply for the given post body. Cancellation of
// ctx aborts the request; the flow is advisory and has no side effects.
func (o *Orchestrator) Draft(ctx context.Context, body string) (string, error) {
	trimmed := strings.TrimSpace(body)
	if len(trimmed) < o.minChars {
		return "", ErrInsufficientContext
	}
	if o.suggester == nil {
		return "", ErrUnavailable
	}

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	suggestion, err := o.suggester.Suggest(callCtx, trimmed)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", ErrUnavailable
	}
	suggestion = strings.TrimSpace(suggestion)
	if suggestion == "" {
		return "", ErrUnavailable
	}
	return suggestion, nil
}
