// Package moderation gates every forum submission through the content
// classifier and normalizes its verdicts into publication decisions.
package moderation

import (
	"context"
	"fmt"
)

// Verdict is the classifier's raw judgment for one text payload.
type Verdict struct {
	Allowed    bool     `json:"allowed"`
	Notes      string   `json:"notes,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Classifier scores a text payload. A deterministic denial is a normal
// Verdict with Allowed=false; only delivery failures are errors.
type Classifier interface {
	Classify(ctx context.Context, text string) (Verdict, error)
}

// TransientError marks a classifier failure that is worth retrying:
// timeouts, connection failures, 5xx responses.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("classifier transient failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }
