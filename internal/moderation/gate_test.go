package moderation

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeClassifier struct {
	calls      int
	classifyFn func(call int) (Verdict, error)
}

func (f *fakeClassifier) Classify(_ context.Context, _ string) (Verdict, error) {
	f.calls++
	return f.classifyFn(f.calls)
}

func newFastGate(classifier Classifier, retries int, policy FallbackPolicy) *Gate {
	gate := NewGate(classifier, time.Second, retries, policy)
	gate.backoff = time.Millisecond
	gate.maxBackoff = 2 * time.Millisecond
	return gate
}

func TestReviewAllowedVerdict(t *testing.T) {
	classifier := &fakeClassifier{classifyFn: func(int) (Verdict, error) {
		return Verdict{Allowed: true}, nil
	}}
	gate := newFastGate(classifier, 2, FailClosed)

	decision := gate.Review(context.Background(), "hello forum")

	if !decision.Allowed {
		t.Fatalf("expected allowed decision")
	}
	if decision.Fallback {
		t.Fatalf("verdict-backed decision must not be marked fallback")
	}
	if classifier.calls != 1 {
		t.Fatalf("expected 1 classifier call, got %d", classifier.calls)
	}
}

func TestReviewDeniedVerdictCarriesNotes(t *testing.T) {
	classifier := &fakeClassifier{classifyFn: func(int) (Verdict, error) {
		return Verdict{Allowed: false, Notes: "possible PII"}, nil
	}}
	gate := newFastGate(classifier, 2, FailClosed)

	decision := gate.Review(context.Background(), "my phone number is ...")

	if decision.Allowed {
		t.Fatalf("expected denied decision")
	}
	if decision.Notes != "possible PII" {
		t.Fatalf("expected classifier notes, got %q", decision.Notes)
	}
	if decision.Fallback {
		t.Fatalf("a denial is a verdict, not a fallback")
	}
}

func TestReviewRetriesTransientThenSucceeds(t *testing.T) {
	classifier := &fakeClassifier{classifyFn: func(call int) (Verdict, error) {
		if call < 3 {
			return Verdict{}, &TransientError{Err: errors.New("connection refused")}
		}
		return Verdict{Allowed: true}, nil
	}}
	gate := newFastGate(classifier, 2, FailClosed)

	decision := gate.Review(context.Background(), "text")

	if !decision.Allowed || decision.Fallback {
		t.Fatalf("expected allowed verdict after retries, got %+v", decision)
	}
	if classifier.calls != 3 {
		t.Fatalf("expected 3 classifier calls, got %d", classifier.calls)
	}
}

func TestReviewExhaustedRetriesFailClosed(t *testing.T) {
	classifier := &fakeClassifier{classifyFn: func(int) (Verdict, error) {
		return Verdict{}, &TransientError{Err: errors.New("timeout")}
	}}
	gate := newFastGate(classifier, 2, FailClosed)

	decision := gate.Review(context.Background(), "text")

	if decision.Allowed {
		t.Fatalf("fail_closed must hold the submission")
	}
	if !decision.Fallback {
		t.Fatalf("expected fallback decision")
	}
	if decision.Notes == "" {
		t.Fatalf("fail_closed fallback must explain why the content is held")
	}
	if classifier.calls != 3 {
		t.Fatalf("expected initial attempt plus 2 retries, got %d calls", classifier.calls)
	}
}

func TestReviewExhaustedRetriesFailOpen(t *testing.T) {
	classifier := &fakeClassifier{classifyFn: func(int) (Verdict, error) {
		return Verdict{}, &TransientError{Err: errors.New("timeout")}
	}}
	gate := newFastGate(classifier, 1, FailOpen)

	decision := gate.Review(context.Background(), "text")

	if !decision.Allowed {
		t.Fatalf("fail_open must publish the submission")
	}
	if !decision.Fallback {
		t.Fatalf("expected fallback decision")
	}
	if classifier.calls != 2 {
		t.Fatalf("expected 2 classifier calls, got %d", classifier.calls)
	}
}

func TestReviewDoesNotRetryDeterministicErrors(t *testing.T) {
	classifier := &fakeClassifier{classifyFn: func(int) (Verdict, error) {
		return Verdict{}, errors.New("classifier returned 400")
	}}
	gate := newFastGate(classifier, 2, FailClosed)

	decision := gate.Review(context.Background(), "text")

	if classifier.calls != 1 {
		t.Fatalf("deterministic errors must not be retried, got %d calls", classifier.calls)
	}
	if decision.Allowed || !decision.Fallback {
		t.Fatalf("expected fail_closed fallback, got %+v", decision)
	}
}

func TestReviewStopsWhenContextCancelled(t *testing.T) {
	classifier := &fakeClassifier{classifyFn: func(int) (Verdict, error) {
		return Verdict{}, &TransientError{Err: errors.New("timeout")}
	}}
	gate := NewGate(classifier, time.Second, 5, FailClosed)
	gate.backoff = time.Hour
	gate.maxBackoff = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	decision := gate.Review(ctx, "text")

	if classifier.calls != 1 {
		t.Fatalf("cancelled context must end the retry loop, got %d calls", classifier.calls)
	}
	if !decision.Fallback {
		t.Fatalf("expected fallback decision, got %+v", decision)
	}
}

func TestParseFallbackPolicyDefaultsClosed(t *testing.T) {
	if ParseFallbackPolicy("fail_open") != FailOpen {
		t.Fatalf("expected fail_open")
	}
	for _, raw := range []string{"", "fail_closed", "nonsense"} {
		if ParseFallbackPolicy(raw) != FailClosed {
			t.Fatalf("expected %q to parse as fail_closed", raw)
		}
	}
}
