package publication

import (
	"errors"
	"testing"

	"carelink/api/internal/moderation"
)

func TestParseNormalizesKnownStates(t *testing.T) {
	cases := []struct {
		raw  string
		want Visibility
		ok   bool
	}{
		{"published", Published, true},
		{" Pending_Review ", PendingReview, true},
		{"HIDDEN", Hidden, true},
		{"draft", Visibility("draft"), false},
		{"", Visibility(""), false},
	}
	for _, tc := range cases {
		got, ok := Parse(tc.raw)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("Parse(%q) = %q, %v; want %q, %v", tc.raw, got, ok, tc.want, tc.ok)
		}
	}
}

func TestInitialAllowedPublishesWithoutNotes(t *testing.T) {
	visibility, notes := Initial(moderation.Decision{Allowed: true, Notes: "should be ignored"})
	if visibility != Published {
		t.Fatalf("expected published, got %q", visibility)
	}
	if notes != "" {
		t.Fatalf("expected no notes on published content, got %q", notes)
	}
}

func TestInitialDeniedHoldsWithNotes(t *testing.T) {
	visibility, notes := Initial(moderation.Decision{Allowed: false, Notes: "possible PII in paragraph 2"})
	if visibility != PendingReview {
		t.Fatalf("expected pending_review, got %q", visibility)
	}
	if notes != "possible PII in paragraph 2" {
		t.Fatalf("expected gate notes to carry over, got %q", notes)
	}
}

func TestInitialNeverProducesHidden(t *testing.T) {
	for _, decision := range []moderation.Decision{
		{Allowed: true},
		{Allowed: false},
		{Allowed: false, Fallback: true},
	} {
		if visibility, _ := Initial(decision); visibility == Hidden {
			t.Fatalf("Initial(%+v) produced hidden", decision)
		}
	}
}

func TestPromoteFromPendingReview(t *testing.T) {
	next, err := Promote(PendingReview)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next != Published {
		t.Fatalf("expected published, got %q", next)
	}
}

func TestPromotePublishedIsNoOp(t *testing.T) {
	next, err := Promote(Published)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next != Published {
		t.Fatalf("expected published, got %q", next)
	}
}

func TestPromoteHiddenFails(t *testing.T) {
	if _, err := Promote(Hidden); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestRejectFromPendingReview(t *testing.T) {
	next, err := Reject(PendingReview)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next != Hidden {
		t.Fatalf("expected hidden, got %q", next)
	}
}

func TestRejectHiddenIsNoOp(t *testing.T) {
	next, err := Reject(Hidden)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next != Hidden {
		t.Fatalf("expected hidden, got %q", next)
	}
}

func TestRejectPublishedFails(t *testing.T) {
	if _, err := Reject(Published); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}
