// Package publication owns the visibility lifecycle of posts and comments.
package publication

import (
	"errors"
	"strings"

	"carelink/api/internal/moderation"
)

// Visibility is the publicly observable state of a post or comment.
type Visibility string

const (
	// Published content is visible to every reader.
	Published Visibility = "published"
	// PendingReview content is held for a human moderator; only its author
	// and moderators can see it.
	PendingReview Visibility = "pending_review"
	// Hidden content was rejected by a moderator and stays suppressed.
	Hidden Visibility = "hidden"
)

// ErrInvalidTransition is returned for moderator actions on an entity that
// is not in a state the action applies to.
var ErrInvalidTransition = errors.New("invalid visibility transition")

func (v Visibility) Valid() bool {
	switch v {
	case Published, PendingReview, Hidden:
		return true
	}
	return false
}

// Parse normalizes a raw state string. Unknown values are reported via ok=false.
func Parse(raw string) (Visibility, bool) {
	v := Visibility(strings.ToLower(strings.TrimSpace(raw)))
	return v, v.Valid()
}

// Initial maps a moderation decision onto the state a freshly submitted
// entity is created with. Allowed content publishes immediately; anything
// else is held for review with the gate's notes attached. First submission
// never lands on Hidden: permanent suppression requires a human decision.
func Initial(d moderation.Decision) (Visibility, string) {
	if d.Allowed {
		return Published, ""
	}
	return PendingReview, d.Notes
}

// Promote moves held content into public view. Promoting content that is
// already Published is an idempotent no-op.
func Promote(v Visibility) (Visibility, error) {
	switch v {
	case PendingReview, Published:
		return Published, nil
	default:
		return v, ErrInvalidTransition
	}
}

// Reject permanently suppresses held content. Rejecting content that is
// already Hidden is an idempotent no-op. Published content cannot be
// rejected through this transition.
func Reject(v Visibility) (Visibility, error) {
	switch v {
	case PendingReview, Hidden:
		return Hidden, nil
	default:
		return v, ErrInvalidTransition
	}
}
