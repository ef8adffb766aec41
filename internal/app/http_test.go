package app

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"carelink/api/internal/store"
)

// authedService wires a service around the fake store with a working
// session round trip and returns a bearer token for the given user.
func authedService(t *testing.T, fs *fakeStore, user store.User) (*Service, string) {
	t.Helper()
	svc := newTestService(fs)

	sessions := map[string]store.User{}
	fs.saveSessionFn = func(_ context.Context, tokenHash, _ string, _ time.Time) error {
		sessions[tokenHash] = user
		return nil
	}
	fs.lookupSessionFn = func(_ context.Context, tokenHash string) (store.User, error) {
		stored, ok := sessions[tokenHash]
		if !ok {
			return store.User{}, sql.ErrNoRows
		}
		return stored, nil
	}

	session, err := svc.CreateSession(context.Background(), user)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return svc, session.Token
}

func doJSON(t *testing.T, handler http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func parseBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v body=%s", err, rr.Body.String())
	}
	return payload
}

func TestHealthEndpoint(t *testing.T) {
	svc := newTestService(&fakeStore{})
	server := NewHTTPServer(svc, "*")

	rr := doJSON(t, server.Handler(), http.MethodGet, "/api/health", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestProtectedRoutesRequireBearer(t *testing.T) {
	svc := newTestService(&fakeStore{})
	server := NewHTTPServer(svc, "*")

	for _, path := range []string{"/api/categories", "/api/posts/post-1", "/api/moderation/queue"} {
		rr := doJSON(t, server.Handler(), http.MethodGet, path, "", "")
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, rr.Code)
		}
		if payload := parseBody(t, rr); payload["code"] != "UNAUTHORIZED" {
			t.Fatalf("%s: expected code UNAUTHORIZED, got %v", path, payload["code"])
		}
	}
}

func TestSubmitPostOverHTTP(t *testing.T) {
	var inserted store.Post
	fs := &fakeStore{
		insertPostFn: func(_ context.Context, post store.Post) error {
			inserted = post
			return nil
		},
	}
	svc, token := authedService(t, fs, store.User{ID: "user-1", DisplayName: "Avery", Role: "member"})
	server := NewHTTPServer(svc, "*")

	rr := doJSON(t, server.Handler(), http.MethodPost, "/api/posts", token,
		`{"categoryId":"cat_general","title":"Trouble sleeping","body":"I keep waking up at 3am."}`)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := parseBody(t, rr)
	if payload["visibilityState"] != "published" {
		t.Fatalf("expected published, got %v", payload["visibilityState"])
	}
	if _, hasNotes := payload["notes"]; hasNotes {
		t.Fatalf("published submission must omit notes, got %s", rr.Body.String())
	}
	if inserted.AuthorID != "user-1" {
		t.Fatalf("expected author user-1, got %q", inserted.AuthorID)
	}
}

func TestSubmitPostHeldResponseCarriesNotes(t *testing.T) {
	fs := &fakeStore{}
	svc, token := authedService(t, fs, store.User{ID: "user-1", DisplayName: "Avery", Role: "member"})
	svc.gate = denyAll("possible PII in paragraph 2")
	server := NewHTTPServer(svc, "*")

	rr := doJSON(t, server.Handler(), http.MethodPost, "/api/posts", token,
		`{"categoryId":"cat_general","title":"My contact details","body":"Reach me at the number below."}`)

	if rr.Code != http.StatusCreated {
		t.Fatalf("held submissions still create the entity, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := parseBody(t, rr)
	if payload["visibilityState"] != "pending_review" {
		t.Fatalf("expected pending_review, got %v", payload["visibilityState"])
	}
	if payload["notes"] != "possible PII in paragraph 2" {
		t.Fatalf("expected gate notes, got %v", payload["notes"])
	}
}

func TestSubmitPostValidationOverHTTP(t *testing.T) {
	svc, token := authedService(t, &fakeStore{}, store.User{ID: "user-1", Role: "member"})
	server := NewHTTPServer(svc, "*")

	rr := doJSON(t, server.Handler(), http.MethodPost, "/api/posts", token,
		`{"categoryId":"cat_general","title":"  ","body":"something"}`)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	if payload := parseBody(t, rr); payload["code"] != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %v", payload["code"])
	}
}

func TestCommentPaginationOverHTTP(t *testing.T) {
	fs := &fakeStore{
		getPostFn: func(_ context.Context, id string) (store.Post, error) {
			return store.Post{ID: id, Visibility: "published"}, nil
		},
		countPublishedCommentsFn: func(context.Context, string) (int, error) {
			return 45, nil
		},
		listPublishedCommentsFn: func(_ context.Context, _ string, offset, limit int) ([]store.Comment, error) {
			count := 45 - offset
			if count > limit {
				count = limit
			}
			comments := make([]store.Comment, count)
			for i := range comments {
				comments[i] = store.Comment{ID: "cmt", PostID: "post-1", Visibility: "published"}
			}
			return comments, nil
		},
	}
	svc, token := authedService(t, fs, store.User{ID: "user-1", Role: "member"})
	server := NewHTTPServer(svc, "*")

	rr := doJSON(t, server.Handler(), http.MethodGet, "/api/posts/post-1/comments?page=3", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	payload := parseBody(t, rr)
	if payload["totalPages"] != float64(3) || payload["totalComments"] != float64(45) {
		t.Fatalf("expected totals 3/45, got %v/%v", payload["totalPages"], payload["totalComments"])
	}
	comments, _ := payload["comments"].([]any)
	if len(comments) != 5 {
		t.Fatalf("expected 5 comments on the last page, got %d", len(comments))
	}

	rr = doJSON(t, server.Handler(), http.MethodGet, "/api/posts/post-1/comments?page=4", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("out-of-range page must still be 200, got %d", rr.Code)
	}
	payload = parseBody(t, rr)
	comments, _ = payload["comments"].([]any)
	if len(comments) != 0 {
		t.Fatalf("expected empty page, got %d comments", len(comments))
	}
}

func TestModerationEndpointsForbiddenForMembers(t *testing.T) {
	svc, token := authedService(t, &fakeStore{}, store.User{ID: "user-1", Role: "member"})
	server := NewHTTPServer(svc, "*")

	for _, path := range []string{"/api/posts/post-1/promote", "/api/posts/post-1/reject", "/api/comments/cmt-1/promote"} {
		rr := doJSON(t, server.Handler(), http.MethodPost, path, token, "")
		if rr.Code != http.StatusForbidden {
			t.Fatalf("%s: expected 403, got %d", path, rr.Code)
		}
	}

	rr := doJSON(t, server.Handler(), http.MethodGet, "/api/moderation/queue", token, "")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("queue: expected 403, got %d", rr.Code)
	}
}

func TestPromotePostOverHTTP(t *testing.T) {
	fs := &fakeStore{
		getPostFn: func(_ context.Context, id string) (store.Post, error) {
			return store.Post{ID: id, Visibility: "pending_review", ModerationNotes: "held"}, nil
		},
	}
	svc, token := authedService(t, fs, store.User{ID: "mod-1", Role: "moderator"})
	server := NewHTTPServer(svc, "*")

	rr := doJSON(t, server.Handler(), http.MethodPost, "/api/posts/post-1/promote", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := parseBody(t, rr)
	if payload["visibilityState"] != "published" {
		t.Fatalf("expected published, got %v", payload["visibilityState"])
	}
	if _, hasNotes := payload["moderationNotes"]; hasNotes {
		t.Fatalf("promoted post must not carry moderation notes")
	}
}

func TestPromoteHiddenPostConflictOverHTTP(t *testing.T) {
	fs := &fakeStore{
		getPostFn: func(_ context.Context, id string) (store.Post, error) {
			return store.Post{ID: id, Visibility: "hidden"}, nil
		},
	}
	svc, token := authedService(t, fs, store.User{ID: "mod-1", Role: "moderator"})
	server := NewHTTPServer(svc, "*")

	rr := doJSON(t, server.Handler(), http.MethodPost, "/api/posts/post-1/promote", token, "")
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	if payload := parseBody(t, rr); payload["code"] != "INVALID_TRANSITION" {
		t.Fatalf("expected INVALID_TRANSITION, got %v", payload["code"])
	}
}

func TestModerationQueueOverHTTP(t *testing.T) {
	fs := &fakeStore{
		listPendingPostsFn: func(_ context.Context, limit int) ([]store.Post, error) {
			return []store.Post{{ID: "post-1", Visibility: "pending_review", ModerationNotes: "held"}}, nil
		},
	}
	svc, token := authedService(t, fs, store.User{ID: "mod-1", Role: "moderator"})
	server := NewHTTPServer(svc, "*")

	rr := doJSON(t, server.Handler(), http.MethodGet, "/api/moderation/queue", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	payload := parseBody(t, rr)
	posts, _ := payload["posts"].([]any)
	if len(posts) != 1 {
		t.Fatalf("expected one queued post, got %d", len(posts))
	}
	first, _ := posts[0].(map[string]any)
	if first["moderationNotes"] != "held" {
		t.Fatalf("queue entries must show why the post was held, got %v", first["moderationNotes"])
	}
}

func TestSuggestedReplyUnavailableOverHTTP(t *testing.T) {
	fs := &fakeStore{
		getPostFn: func(_ context.Context, id string) (store.Post, error) {
			return store.Post{ID: id, Visibility: "published", Body: "a long enough post body"}, nil
		},
	}
	svc, token := authedService(t, fs, store.User{ID: "user-1", Role: "member"})
	server := NewHTTPServer(svc, "*")

	rr := doJSON(t, server.Handler(), http.MethodGet, "/api/posts/post-1/suggested-reply", token, "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if payload := parseBody(t, rr); payload["code"] != "SUGGESTION_UNAVAILABLE" {
		t.Fatalf("expected SUGGESTION_UNAVAILABLE, got %v", payload["code"])
	}
}

func TestGetUnknownPostIsNotFound(t *testing.T) {
	svc, token := authedService(t, &fakeStore{}, store.User{ID: "user-1", Role: "member"})
	server := NewHTTPServer(svc, "*")

	rr := doJSON(t, server.Handler(), http.MethodGet, "/api/posts/missing", token, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if payload := parseBody(t, rr); payload["code"] != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND, got %v", payload["code"])
	}
}
