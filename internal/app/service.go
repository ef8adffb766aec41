package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"carelink/api/internal/auth"
	"carelink/api/internal/authpw"
	"carelink/api/internal/config"
	"carelink/api/internal/moderation"
	"carelink/api/internal/publication"
	"carelink/api/internal/rbac"
	"carelink/api/internal/search"
	"carelink/api/internal/store"
	"carelink/api/internal/suggest"
	"carelink/api/internal/util"
)

type Session struct {
	Token     string
	UserID    string
	UserName  string
	Role      string
	ExpiresAt time.Time
}

type SubmitPostInput struct {
	CategoryID string `json:"categoryId"`
	Title      string `json:"title"`
	Body       string `json:"body"`
}

type SubmitCommentInput struct {
	Body string `json:"body"`
}

// SubmissionResult is the caller-facing outcome of a submission: the
// entity's identity, the visibility it was created with, and the gate's
// notes when it was held.
type SubmissionResult struct {
	ID              string `json:"id"`
	VisibilityState string `json:"visibilityState"`
	Notes           string `json:"notes,omitempty"`
}

// CommentPage is one page of a post's published comments in stable order.
type CommentPage struct {
	Comments      []store.Comment `json:"comments"`
	Page          int             `json:"page"`
	TotalPages    int             `json:"totalPages"`
	TotalComments int             `json:"totalComments"`
}

type dataStore interface {
	CreateUser(context.Context, store.User) error
	GetUserByEmail(context.Context, string) (store.User, error)
	GetUserByID(context.Context, string) (store.User, error)
	SaveSession(context.Context, string, string, time.Time) error
	LookupSession(context.Context, string) (store.User, error)
	RevokeSession(context.Context, string) error
	ListCategories(context.Context) ([]store.Category, error)
	GetCategory(context.Context, string) (store.Category, error)
	InsertPost(context.Context, store.Post) error
	GetPost(context.Context, string) (store.Post, error)
	ListCategoryPosts(context.Context, string, string) ([]store.Post, error)
	ListPendingPosts(context.Context, int) ([]store.Post, error)
	UpdatePostVisibility(context.Context, string, string, string) error
	IncrementPostViews(context.Context, string) error
	IncrementPostComments(context.Context, string) error
	InsertComment(context.Context, store.Comment) error
	GetComment(context.Context, string) (store.Comment, error)
	ListPublishedComments(context.Context, string, int, int) ([]store.Comment, error)
	CountPublishedComments(context.Context, string) (int, error)
	UpdateCommentVisibility(context.Context, string, string, string) error
	Ping(ctx context.Context) error
}

// sessionStore abstracts where bearer sessions live (Redis, or Postgres
// through the pgSessions adapter).
type sessionStore interface {
	SaveSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeSession(ctx context.Context, tokenHash string) error
}

// pgSessions adapts the Postgres store to the sessionStore interface.
type pgSessions struct {
	store dataStore
}

func (p pgSessions) SaveSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error {
	return p.store.SaveSession(ctx, tokenHash, user.ID, expiresAt)
}

func (p pgSessions) LookupSession(ctx context.Context, tokenHash string) (store.User, error) {
	return p.store.LookupSession(ctx, tokenHash)
}

func (p pgSessions) RevokeSession(ctx context.Context, tokenHash string) error {
	return p.store.RevokeSession(ctx, tokenHash)
}

// moderationGate is the gate capability; a deterministic fake stands in
// for it in tests.
type moderationGate interface {
	Review(ctx context.Context, text string) moderation.Decision
}

type replySuggester interface {
	Draft(ctx context.Context, body string) (string, error)
}

// searchIndex is the optional search facade; nil disables indexing and
// the search endpoint degrades to empty results.
type searchIndex interface {
	Search(q search.Query) search.Response
	IndexPost(post search.PostRecord)
	DeletePost(id string)
}

type Service struct {
	cfg       config.Config
	store     dataStore
	sessions  sessionStore
	gate      moderationGate
	suggester replySuggester
	search    searchIndex
	accounts  *authpw.Service
}

func New(cfg config.Config, dataStore *store.PostgresStore, gate *moderation.Gate, suggester *suggest.Orchestrator, searchService *search.Service) *Service {
	return &Service{
		cfg:       cfg,
		store:     dataStore,
		sessions:  pgSessions{store: dataStore},
		gate:      gate,
		suggester: suggester,
		search:    searchService,
		accounts:  authpw.NewService(dataStore),
	}
}

// NewWithSessionStore wires an external (Redis) session store instead of
// the Postgres fallback.
func NewWithSessionStore(cfg config.Config, dataStore *store.PostgresStore, sessions sessionStore, gate *moderation.Gate, suggester *suggest.Orchestrator, searchService *search.Service) *Service {
	service := New(cfg, dataStore, gate, suggester, searchService)
	service.sessions = sessions
	return service
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) Accounts() *authpw.Service {
	return s.accounts
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

// Sessions

func (s *Service) CreateSession(ctx context.Context, user store.User) (Session, error) {
	expiresAt := time.Now().Add(s.cfg.SessionTTL)
	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		Role: user.Role,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.SaveSession(ctx, auth.HashToken(token), user, expiresAt); err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Role:      user.Role,
		ExpiresAt: expiresAt,
	}, nil
}

// SessionFromToken validates the bearer token and confirms the session has
// not been revoked. The stored role wins over the token's claim so role
// changes take effect without reissuing tokens.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	user, err := s.sessions.LookupSession(ctx, auth.HashToken(token))
	if err != nil {
		return Session{}, auth.ErrInvalidToken
	}
	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Role:      user.Role,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.sessions.RevokeSession(ctx, auth.HashToken(token))
}

// Categories

func (s *Service) ListCategories(ctx context.Context) ([]store.Category, error) {
	return s.store.ListCategories(ctx)
}

// Submissions

// SubmitPost runs a new post through the moderation gate and creates it
// with the resulting visibility in one step. The classifier outcome never
// surfaces as an error: every submission resolves to a state.
func (s *Service) SubmitPost(ctx context.Context, session Session, input SubmitPostInput) (*SubmissionResult, error) {
	title := strings.TrimSpace(input.Title)
	body := strings.TrimSpace(input.Body)
	if title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	if body == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "body is required", nil)
	}
	if _, err := s.store.GetCategory(ctx, strings.TrimSpace(input.CategoryID)); err != nil {
		return nil, err
	}

	decision := s.gate.Review(ctx, title+"\n\n"+body)
	visibility, notes := publication.Initial(decision)

	post := store.Post{
		ID:              util.NewID("post"),
		CategoryID:      strings.TrimSpace(input.CategoryID),
		AuthorID:        session.UserID,
		Title:           title,
		Body:            body,
		Visibility:      string(visibility),
		ModerationNotes: notes,
	}
	if err := s.store.InsertPost(ctx, post); err != nil {
		return nil, err
	}

	if visibility == publication.Published && s.search != nil {
		s.search.IndexPost(search.PostRecord{
			ID:         post.ID,
			Title:      post.Title,
			Body:       post.Body,
			CategoryID: post.CategoryID,
			AuthorName: session.UserName,
		})
	}

	return &SubmissionResult{ID: post.ID, VisibilityState: string(visibility), Notes: notes}, nil
}

// SubmitComment gates and creates a comment on a post the author can see.
// The comment's ordering position is fixed by its creation time, before
// moderation resolves; the parent's counter moves only when the comment
// lands published.
func (s *Service) SubmitComment(ctx context.Context, session Session, postID string, input SubmitCommentInput) (*SubmissionResult, error) {
	body := strings.TrimSpace(input.Body)
	if body == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "body is required", nil)
	}

	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if !s.canSeePost(session, post) {
		return nil, sql.ErrNoRows
	}

	decision := s.gate.Review(ctx, body)
	visibility, notes := publication.Initial(decision)

	comment := store.Comment{
		ID:              util.NewID("cmt"),
		PostID:          post.ID,
		AuthorID:        session.UserID,
		Body:            body,
		Visibility:      string(visibility),
		ModerationNotes: notes,
	}
	if err := s.store.InsertComment(ctx, comment); err != nil {
		return nil, err
	}

	if visibility == publication.Published {
		if err := s.store.IncrementPostComments(ctx, post.ID); err != nil {
			return nil, err
		}
	}

	return &SubmissionResult{ID: comment.ID, VisibilityState: string(visibility), Notes: notes}, nil
}

// Reads

// canSeePost implements the visibility projection: published content is
// public, held content is visible to its author and to moderators only.
func (s *Service) canSeePost(session Session, post store.Post) bool {
	if post.Visibility == string(publication.Published) {
		return true
	}
	return post.AuthorID == session.UserID || s.Can(session.Role, rbac.ActionModerate)
}

func (s *Service) GetPost(ctx context.Context, session Session, postID string) (store.Post, error) {
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return store.Post{}, err
	}
	if !s.canSeePost(session, post) {
		// Indistinguishable from a post that does not exist.
		return store.Post{}, sql.ErrNoRows
	}
	if post.Visibility == string(publication.Published) {
		if err := s.store.IncrementPostViews(ctx, post.ID); err != nil {
			return store.Post{}, err
		}
		post.ViewCount++
	}
	return post, nil
}

func (s *Service) ListCategoryPosts(ctx context.Context, session Session, categoryID string) ([]store.Post, error) {
	if _, err := s.store.GetCategory(ctx, categoryID); err != nil {
		return nil, err
	}
	return s.store.ListCategoryPosts(ctx, categoryID, session.UserID)
}

// CommentPageFor returns one page of a post's published comments. Ordering
// is (created_at, id) ascending, so already-returned pages never reorder
// under concurrent insertion. Out-of-range pages and invisible posts yield
// an empty page, not an error.
func (s *Service) CommentPageFor(ctx context.Context, session Session, postID string, page int) (*CommentPage, error) {
	pageSize := s.cfg.CommentPageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	empty := &CommentPage{Comments: []store.Comment{}, Page: page}

	post, err := s.store.GetPost(ctx, postID)
	if errors.Is(err, sql.ErrNoRows) {
		return empty, nil
	}
	if err != nil {
		return nil, err
	}
	if !s.canSeePost(session, post) {
		return empty, nil
	}

	total, err := s.store.CountPublishedComments(ctx, post.ID)
	if err != nil {
		return nil, err
	}
	totalPages := (total + pageSize - 1) / pageSize

	result := &CommentPage{
		Comments:      []store.Comment{},
		Page:          page,
		TotalPages:    totalPages,
		TotalComments: total,
	}
	if page < 1 || page > totalPages {
		return result, nil
	}

	comments, err := s.store.ListPublishedComments(ctx, post.ID, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, err
	}
	result.Comments = comments
	return result, nil
}

// Moderation

func (s *Service) requireModerator(session Session) error {
	if !s.Can(session.Role, rbac.ActionModerate) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	return nil
}

func (s *Service) PendingQueue(ctx context.Context, session Session) ([]store.Post, error) {
	if err := s.requireModerator(session); err != nil {
		return nil, err
	}
	return s.store.ListPendingPosts(ctx, 50)
}

// PromotePost releases a held post into public view. Promoting an already
// published post succeeds without touching the store.
func (s *Service) PromotePost(ctx context.Context, session Session, postID string) (store.Post, error) {
	if err := s.requireModerator(session); err != nil {
		return store.Post{}, err
	}
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return store.Post{}, err
	}

	current, _ := publication.Parse(post.Visibility)
	next, err := publication.Promote(current)
	if err != nil {
		return store.Post{}, domainError(http.StatusConflict, "INVALID_TRANSITION", "post is not awaiting review", nil)
	}
	if next == current {
		return post, nil
	}

	if err := s.store.UpdatePostVisibility(ctx, post.ID, string(next), ""); err != nil {
		return store.Post{}, err
	}
	post.Visibility = string(next)
	post.ModerationNotes = ""

	if s.search != nil {
		s.search.IndexPost(search.PostRecord{
			ID:         post.ID,
			Title:      post.Title,
			Body:       post.Body,
			CategoryID: post.CategoryID,
			AuthorName: post.AuthorName,
		})
	}
	return post, nil
}

// RejectPost permanently hides a held post. Rejecting an already hidden
// post succeeds without touching the store.
func (s *Service) RejectPost(ctx context.Context, session Session, postID string) (store.Post, error) {
	if err := s.requireModerator(session); err != nil {
		return store.Post{}, err
	}
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return store.Post{}, err
	}

	current, _ := publication.Parse(post.Visibility)
	next, err := publication.Reject(current)
	if err != nil {
		return store.Post{}, domainError(http.StatusConflict, "INVALID_TRANSITION", "published posts cannot be rejected", nil)
	}
	if next == current {
		return post, nil
	}

	if err := s.store.UpdatePostVisibility(ctx, post.ID, string(next), post.ModerationNotes); err != nil {
		return store.Post{}, err
	}
	post.Visibility = string(next)

	if s.search != nil {
		s.search.DeletePost(post.ID)
	}
	return post, nil
}

// PromoteComment releases a held comment and moves the parent's
// published-comment counter forward.
func (s *Service) PromoteComment(ctx context.Context, session Session, commentID string) (store.Comment, error) {
	if err := s.requireModerator(session); err != nil {
		return store.Comment{}, err
	}
	comment, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		return store.Comment{}, err
	}

	current, _ := publication.Parse(comment.Visibility)
	next, err := publication.Promote(current)
	if err != nil {
		return store.Comment{}, domainError(http.StatusConflict, "INVALID_TRANSITION", "comment is not awaiting review", nil)
	}
	if next == current {
		return comment, nil
	}

	if err := s.store.UpdateCommentVisibility(ctx, comment.ID, string(next), ""); err != nil {
		return store.Comment{}, err
	}
	if err := s.store.IncrementPostComments(ctx, comment.PostID); err != nil {
		return store.Comment{}, err
	}
	comment.Visibility = string(next)
	comment.ModerationNotes = ""
	return comment, nil
}

func (s *Service) RejectComment(ctx context.Context, session Session, commentID string) (store.Comment, error) {
	if err := s.requireModerator(session); err != nil {
		return store.Comment{}, err
	}
	comment, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		return store.Comment{}, err
	}

	current, _ := publication.Parse(comment.Visibility)
	next, err := publication.Reject(current)
	if err != nil {
		return store.Comment{}, domainError(http.StatusConflict, "INVALID_TRANSITION", "published comments cannot be rejected", nil)
	}
	if next == current {
		return comment, nil
	}

	if err := s.store.UpdateCommentVisibility(ctx, comment.ID, string(next), comment.ModerationNotes); err != nil {
		return store.Comment{}, err
	}
	comment.Visibility = string(next)
	return comment, nil
}

// Suggestions

// SuggestReply drafts an advisory reply for a post. Nothing is persisted;
// an adopted draft goes through SubmitComment like any other text.
func (s *Service) SuggestReply(ctx context.Context, session Session, postID string) (string, error) {
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return "", err
	}
	if !s.canSeePost(session, post) {
		return "", sql.ErrNoRows
	}

	if s.suggester == nil {
		return "", domainError(http.StatusServiceUnavailable, "SUGGESTION_UNAVAILABLE", "No suggestion available", nil)
	}
	draft, err := s.suggester.Draft(ctx, post.Body)
	if err != nil {
		switch {
		case errors.Is(err, suggest.ErrInsufficientContext):
			return "", domainError(http.StatusUnprocessableEntity, "INSUFFICIENT_CONTEXT", "Post is too short for a suggested reply", nil)
		case errors.Is(err, suggest.ErrUnavailable):
			return "", domainError(http.StatusServiceUnavailable, "SUGGESTION_UNAVAILABLE", "No suggestion available", nil)
		default:
			return "", err
		}
	}
	return draft, nil
}

// Search

func (s *Service) SearchPosts(q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(q)
}
