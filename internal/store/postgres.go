package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Users

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash, role)
		VALUES ($1, $2, $3, $4, $5)
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash, user.Role)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, role, created_at
		FROM users WHERE LOWER(email) = LOWER($1)
	`, email).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, role, created_at
		FROM users WHERE id = $1
	`, userID).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// Sessions (Postgres fallback when Redis is not configured)

func (s *PostgresStore) SaveSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.display_name, u.email, u.role
		FROM sessions se
		JOIN users u ON u.id = se.user_id
		WHERE se.token_hash = $1 AND se.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.DisplayName, &user.Email, &user.Role)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// Categories

func (s *PostgresStore) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, slug, description, sort_order
		FROM categories
		ORDER BY sort_order, name
	`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	items := make([]Category, 0)
	for rows.Next() {
		var category Category
		if err := rows.Scan(&category.ID, &category.Name, &category.Slug, &category.Description, &category.SortOrder); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		items = append(items, category)
	}
	return items, rows.Err()
}

func (s *PostgresStore) GetCategory(ctx context.Context, categoryID string) (Category, error) {
	var category Category
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, slug, description, sort_order
		FROM categories WHERE id = $1
	`, categoryID).Scan(&category.ID, &category.Name, &category.Slug, &category.Description, &category.SortOrder)
	if err != nil {
		return Category{}, err
	}
	return category, nil
}

// Posts

// InsertPost creates the post and its initial visibility in one statement;
// there is no window where the row exists without a state.
func (s *PostgresStore) InsertPost(ctx context.Context, post Post) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO posts (id, category_id, author_id, title, body, visibility, moderation_notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, post.ID, post.CategoryID, post.AuthorID, post.Title, post.Body, post.Visibility, post.ModerationNotes)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

const postColumns = `
	p.id, p.category_id, p.author_id, u.display_name, p.title, p.body,
	p.visibility, p.moderation_notes, p.view_count, p.comment_count, p.created_at
`

func scanPost(row interface{ Scan(...any) error }) (Post, error) {
	var post Post
	err := row.Scan(
		&post.ID, &post.CategoryID, &post.AuthorID, &post.AuthorName, &post.Title, &post.Body,
		&post.Visibility, &post.ModerationNotes, &post.ViewCount, &post.CommentCount, &post.CreatedAt,
	)
	return post, err
}

func (s *PostgresStore) GetPost(ctx context.Context, postID string) (Post, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+postColumns+`
		FROM posts p JOIN users u ON u.id = p.author_id
		WHERE p.id = $1
	`, postID)
	return scanPost(row)
}

// ListCategoryPosts returns the category's published posts plus the
// viewer's own held posts, newest first. viewerID may be empty for
// anonymous readers.
func (s *PostgresStore) ListCategoryPosts(ctx context.Context, categoryID, viewerID string) ([]Post, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+postColumns+`
		FROM posts p JOIN users u ON u.id = p.author_id
		WHERE p.category_id = $1 AND (p.visibility = 'published' OR p.author_id = $2)
		ORDER BY p.created_at DESC, p.id DESC
	`, categoryID, viewerID)
	if err != nil {
		return nil, fmt.Errorf("list category posts: %w", err)
	}
	defer rows.Close()

	items := make([]Post, 0)
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		items = append(items, post)
	}
	return items, rows.Err()
}

// ListPendingPosts returns held posts for the moderation queue, oldest first.
func (s *PostgresStore) ListPendingPosts(ctx context.Context, limit int) ([]Post, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+postColumns+`
		FROM posts p JOIN users u ON u.id = p.author_id
		WHERE p.visibility = 'pending_review'
		ORDER BY p.created_at, p.id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending posts: %w", err)
	}
	defer rows.Close()

	items := make([]Post, 0)
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		items = append(items, post)
	}
	return items, rows.Err()
}

func (s *PostgresStore) UpdatePostVisibility(ctx context.Context, postID, visibility, moderationNotes string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE posts SET visibility = $2, moderation_notes = $3 WHERE id = $1
	`, postID, visibility, moderationNotes)
	if err != nil {
		return fmt.Errorf("update post visibility: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// IncrementPostViews bumps the view counter in place; concurrent readers
// never lose updates because the increment happens in SQL.
func (s *PostgresStore) IncrementPostViews(ctx context.Context, postID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE posts SET view_count = view_count + 1 WHERE id = $1`, postID)
	if err != nil {
		return fmt.Errorf("increment post views: %w", err)
	}
	return nil
}

// IncrementPostComments bumps the published-comment counter. The counter
// only ever moves forward: comments enter the published state once.
func (s *PostgresStore) IncrementPostComments(ctx context.Context, postID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE posts SET comment_count = comment_count + 1 WHERE id = $1`, postID)
	if err != nil {
		return fmt.Errorf("increment post comments: %w", err)
	}
	return nil
}

// Comments

func (s *PostgresStore) InsertComment(ctx context.Context, comment Comment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comments (id, post_id, author_id, body, visibility, moderation_notes)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, comment.ID, comment.PostID, comment.AuthorID, comment.Body, comment.Visibility, comment.ModerationNotes)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

const commentColumns = `
	c.id, c.post_id, c.author_id, u.display_name, c.body,
	c.visibility, c.moderation_notes, c.created_at
`

func scanComment(row interface{ Scan(...any) error }) (Comment, error) {
	var comment Comment
	err := row.Scan(
		&comment.ID, &comment.PostID, &comment.AuthorID, &comment.AuthorName, &comment.Body,
		&comment.Visibility, &comment.ModerationNotes, &comment.CreatedAt,
	)
	return comment, err
}

func (s *PostgresStore) GetComment(ctx context.Context, commentID string) (Comment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+commentColumns+`
		FROM comments c JOIN users u ON u.id = c.author_id
		WHERE c.id = $1
	`, commentID)
	return scanComment(row)
}

// ListPublishedComments returns one page of a post's published comments in
// the stable (created_at, id) order.
func (s *PostgresStore) ListPublishedComments(ctx context.Context, postID string, offset, limit int) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+commentColumns+`
		FROM comments c JOIN users u ON u.id = c.author_id
		WHERE c.post_id = $1 AND c.visibility = 'published'
		ORDER BY c.created_at, c.id
		OFFSET $2 LIMIT $3
	`, postID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	items := make([]Comment, 0)
	for rows.Next() {
		comment, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		items = append(items, comment)
	}
	return items, rows.Err()
}

func (s *PostgresStore) CountPublishedComments(ctx context.Context, postID string) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM comments WHERE post_id = $1 AND visibility = 'published'
	`, postID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("count comments: %w", err)
	}
	return total, nil
}

func (s *PostgresStore) UpdateCommentVisibility(ctx context.Context, commentID, visibility, moderationNotes string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE comments SET visibility = $2, moderation_notes = $3 WHERE id = $1
	`, commentID, visibility, moderationNotes)
	if err != nil {
		return fmt.Errorf("update comment visibility: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
