package store

import "time"

type User struct {
	ID           string
	DisplayName  string
	Email        string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

// Category is static lookup data seeded by migration; the portal's care
// teams curate the set out of band.
type Category struct {
	ID          string
	Name        string
	Slug        string
	Description string
	SortOrder   int
}

type Post struct {
	ID              string
	CategoryID      string
	AuthorID        string
	AuthorName      string
	Title           string
	Body            string
	Visibility      string
	ModerationNotes string
	ViewCount       int
	CommentCount    int
	CreatedAt       time.Time
}

type Comment struct {
	ID              string
	PostID          string
	AuthorID        string
	AuthorName      string
	Body            string
	Visibility      string
	ModerationNotes string
	CreatedAt       time.Time
}
