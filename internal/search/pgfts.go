package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true — if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search runs plainto_tsquery over published posts with ts_headline snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	where := `p.visibility = 'published' AND p.fts @@ plainto_tsquery('english', $1)`
	args := []any{q.Text}
	if q.CategoryID != "" {
		where += ` AND p.category_id = $2`
		args = append(args, q.CategoryID)
	}

	countSQL := `SELECT count(*) FROM posts p WHERE ` + where
	var total int
	if err := p.db.QueryRow(countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT p.id, p.title,
			ts_headline('english', p.body, plainto_tsquery('english', $1), 'MaxFragments=1,MaxWords=30') AS snippet,
			p.category_id
		FROM posts p
		WHERE %s
		ORDER BY ts_rank(p.fts, plainto_tsquery('english', $1)) DESC
		LIMIT %d OFFSET %d`, where, limit, offset)

	rows, err := p.db.Query(dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts search: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Title, &r.Snippet, &r.CategoryID); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadPublishedRecords reads every published post for reindexing.
func (p *PgFTS) LoadPublishedRecords(ctx context.Context) ([]PostRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT p.id, p.title, p.body, p.category_id, u.display_name
		FROM posts p JOIN users u ON u.id = p.author_id
		WHERE p.visibility = 'published'
	`)
	if err != nil {
		return nil, fmt.Errorf("load published posts: %w", err)
	}
	defer rows.Close()

	var records []PostRecord
	for rows.Next() {
		var record PostRecord
		if err := rows.Scan(&record.ID, &record.Title, &record.Body, &record.CategoryID, &record.AuthorName); err != nil {
			return nil, fmt.Errorf("scan post record: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}
