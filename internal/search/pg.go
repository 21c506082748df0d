package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgSearch implements Searcher with plain ILIKE matching over the workshop
// rows. It is the fallback when Meilisearch is down: slower and without
// ranking, but always available.
type PgSearch struct {
	db *sql.DB
}

// NewPgSearch creates the Postgres fallback searcher.
func NewPgSearch(db *sql.DB) *PgSearch {
	return &PgSearch{db: db}
}

// Healthy always returns true — if Postgres is down, the whole app is down.
func (p *PgSearch) Healthy() bool {
	return true
}

// Search matches the query against workshop name, blueprint title, and
// objectives.
func (p *PgSearch) Search(q Query) ([]Result, int, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
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

	pattern := "%" + text + "%"
	const matchWhere = `
		name ILIKE $1
		OR COALESCE(current_content->>'title', '') ILIKE $1
		OR COALESCE(current_content->>'objectives', '') ILIKE $1
		OR COALESCE(current_content->>'meetingContext', '') ILIKE $1
	`

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx,
		`SELECT count(*) FROM workshops WHERE `+matchWhere, pattern).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pg search count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, name,
			COALESCE(current_content->>'title', ''),
			COALESCE(current_content->>'objectives', '')
		FROM workshops
		WHERE %s
		ORDER BY updated_at DESC
		LIMIT %d OFFSET %d
	`, matchWhere, limit, offset), pattern)
	if err != nil {
		return nil, 0, fmt.Errorf("pg search query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var objectives string
		if err := rows.Scan(&r.ID, &r.Name, &r.Title, &objectives); err != nil {
			return nil, 0, fmt.Errorf("pg search scan: %w", err)
		}
		r.Snippet = snippet(objectives, 30)
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns all workshop records for full reindexing.
func (p *PgSearch) LoadAllRecords(ctx context.Context) ([]WorkshopRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, name,
			COALESCE(current_content->>'title', ''),
			COALESCE(current_content->>'objectives', ''),
			COALESCE(current_content->>'meetingContext', '')
		FROM workshops
	`)
	if err != nil {
		return nil, fmt.Errorf("load workshops: %w", err)
	}
	defer rows.Close()

	records := make([]WorkshopRecord, 0)
	for rows.Next() {
		var record WorkshopRecord
		if err := rows.Scan(&record.ID, &record.Name, &record.Title, &record.Objectives, &record.Context); err != nil {
			return nil, fmt.Errorf("scan workshop: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workshops: %w", err)
	}
	return records, nil
}

func snippet(text string, maxWords int) string {
	words := strings.Fields(text)
	if len(words) <= maxWords {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:maxWords], " ") + "…"
}
