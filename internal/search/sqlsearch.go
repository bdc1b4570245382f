package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// SQLSearch implements Searcher with ILIKE matching in PostgreSQL as a
// fallback when Meilisearch is down.
type SQLSearch struct {
	db *sql.DB
}

// NewSQLSearch creates a PostgreSQL searcher.
func NewSQLSearch(db *sql.DB) *SQLSearch {
	return &SQLSearch{db: db}
}

// Healthy always returns true: if Postgres is down, the whole app is down.
func (p *SQLSearch) Healthy() bool {
	return true
}

const sqlSearchWhere = `
	r.request_number ILIKE $1 OR r.order_number ILIKE $1 OR r.drawing ILIKE $1
	OR r.material ILIKE $1 OR r.protocol_number ILIKE $1 OR r.notes ILIKE $1`

// Search matches the pattern against the searchable request columns, newest
// first.
func (p *SQLSearch) Search(q Query) ([]Result, int, error) {
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

	pattern := "%" + q.Text + "%"
	ctx := context.Background()

	var total int
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM requests r WHERE `+sqlSearchWhere, pattern).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("sql search count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT r.id, r.request_number, r.order_number, r.drawing,
			COALESCE(s.name, ''), COALESCE(e.full_name, '')
		FROM requests r
		LEFT JOIN statuses s ON r.status_id = s.id
		LEFT JOIN executors e ON r.executor_id = e.id
		WHERE %s
		ORDER BY r.id DESC
		LIMIT %d OFFSET %d`, sqlSearchWhere, limit, offset), pattern)
	if err != nil {
		return nil, 0, fmt.Errorf("sql search query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.RequestNumber, &r.OrderNumber, &r.Drawing, &r.StatusName, &r.ExecutorName); err != nil {
			return nil, 0, fmt.Errorf("sql search scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns every request for full reindexing.
func (p *SQLSearch) LoadAllRecords(ctx context.Context) ([]RequestRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT r.id, r.request_number, r.order_number, r.drawing, r.material,
			r.protocol_number, r.notes, COALESCE(s.name, ''), COALESCE(e.full_name, '')
		FROM requests r
		LEFT JOIN statuses s ON r.status_id = s.id
		LEFT JOIN executors e ON r.executor_id = e.id
	`)
	if err != nil {
		return nil, fmt.Errorf("load requests: %w", err)
	}
	defer rows.Close()

	records := make([]RequestRecord, 0)
	for rows.Next() {
		var rec RequestRecord
		if err := rows.Scan(&rec.ID, &rec.RequestNumber, &rec.OrderNumber, &rec.Drawing,
			&rec.Material, &rec.ProtocolNumber, &rec.Notes, &rec.StatusName, &rec.ExecutorName); err != nil {
			return nil, fmt.Errorf("scan request record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate request records: %w", err)
	}
	return records, nil
}
