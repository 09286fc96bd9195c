// ABOUTME: SQLite queries for the dispatch usage ledger
// ABOUTME: Saves one row per dispatch and aggregates per model

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// timeFormat is fixed-width so stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SaveUsage stores a ledger record.
func (s *SQLiteStore) SaveUsage(ctx context.Context, rec *UsageRecord) error {
	query := `
		INSERT INTO dispatch_usage (
			id, conversation_id, model, status,
			prompt_tokens, response_tokens, latency_ns, error,
			created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.ConversationID,
		rec.Model,
		string(rec.Status),
		rec.PromptTokens,
		rec.ResponseTokens,
		int64(rec.Latency),
		nullString(rec.Error),
		rec.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting usage: %w", err)
	}

	s.logger.Debug("saved dispatch usage",
		"id", rec.ID,
		"conversation_id", rec.ConversationID,
		"model", rec.Model,
		"status", rec.Status,
	)
	return nil
}

// GetUsage retrieves one ledger record.
func (s *SQLiteStore) GetUsage(ctx context.Context, id string) (*UsageRecord, error) {
	row := s.db.QueryRowContext(ctx, selectUsage+" WHERE id = ?", id)
	rec, err := scanUsage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

const selectUsage = `
	SELECT id, conversation_id, model, status,
	       prompt_tokens, response_tokens, latency_ns, error,
	       created_at
	FROM dispatch_usage
`

// ListUsage returns matching records, newest first.
func (s *SQLiteStore) ListUsage(ctx context.Context, filter UsageFilter) ([]*UsageRecord, error) {
	where, args := filterClause(filter)
	query := selectUsage + where + " ORDER BY created_at DESC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying usage: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*UsageRecord
	for rows.Next() {
		rec, err := scanUsage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating usage rows: %w", err)
	}
	return out, nil
}

// GetUsageStats aggregates matching records per model, ordered by model id.
func (s *SQLiteStore) GetUsageStats(ctx context.Context, filter UsageFilter) (*UsageStats, error) {
	where, args := filterClause(filter)
	query := `
		SELECT
			model,
			COUNT(*) AS requests,
			COALESCE(SUM(CASE WHEN status != 'ok' THEN 1 ELSE 0 END), 0) AS failures,
			COALESCE(SUM(prompt_tokens), 0) AS prompt_tokens,
			COALESCE(SUM(response_tokens), 0) AS response_tokens,
			COALESCE(AVG(latency_ns), 0) AS avg_latency
		FROM dispatch_usage
	` + where + `
		GROUP BY model
		ORDER BY model ASC
	`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying usage stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	stats := &UsageStats{ByModel: []ModelUsage{}}
	for rows.Next() {
		var m ModelUsage
		var avg float64
		if err := rows.Scan(&m.Model, &m.Requests, &m.Failures, &m.PromptTokens, &m.ResponseTokens, &avg); err != nil {
			return nil, fmt.Errorf("scanning usage stats: %w", err)
		}
		m.AvgLatency = time.Duration(avg)
		stats.addModel(m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating usage stats: %w", err)
	}
	return stats, nil
}

func filterClause(filter UsageFilter) (string, []any) {
	var conds []string
	var args []any
	if filter.Model != nil {
		conds = append(conds, "model = ?")
		args = append(args, *filter.Model)
	}
	if filter.ConversationID != nil {
		conds = append(conds, "conversation_id = ?")
		args = append(args, *filter.ConversationID)
	}
	if filter.Since != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, filter.Since.UTC().Format(timeFormat))
	}
	if filter.Until != nil {
		conds = append(conds, "created_at < ?")
		args = append(args, filter.Until.UTC().Format(timeFormat))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUsage(row rowScanner) (*UsageRecord, error) {
	var rec UsageRecord
	var status string
	var latency int64
	var errText sql.NullString
	var createdAt string

	err := row.Scan(
		&rec.ID,
		&rec.ConversationID,
		&rec.Model,
		&status,
		&rec.PromptTokens,
		&rec.ResponseTokens,
		&latency,
		&errText,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning usage row: %w", err)
	}

	rec.Status = Status(status)
	rec.Latency = time.Duration(latency)
	if errText.Valid {
		rec.Error = errText.String
	}
	rec.CreatedAt, err = time.Parse(timeFormat, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &rec, nil
}

// Ensure SQLiteStore implements UsageStore interface.
var _ UsageStore = (*SQLiteStore)(nil)
