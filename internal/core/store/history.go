package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pyforge/pyforge/internal/core"
)

// HistoryQuery filters install events. The zero value matches everything.
type HistoryQuery struct {
	Version string
	Outcome string
	Since   time.Time
	// Before bounds events strictly older than the given time.
	Before time.Time
	Limit  int
}

func (q HistoryQuery) whereClause() (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if v := strings.TrimSpace(q.Version); v != "" {
		clauses = append(clauses, "version = ?")
		args = append(args, v)
	}
	if o := strings.TrimSpace(q.Outcome); o != "" {
		clauses = append(clauses, "outcome = ?")
		args = append(args, o)
	}
	if !q.Since.IsZero() {
		clauses = append(clauses, "started_at >= ?")
		args = append(args, q.Since.UTC().UnixMilli())
	}
	if !q.Before.IsZero() {
		clauses = append(clauses, "started_at < ?")
		args = append(args, q.Before.UTC().UnixMilli())
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

// RecordInstall appends one install attempt.
func (s *Store) RecordInstall(ctx context.Context, ev core.InstallEvent) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if strings.TrimSpace(ev.ID) == "" {
		ev.ID = uuid.NewString()
	}
	if ev.StartedAt.IsZero() {
		ev.StartedAt = time.Now().UTC()
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO install_events (id, spec, version, stage, outcome, error, duration_ms, started_at, install_dir)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.ID, ev.Spec, ev.Version, ev.Stage, ev.Outcome, ev.Error, ev.Duration.Milliseconds(), ev.StartedAt.UTC().UnixMilli(), ev.InstallDir)
	if err != nil {
		return fmt.Errorf("record install event: %w", err)
	}
	return nil
}

// ListInstallEvents returns matching events, newest first.
func (s *Store) ListInstallEvents(ctx context.Context, q HistoryQuery) ([]core.InstallEvent, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args := q.whereClause()
	limit := ""
	if q.Limit > 0 {
		limit = "LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, spec, version, stage, outcome, error, duration_ms, started_at, install_dir
		FROM install_events
		%s
		ORDER BY started_at DESC, id
		%s
	`, where, limit), args...)
	if err != nil {
		return nil, fmt.Errorf("list install events: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	events := []core.InstallEvent{}
	for rows.Next() {
		var (
			ev         core.InstallEvent
			ver        sql.NullString
			errMsg     sql.NullString
			installDir sql.NullString
			durationMS int64
			startedAt  int64
		)
		if err := rows.Scan(&ev.ID, &ev.Spec, &ver, &ev.Stage, &ev.Outcome, &errMsg, &durationMS, &startedAt, &installDir); err != nil {
			return nil, fmt.Errorf("scan install events: %w", err)
		}
		ev.Version = ver.String
		ev.Error = errMsg.String
		ev.InstallDir = installDir.String
		ev.Duration = time.Duration(durationMS) * time.Millisecond
		ev.StartedAt = time.UnixMilli(startedAt).UTC()
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list install events: %w", err)
	}

	return events, nil
}

// CountInstallEvents counts matching events. Limit is ignored.
func (s *Store) CountInstallEvents(ctx context.Context, q HistoryQuery) (int, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args := q.whereClause()
	var count int
	if err := s.DB.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM install_events %s`, where), args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count install events: %w", err)
	}
	return count, nil
}

// PruneInstallEvents deletes matching events and returns how many were removed.
func (s *Store) PruneInstallEvents(ctx context.Context, q HistoryQuery) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args := q.whereClause()
	result, err := s.DB.ExecContext(ctx, fmt.Sprintf(`DELETE FROM install_events %s`, where), args...)
	if err != nil {
		return 0, fmt.Errorf("prune install events: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune install events: %w", err)
	}
	return affected, nil
}
