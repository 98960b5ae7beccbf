package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Meta keys.
const (
	MetaLastReshim = "last_reshim_at"
	MetaShimTarget = "shim_target"
)

// SetMeta stores a metadata key/value.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	if strings.TrimSpace(key) == "" {
		return errors.New("meta key is required")
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO meta (key, value)
		VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("store meta: %w", err)
	}

	return nil
}

// GetMeta returns a metadata value, or "" when unset.
func (s *Store) GetMeta(ctx context.Context, key string) (string, error) {
	if s == nil || s.DB == nil {
		return "", errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	if strings.TrimSpace(key) == "" {
		return "", errors.New("meta key is required")
	}

	var value string
	if err := s.DB.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("fetch meta: %w", err)
	}

	return value, nil
}

// SetMetaTime stores t in RFC 3339 form.
func (s *Store) SetMetaTime(ctx context.Context, key string, t time.Time) error {
	return s.SetMeta(ctx, key, t.UTC().Format(time.RFC3339))
}

// GetMetaTime parses a value stored by SetMetaTime. Unset keys yield the zero time.
func (s *Store) GetMetaTime(ctx context.Context, key string) (time.Time, error) {
	value, err := s.GetMeta(ctx, key)
	if err != nil || value == "" {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("decode meta %s: %w", key, err)
	}
	return t, nil
}
