package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// GetPage returns the cached body for a fulfilled page URL if it was fetched
// successfully within ttl.
func (s *Store) GetPage(ctx context.Context, url string, ttl time.Duration) ([]byte, bool, error) {
	cutoff := time.Now().UTC().Add(-ttl).Format(time.RFC3339Nano)

	var body []byte
	var ok int
	err := s.db.QueryRowContext(ctx, `
		SELECT body, ok FROM pages WHERE url = ? AND fetched_at > ?
	`, url, cutoff).Scan(&body, &ok)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	if ok == 0 || body == nil {
		return nil, false, nil
	}
	return body, true, nil
}

// SetPage records a page fetch outcome. Failed fetches keep their error for
// visibility but store no body, so GetPage misses and the next run refetches.
func (s *Store) SetPage(ctx context.Context, url string, body []byte, fetchErr string) error {
	ok := 1
	if fetchErr != "" {
		ok = 0
		body = nil
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pages (url, body, fetched_at, ok, error)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			body = excluded.body,
			fetched_at = excluded.fetched_at,
			ok = excluded.ok,
			error = excluded.error
	`, url, body, time.Now().UTC().Format(time.RFC3339Nano), ok, nullIfEmpty(fetchErr))
	return err
}

// PrunePages deletes page cache rows older than the given age.
func (s *Store) PrunePages(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge).Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `DELETE FROM pages WHERE fetched_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}
