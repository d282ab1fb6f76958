package store

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// ListSourceStates returns the fetch state of every known source keyed by
// URL.
func (s *Store) ListSourceStates(ctx context.Context) (map[string]SourceState, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT url, etag, last_modified, last_fetched_at, fail_count, last_error
		FROM sources
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]SourceState)
	for rows.Next() {
		state, err := scanSourceState(rows)
		if err != nil {
			return nil, err
		}
		out[state.URL] = state
	}
	return out, rows.Err()
}

func scanSourceState(scanner rowScanner) (SourceState, error) {
	var st SourceState
	var etag, lastModified, lastFetched, lastErr sql.NullString
	if err := scanner.Scan(
		&st.URL,
		&etag,
		&lastModified,
		&lastFetched,
		&st.FailCount,
		&lastErr,
	); err != nil {
		return SourceState{}, err
	}
	st.ETag = etag.String
	st.LastModified = lastModified.String
	st.LastError = lastErr.String
	if lastFetched.Valid {
		if t, err := parseDBTime(lastFetched.String); err == nil {
			st.LastFetchedAt = &t
		}
	}
	return st, nil
}

// PruneOrphanSources deletes sources (and their cached entries) that are no
// longer configured. Batched because sqlite caps query parameters.
func (s *Store) PruneOrphanSources(ctx context.Context, keep []string) (int64, error) {
	keepSet := make(map[string]struct{}, len(keep))
	for _, u := range keep {
		keepSet[u] = struct{}{}
	}

	rows, err := s.db.QueryContext(ctx, `SELECT url FROM sources`)
	if err != nil {
		return 0, err
	}
	orphans := make([]string, 0)
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			rows.Close()
			return 0, err
		}
		if _, ok := keepSet[u]; !ok {
			orphans = append(orphans, u)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(orphans) == 0 {
		return 0, nil
	}

	var deleted int64
	const batchSize = 500
	for start := 0; start < len(orphans); start += batchSize {
		end := start + batchSize
		if end > len(orphans) {
			end = len(orphans)
		}
		batch := orphans[start:end]

		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(batch)), ",")
		args := make([]any, 0, len(batch))
		for _, u := range batch {
			args = append(args, u)
		}

		if _, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE source_url IN (`+placeholders+`)`, args...); err != nil {
			return deleted, err
		}
		res, err := s.db.ExecContext(ctx, `DELETE FROM sources WHERE url IN (`+placeholders+`)`, args...)
		if err != nil {
			return deleted, err
		}
		n, _ := res.RowsAffected()
		deleted += n
	}
	return deleted, nil
}

// PruneStaleEntries deletes cached entry rows not seen for the given number
// of days. Retention is generous: the cache only needs to outlive the
// window in which a source still lists an item.
func (s *Store) PruneStaleEntries(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM entries WHERE last_seen_at < ?`,
		cutoff.Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}
