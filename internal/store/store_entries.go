package store

import (
	"context"
	"database/sql"
)

// LoadEntries returns the cached last-seen state for one source, keyed by
// entry id. An unknown source yields an empty map.
func (s *Store) LoadEntries(ctx context.Context, sourceURL string) (map[string]CachedEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_url, entry_id, content_hash, published_at, first_seen_at, last_seen_at
		FROM entries
		WHERE source_url = ?
	`, sourceURL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]CachedEntry)
	for rows.Next() {
		entry, err := scanCachedEntry(rows)
		if err != nil {
			return nil, err
		}
		out[entry.EntryID] = entry
	}
	return out, rows.Err()
}

func scanCachedEntry(scanner rowScanner) (CachedEntry, error) {
	var e CachedEntry
	var publishedAt sql.NullString
	var firstSeen, lastSeen string
	if err := scanner.Scan(
		&e.SourceURL,
		&e.EntryID,
		&e.ContentHash,
		&publishedAt,
		&firstSeen,
		&lastSeen,
	); err != nil {
		return CachedEntry{}, err
	}
	if publishedAt.Valid {
		if t, err := parseDBTime(publishedAt.String); err == nil {
			e.PublishedAt = t
		}
	}
	if t, err := parseDBTime(firstSeen); err == nil {
		e.FirstSeenAt = t
	}
	if t, err := parseDBTime(lastSeen); err == nil {
		e.LastSeenAt = t
	}
	return e, nil
}

// SaveRun persists the updated entry state and source fetch states produced
// by one run in a single transaction. It is called only after output
// artifacts were written successfully, so a failed write leaves the cache
// untouched and the next run re-emits.
func (s *Store) SaveRun(ctx context.Context, entries []CachedEntry, states []SourceState) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	entryStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entries (source_url, entry_id, content_hash, published_at, first_seen_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_url, entry_id) DO UPDATE SET
			content_hash = excluded.content_hash,
			published_at = excluded.published_at,
			last_seen_at = excluded.last_seen_at
	`)
	if err != nil {
		return err
	}
	defer entryStmt.Close()

	for _, e := range entries {
		if _, err = entryStmt.ExecContext(ctx,
			e.SourceURL,
			e.EntryID,
			e.ContentHash,
			timeToDBString(e.PublishedAt),
			timeToDBString(e.FirstSeenAt),
			timeToDBString(e.LastSeenAt),
		); err != nil {
			return err
		}
	}

	stateStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO sources (url, etag, last_modified, last_fetched_at, fail_count, last_error)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			etag = excluded.etag,
			last_modified = excluded.last_modified,
			last_fetched_at = excluded.last_fetched_at,
			fail_count = excluded.fail_count,
			last_error = excluded.last_error
	`)
	if err != nil {
		return err
	}
	defer stateStmt.Close()

	for _, st := range states {
		var lastFetched any
		if st.LastFetchedAt != nil {
			lastFetched = timeToDBString(*st.LastFetchedAt)
		}
		if _, err = stateStmt.ExecContext(ctx,
			st.URL,
			nullIfEmpty(st.ETag),
			nullIfEmpty(st.LastModified),
			lastFetched,
			st.FailCount,
			nullIfEmpty(st.LastError),
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// CountEntries reports the number of cached entry rows. Used by clean for
// before/after visibility.
func (s *Store) CountEntries(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&n)
	return n, err
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}
