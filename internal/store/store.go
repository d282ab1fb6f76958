package store

import (
	"database/sql"
)

// Store is the persistent feed cache: per-source fetch state, last-seen
// entry hashes, and a page-content cache for fulfillment. It is opened once
// per run; the merge engine is the only writer of entry rows.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}
