package cli

import (
	"database/sql"
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/feedforge/forger/internal/config"
	"github.com/feedforge/forger/internal/store"
)

type App struct {
	cfg   config.Config
	db    *sql.DB
	store *store.Store
}

func NewApp(cfg config.Config) (*App, error) {
	db, err := store.OpenDB(cfg.DBPath())
	if err != nil {
		// A corrupt cache is recoverable: the store recreated it empty and
		// this run treats every entry as new.
		if db == nil || !errors.Is(err, store.ErrCacheCorrupt) {
			return nil, err
		}
		log.Warnf("cache store recovered: %v", err)
	}

	return &App{
		cfg:   cfg,
		db:    db,
		store: store.NewStore(db),
	}, nil
}

func (a *App) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}
