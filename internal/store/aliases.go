package store

import "github.com/feedforge/forger/internal/model"

type CachedEntry = model.CachedEntry
type SourceState = model.SourceState
