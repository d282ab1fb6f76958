package fetch

import (
	"github.com/feedforge/forger/internal/config"
	"github.com/feedforge/forger/internal/model"
)

type Config = config.Config
type Source = model.Source
type Document = model.Document
type SourceState = model.SourceState
