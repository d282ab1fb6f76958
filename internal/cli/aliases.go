package cli

import "github.com/feedforge/forger/internal/model"

type OutputFormat = model.OutputFormat
type RunReport = model.RunReport
type SourceResult = model.SourceResult

const (
	OutputTable = model.OutputTable
	OutputJSON  = model.OutputJSON
)
