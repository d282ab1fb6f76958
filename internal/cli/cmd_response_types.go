package cli

// RecipeInfo is the recipes command's JSON payload.
type RecipeInfo struct {
	Name    string   `json:"name"`
	Sources int      `json:"sources"`
	Filters int      `json:"filters"`
	Fulfill bool     `json:"fulfill"`
	URLs    []string `json:"urls"`
}

// CleanResponse reports what the clean command removed.
type CleanResponse struct {
	OrphanSources    int64 `json:"orphan_sources"`
	StaleEntries     int64 `json:"stale_entries"`
	StalePages       int64 `json:"stale_pages"`
	RemainingEntries int64 `json:"remaining_entries"`
}
