package model

import "time"

type OutputFormat string

const (
	OutputTable OutputFormat = "table"
	OutputJSON  OutputFormat = "json"
)

// Source is one feed URL belonging to a recipe. Immutable for the duration
// of a run.
type Source struct {
	Recipe string `json:"recipe"`
	URL    string `json:"url"`
	Auth   *Auth  `json:"-"`
}

// Auth carries optional per-source credentials. Token wins over
// Username/Password when both are set.
type Auth struct {
	Token    string
	Username string
	Password string
}

// Document is the raw payload fetched from a source. Transient; discarded
// after normalization.
type Document struct {
	SourceURL    string
	Body         []byte
	ContentType  string
	ETag         string
	LastModified string
	NotModified  bool
	FetchedAt    time.Time
}

// Item is the canonical entry record produced by the normalizer. ID is
// stable across runs for the same logical item; ContentHash changes only
// when the content changes.
type Item struct {
	ID          string    `json:"id"`
	SourceURL   string    `json:"source_url"`
	URL         string    `json:"url,omitempty"`
	ExternalURL string    `json:"external_url,omitempty"`
	Title       string    `json:"title,omitempty"`
	Summary     string    `json:"summary,omitempty"`
	ContentHTML string    `json:"content_html,omitempty"`
	ContentText string    `json:"content_text,omitempty"`
	Author      string    `json:"author,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Language    string    `json:"language,omitempty"`
	Image       string    `json:"image,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	ContentHash string    `json:"content_hash"`
}

// CachedEntry is the persisted last-seen state of one item for one source.
// Created on first sight, updated when the content hash changes, never
// deleted automatically within a run.
type CachedEntry struct {
	SourceURL   string
	EntryID     string
	ContentHash string
	PublishedAt time.Time
	FirstSeenAt time.Time
	LastSeenAt  time.Time
}

// SourceState is the persisted per-URL fetch state that powers conditional
// requests and failure visibility across runs.
type SourceState struct {
	URL           string     `json:"url"`
	ETag          string     `json:"etag,omitempty"`
	LastModified  string     `json:"last_modified,omitempty"`
	LastFetchedAt *time.Time `json:"last_fetched_at,omitempty"`
	FailCount     int        `json:"fail_count"`
	LastError     string     `json:"last_error,omitempty"`
}

// SourceResult is the per-source outcome of one run.
type SourceResult struct {
	Recipe      string `json:"recipe"`
	URL         string `json:"url"`
	NotModified bool   `json:"not_modified,omitempty"`
	Skipped     bool   `json:"skipped,omitempty"`
	New         int    `json:"new_entries"`
	Changed     int    `json:"changed_entries"`
	Error       string `json:"error,omitempty"`
}

// RunReport is the structured per-run report. It is serialized as an output
// artifact so partial failures stay visible even when the exit code is 0.
type RunReport struct {
	RunID     string         `json:"run_id"`
	StartedAt time.Time      `json:"started_at"`
	EndedAt   time.Time      `json:"ended_at"`
	Results   []SourceResult `json:"results"`
	Artifacts []string       `json:"artifacts,omitempty"`
	Warnings  []string       `json:"warnings,omitempty"`
}

// Failed reports whether the run produced no usable result at all: every
// attempted source either errored or was skipped.
func (r RunReport) Failed() bool {
	if len(r.Results) == 0 {
		return false
	}
	for _, res := range r.Results {
		if res.Error == "" && !res.Skipped {
			return false
		}
	}
	return true
}
