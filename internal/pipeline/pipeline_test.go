package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedforge/forger/internal/config"
	"github.com/feedforge/forger/internal/model"
	"github.com/feedforge/forger/internal/output"
	"github.com/feedforge/forger/internal/store"
)

func newTestRunner(t *testing.T, recipes map[string]config.Recipe) (*Runner, config.Config) {
	t.Helper()
	cfg := config.Config{
		CacheDir:         filepath.Join(t.TempDir(), "cache"),
		OutputDir:        filepath.Join(t.TempDir(), "outputs"),
		FetchConcurrency: 2,
		HTTPTimeout:      5 * time.Second,
		RetryAttempts:    0,
		RunTimeout:       time.Minute,
		MaxAgeDays:       7,
		PageTTL:          30 * time.Minute,
		UserAgent:        "forger-test/1.0",
		Recipes:          recipes,
	}
	db, err := store.OpenDB(cfg.DBPath())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewRunner(cfg, store.NewStore(db)), cfg
}

func feedXML(items ...string) string {
	body := `<?xml version="1.0" encoding="UTF-8"?><rss version="2.0"><channel><title>t</title>`
	for _, it := range items {
		body += it
	}
	return body + `</channel></rss>`
}

func feedItem(guid, link, title, desc string) string {
	pub := time.Now().UTC().Add(-2 * time.Hour).Format(time.RFC1123Z)
	return fmt.Sprintf(
		`<item><guid>%s</guid><link>%s</link><title>%s</title><description>%s</description><pubDate>%s</pubDate></item>`,
		guid, link, title, desc, pub)
}

func rssHandler(body func() string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(body()))
	})
}

func readFeed(t *testing.T, dir, name string) output.Feed {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	var feed output.Feed
	require.NoError(t, json.Unmarshal(data, &feed))
	return feed
}

func TestRunPartialFailure(t *testing.T) {
	body := feedXML(
		feedItem("id-1", "https://example.com/1", "First", "one"),
		feedItem("id-2", "https://example.com/2", "Second", "two"),
	)
	good := httptest.NewServer(rssHandler(func() string { return body }))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer bad.Close()

	runner, cfg := newTestRunner(t, map[string]config.Recipe{
		"news": {Name: "news", URLs: []string{good.URL, bad.URL}},
	})

	report, err := runner.Run(context.Background(), "")
	require.NoError(t, err, "partial failure must not fail the run")
	require.Len(t, report.Results, 2)

	var okRes, errRes *model.SourceResult
	for i := range report.Results {
		if report.Results[i].Error != "" {
			errRes = &report.Results[i]
		} else {
			okRes = &report.Results[i]
		}
	}
	require.NotNil(t, okRes)
	require.NotNil(t, errRes)
	assert.Equal(t, 2, okRes.New)
	assert.Contains(t, errRes.Error, "404")

	feed := readFeed(t, cfg.OutputDir, "news.json")
	assert.Len(t, feed.Items, 2)

	if _, err := os.Stat(filepath.Join(cfg.OutputDir, "report.json")); err != nil {
		t.Errorf("report.json missing: %v", err)
	}
}

func TestRunSecondPassEmitsNothingNew(t *testing.T) {
	body := feedXML(feedItem("id-1", "https://example.com/1", "First", "one"))
	srv := httptest.NewServer(rssHandler(func() string { return body }))
	defer srv.Close()

	runner, cfg := newTestRunner(t, map[string]config.Recipe{
		"news": {Name: "news", URLs: []string{srv.URL}},
	})

	report, err := runner.Run(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, 1, report.Results[0].New)

	report, err = runner.Run(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, 0, report.Results[0].New)
	assert.Equal(t, 0, report.Results[0].Changed)

	feed := readFeed(t, cfg.OutputDir, "news.json")
	assert.Empty(t, feed.Items, "unchanged entries are not re-emitted")
}

func TestRunDetectsChangedContent(t *testing.T) {
	current := feedXML(feedItem("id-1", "https://example.com/1", "First", "one"))
	srv := httptest.NewServer(rssHandler(func() string { return current }))
	defer srv.Close()

	runner, _ := newTestRunner(t, map[string]config.Recipe{
		"news": {Name: "news", URLs: []string{srv.URL}},
	})

	_, err := runner.Run(context.Background(), "")
	require.NoError(t, err)

	current = feedXML(feedItem("id-1", "https://example.com/1", "First, revised", "one"))
	report, err := runner.Run(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, 0, report.Results[0].New)
	assert.Equal(t, 1, report.Results[0].Changed)
}

func TestRunConditionalGet(t *testing.T) {
	const etag = `"v1"`
	body := feedXML(feedItem("id-1", "https://example.com/1", "First", "one"))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	runner, _ := newTestRunner(t, map[string]config.Recipe{
		"news": {Name: "news", URLs: []string{srv.URL}},
	})

	report, err := runner.Run(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, report.Results[0].NotModified)

	report, err = runner.Run(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.True(t, report.Results[0].NotModified)
}

func TestRunTimeoutCompletedSourcesProceed(t *testing.T) {
	body := feedXML(feedItem("id-1", "https://example.com/1", "First", "one"))
	fast := httptest.NewServer(rssHandler(func() string { return body }))
	defer fast.Close()
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(body))
	}))
	defer slow.Close()

	runner, cfg := newTestRunner(t, map[string]config.Recipe{
		"news": {Name: "news", URLs: []string{fast.URL, slow.URL}},
	})
	runner.cfg.RunTimeout = 500 * time.Millisecond

	report, err := runner.Run(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, report.Results, 2)
	first := resultFor(t, report, fast.URL)
	assert.Equal(t, 1, first.New)
	assert.True(t, resultFor(t, report, slow.URL).Skipped)

	// A second run that times out the same way must still see the cached
	// snapshot: the fast source's unchanged entry is not re-emitted.
	report, err = runner.Run(context.Background(), "")
	require.NoError(t, err)
	second := resultFor(t, report, fast.URL)
	assert.Equal(t, 0, second.New)
	assert.Equal(t, 0, second.Changed)
	assert.True(t, resultFor(t, report, slow.URL).Skipped)

	feed := readFeed(t, cfg.OutputDir, "news.json")
	assert.Empty(t, feed.Items)
}

func resultFor(t *testing.T, report model.RunReport, url string) model.SourceResult {
	t.Helper()
	for _, res := range report.Results {
		if res.URL == url {
			return res
		}
	}
	t.Fatalf("no result for %s", url)
	return model.SourceResult{}
}

func TestRunTotalFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	runner, _ := newTestRunner(t, map[string]config.Recipe{
		"news": {Name: "news", URLs: []string{srv.URL}},
	})

	report, err := runner.Run(context.Background(), "")
	require.ErrorIs(t, err, ErrRunFailed)
	require.Len(t, report.Results, 1)
	assert.NotEmpty(t, report.Results[0].Error)
}

func TestRunUnknownRecipe(t *testing.T) {
	runner, _ := newTestRunner(t, map[string]config.Recipe{
		"news": {Name: "news", URLs: []string{"https://example.com/feed.xml"}},
	})
	_, err := runner.Run(context.Background(), "nope")
	require.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestRunRecipeFilterRestrictsSources(t *testing.T) {
	bodyA := feedXML(feedItem("a-1", "https://example.com/a1", "Alpha", "a"))
	bodyB := feedXML(feedItem("b-1", "https://example.com/b1", "Beta", "b"))
	srvA := httptest.NewServer(rssHandler(func() string { return bodyA }))
	defer srvA.Close()
	srvB := httptest.NewServer(rssHandler(func() string { return bodyB }))
	defer srvB.Close()

	runner, cfg := newTestRunner(t, map[string]config.Recipe{
		"alpha": {Name: "alpha", URLs: []string{srvA.URL}},
		"beta":  {Name: "beta", URLs: []string{srvB.URL}},
	})

	report, err := runner.Run(context.Background(), "alpha")
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, "alpha", report.Results[0].Recipe)

	if _, err := os.Stat(filepath.Join(cfg.OutputDir, "beta.json")); !os.IsNotExist(err) {
		t.Errorf("beta.json must not be written when only alpha runs")
	}
}

func TestRunFulfillment(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><head><title>Full Page Title For The Post</title></head>
		<body><article><p>The complete article text recovered from the linked page,
		long enough to be worth keeping.</p></article></body></html>`))
	}))
	defer page.Close()

	body := feedXML(feedItem("id-1", page.URL+"/post", "Short", "stub"))
	srv := httptest.NewServer(rssHandler(func() string { return body }))
	defer srv.Close()

	runner, cfg := newTestRunner(t, map[string]config.Recipe{
		"deep": {Name: "deep", URLs: []string{srv.URL}, Fulfill: true},
	})

	report, err := runner.Run(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, 1, report.Results[0].New)

	feed := readFeed(t, cfg.OutputDir, "deep.json")
	require.Len(t, feed.Items, 1)
	assert.Contains(t, feed.Items[0].ContentText, "complete article text")
	assert.Equal(t, "Full Page Title For The Post", feed.Items[0].Title)
}

func TestRunAppliesTitleFilters(t *testing.T) {
	body := feedXML(
		feedItem("id-1", "https://example.com/1", "Keep this post", "one"),
		feedItem("id-2", "https://example.com/2", "Sponsored: skip this", "two"),
	)
	srv := httptest.NewServer(rssHandler(func() string { return body }))
	defer srv.Close()

	runner, cfg := newTestRunner(t, map[string]config.Recipe{
		"news": {
			Name:    "news",
			URLs:    []string{srv.URL},
			Filters: []config.Filter{{Title: "^sponsored", Invert: true}},
		},
	})

	report, err := runner.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Results[0].New)

	feed := readFeed(t, cfg.OutputDir, "news.json")
	require.Len(t, feed.Items, 1)
	assert.Equal(t, "Keep this post", feed.Items[0].Title)
}
