package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/feedforge/forger/internal/model"
)

func TestFetcherRetriesTransientFailures(t *testing.T) {
	var reqCount int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&reqCount, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(testFeedXML))
	}))
	defer srv.Close()

	f := newTestFetcher(2)
	doc, err := f.Fetch(context.Background(), model.Source{URL: srv.URL}, model.SourceState{})
	if err != nil {
		t.Fatalf("fetch after retries: %v", err)
	}
	if len(doc.Body) == 0 {
		t.Fatalf("expected body after retry success")
	}
	if n := atomic.LoadInt32(&reqCount); n != 3 {
		t.Fatalf("expected 3 requests, got %d", n)
	}
}

func TestFetcherPermanentFailureNotRetried(t *testing.T) {
	var reqCount int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&reqCount, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := newTestFetcher(3)
	_, err := f.Fetch(context.Background(), model.Source{URL: srv.URL}, model.SourceState{})
	if err == nil {
		t.Fatalf("expected error for 404")
	}
	var fe *Error
	if !errors.As(err, &fe) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if fe.Transient || fe.Status != http.StatusNotFound {
		t.Fatalf("unexpected classification: %+v", fe)
	}
	if n := atomic.LoadInt32(&reqCount); n != 1 {
		t.Fatalf("permanent error must not retry: %d requests", n)
	}
}

func TestFetcherNegativeRetryAttempts(t *testing.T) {
	var reqCount int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&reqCount, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := newTestFetcher(-1)
	_, err := f.Fetch(context.Background(), model.Source{URL: srv.URL}, model.SourceState{})
	if err == nil {
		t.Fatalf("expected error")
	}
	if n := atomic.LoadInt32(&reqCount); n != 1 {
		t.Fatalf("negative retry count must clamp to a single attempt, got %d requests", n)
	}
}

func TestFetcherConditionalGet(t *testing.T) {
	const etag = `"v1"`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(testFeedXML))
	}))
	defer srv.Close()

	f := newTestFetcher(0)
	ctx := context.Background()

	doc, err := f.Fetch(ctx, model.Source{URL: srv.URL}, model.SourceState{})
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if doc.NotModified || doc.ETag != etag {
		t.Fatalf("unexpected first doc: %+v", doc)
	}

	doc, err = f.Fetch(ctx, model.Source{URL: srv.URL}, model.SourceState{URL: srv.URL, ETag: etag})
	if err != nil {
		t.Fatalf("conditional fetch: %v", err)
	}
	if !doc.NotModified {
		t.Fatalf("expected not-modified, got %+v", doc)
	}
	if doc.ETag != etag {
		t.Fatalf("etag must survive a 304: %q", doc.ETag)
	}
}

func TestFetcherSendsAuth(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(testFeedXML))
	}))
	defer srv.Close()

	f := newTestFetcher(0)
	src := model.Source{URL: srv.URL, Auth: &model.Auth{Token: "secret"}}
	if _, err := f.Fetch(context.Background(), src, model.SourceState{}); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("unexpected auth header: %q", gotAuth)
	}
}

func TestFetchAllIsolatesFailures(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(testFeedXML))
	}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer bad.Close()

	f := newTestFetcher(0)
	jobs := []Job{
		{Source: model.Source{Recipe: "r", URL: good.URL}},
		{Source: model.Source{Recipe: "r", URL: bad.URL}},
	}
	outcomes := f.FetchAll(context.Background(), jobs, nil)
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}

	var okCount, errCount int
	for _, out := range outcomes {
		if out.Err != nil {
			errCount++
			continue
		}
		okCount++
		if len(out.Doc.Body) == 0 {
			t.Fatalf("successful outcome missing body")
		}
	}
	if okCount != 1 || errCount != 1 {
		t.Fatalf("expected one success and one failure, got ok=%d err=%d", okCount, errCount)
	}
}

func TestFetchPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body><article>full text</article></body></html>"))
	}))
	defer srv.Close()

	f := newTestFetcher(0)
	body, err := f.FetchPage(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("fetch page: %v", err)
	}
	if len(body) == 0 {
		t.Fatalf("expected page body")
	}
}
