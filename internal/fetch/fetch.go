package fetch

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
)

const maxBodyBytes = 16 << 20

// Fetcher retrieves feed documents and pages over HTTP with bounded retry.
type Fetcher struct {
	cfg    Config
	client *http.Client
}

func New(cfg Config) *Fetcher {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     30 * time.Second,
	}

	return &Fetcher{
		cfg: cfg,
		client: &http.Client{
			Timeout:   cfg.HTTPTimeout,
			Transport: transport,
		},
	}
}

func (f *Fetcher) HTTPClient() *http.Client {
	return f.client
}

// Fetch retrieves one source document, sending conditional headers from the
// persisted state. Transient failures are retried with exponential backoff
// up to the configured attempt count; permanent failures return immediately.
func (f *Fetcher) Fetch(ctx context.Context, src Source, state SourceState) (Document, error) {
	var doc Document
	op := func() error {
		d, err := f.fetchOnce(ctx, src, state)
		if err != nil {
			var fe *Error
			if errors.As(err, &fe) && !fe.Transient {
				return backoff.Permanent(err)
			}
			log.WithFields(log.Fields{"url": src.URL, "recipe": src.Recipe}).
				Debugf("transient fetch failure, will retry: %v", err)
			return err
		}
		doc = d
		return nil
	}

	if err := backoff.Retry(op, f.retryPolicy(ctx)); err != nil {
		return Document{}, err
	}
	return doc, nil
}

func (f *Fetcher) retryPolicy(ctx context.Context) backoff.BackOffContext {
	// A negative count would wrap to effectively unlimited retries.
	attempts := f.cfg.RetryAttempts
	if attempts < 0 {
		attempts = 0
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 10 * time.Second
	bo.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(bo, uint64(attempts)), ctx)
}

func (f *Fetcher) fetchOnce(ctx context.Context, src Source, state SourceState) (Document, error) {
	req, err := f.newFeedRequest(ctx, src, state)
	if err != nil {
		return Document{}, &Error{URL: src.URL, Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return Document{}, &Error{URL: src.URL, Transient: true, Err: err}
	}
	defer resp.Body.Close()

	etag, lastModified := mergeCacheHeaders(resp, state)
	if resp.StatusCode == http.StatusNotModified {
		return Document{
			SourceURL:    src.URL,
			ETag:         etag,
			LastModified: lastModified,
			NotModified:  true,
			FetchedAt:    time.Now().UTC(),
		}, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Document{}, &Error{
			URL:       src.URL,
			Status:    resp.StatusCode,
			Transient: transientStatus(resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Document{}, &Error{URL: src.URL, Transient: true, Err: err}
	}

	return Document{
		SourceURL:    src.URL,
		Body:         body,
		ContentType:  resp.Header.Get("Content-Type"),
		ETag:         etag,
		LastModified: lastModified,
		FetchedAt:    time.Now().UTC(),
	}, nil
}

func (f *Fetcher) newFeedRequest(ctx context.Context, src Source, state SourceState) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "application/xml, application/atom+xml, application/rss+xml, application/feed+json, text/xml, text/html, */*;q=0.8")
	if state.ETag != "" {
		req.Header.Set("If-None-Match", state.ETag)
	}
	if state.LastModified != "" {
		req.Header.Set("If-Modified-Since", state.LastModified)
	}
	if src.Auth != nil {
		if src.Auth.Token != "" {
			req.Header.Set("Authorization", "Bearer "+src.Auth.Token)
		} else if src.Auth.Username != "" {
			req.SetBasicAuth(src.Auth.Username, src.Auth.Password)
		}
	}
	return req, nil
}

// FetchPage retrieves a linked page body for content fulfillment, with the
// same retry policy as feed fetches.
func (f *Fetcher) FetchPage(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(&Error{URL: url, Err: err})
		}
		req.Header.Set("User-Agent", f.cfg.UserAgent)
		req.Header.Set("Accept", "text/html, */*;q=0.8")

		resp, err := f.client.Do(req)
		if err != nil {
			return &Error{URL: url, Transient: true, Err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			e := &Error{URL: url, Status: resp.StatusCode, Transient: transientStatus(resp.StatusCode)}
			if !e.Transient {
				return backoff.Permanent(e)
			}
			return e
		}

		b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return &Error{URL: url, Transient: true, Err: err}
		}
		body = b
		return nil
	}

	if err := backoff.Retry(op, f.retryPolicy(ctx)); err != nil {
		return nil, err
	}
	return body, nil
}

func mergeCacheHeaders(resp *http.Response, state SourceState) (etag, lastModified string) {
	etag = strings.TrimSpace(resp.Header.Get("ETag"))
	if etag == "" {
		etag = state.ETag
	}
	lastModified = strings.TrimSpace(resp.Header.Get("Last-Modified"))
	if lastModified == "" {
		lastModified = state.LastModified
	}
	return etag, lastModified
}
