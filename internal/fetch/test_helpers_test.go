package fetch

import (
	"time"

	"github.com/feedforge/forger/internal/config"
)

func newTestFetcher(retries int) *Fetcher {
	return New(config.Config{
		HTTPTimeout:      5 * time.Second,
		FetchConcurrency: 4,
		RetryAttempts:    retries,
		UserAgent:        "forger-test/1.0",
	})
}

const testFeedXML = `<?xml version="1.0"?>
<rss version="2.0"><channel>
<title>Test Feed</title><link>https://example.com</link><description>desc</description>
<item>
  <guid>item-1</guid>
  <title>Entry One</title>
  <link>https://example.com/entry-1</link>
  <description>hello</description>
  <pubDate>Mon, 02 Jan 2023 15:04:05 +0000</pubDate>
</item>
</channel></rss>`
