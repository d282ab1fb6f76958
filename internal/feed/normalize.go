package feed

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	log "github.com/sirupsen/logrus"

	"github.com/feedforge/forger/internal/model"
)

// ErrParse marks a document that could not be recognized as a feed.
var ErrParse = errors.New("parse feed")

// Options controls normalization for one source within one run.
type Options struct {
	Cutoff  time.Time
	Filters []Filter
}

// Normalizer turns raw feed documents into canonical items.
type Normalizer struct {
	parser   *gofeed.Parser
	renderer *Renderer
}

func NewNormalizer() *Normalizer {
	return &Normalizer{
		parser:   gofeed.NewParser(),
		renderer: NewRenderer(),
	}
}

func (n *Normalizer) Renderer() *Renderer {
	return n.renderer
}

// Normalize parses a fetched document into canonical items, applying the
// recipe's title filters and the age cutoff. Entries without a parseable
// date are skipped with a warning, matching the partial-failure policy:
// one bad entry never fails the source.
func (n *Normalizer) Normalize(doc model.Document, opts Options) ([]model.Item, error) {
	parsed, err := n.parser.Parse(bytes.NewReader(doc.Body))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrParse, doc.SourceURL, err)
	}

	language := feedLanguage(parsed.Language)
	items := make([]model.Item, 0, len(parsed.Items))
	for _, raw := range parsed.Items {
		published := entryPublished(raw)
		if published == nil {
			log.WithField("url", doc.SourceURL).Warnf("no date for entry %q, skipping", raw.Link)
			continue
		}
		if published.Before(opts.Cutoff) {
			continue
		}
		if !Include(opts.Filters, strings.TrimSpace(raw.Title)) {
			continue
		}
		items = append(items, n.buildItem(raw, parsed, doc.SourceURL, language, *published))
	}
	return items, nil
}

func (n *Normalizer) buildItem(raw *gofeed.Item, parsed *gofeed.Feed, sourceURL, language string, published time.Time) model.Item {
	contentHTML := strings.TrimSpace(raw.Content)
	if contentHTML == "" {
		contentHTML = strings.TrimSpace(raw.Description)
	}
	contentHTML = SanitizeHTML(contentHTML)

	item := model.Item{
		SourceURL:   sourceURL,
		URL:         strings.TrimSpace(raw.Link),
		Title:       strings.TrimSpace(raw.Title),
		Summary:     n.renderer.Summary(raw.Description),
		ContentHTML: contentHTML,
		ContentText: n.renderer.HTMLToText(contentHTML),
		Author:      entryAuthor(raw, parsed),
		Tags:        entryTags(raw),
		Language:    language,
		Image:       entryImage(raw),
		PublishedAt: published.UTC(),
	}
	item.ID = EntryID(raw.GUID, item.URL, item.Title, sourceURL)
	item.ContentHash = ContentHash(item)
	return item
}

// EntryID derives the stable dedup key: the feed-provided GUID when present,
// else a hash of the link, else a hash of title plus source URL.
func EntryID(guid, link, title, sourceURL string) string {
	if g := strings.TrimSpace(guid); g != "" {
		return g
	}
	if l := strings.TrimSpace(link); l != "" {
		return sha256Hex(l)
	}
	return sha256Hex(strings.TrimSpace(title) + "|" + sourceURL)
}

// ContentHash fingerprints the parts of an item whose change should re-emit
// it. Stable field order keeps the hash reproducible across runs.
func ContentHash(item model.Item) string {
	h := sha256.New()
	for _, part := range []string{item.Title, item.URL, item.ContentHTML, item.ContentText} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func sha256Hex(v string) string {
	h := sha256.Sum256([]byte(v))
	return "sha256:" + hex.EncodeToString(h[:])
}

func entryPublished(raw *gofeed.Item) *time.Time {
	if raw.PublishedParsed != nil {
		return raw.PublishedParsed
	}
	return raw.UpdatedParsed
}

func entryAuthor(raw *gofeed.Item, parsed *gofeed.Feed) string {
	if raw.Author != nil && strings.TrimSpace(raw.Author.Name) != "" {
		return strings.TrimSpace(raw.Author.Name)
	}
	if parsed.Author != nil {
		return strings.TrimSpace(parsed.Author.Name)
	}
	return ""
}

func entryTags(raw *gofeed.Item) []string {
	if len(raw.Categories) == 0 {
		return nil
	}
	tags := make([]string, 0, len(raw.Categories))
	for _, c := range raw.Categories {
		if c = strings.TrimSpace(c); c != "" {
			tags = append(tags, c)
		}
	}
	if len(tags) == 0 {
		return nil
	}
	return tags
}

func entryImage(raw *gofeed.Item) string {
	if raw.Image != nil {
		return strings.TrimSpace(raw.Image.URL)
	}
	return ""
}

func feedLanguage(raw string) string {
	lang := strings.ToLower(strings.TrimSpace(raw))
	if lang == "" {
		return ""
	}
	if i := strings.IndexByte(lang, '-'); i > 0 {
		lang = lang[:i]
	}
	return lang
}
