package output

import (
	"net/url"
	"time"

	"github.com/feedforge/forger/internal/model"
)

const jsonFeedVersion = "https://jsonfeed.org/version/1.1"

// Feed is a JSON Feed 1.1 document, the output artifact format.
type Feed struct {
	Version     string     `json:"version"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	HomePageURL string     `json:"home_page_url,omitempty"`
	FeedURL     string     `json:"feed_url,omitempty"`
	UserComment string     `json:"user_comment,omitempty"`
	Language    string     `json:"language,omitempty"`
	Items       []Item     `json:"items"`
	Forger      *Extension `json:"_forger,omitempty"`
}

// Extension is the _forger custom object: the only wall-clock-dependent
// content in an artifact.
type Extension struct {
	RunID       string    `json:"run_id,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

type Item struct {
	ID            string    `json:"id"`
	URL           string    `json:"url,omitempty"`
	ExternalURL   string    `json:"external_url,omitempty"`
	Title         string    `json:"title,omitempty"`
	ContentHTML   string    `json:"content_html,omitempty"`
	ContentText   string    `json:"content_text,omitempty"`
	Summary       string    `json:"summary,omitempty"`
	Image         string    `json:"image,omitempty"`
	DatePublished time.Time `json:"date_published"`
	Authors       []Author  `json:"authors,omitempty"`
	Tags          []string  `json:"tags,omitempty"`
	Language      string    `json:"language,omitempty"`
}

type Author struct {
	Name string `json:"name,omitempty"`
}

// BuildFeed assembles the artifact document for one recipe. Items must
// already be in their final order; the builder adds no ordering of its own.
func BuildFeed(recipe string, items []model.Item, publishBaseURL string, ext Extension) Feed {
	feed := Feed{
		Version:     jsonFeedVersion,
		Title:       recipe,
		Description: "Aggregated feed for " + recipe,
		UserComment: "Generated by forger",
		Language:    "en",
		Items:       make([]Item, 0, len(items)),
		Forger:      &ext,
	}
	if publishBaseURL != "" {
		feed.FeedURL = publishBaseURL + "/download/latest/" + url.PathEscape(recipe) + ".json"
		feed.HomePageURL = publishBaseURL + "/tag/latest"
	}

	for _, it := range items {
		out := Item{
			ID:            it.ID,
			URL:           it.URL,
			ExternalURL:   it.ExternalURL,
			Title:         it.Title,
			ContentHTML:   it.ContentHTML,
			ContentText:   it.ContentText,
			Summary:       it.Summary,
			Image:         it.Image,
			DatePublished: it.PublishedAt.UTC(),
			Tags:          it.Tags,
			Language:      it.Language,
		}
		if it.Author != "" {
			out.Authors = []Author{{Name: it.Author}}
		}
		feed.Items = append(feed.Items, out)
	}
	return feed
}
