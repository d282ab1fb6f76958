package feed

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"

	"github.com/feedforge/forger/internal/model"
)

const minSubstantialContent = 200

var contentClasses = map[string]struct{}{
	"post-content":    {},
	"entry-content":   {},
	"article-content": {},
}

// Extracted is the main content pulled out of a fetched page during
// fulfillment.
type Extracted struct {
	Title       string
	ContentHTML string
	ContentText string
}

// NeedsFulfillment reports whether an item lacks substantial content and
// should have its linked page fetched.
func NeedsFulfillment(item model.Item) bool {
	if len(item.ContentHTML) > minSubstantialContent {
		return false
	}
	if len(item.ContentText) > minSubstantialContent {
		return false
	}
	return true
}

// ExtractMainContent pulls the main article content out of an HTML page:
// the first article or main element, a known content container, or failing
// that the largest div. Script-capable elements are stripped.
func ExtractMainContent(page []byte) Extracted {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return Extracted{}
	}

	var out Extracted
	if titleNode := findNode(doc, "title"); titleNode != nil {
		out.Title = compactText(collectText(titleNode), 300)
	}

	content := findMainContent(doc)
	if content == nil {
		return out
	}

	cleaned := sanitizeNode(content)
	if cleaned == nil {
		return out
	}

	var b strings.Builder
	_ = html.Render(&b, cleaned)
	out.ContentHTML = strings.TrimSpace(b.String())
	out.ContentText = compactText(collectText(cleaned), 0)
	return out
}

// ApplyExtracted upgrades an item with fulfilled page content. Short feed
// titles are replaced when the page has a meaningfully longer one.
func ApplyExtracted(item *model.Item, ex Extracted) bool {
	if ex.ContentHTML == "" && ex.ContentText == "" {
		return false
	}
	if ex.ContentHTML != "" {
		item.ContentHTML = ex.ContentHTML
	}
	if ex.ContentText != "" {
		item.ContentText = ex.ContentText
	}
	if ex.Title != "" && len(item.Title) < 20 && len(ex.Title) > len(item.Title) {
		item.Title = ex.Title
	}
	item.ContentHash = ContentHash(*item)
	return true
}

func findMainContent(doc *html.Node) *html.Node {
	for _, tag := range []string{"article", "main"} {
		if n := findNode(doc, tag); n != nil {
			return n
		}
	}
	if n := findNodeByAttr(doc, "id", func(v string) bool { return v == "content" }); n != nil {
		return n
	}
	if n := findNodeByAttr(doc, "class", hasContentClass); n != nil {
		return n
	}
	return largestDiv(doc)
}

func hasContentClass(v string) bool {
	for _, class := range strings.Fields(v) {
		if _, ok := contentClasses[class]; ok {
			return true
		}
	}
	return false
}

func findNode(n *html.Node, tag string) *html.Node {
	if n == nil {
		return nil
	}
	if n.Type == html.ElementNode && strings.EqualFold(n.Data, tag) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findNode(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func findNodeByAttr(n *html.Node, key string, match func(string) bool) *html.Node {
	if n == nil {
		return nil
	}
	if n.Type == html.ElementNode {
		for _, a := range n.Attr {
			if strings.EqualFold(a.Key, key) && match(a.Val) {
				return n
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findNodeByAttr(c, key, match); found != nil {
			return found
		}
	}
	return nil
}

func largestDiv(doc *html.Node) *html.Node {
	var best *html.Node
	bestLen := 0
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n == nil {
			return
		}
		if n.Type == html.ElementNode && strings.EqualFold(n.Data, "div") {
			if l := len(collectText(n)); l > bestLen {
				best, bestLen = n, l
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return best
}

func collectText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n == nil {
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
			return
		}
		if n.Type == html.ElementNode {
			tag := strings.ToLower(n.Data)
			if _, blocked := blockedTags[tag]; blocked {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}
