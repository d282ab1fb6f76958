package feed

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Elements whose whole subtree is dropped, both when sanitizing markup and
// when collecting plain text.
var blockedTags = map[string]struct{}{
	"base":     {},
	"embed":    {},
	"form":     {},
	"iframe":   {},
	"input":    {},
	"link":     {},
	"meta":     {},
	"noscript": {},
	"object":   {},
	"script":   {},
	"style":    {},
	"textarea": {},
}

var urlAttrs = map[string]struct{}{
	"href":       {},
	"src":        {},
	"poster":     {},
	"cite":       {},
	"action":     {},
	"formaction": {},
	"data":       {},
}

// SanitizeHTML strips script-capable tags, event handlers, and unsafe URLs
// from feed-provided markup before it is hashed and emitted.
func SanitizeHTML(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(raw), body)
	if err != nil {
		return raw
	}

	var b strings.Builder
	for _, n := range nodes {
		if cleaned := sanitizeNode(n); cleaned != nil {
			_ = html.Render(&b, cleaned)
		}
	}
	return strings.TrimSpace(b.String())
}

func sanitizeNode(n *html.Node) *html.Node {
	switch n.Type {
	case html.CommentNode, html.DoctypeNode:
		return nil
	case html.TextNode:
		return &html.Node{Type: html.TextNode, Data: n.Data}
	}

	tag := strings.ToLower(strings.TrimSpace(n.Data))
	if n.Type == html.ElementNode {
		if _, blocked := blockedTags[tag]; blocked {
			return nil
		}
	}

	clone := &html.Node{Type: n.Type, Data: n.Data, DataAtom: n.DataAtom, Namespace: n.Namespace}
	if n.Type == html.ElementNode {
		clone.Attr = safeAttrs(tag, n.Attr)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if child := sanitizeNode(c); child != nil {
			clone.AppendChild(child)
		}
	}
	return clone
}

func safeAttrs(tag string, attrs []html.Attribute) []html.Attribute {
	var out []html.Attribute
	for _, a := range attrs {
		k := strings.ToLower(strings.TrimSpace(a.Key))
		if k == "" || strings.HasPrefix(k, "on") || k == "style" || k == "srcdoc" {
			continue
		}
		if _, isURL := urlAttrs[k]; isURL && !safeURL(a.Val, tag, k) {
			continue
		}
		out = append(out, a)
	}
	return out
}

func safeURL(v, tag, attr string) bool {
	u := strings.TrimSpace(strings.ToLower(v))
	if u == "" {
		return true
	}
	if strings.HasPrefix(u, "javascript:") || strings.HasPrefix(u, "vbscript:") {
		return false
	}
	if strings.HasPrefix(u, "data:") {
		// Inline images are common in feeds; any other data: payload goes.
		return tag == "img" && attr == "src" && strings.HasPrefix(u, "data:image/")
	}
	return true
}
