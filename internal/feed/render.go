package feed

import (
	"regexp"
	"strings"
	"unicode/utf8"

	markdown "github.com/JohannesKaufmann/html-to-markdown"
)

var wsRegexp = regexp.MustCompile(`\s+`)

// Renderer converts sanitized HTML into plain markdown text for the
// content_text and summary fields.
type Renderer struct {
	converter *markdown.Converter
}

func NewRenderer() *Renderer {
	return &Renderer{converter: markdown.NewConverter("", true, nil)}
}

func (r *Renderer) HTMLToText(html string) string {
	html = strings.TrimSpace(html)
	if html == "" {
		return ""
	}
	out, err := r.converter.ConvertString(html)
	if err != nil {
		return compactText(html, 4000)
	}
	return strings.TrimSpace(out)
}

// Summary renders a short plain-text summary, capped at 280 characters.
func (r *Renderer) Summary(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	return compactText(r.HTMLToText(SanitizeHTML(raw)), 280)
}

func compactText(v string, max int) string {
	v = strings.TrimSpace(wsRegexp.ReplaceAllString(v, " "))
	if max <= 0 || len(v) <= max {
		return v
	}
	// Back up to a rune boundary so the cut never splits a multi-byte char.
	cut := max - 1
	for cut > 0 && !utf8.RuneStart(v[cut]) {
		cut--
	}
	return v[:cut] + "..."
}
