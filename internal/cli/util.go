package cli

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

var wsRegexp = regexp.MustCompile(`\s+`)

func requireApp(getApp func() *App) (*App, error) {
	app := getApp()
	if app == nil {
		return nil, errors.New("app not initialized")
	}
	return app, nil
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
