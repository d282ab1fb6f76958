package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/feedforge/forger/internal/model"
)

// ErrWrite marks an artifact that could not be serialized or persisted.
// The pipeline skips cache persistence on any write failure so the next run
// re-emits the lost items.
var ErrWrite = errors.New("write artifact")

// Writer serializes run output into the artifact directory. Output is
// deterministic: identical input produces byte-identical files.
type Writer struct {
	dir string
}

func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// WriteFeed persists one recipe's feed document as <recipe>.json and returns
// the artifact path.
func (w *Writer) WriteFeed(feed Feed) (string, error) {
	return w.writeJSON(artifactName(feed.Title)+".json", feed)
}

// WriteReport persists the structured run report alongside the feeds.
func (w *Writer) WriteReport(report model.RunReport) (string, error) {
	return w.writeJSON("report.json", report)
}

func (w *Writer) writeJSON(name string, v any) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrWrite, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrWrite, name, err)
	}
	data = append(data, '\n')

	// Write-then-rename so a crashed run never leaves a truncated artifact.
	path := filepath.Join(w.dir, name)
	tmp, err := os.CreateTemp(w.dir, name+".tmp*")
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrWrite, name, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("%w: %s: %v", ErrWrite, name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrWrite, name, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrWrite, name, err)
	}
	return path, nil
}

// artifactName keeps recipe names readable in filenames while staying
// filesystem-safe.
func artifactName(recipe string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '-'
		default:
			return r
		}
	}, recipe)
	name = strings.TrimSpace(name)
	if name == "" {
		return "feed"
	}
	return name
}
