// Package merge reconciles freshly normalized items against the persisted
// cache state. It is the only owner of cache entry mutation: the writer
// reads its output, the store just persists it.
package merge

import (
	"sort"
	"time"

	"github.com/feedforge/forger/internal/model"
)

// Class is the dedup classification of one item within a run.
type Class int

const (
	ClassNew Class = iota
	ClassChanged
	ClassUnchanged
)

// Result is the per-source outcome of reconciliation: the items to emit this
// run and the cache rows to persist once artifacts are written.
type Result struct {
	Emit    []model.Item
	Updates []model.CachedEntry
	New     int
	Changed int
}

// Reconcile classifies items against the cached snapshot for their source.
// New and changed items are emitted and their cache rows updated; unchanged
// items are dropped and their rows left untouched, preserving the first-seen
// published time. Hash comparison is single-step: content that reverts to a
// previously seen hash still counts as changed.
func Reconcile(snapshot map[string]model.CachedEntry, items []model.Item, now time.Time) Result {
	var res Result
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		// A feed can list the same id twice; first occurrence wins.
		if _, dup := seen[item.ID]; dup {
			continue
		}
		seen[item.ID] = struct{}{}

		prior, known := snapshot[item.ID]
		switch Classify(snapshot, item) {
		case ClassUnchanged:
			continue
		case ClassNew:
			res.New++
			res.Updates = append(res.Updates, model.CachedEntry{
				SourceURL:   item.SourceURL,
				EntryID:     item.ID,
				ContentHash: item.ContentHash,
				PublishedAt: item.PublishedAt,
				FirstSeenAt: now,
				LastSeenAt:  now,
			})
		case ClassChanged:
			res.Changed++
			firstSeen := now
			if known {
				firstSeen = prior.FirstSeenAt
			}
			res.Updates = append(res.Updates, model.CachedEntry{
				SourceURL:   item.SourceURL,
				EntryID:     item.ID,
				ContentHash: item.ContentHash,
				PublishedAt: item.PublishedAt,
				FirstSeenAt: firstSeen,
				LastSeenAt:  now,
			})
		}
		res.Emit = append(res.Emit, item)
	}

	Order(res.Emit)
	return res
}

// Classify compares one item against the cached snapshot: absent id is new,
// differing hash is changed, matching hash is unchanged.
func Classify(snapshot map[string]model.CachedEntry, item model.Item) Class {
	prior, ok := snapshot[item.ID]
	if !ok {
		return ClassNew
	}
	if prior.ContentHash != item.ContentHash {
		return ClassChanged
	}
	return ClassUnchanged
}

// Order sorts items by published time descending, ties broken by id
// ascending, so identical run results serialize byte-identically.
func Order(items []model.Item) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].PublishedAt.Equal(items[j].PublishedAt) {
			return items[i].PublishedAt.After(items[j].PublishedAt)
		}
		return items[i].ID < items[j].ID
	})
}
