package merge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedforge/forger/internal/model"
)

func testItem(id, hash string, published time.Time) model.Item {
	return model.Item{
		ID:          id,
		SourceURL:   "https://example.com/feed.xml",
		URL:         "https://example.com/" + id,
		Title:       "title " + id,
		ContentHash: hash,
		PublishedAt: published,
	}
}

func snapshotOf(entries ...model.CachedEntry) map[string]model.CachedEntry {
	snap := make(map[string]model.CachedEntry, len(entries))
	for _, e := range entries {
		snap[e.EntryID] = e
	}
	return snap
}

func TestReconcileClassifiesNewChangedUnchanged(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	published := now.Add(-time.Hour)
	snap := snapshotOf(
		model.CachedEntry{EntryID: "a", ContentHash: "h1", FirstSeenAt: now.Add(-48 * time.Hour)},
		model.CachedEntry{EntryID: "b", ContentHash: "h2", FirstSeenAt: now.Add(-48 * time.Hour)},
	)

	res := Reconcile(snap, []model.Item{
		testItem("a", "h1", published),
		testItem("b", "h2-updated", published),
		testItem("c", "h3", published),
	}, now)

	assert.Equal(t, 1, res.New)
	assert.Equal(t, 1, res.Changed)
	require.Len(t, res.Emit, 2)
	require.Len(t, res.Updates, 2)

	ids := []string{res.Emit[0].ID, res.Emit[1].ID}
	assert.ElementsMatch(t, []string{"b", "c"}, ids)
}

func TestReconcileRevertedHashCountsAsChanged(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	published := now.Add(-time.Hour)

	// Run 1: item appears with hash A.
	snap := map[string]model.CachedEntry{}
	res := Reconcile(snap, []model.Item{testItem("x", "hashA", published)}, now)
	assert.Equal(t, 1, res.New)
	snap = snapshotOf(res.Updates...)

	// Run 2: hash flips to B.
	res = Reconcile(snap, []model.Item{testItem("x", "hashB", published)}, now.Add(time.Hour))
	assert.Equal(t, 1, res.Changed)
	snap = snapshotOf(res.Updates...)

	// Run 3: hash reverts to A. Comparison is against the latest state only,
	// so the revert is still a change.
	res = Reconcile(snap, []model.Item{testItem("x", "hashA", published)}, now.Add(2*time.Hour))
	assert.Equal(t, 0, res.New)
	assert.Equal(t, 1, res.Changed)
}

func TestReconcilePreservesFirstSeen(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	firstSeen := now.Add(-72 * time.Hour)
	snap := snapshotOf(model.CachedEntry{
		EntryID:     "a",
		ContentHash: "h1",
		FirstSeenAt: firstSeen,
	})

	res := Reconcile(snap, []model.Item{testItem("a", "h1-new", now.Add(-time.Hour))}, now)
	require.Len(t, res.Updates, 1)
	assert.True(t, res.Updates[0].FirstSeenAt.Equal(firstSeen))
	assert.True(t, res.Updates[0].LastSeenAt.Equal(now))
}

func TestReconcileDeduplicatesWithinRun(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	published := now.Add(-time.Hour)

	first := testItem("dup", "h-first", published)
	second := testItem("dup", "h-second", published)
	res := Reconcile(map[string]model.CachedEntry{}, []model.Item{first, second}, now)

	assert.Equal(t, 1, res.New)
	require.Len(t, res.Emit, 1)
	assert.Equal(t, "h-first", res.Emit[0].ContentHash)
}

func TestReconcileUnchangedItemsDropped(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	snap := snapshotOf(model.CachedEntry{EntryID: "a", ContentHash: "same"})

	res := Reconcile(snap, []model.Item{testItem("a", "same", now.Add(-time.Hour))}, now)
	assert.Empty(t, res.Emit)
	assert.Empty(t, res.Updates)
	assert.Equal(t, 0, res.New)
	assert.Equal(t, 0, res.Changed)
}

func TestOrderIsDeterministic(t *testing.T) {
	t1 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	t2 := time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC)

	items := []model.Item{
		testItem("z", "h", t1),
		testItem("a", "h", t1),
		testItem("m", "h", t2),
	}
	Order(items)

	var ids []string
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	// Newest first, ties broken by ascending id.
	assert.Equal(t, []string{"m", "a", "z"}, ids)
}
