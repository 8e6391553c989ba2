package match

import (
	"testing"

	"github.com/renameflux/renameflux/internal/scan"
)

func index(names ...string) []scan.Entry {
	entries := make([]scan.Entry, len(names))
	for i, n := range names {
		entries[i] = scan.Entry{MessageID: int64(i + 1), FileName: n, FileSize: 100}
	}
	return entries
}

func TestMatchExactBeatsNormalized(t *testing.T) {
	// Index holds both an exact match and a normalized-only match for
	// the same requested name. Exact must win.
	m := NewMatcher(index("OLD1.mkv", "old1.mkv"))

	e, tier, ok := m.Match("old1.mkv")
	if !ok {
		t.Fatal("expected a match")
	}
	if tier != TierExact {
		t.Fatalf("tier = %s, want exact", tier)
	}
	if e.MessageID != 2 {
		t.Errorf("matched MessageID %d, want 2", e.MessageID)
	}
}

func TestMatchNormalizedCaseDiffers(t *testing.T) {
	m := NewMatcher(index("OLD1.mkv"))

	_, tier, ok := m.Match("old1.mkv")
	if !ok {
		t.Fatal("expected a match")
	}
	if tier != TierNormalized {
		t.Fatalf("tier = %s, want normalized", tier)
	}
}

func TestMatchNormalizedStripsTags(t *testing.T) {
	m := NewMatcher(index("[Group] Show - 01 [720p].mkv"))

	_, tier, ok := m.Match("show 01.mkv")
	if !ok {
		t.Fatal("expected a match")
	}
	if tier != TierNormalized {
		t.Fatalf("tier = %s, want normalized", tier)
	}
}

func TestMatchEpisodeLastResort(t *testing.T) {
	m := NewMatcher(index("Totally Different Title E07 [1080p].mkv"))

	e, tier, ok := m.Match("Show - 07.mkv")
	if !ok {
		t.Fatal("expected a match")
	}
	if tier != TierEpisode {
		t.Fatalf("tier = %s, want episode", tier)
	}
	if e.MessageID != 1 {
		t.Errorf("matched MessageID %d, want 1", e.MessageID)
	}
}

func TestMatchTieBreaksToFirstScanned(t *testing.T) {
	// Two entries normalize identically; the first-scanned one wins.
	m := NewMatcher(index("Show - 01 [A].mkv", "Show - 01 [B].mkv"))

	e, tier, ok := m.Match("show 01.mkv")
	if !ok {
		t.Fatal("expected a match")
	}
	if tier != TierNormalized {
		t.Fatalf("tier = %s, want normalized", tier)
	}
	if e.MessageID != 1 {
		t.Errorf("matched MessageID %d, want 1 (first scanned)", e.MessageID)
	}
}

func TestMatchEntryConsumedOnce(t *testing.T) {
	m := NewMatcher(index("old1.mkv"))

	if _, _, ok := m.Match("old1.mkv"); !ok {
		t.Fatal("expected first match to succeed")
	}
	if _, tier, ok := m.Match("old1.mkv"); ok || tier != TierNone {
		t.Fatal("expected consumed entry to be ineligible for a second match")
	}
}

func TestMatchDuplicateRequestsDrainDistinctEntries(t *testing.T) {
	m := NewMatcher(index("old1.mkv", "OLD1.mkv"))

	e1, tier1, ok := m.Match("old1.mkv")
	if !ok || tier1 != TierExact || e1.MessageID != 1 {
		t.Fatalf("first match = (%d, %s, %v), want (1, exact, true)", e1.MessageID, tier1, ok)
	}
	e2, tier2, ok := m.Match("old1.mkv")
	if !ok || tier2 != TierNormalized || e2.MessageID != 2 {
		t.Fatalf("second match = (%d, %s, %v), want (2, normalized, true)", e2.MessageID, tier2, ok)
	}
	if _, _, ok := m.Match("old1.mkv"); ok {
		t.Fatal("expected third duplicate request to find nothing")
	}
}

func TestMatchNoCandidates(t *testing.T) {
	m := NewMatcher(index("completely unrelated.pdf"))

	_, tier, ok := m.Match("Show - 01.mkv")
	if ok {
		t.Fatal("expected no match")
	}
	if tier != TierNone {
		t.Fatalf("tier = %s, want none", tier)
	}
}

func TestMatchEmptyIndex(t *testing.T) {
	m := NewMatcher(nil)

	if _, _, ok := m.Match("old1.mkv"); ok {
		t.Fatal("expected no match from an empty index")
	}
}
