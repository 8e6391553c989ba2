package match

import (
	"github.com/renameflux/renameflux/internal/scan"
)

// Tier identifies which matching strategy resolved a mapping.
type Tier int

const (
	TierNone Tier = iota
	TierExact
	TierNormalized
	TierEpisode
)

func (t Tier) String() string {
	switch t {
	case TierExact:
		return "exact"
	case TierNormalized:
		return "normalized"
	case TierEpisode:
		return "episode"
	default:
		return "none"
	}
}

// Matcher matches requested names against a scanned index. Each index
// entry can be consumed at most once per job, so duplicate requested
// names cannot drain the same stored file twice. Tie-breaks within a
// tier resolve to the first-scanned entry; the index must therefore be
// in scan order (oldest message first).
type Matcher struct {
	entries []scan.Entry
	used    []bool
	normKey []string
	epNum   []int
	epOK    []bool
}

// NewMatcher builds a matcher over the index, precomputing the
// normalized keys and episode numbers for every entry.
func NewMatcher(entries []scan.Entry) *Matcher {
	m := &Matcher{
		entries: entries,
		used:    make([]bool, len(entries)),
		normKey: make([]string, len(entries)),
		epNum:   make([]int, len(entries)),
		epOK:    make([]bool, len(entries)),
	}
	for i, e := range entries {
		m.normKey[i] = Normalize(e.FileName)
		m.epNum[i], m.epOK[i] = EpisodeNumber(e.FileName)
	}
	return m
}

// Match resolves oldName against the index, first-match-wins across the
// tiers in fixed order. A successful match consumes the entry.
func (m *Matcher) Match(oldName string) (scan.Entry, Tier, bool) {
	// Tier 1: byte-for-byte equality.
	for i, e := range m.entries {
		if m.used[i] {
			continue
		}
		if e.FileName == oldName {
			m.used[i] = true
			return e, TierExact, true
		}
	}

	// Tier 2: equality after normalization.
	want := Normalize(oldName)
	if want != "" {
		for i := range m.entries {
			if m.used[i] {
				continue
			}
			if m.normKey[i] == want {
				m.used[i] = true
				return m.entries[i], TierNormalized, true
			}
		}
	}

	// Tier 3: episode-number equality. Last resort; most permissive
	// and most collision-prone, so it only runs when tiers 1-2 found
	// no candidate at all.
	if num, ok := EpisodeNumber(oldName); ok {
		for i := range m.entries {
			if m.used[i] {
				continue
			}
			if m.epOK[i] && m.epNum[i] == num {
				m.used[i] = true
				return m.entries[i], TierEpisode, true
			}
		}
	}

	return scan.Entry{}, TierNone, false
}
