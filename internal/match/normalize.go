// Package match resolves requested old filenames against the scanned
// channel index with a three-tier strategy: exact, normalized, and
// episode-number, in fixed precedence order.
package match

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var bracketRe = regexp.MustCompile(`\[[^\]]*\]|\([^)]*\)`)

// Normalize canonicalizes a filename for tier-2 matching: lower-case,
// bracketed and parenthesized segments stripped, punctuation outside
// the extension removed, whitespace collapsed. Guards against cosmetic
// differences such as case, release-tag brackets, and spacing.
func Normalize(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = bracketRe.ReplaceAllString(name, " ")

	base, ext := splitExt(name)

	var b strings.Builder
	for _, r := range base {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	collapsed := strings.Join(strings.Fields(b.String()), " ")
	if ext != "" {
		return collapsed + ext
	}
	return collapsed
}

// splitExt separates a short alphanumeric extension (".mkv") from the
// rest of the name. Trailing dots or long tails are not extensions.
func splitExt(name string) (base, ext string) {
	idx := strings.LastIndex(name, ".")
	if idx <= 0 || idx == len(name)-1 {
		return name, ""
	}
	tail := name[idx+1:]
	if len(tail) > 5 {
		return name, ""
	}
	for _, r := range tail {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return name, ""
		}
	}
	return name[:idx], "." + tail
}

// resolutionTokens are digit runs that denote video resolutions, not
// episode ordinals, when directly followed by 'p' or 'i'.
var resolutionTokens = map[string]bool{
	"480": true, "576": true, "720": true, "1080": true, "2160": true, "4320": true,
}

// codecTokens are digit runs that belong to codec names when directly
// preceded by 'x' or 'h' ("x264", "h265").
var codecTokens = map[string]bool{
	"264": true, "265": true,
}

// EpisodeNumber extracts the first contiguous digit run interpretable
// as an episode ordinal. Resolution tags (720p, 1080i) and codec tags
// (x264, h265) are skipped; any other digit run is taken as-is, which
// leaves a known false-positive risk for ambiguous names (years, CRC
// fragments) that tier 3 deliberately does not try to outsmart.
func EpisodeNumber(name string) (int, bool) {
	lower := strings.ToLower(name)
	n := len(lower)
	for i := 0; i < n; {
		if lower[i] < '0' || lower[i] > '9' {
			i++
			continue
		}
		j := i
		for j < n && lower[j] >= '0' && lower[j] <= '9' {
			j++
		}
		run := lower[i:j]

		skip := false
		if j < n && (lower[j] == 'p' || lower[j] == 'i') && resolutionTokens[run] {
			skip = true
		}
		if i > 0 && (lower[i-1] == 'x' || lower[i-1] == 'h') && codecTokens[run] {
			skip = true
		}
		// Runs too long to be an ordinal (checksums, timestamps).
		if len(run) > 4 {
			skip = true
		}

		if !skip {
			num, err := strconv.Atoi(run)
			if err == nil {
				return num, true
			}
		}
		i = j
	}
	return 0, false
}
