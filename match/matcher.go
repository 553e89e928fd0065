package match

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// similarityThreshold is the minimum tier-3 ratio, for both artist and
// title, below which two candidates are rejected outright.
const similarityThreshold = 0.80

// durationToleranceMs is the maximum absolute difference between two
// track durations that tier 3 still accepts once both strings clear
// similarityThreshold.
const durationToleranceMs = 1000

// IsGoodMatch decides whether a found track (foundArtist/foundTitle,
// with optional foundDurationMs) is the same recording as the query
// (queryArtist/queryTitle, with optional queryDurationMs). It applies
// three tiers in order, returning on the first that accepts:
//
//  1. Normalized containment: normalized artist and title are equal, or
//     one contains the other, on both fields.
//  2. Transliterated containment: the same test, run again after
//     transliterating Cyrillic to Latin on both sides.
//  3. Fuzzy similarity: both fields score at least similarityThreshold
//     against either the normalized or transliterated form, and, when
//     both durations are known, they differ by no more than
//     durationToleranceMs.
//
// A tier-1 or tier-2 acceptance short-circuits tier 3's duration check
// entirely: duration is only ever used to veto a borderline fuzzy match.
func IsGoodMatch(queryArtist, queryTitle string, queryDurationMs *int, foundArtist, foundTitle string, foundDurationMs *int) bool {
	ok, _ := MatchConfidence(queryArtist, queryTitle, queryDurationMs, foundArtist, foundTitle, foundDurationMs)
	return ok
}

// MatchConfidence runs the same three-tier decision as IsGoodMatch but
// also reports how strongly the accepted tier matched: 1.0 for a
// normalized-containment hit, 0.95 for a transliterated-containment
// hit, or the tier-3 fuzzy ratio itself (always >= similarityThreshold)
// for a fuzzy accept. The returned confidence is meaningless when ok is
// false. IsGoodMatch stays the predicate spec.md §4.2 names; this is
// the graded variant a caller can use to record match quality.
func MatchConfidence(queryArtist, queryTitle string, queryDurationMs *int, foundArtist, foundTitle string, foundDurationMs *int) (ok bool, confidence float64) {
	nqa, nqt := Normalize(queryArtist), Normalize(queryTitle)
	nfa, nft := Normalize(foundArtist), Normalize(foundTitle)

	if containmentEqual(nqa, nfa) && containmentEqual(nqt, nft) {
		return true, 1.0
	}

	tqa, tqt := Normalize(Transliterate(queryArtist)), Normalize(Transliterate(queryTitle))
	tfa, tft := Normalize(Transliterate(foundArtist)), Normalize(Transliterate(foundTitle))

	if containmentEqual(tqa, tfa) && containmentEqual(tqt, tft) {
		return true, 0.95
	}

	artistSim := maxRatio(ratio(nqa, nfa), ratio(tqa, tfa))
	titleSim := maxRatio(ratio(nqt, nft), ratio(tqt, tft))
	if artistSim < similarityThreshold || titleSim < similarityThreshold {
		return false, 0
	}

	if queryDurationMs != nil && foundDurationMs != nil {
		if absInt(*queryDurationMs-*foundDurationMs) > durationToleranceMs {
			return false, 0
		}
	}
	return true, minFloat(artistSim, titleSim)
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func containmentEqual(a, b string) bool {
	if a == "" || b == "" {
		return a == b
	}
	return a == b || strings.Contains(a, b) || strings.Contains(b, a)
}

// ratio returns the go-difflib length-normalized similarity ratio of a
// and b in [0, 1], comparing rune-by-rune rather than byte-by-byte so
// multi-byte characters are never split.
func ratio(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	m := difflib.NewMatcher(runeStrings(a), runeStrings(b))
	return m.Ratio()
}

func runeStrings(s string) []string {
	rs := []rune(s)
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = string(r)
	}
	return out
}

func maxRatio(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
