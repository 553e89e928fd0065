// Package match provides the pure text-normalisation and track-identity
// functions the sync engine uses to decide whether a track on service A
// and a track on service B are the same recording.
package match

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	featParenRe = regexp.MustCompile(`(?i)[\(\[](feat\.?|ft\.?|featuring)\s+[^\)\]]*[\)\]]`)
	featTailRe  = regexp.MustCompile(`(?i)\s+(feat\.?|ft\.?|featuring)\s+.*$`)
	anyParenRe  = regexp.MustCompile(`[\(\[][^\)\]]*[\)\]]`)
	nonWordRe   = regexp.MustCompile(`[^\p{L}\p{N}\s]`)
	spacesRe    = regexp.MustCompile(`\s+`)
)

// Normalize reduces artist/title text to a canonical comparison form:
// NFKD decomposition (so accented and composed characters collapse to
// their base letter plus a combining mark), case folding, removal of
// "feat./ft./featuring" credits (bracketed or trailing), removal of any
// remaining parenthesised/bracketed content, stripping of punctuation,
// and whitespace collapse. Normalize is total and idempotent.
func Normalize(text string) string {
	t := norm.NFKD.String(text)
	t = strings.ToLower(t)
	t = featParenRe.ReplaceAllString(t, "")
	t = featTailRe.ReplaceAllString(t, "")
	t = anyParenRe.ReplaceAllString(t, "")
	t = nonWordRe.ReplaceAllString(t, "")
	t = spacesRe.ReplaceAllString(t, " ")
	return strings.TrimSpace(t)
}

// MatchKey builds the O(1)-comparable key used by CrossMatch's bucket
// pass: normalized artist, a separator that cannot appear in normalized
// text (normalization strips pipes), and normalized title.
func MatchKey(artist, title string) string {
	return Normalize(artist) + "|||" + Normalize(title)
}
