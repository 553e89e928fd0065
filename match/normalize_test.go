package match

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"strips bracketed feat credit", "Lose Yourself (feat. Eminem) [Remix]", "lose yourself"},
		{"strips trailing feat credit", "Good Days ft. Nobody", "good days"},
		{"collapses internal whitespace", "Artist   Name", "artist name"},
		{"folds case", "ARTIST Name", "artist name"},
		{"strips punctuation", "Don't Stop Believin'!", "dont stop believin"},
		{"decomposes accents", "Café del Mar", "cafe del mar"},
		{"empty string stays empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Normalize(tc.in); got != tc.want {
				t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"Lose Yourself (feat. Eminem) [Remix]",
		"Café del Mar",
		"  Weird   Spacing  ",
		"",
		"Паша Панамо",
	}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: once=%q twice=%q", in, once, twice)
		}
	}
}

func TestMatchKey(t *testing.T) {
	if MatchKey("Radiohead", "Creep") != MatchKey("RADIOHEAD", "creep") {
		t.Error("MatchKey should be case-insensitive via Normalize")
	}
	if MatchKey("A", "B") == MatchKey("A", "C") {
		t.Error("MatchKey must distinguish different titles")
	}
}
