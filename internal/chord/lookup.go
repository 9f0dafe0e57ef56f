package chord

import "strings"

// FormatName renders the display name for a key and suffix. Major chords
// (suffix "" or "major") display as the bare key; anything else appends the
// suffix with no separator and no case normalization.
func FormatName(key, suffix string) string {
	if suffix == "" || suffix == "major" {
		return key
	}
	return key + suffix
}

// NormalizeSuffix maps the two spellings of a major chord ("" and "major")
// to the canonical empty string. Comparison code uses this; display code
// uses FormatName.
func NormalizeSuffix(suffix string) string {
	if suffix == "major" {
		return ""
	}
	return suffix
}

// ExtractRootNote returns the root note at the start of a chord name: one
// letter A-G, uppercased, plus an optional accidental ('#' or 'b') kept as
// written. Returns "" when the name does not start with a note.
func ExtractRootNote(chordName string) string {
	if chordName == "" {
		return ""
	}
	letter := chordName[0]
	switch {
	case letter >= 'A' && letter <= 'G':
	case letter >= 'a' && letter <= 'g':
		letter -= 'a' - 'A'
	default:
		return ""
	}
	if len(chordName) > 1 && (chordName[1] == '#' || chordName[1] == 'b') {
		return string([]byte{letter, chordName[1]})
	}
	return string(letter)
}

// IsMinorName reports whether a display name denotes a minor-quality chord:
// an "m" immediately after the root that is not the start of "maj"
func IsMinorName(name string) bool {
	root := ExtractRootNote(name)
	if root == "" {
		return false
	}
	rest := strings.ToLower(name[len(root):])
	return strings.HasPrefix(rest, "m") && !strings.HasPrefix(rest, "maj")
}

// MatchesQuery reports whether a chord display name matches a search query.
// Matching is a case-insensitive prefix match with one carve-out: a bare
// root query ("C") must not pull in the minor chords of that root ("Cm",
// "Cm7") unless the query itself asks for minor.
func MatchesQuery(chordName, query string) bool {
	name := strings.TrimSpace(chordName)
	q := strings.TrimSpace(query)
	if q == "" {
		return false
	}
	if !strings.HasPrefix(strings.ToLower(name), strings.ToLower(q)) {
		return false
	}
	if queryIndicatesMinor(q) {
		return true
	}
	return !IsMinorName(name)
}

func queryIndicatesMinor(q string) bool {
	if strings.Contains(strings.ToLower(q), "min") {
		return true
	}
	root := ExtractRootNote(q)
	if root == "" {
		return false
	}
	rest := strings.ToLower(q[len(root):])
	return strings.HasPrefix(rest, "m") && !strings.HasPrefix(rest, "maj")
}
