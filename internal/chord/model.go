package chord

import "github.com/google/uuid"

const (
	// Instrument and Tuning identify the partition this pipeline writes
	Instrument = "ukulele"
	Tuning     = "ukulele_standard"

	// LibraryMain is the shared curated library, writable only by
	// migration/admin flows. LibraryPersonal records are user-owned and
	// never touched here.
	LibraryMain     = "main"
	LibraryPersonal = "personal"

	// StringCount is the number of per-string entries a playable voicing
	// must carry
	StringCount = 4
)

// Voicing is one specific fingering of a chord at a given neck position
type Voicing struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Key         string `json:"key"`
	Suffix      string `json:"suffix"`
	Frets       []int  `json:"frets"`
	Fingers     []int  `json:"fingers"`
	BaseFret    int    `json:"baseFret"`
	Barres      []int  `json:"barres"`
	Position    int    `json:"position"`
	Instrument  string `json:"instrument"`
	Tuning      string `json:"tuning"`
	LibraryType string `json:"libraryType"`
}

// SameShape reports whether the voicing matches frets element-wise plus
// baseFret and position. Duplicate detection runs on exactly these fields;
// anything else differing still counts as the same voicing.
func (v Voicing) SameShape(frets []int, baseFret, position int) bool {
	if v.BaseFret != baseFret || v.Position != position {
		return false
	}
	if len(v.Frets) != len(frets) {
		return false
	}
	for i, f := range v.Frets {
		if f != frets[i] {
			return false
		}
	}
	return true
}

// EnsureIDs assigns a fresh id to every voicing that does not already have
// one. Ids are assigned at write time, never during transform.
func EnsureIDs(voicings []Voicing) {
	for i := range voicings {
		if voicings[i].ID == "" {
			voicings[i].ID = uuid.NewString()
		}
	}
}
