package chord

import (
	"testing"
)

func TestParseDataset_FlatForm(t *testing.T) {
	data := []byte(`{
		"C": [{"key": "C", "suffix": "", "positions": [{"frets": [0,0,0,3]}]}],
		"A": [{"key": "A", "suffix": "m", "positions": [{"frets": [2,0,0,0]}]}]
	}`)

	ds, err := ParseDataset(data)
	if err != nil {
		t.Fatalf("ParseDataset failed: %v", err)
	}
	if len(ds.Groups) != 2 {
		t.Fatalf("Expected 2 groups, got: %d", len(ds.Groups))
	}
	if ds.Groups[0].Key != "C" || ds.Groups[1].Key != "A" {
		t.Errorf("Expected document order [C A], got: [%s %s]",
			ds.Groups[0].Key, ds.Groups[1].Key)
	}
}

func TestParseDataset_ChordsWrapper(t *testing.T) {
	data := []byte(`{
		"main": {"strings": 4},
		"keys": ["C", "D"],
		"suffixes": ["", "m"],
		"chords": {
			"D": [{"key": "D", "suffix": "", "positions": [{"frets": [2,2,2,0]}]}],
			"C": [{"key": "C", "suffix": "", "positions": [{"frets": [0,0,0,3]}]}]
		}
	}`)

	ds, err := ParseDataset(data)
	if err != nil {
		t.Fatalf("ParseDataset failed: %v", err)
	}
	if len(ds.Groups) != 2 {
		t.Fatalf("Expected 2 groups from the chords wrapper, got: %d", len(ds.Groups))
	}
	if ds.Groups[0].Key != "D" || ds.Groups[1].Key != "C" {
		t.Errorf("Expected wrapper document order [D C], got: [%s %s]",
			ds.Groups[0].Key, ds.Groups[1].Key)
	}
}

func TestParseDataset_NotAnObject(t *testing.T) {
	if _, err := ParseDataset([]byte(`[1,2,3]`)); err == nil {
		t.Error("Expected error for non-object document, got nil")
	}
}

func TestTransform_EndToEnd(t *testing.T) {
	data := []byte(`{"C": [
		{"key": "C", "suffix": "", "positions": [{"frets": [0,0,0,3]}]},
		{"key": "C", "suffix": "m", "positions": [{"frets": [0,3,3,3]}, {"frets": [5,5,4,3]}]}
	]}`)

	ds, err := ParseDataset(data)
	if err != nil {
		t.Fatalf("ParseDataset failed: %v", err)
	}
	res := Transform(ds, "")

	if res.Skipped != 0 {
		t.Errorf("Expected 0 skipped, got: %d", res.Skipped)
	}
	if len(res.Voicings) != 3 {
		t.Fatalf("Expected 3 voicings, got: %d", len(res.Voicings))
	}

	expected := []struct {
		name     string
		suffix   string
		position int
		frets    []int
		baseFret int
	}{
		{"C", "major", 1, []int{0, 0, 0, 3}, 1},
		{"Cm", "m", 1, []int{0, 3, 3, 3}, 1},
		{"Cm", "m", 2, []int{5, 5, 4, 3}, 1},
	}

	for i, want := range expected {
		got := res.Voicings[i]
		if got.Name != want.name {
			t.Errorf("Voicing %d: expected name %q, got: %q", i, want.name, got.Name)
		}
		if got.Suffix != want.suffix {
			t.Errorf("Voicing %d: expected suffix %q, got: %q", i, want.suffix, got.Suffix)
		}
		if got.Position != want.position {
			t.Errorf("Voicing %d: expected position %d, got: %d", i, want.position, got.Position)
		}
		if !got.SameShape(want.frets, want.baseFret, want.position) {
			t.Errorf("Voicing %d: expected frets %v baseFret %d, got: %v %d",
				i, want.frets, want.baseFret, got.Frets, got.BaseFret)
		}
		if got.Instrument != Instrument || got.Tuning != Tuning || got.LibraryType != LibraryMain {
			t.Errorf("Voicing %d: wrong partition tags: %s/%s/%s",
				i, got.Instrument, got.Tuning, got.LibraryType)
		}
	}
}

func TestTransform_ShapeFiltering(t *testing.T) {
	data := []byte(`{"C": [{"key": "C", "suffix": "", "positions": [
		{"frets": [0,0,0,3]},
		{"frets": [0,0,0]},
		{"fingers": [1,2,3,4]},
		{"frets": "nope"},
		{"frets": [0,0,0,3,5]},
		{"frets": [1,0,0,0]}
	]}]}`)

	ds, err := ParseDataset(data)
	if err != nil {
		t.Fatalf("ParseDataset failed: %v", err)
	}
	res := Transform(ds, "")

	if res.Skipped != 4 {
		t.Errorf("Expected 4 skipped positions, got: %d", res.Skipped)
	}
	if len(res.Voicings) != 2 {
		t.Fatalf("Expected 2 voicings, got: %d", len(res.Voicings))
	}
	// Position numbers follow the source index even across dropped entries
	if res.Voicings[0].Position != 1 {
		t.Errorf("Expected first voicing at position 1, got: %d", res.Voicings[0].Position)
	}
	if res.Voicings[1].Position != 6 {
		t.Errorf("Expected second voicing at position 6, got: %d", res.Voicings[1].Position)
	}
}

func TestTransform_Defaults(t *testing.T) {
	data := []byte(`{"C": [{"key": "C", "suffix": "", "positions": [
		{"frets": [0,0,0,3], "baseFret": null}
	]}]}`)

	ds, err := ParseDataset(data)
	if err != nil {
		t.Fatalf("ParseDataset failed: %v", err)
	}
	res := Transform(ds, "")
	if len(res.Voicings) != 1 {
		t.Fatalf("Expected 1 voicing, got: %d", len(res.Voicings))
	}

	v := res.Voicings[0]
	if v.BaseFret != 1 {
		t.Errorf("Expected baseFret default 1, got: %d", v.BaseFret)
	}
	if v.Fingers == nil || len(v.Fingers) != 0 {
		t.Errorf("Expected empty fingers, got: %v", v.Fingers)
	}
	if v.Barres == nil || len(v.Barres) != 0 {
		t.Errorf("Expected empty barres, got: %v", v.Barres)
	}
	if v.Suffix != "major" {
		t.Errorf("Expected empty suffix defaulted to major, got: %q", v.Suffix)
	}
}

func TestTransform_BaseFretKept(t *testing.T) {
	data := []byte(`{"C": [{"key": "C", "suffix": "7", "positions": [
		{"frets": [1,1,1,1], "baseFret": 3, "fingers": [1,1,1,1], "barres": [1]}
	]}]}`)

	ds, err := ParseDataset(data)
	if err != nil {
		t.Fatalf("ParseDataset failed: %v", err)
	}
	res := Transform(ds, "")
	if len(res.Voicings) != 1 {
		t.Fatalf("Expected 1 voicing, got: %d", len(res.Voicings))
	}

	v := res.Voicings[0]
	if v.BaseFret != 3 {
		t.Errorf("Expected baseFret 3, got: %d", v.BaseFret)
	}
	if v.Name != "C7" {
		t.Errorf("Expected name C7, got: %q", v.Name)
	}
	if len(v.Barres) != 1 || v.Barres[0] != 1 {
		t.Errorf("Expected barres [1], got: %v", v.Barres)
	}
}

func TestTransform_FilterKey(t *testing.T) {
	data := []byte(`{
		"C": [{"key": "C", "suffix": "", "positions": [{"frets": [0,0,0,3]}]}],
		"Cm": [{"key": "C", "suffix": "m", "positions": [{"frets": [0,3,3,3]}]}],
		"D": [{"key": "D", "suffix": "", "positions": [{"frets": [2,2,2,0]}]}]
	}`)

	ds, err := ParseDataset(data)
	if err != nil {
		t.Fatalf("ParseDataset failed: %v", err)
	}

	tests := []struct {
		name      string
		filterKey string
		groups    int
		voicings  int
	}{
		{"no filter", "", 3, 3},
		{"exact match", "C", 1, 1},
		{"exact match does not prefix-match", "Cm", 1, 1},
		{"no such group", "Z", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Transform(ds, tt.filterKey)
			if res.Groups != tt.groups {
				t.Errorf("Expected %d groups, got: %d", tt.groups, res.Groups)
			}
			if len(res.Voicings) != tt.voicings {
				t.Errorf("Expected %d voicings, got: %d", tt.voicings, len(res.Voicings))
			}
		})
	}
}

func TestTransform_SourceOrderPreserved(t *testing.T) {
	data := []byte(`{
		"G": [{"key": "G", "suffix": "", "positions": [{"frets": [0,2,3,2]}]}],
		"A": [{"key": "A", "suffix": "", "positions": [{"frets": [2,1,0,0]}]}],
		"C": [{"key": "C", "suffix": "", "positions": [{"frets": [0,0,0,3]}]}]
	}`)

	ds, err := ParseDataset(data)
	if err != nil {
		t.Fatalf("ParseDataset failed: %v", err)
	}
	res := Transform(ds, "")

	order := []string{"G", "A", "C"}
	for i, want := range order {
		if res.Voicings[i].Key != want {
			t.Errorf("Voicing %d: expected key %s, got: %s", i, want, res.Voicings[i].Key)
		}
	}
}

func TestEnsureIDs(t *testing.T) {
	voicings := []Voicing{
		{Name: "C"},
		{Name: "D", ID: "keep-me"},
	}

	EnsureIDs(voicings)

	if voicings[0].ID == "" {
		t.Error("Expected generated id, got empty")
	}
	if voicings[1].ID != "keep-me" {
		t.Errorf("Expected existing id preserved, got: %s", voicings[1].ID)
	}
}
