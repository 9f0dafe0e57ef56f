package chord

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Dataset is the parsed source document: chord groups in document order.
// Group order matters downstream, so parsing never goes through a Go map.
type Dataset struct {
	Groups []Group
}

// Group is one grouping key ("C", "Bm", ...) and its chord variations
type Group struct {
	Key        string
	Variations []Variation
}

// Variation is one (key, suffix) chord with its candidate positions.
// Positions stay raw so a single malformed entry fails its own decode
// instead of the whole document.
type Variation struct {
	Key       string            `json:"key"`
	Suffix    string            `json:"suffix"`
	Positions []json.RawMessage `json:"positions"`
}

type sourcePosition struct {
	Frets    []int `json:"frets"`
	Fingers  []int `json:"fingers"`
	BaseFret *int  `json:"baseFret"`
	Barres   []int `json:"barres"`
}

// ParseDataset decodes the source document preserving group order. The
// document is either a flat {groupKey: [variations]} mapping or the same
// mapping nested under a top-level "chords" key; stray metadata keys
// holding non-array values are ignored.
func ParseDataset(data []byte) (*Dataset, error) {
	entries, err := objectEntries(data)
	if err != nil {
		return nil, fmt.Errorf("parse dataset: %w", err)
	}

	for _, e := range entries {
		if e.key == "chords" && firstByte(e.raw) == '{' {
			entries, err = objectEntries(e.raw)
			if err != nil {
				return nil, fmt.Errorf("parse dataset: chords: %w", err)
			}
			break
		}
	}

	ds := &Dataset{}
	for _, e := range entries {
		if firstByte(e.raw) != '[' {
			continue
		}
		var variations []Variation
		if err := json.Unmarshal(e.raw, &variations); err != nil {
			return nil, fmt.Errorf("parse dataset: group %q: %w", e.key, err)
		}
		ds.Groups = append(ds.Groups, Group{Key: e.key, Variations: variations})
	}
	return ds, nil
}

type objectEntry struct {
	key string
	raw json.RawMessage
}

// objectEntries walks a JSON object token by token, returning its members
// in document order
func objectEntries(data []byte) ([]objectEntry, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}

	var entries []objectEntry
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}
		entries = append(entries, objectEntry{key: key, raw: raw})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return entries, nil
}

func firstByte(raw json.RawMessage) byte {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return b
	}
	return 0
}

// TransformResult carries the flattened voicings plus transform accounting
type TransformResult struct {
	Voicings []Voicing
	Skipped  int // positions dropped by shape validation
	Groups   int // groups visited after filtering
}

// Transform flattens the dataset into one Voicing per playable position,
// preserving source order. filterKey, when non-empty, restricts processing
// to the group whose key matches exactly. A position is dropped and counted
// when its frets are missing, not a sequence, or not exactly StringCount
// entries; position numbers still follow the source index, so a dropped
// entry leaves its slot unused.
func Transform(ds *Dataset, filterKey string) *TransformResult {
	res := &TransformResult{}
	for _, g := range ds.Groups {
		if filterKey != "" && g.Key != filterKey {
			continue
		}
		res.Groups++
		for _, v := range g.Variations {
			suffix := v.Suffix
			if suffix == "" {
				suffix = "major"
			}
			for i, raw := range v.Positions {
				var pos sourcePosition
				if err := json.Unmarshal(raw, &pos); err != nil {
					res.Skipped++
					continue
				}
				if len(pos.Frets) != StringCount {
					res.Skipped++
					continue
				}
				baseFret := 1
				if pos.BaseFret != nil && *pos.BaseFret >= 1 {
					baseFret = *pos.BaseFret
				}
				fingers := pos.Fingers
				if fingers == nil {
					fingers = []int{}
				}
				barres := pos.Barres
				if barres == nil {
					barres = []int{}
				}
				res.Voicings = append(res.Voicings, Voicing{
					Name:        FormatName(v.Key, suffix),
					Key:         v.Key,
					Suffix:      suffix,
					Frets:       pos.Frets,
					Fingers:     fingers,
					BaseFret:    baseFret,
					Barres:      barres,
					Position:    i + 1,
					Instrument:  Instrument,
					Tuning:      Tuning,
					LibraryType: LibraryMain,
				})
			}
		}
	}
	return res
}
