package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/nkoenig/chord-librarian/internal/chord"
	"github.com/nkoenig/chord-librarian/internal/instant"
	"github.com/nkoenig/chord-librarian/internal/util"
)

type fakeQuerier struct {
	partition      []chord.Voicing
	byName         map[string][]chord.Voicing
	partitionCalls int
	nameCalls      map[string]int
	err            error
}

func (f *fakeQuerier) QueryPartition(ctx context.Context, p instant.Partition) ([]chord.Voicing, error) {
	f.partitionCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.partition, nil
}

func (f *fakeQuerier) QueryByName(ctx context.Context, p instant.Partition, name string) ([]chord.Voicing, error) {
	if f.nameCalls == nil {
		f.nameCalls = make(map[string]int)
	}
	f.nameCalls[name]++
	if f.err != nil {
		return nil, f.err
	}
	return f.byName[name], nil
}

func testVoicing(name string, frets []int, baseFret, position int) chord.Voicing {
	return chord.Voicing{
		Name:        name,
		Frets:       frets,
		BaseFret:    baseFret,
		Position:    position,
		Instrument:  chord.Instrument,
		Tuning:      chord.Tuning,
		LibraryType: chord.LibraryMain,
	}
}

func TestParseStrategy(t *testing.T) {
	testCases := []struct {
		name    string
		input   string
		want    Strategy
		wantErr bool
	}{
		{"full replace", "full-replace", FullReplace, false},
		{"incremental", "incremental", Incremental, false},
		{"case insensitive", "FULL-REPLACE", FullReplace, false},
		{"padded", "  incremental ", Incremental, false},
		{"unknown", "upsert", "", true},
		{"empty", "", "", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseStrategy(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("Expected error for %q, got nil", tc.input)
				}
				if !errors.Is(err, util.ErrInvalidConfig) {
					t.Errorf("Expected ErrInvalidConfig, got: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("Expected strategy %q, got %q", tc.want, got)
			}
		})
	}
}

func TestPlan_FullReplace(t *testing.T) {
	existing := []chord.Voicing{
		testVoicing("C", []int{0, 0, 0, 3}, 1, 1),
		testVoicing("G", []int{0, 2, 3, 2}, 1, 1),
	}
	existing[0].ID = "id-1"
	existing[1].ID = "id-2"

	querier := &fakeQuerier{partition: existing}
	r := New(&Config{
		Strategy:  FullReplace,
		Partition: instant.MainPartition(),
		Querier:   querier,
	})

	incoming := []chord.Voicing{
		testVoicing("C", []int{0, 0, 0, 3}, 1, 1),
		testVoicing("Cm", []int{0, 3, 3, 3}, 1, 1),
		testVoicing("G", []int{0, 2, 3, 2}, 1, 1),
	}

	plan, err := r.Plan(context.Background(), incoming)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	if len(plan.ToDelete) != 2 {
		t.Fatalf("Expected 2 deletions, got %d", len(plan.ToDelete))
	}
	if plan.ToDelete[0] != "id-1" || plan.ToDelete[1] != "id-2" {
		t.Errorf("Expected deletions [id-1 id-2], got %v", plan.ToDelete)
	}
	if len(plan.ToInsert) != 3 {
		t.Errorf("Expected 3 inserts, got %d", len(plan.ToInsert))
	}
	if plan.Duplicates != 0 {
		t.Errorf("Expected 0 duplicates, got %d", plan.Duplicates)
	}
	if plan.Existing != 2 {
		t.Errorf("Expected 2 existing records, got %d", plan.Existing)
	}
	if querier.partitionCalls != 1 {
		t.Errorf("Expected 1 partition query, got %d", querier.partitionCalls)
	}
}

func TestPlan_FullReplace_EmptyPartition(t *testing.T) {
	querier := &fakeQuerier{}
	r := New(&Config{
		Strategy:  FullReplace,
		Partition: instant.MainPartition(),
		Querier:   querier,
	})

	incoming := []chord.Voicing{
		testVoicing("C", []int{0, 0, 0, 3}, 1, 1),
	}

	plan, err := r.Plan(context.Background(), incoming)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	if len(plan.ToDelete) != 0 {
		t.Errorf("Expected no deletions for empty partition, got %d", len(plan.ToDelete))
	}
	if len(plan.ToInsert) != 1 {
		t.Errorf("Expected 1 insert, got %d", len(plan.ToInsert))
	}
}

func TestPlan_Incremental(t *testing.T) {
	querier := &fakeQuerier{
		byName: map[string][]chord.Voicing{
			"C": {testVoicing("C", []int{0, 0, 0, 3}, 1, 1)},
		},
	}
	r := New(&Config{
		Strategy:  Incremental,
		Partition: instant.MainPartition(),
		Querier:   querier,
	})

	incoming := []chord.Voicing{
		testVoicing("C", []int{0, 0, 0, 3}, 1, 1), // exact shape match, skipped
		testVoicing("C", []int{0, 0, 0, 3}, 1, 2), // position differs
		testVoicing("C", []int{0, 0, 0, 3}, 3, 1), // base fret differs
		testVoicing("C", []int{5, 4, 3, 3}, 1, 1), // frets differ
		testVoicing("G", []int{0, 2, 3, 2}, 1, 1), // no existing records
	}

	plan, err := r.Plan(context.Background(), incoming)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	if plan.Duplicates != 1 {
		t.Errorf("Expected 1 duplicate, got %d", plan.Duplicates)
	}
	if len(plan.ToInsert) != 4 {
		t.Fatalf("Expected 4 inserts, got %d", len(plan.ToInsert))
	}
	if len(plan.ToDelete) != 0 {
		t.Errorf("Expected no deletions for incremental strategy, got %d", len(plan.ToDelete))
	}

	// Source order preserved among inserts
	if plan.ToInsert[0].Position != 2 || plan.ToInsert[1].BaseFret != 3 {
		t.Errorf("Expected insert order to follow source order, got %+v", plan.ToInsert)
	}
	if plan.ToInsert[3].Name != "G" {
		t.Errorf("Expected last insert 'G', got %q", plan.ToInsert[3].Name)
	}

	// Each name group queried exactly once
	if querier.nameCalls["C"] != 1 {
		t.Errorf("Expected 1 query for C, got %d", querier.nameCalls["C"])
	}
	if querier.nameCalls["G"] != 1 {
		t.Errorf("Expected 1 query for G, got %d", querier.nameCalls["G"])
	}
}

func TestPlan_QueryErrorPropagates(t *testing.T) {
	queryErr := errors.New("query timed out")

	for _, strategy := range []Strategy{FullReplace, Incremental} {
		t.Run(string(strategy), func(t *testing.T) {
			querier := &fakeQuerier{err: queryErr}
			r := New(&Config{
				Strategy:  strategy,
				Partition: instant.MainPartition(),
				Querier:   querier,
			})

			incoming := []chord.Voicing{
				testVoicing("C", []int{0, 0, 0, 3}, 1, 1),
			}

			_, err := r.Plan(context.Background(), incoming)
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !errors.Is(err, queryErr) {
				t.Errorf("Expected wrapped query error, got: %v", err)
			}
		})
	}
}

func TestPlan_CommonFirst(t *testing.T) {
	incoming := []chord.Voicing{
		testVoicing("B7", []int{2, 3, 2, 2}, 1, 1),
		testVoicing("C", []int{0, 0, 0, 3}, 1, 1),
		testVoicing("Bdim", []int{1, 2, 1, 2}, 1, 1),
		testVoicing("Am", []int{2, 0, 0, 0}, 1, 1),
	}

	testCases := []struct {
		name        string
		commonFirst bool
		filterKey   string
		wantNames   []string
	}{
		{
			name:        "common chords move to front",
			commonFirst: true,
			wantNames:   []string{"C", "Am", "B7", "Bdim"},
		},
		{
			name:        "filter key disables prioritization",
			commonFirst: true,
			filterKey:   "B",
			wantNames:   []string{"B7", "C", "Bdim", "Am"},
		},
		{
			name:      "disabled keeps source order",
			wantNames: []string{"B7", "C", "Bdim", "Am"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := New(&Config{
				Strategy:    FullReplace,
				Partition:   instant.MainPartition(),
				FilterKey:   tc.filterKey,
				CommonFirst: tc.commonFirst,
				Querier:     &fakeQuerier{},
			})

			plan, err := r.Plan(context.Background(), incoming)
			if err != nil {
				t.Fatalf("Plan failed: %v", err)
			}

			if len(plan.ToInsert) != len(tc.wantNames) {
				t.Fatalf("Expected %d inserts, got %d", len(tc.wantNames), len(plan.ToInsert))
			}
			for i, want := range tc.wantNames {
				if plan.ToInsert[i].Name != want {
					t.Errorf("Position %d: expected %q, got %q", i, want, plan.ToInsert[i].Name)
				}
			}
		})
	}
}

func TestIsCommonName(t *testing.T) {
	testCases := []struct {
		name string
		want bool
	}{
		{"C", true},
		{"C7", true},
		{"Am7", true},
		{"F#m", true},
		{"Bm", true},
		{"B7", false},
		{"Bdim", false},
		{"Bb", false},
	}

	for _, tc := range testCases {
		if got := isCommonName(tc.name); got != tc.want {
			t.Errorf("isCommonName(%q): expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestNew_DefaultStrategy(t *testing.T) {
	r := New(&Config{Querier: &fakeQuerier{}})

	if r.strategy != FullReplace {
		t.Errorf("Expected default strategy %q, got %q", FullReplace, r.strategy)
	}
}
