package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/nkoenig/chord-librarian/internal/chord"
	"github.com/nkoenig/chord-librarian/internal/instant"
	"github.com/nkoenig/chord-librarian/internal/report"
	"github.com/nkoenig/chord-librarian/internal/util"
)

// Strategy selects how existing destination records are handled
type Strategy string

const (
	// FullReplace clears the partition and rewrites it from the source dataset
	FullReplace Strategy = "full-replace"
	// Incremental inserts only voicings not already present in the partition
	Incremental Strategy = "incremental"
)

// ParseStrategy validates a strategy name from configuration
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case FullReplace:
		return FullReplace, nil
	case Incremental:
		return Incremental, nil
	}
	return "", fmt.Errorf("%w: unknown strategy %q", util.ErrInvalidConfig, s)
}

// commonChordPrefixes lists the most played chord names. Voicings whose
// name starts with one of these are written first, so an interrupted run
// still covers them.
var commonChordPrefixes = []string{
	"C", "G", "F", "A", "D", "E",
	"Am", "Em", "Dm", "F#m", "Bm", "C#m",
}

func isCommonName(name string) bool {
	for _, prefix := range commonChordPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// Querier is the read access the reconciler needs from the destination store
type Querier interface {
	QueryPartition(ctx context.Context, p instant.Partition) ([]chord.Voicing, error)
	QueryByName(ctx context.Context, p instant.Partition, name string) ([]chord.Voicing, error)
}

// Plan is the reconciliation outcome: ids to remove from the partition and
// voicings to write, in write order. Deletions are applied strictly before
// any insert chunk.
type Plan struct {
	Strategy   Strategy
	ToDelete   []string
	ToInsert   []chord.Voicing
	Duplicates int
	Existing   int
}

// Config holds reconciler configuration
type Config struct {
	Strategy    Strategy
	Partition   instant.Partition
	FilterKey   string
	CommonFirst bool
	Querier     Querier
	Logger      *report.EventLogger
}

// Reconciler decides which destination records to delete and which
// incoming voicings to insert
type Reconciler struct {
	strategy    Strategy
	partition   instant.Partition
	filterKey   string
	commonFirst bool
	querier     Querier
	logger      *report.EventLogger
}

// New creates a new Reconciler
func New(cfg *Config) *Reconciler {
	if cfg.Strategy == "" {
		cfg.Strategy = FullReplace
	}

	return &Reconciler{
		strategy:    cfg.Strategy,
		partition:   cfg.Partition,
		filterKey:   cfg.FilterKey,
		commonFirst: cfg.CommonFirst,
		querier:     cfg.Querier,
		logger:      cfg.Logger,
	}
}

// Plan computes the write plan for the incoming voicings
func (r *Reconciler) Plan(ctx context.Context, incoming []chord.Voicing) (*Plan, error) {
	util.InfoLog("Reconciling %d voicings with %s strategy", len(incoming), r.strategy)

	plan := &Plan{
		Strategy: r.strategy,
		ToDelete: make([]string, 0),
		ToInsert: make([]chord.Voicing, 0, len(incoming)),
	}

	switch r.strategy {
	case FullReplace:
		existing, err := r.querier.QueryPartition(ctx, r.partition)
		if err != nil {
			return nil, fmt.Errorf("failed to query partition: %w", err)
		}

		plan.Existing = len(existing)
		for _, v := range existing {
			plan.ToDelete = append(plan.ToDelete, v.ID)
		}
		plan.ToInsert = append(plan.ToInsert, incoming...)

		util.InfoLog("Found %d existing records to clear", plan.Existing)

	case Incremental:
		// Query each name group once; a timed-out query must propagate
		// rather than pass for an empty group.
		groups := make(map[string][]chord.Voicing)

		for _, v := range incoming {
			existing, seen := groups[v.Name]
			if !seen {
				var err error
				existing, err = r.querier.QueryByName(ctx, r.partition, v.Name)
				if err != nil {
					return nil, fmt.Errorf("failed to query existing %s voicings: %w", v.Name, err)
				}
				groups[v.Name] = existing
				util.DebugLog("Found %d existing voicings for %s", len(existing), v.Name)
			}

			if hasSameShape(existing, v) {
				plan.Duplicates++
				continue
			}
			plan.ToInsert = append(plan.ToInsert, v)
		}

		for _, group := range groups {
			plan.Existing += len(group)
		}

		util.InfoLog("Skipped %d duplicates across %d name groups", plan.Duplicates, len(groups))

	default:
		return nil, fmt.Errorf("%w: unknown strategy %q", util.ErrInvalidConfig, r.strategy)
	}

	// A requested group key means a partial import; reordering only makes
	// sense when the whole dataset is on its way.
	if r.commonFirst && r.filterKey == "" {
		plan.ToInsert = prioritizeCommon(plan.ToInsert)
	}

	r.logger.LogReconcile(string(r.strategy), len(plan.ToDelete), len(plan.ToInsert), plan.Duplicates)

	return plan, nil
}

func hasSameShape(existing []chord.Voicing, v chord.Voicing) bool {
	for _, e := range existing {
		if e.SameShape(v.Frets, v.BaseFret, v.Position) {
			return true
		}
	}
	return false
}

// prioritizeCommon moves common chord voicings to the front, preserving
// relative order within both groups
func prioritizeCommon(voicings []chord.Voicing) []chord.Voicing {
	common := make([]chord.Voicing, 0, len(voicings))
	rest := make([]chord.Voicing, 0, len(voicings))

	for _, v := range voicings {
		if isCommonName(v.Name) {
			common = append(common, v)
		} else {
			rest = append(rest, v)
		}
	}

	return append(common, rest...)
}
