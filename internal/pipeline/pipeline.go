package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nkoenig/chord-librarian/internal/chord"
	"github.com/nkoenig/chord-librarian/internal/instant"
	"github.com/nkoenig/chord-librarian/internal/ledger"
	"github.com/nkoenig/chord-librarian/internal/reconcile"
	"github.com/nkoenig/chord-librarian/internal/report"
	"github.com/nkoenig/chord-librarian/internal/util"
	"github.com/nkoenig/chord-librarian/internal/verify"
	"github.com/nkoenig/chord-librarian/internal/writer"
)

// DefaultOutputPath is where file-only mode writes the flattened dataset
const DefaultOutputPath = "chord-voicings.json"

// Source provides the raw dataset document
type Source interface {
	URL() string
	Fetch(ctx context.Context) ([]byte, error)
}

// Destination is the full client surface a migration run touches
type Destination interface {
	reconcile.Querier
	writer.Destination
	verify.Counter
}

// MigrationContext threads one run's collaborators and knobs through the
// stages. Nothing in this package lives in a package-level variable, so two
// contexts never share state.
type MigrationContext struct {
	Source      Source
	Destination Destination
	Ledger      *ledger.Ledger
	Logger      *report.EventLogger
	Partition   instant.Partition

	// RunID names the run up front so the event log and the ledger row
	// share an id; left empty, the ledger assigns one
	RunID string

	Strategy        reconcile.Strategy
	GroupKey        string
	BatchSize       int
	MaxRetries      int
	RetryDelay      time.Duration
	InterChunkDelay time.Duration
	VerifyChunks    bool
	SkipVerify      bool
	CommonFirst     bool
	SettleDelay     time.Duration

	// FileOnly writes the transformed dataset to OutputPath and stops
	// before any destination work
	FileOnly   bool
	OutputPath string

	// DryRun stops after reconciliation and reports the planned work.
	// Reads still happen (the plan needs the partition state); writes don't.
	DryRun bool
}

// Summary aggregates one run's accounting across all stages
type Summary struct {
	RunID        string
	Strategy     reconcile.Strategy
	GroupKey     string
	SourceURL    string
	FetchedBytes int
	Transformed  int
	Skipped      int
	Groups       int
	Existing     int
	Duplicates   int

	// Planned counts come from the reconcile plan; on a dry run they are
	// the only write-side figures filled in
	PlannedDeletes int
	PlannedInserts int

	Deleted      int
	DeleteFailed int
	Succeeded    int
	Failed       int
	Degraded     int
	FailedChunks []writer.FailedChunk
	Verified     bool
	Expected     int
	Actual       int
	Duration     time.Duration
	OutputPath   string
}

// Run executes the migration pipeline: fetch, transform, reconcile, write,
// verify. Chunk-level write failures are accounted and reported, not fatal;
// the error return covers failures that invalidate the whole run (fetch,
// zero records, reconcile queries, cancellation).
func Run(ctx context.Context, mc *MigrationContext) (*Summary, error) {
	start := time.Now()

	summary := &Summary{
		RunID:     mc.RunID,
		Strategy:  mc.Strategy,
		GroupKey:  mc.GroupKey,
		SourceURL: mc.Source.URL(),
	}

	var run *ledger.Run
	if mc.Ledger != nil {
		run = &ledger.Run{
			ID:        mc.RunID,
			Strategy:  string(mc.Strategy),
			GroupKey:  mc.GroupKey,
			SourceURL: mc.Source.URL(),
			BatchSize: mc.BatchSize,
		}
		if err := mc.Ledger.CreateRun(run); err != nil {
			return nil, fmt.Errorf("failed to record run: %w", err)
		}
		summary.RunID = run.ID
	}

	err := mc.execute(ctx, summary)
	summary.Duration = time.Since(start)

	if err != nil {
		mc.Logger.LogError(report.EventError, "run aborted", err)
	}

	if run != nil {
		finishRun(mc.Ledger, run, summary, err)
	}

	return summary, err
}

func (mc *MigrationContext) execute(ctx context.Context, summary *Summary) error {
	data, err := mc.fetch(ctx, summary)
	if err != nil {
		return err
	}

	voicings, err := mc.transform(data, summary)
	if err != nil {
		return err
	}

	if mc.FileOnly {
		return mc.writeFile(voicings, summary)
	}

	plan, err := mc.reconcile(ctx, voicings, summary)
	if err != nil {
		return err
	}

	if mc.DryRun {
		batch := mc.BatchSize
		if batch <= 0 {
			batch = writer.DefaultBatchSize
		}
		chunks := (len(plan.ToInsert) + batch - 1) / batch
		util.InfoLog("Dry run: would delete %d stale records and write %d voicings in %d chunks of up to %d",
			len(plan.ToDelete), len(plan.ToInsert), chunks, batch)
		return nil
	}

	// When verification is on, an incremental run needs the partition size
	// before any write lands; full-replace derives it from its own deletes
	preCount := 0
	preCountOK := true
	if !mc.SkipVerify && mc.Strategy == reconcile.Incremental {
		preCount, err = mc.Destination.CountPartition(ctx, mc.Partition)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			util.WarnLog("Pre-write count failed, verification will be skipped: %v", err)
			preCountOK = false
		}
	}

	if err := mc.write(ctx, plan, summary); err != nil {
		return err
	}

	if mc.SkipVerify || !preCountOK {
		return nil
	}

	expected := preCount + summary.Succeeded
	if mc.Strategy == reconcile.FullReplace {
		// Failed delete chunks leave stale records behind; the count sees
		// them too
		expected = summary.Succeeded + summary.DeleteFailed
	}

	return mc.verify(ctx, expected, summary)
}

func (mc *MigrationContext) fetch(ctx context.Context, summary *Summary) ([]byte, error) {
	util.InfoLog("=== Fetch ===")
	util.InfoLog("Source: %s", mc.Source.URL())

	start := time.Now()
	data, err := mc.Source.Fetch(ctx)
	mc.Logger.LogFetch(mc.Source.URL(), len(data), time.Since(start), err)
	if err != nil {
		return nil, err
	}

	summary.FetchedBytes = len(data)
	util.InfoLog("Fetched %d bytes", len(data))
	return data, nil
}

func (mc *MigrationContext) transform(data []byte, summary *Summary) ([]chord.Voicing, error) {
	util.InfoLog("=== Transform ===")

	ds, err := chord.ParseDataset(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrFetchFailed, err)
	}

	res := chord.Transform(ds, mc.GroupKey)
	mc.Logger.LogTransform(mc.GroupKey, len(res.Voicings), res.Skipped, res.Groups)

	summary.Transformed = len(res.Voicings)
	summary.Skipped = res.Skipped
	summary.Groups = res.Groups

	if res.Skipped > 0 {
		util.WarnLog("Skipped %d malformed positions", res.Skipped)
	}
	util.InfoLog("Flattened %d groups into %d voicings", res.Groups, len(res.Voicings))

	if len(res.Voicings) == 0 {
		if mc.GroupKey != "" {
			return nil, fmt.Errorf("%w: no group matches key %q", util.ErrNoRecords, mc.GroupKey)
		}
		return nil, fmt.Errorf("%w: source dataset flattened to zero voicings", util.ErrNoRecords)
	}

	return res.Voicings, nil
}

// writeFile dumps the transformed voicings as pretty-printed JSON. Ids are
// assigned first so the file can be imported later without re-keying.
func (mc *MigrationContext) writeFile(voicings []chord.Voicing, summary *Summary) error {
	path := mc.OutputPath
	if path == "" {
		path = DefaultOutputPath
	}

	chord.EnsureIDs(voicings)

	data, err := json.MarshalIndent(voicings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode voicings: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}

	summary.OutputPath = path
	util.SuccessLog("Wrote %d voicings to %s", len(voicings), path)
	return nil
}

func (mc *MigrationContext) reconcile(ctx context.Context, voicings []chord.Voicing, summary *Summary) (*reconcile.Plan, error) {
	util.InfoLog("=== Reconcile ===")

	rec := reconcile.New(&reconcile.Config{
		Strategy:    mc.Strategy,
		Partition:   mc.Partition,
		FilterKey:   mc.GroupKey,
		CommonFirst: mc.CommonFirst,
		Querier:     mc.Destination,
		Logger:      mc.Logger,
	})

	plan, err := rec.Plan(ctx, voicings)
	if err != nil {
		return nil, err
	}

	summary.Existing = plan.Existing
	summary.Duplicates = plan.Duplicates
	summary.PlannedDeletes = len(plan.ToDelete)
	summary.PlannedInserts = len(plan.ToInsert)
	return plan, nil
}

func (mc *MigrationContext) write(ctx context.Context, plan *reconcile.Plan, summary *Summary) error {
	util.InfoLog("=== Write ===")

	w := writer.New(&writer.Config{
		Destination:     mc.Destination,
		BatchSize:       mc.BatchSize,
		MaxRetries:      mc.MaxRetries,
		RetryDelay:      mc.RetryDelay,
		InterChunkDelay: mc.InterChunkDelay,
		VerifyChunks:    mc.VerifyChunks,
		Logger:          mc.Logger,
	})

	// Full-replace clears the partition first. All delete chunks finish
	// before the first insert chunk so stale and fresh records never mix.
	if len(plan.ToDelete) > 0 {
		delRes, err := w.Delete(ctx, plan.ToDelete)
		if err != nil {
			return err
		}
		summary.Deleted = delRes.Succeeded
		summary.DeleteFailed = delRes.Failed
		if delRes.Failed > 0 {
			util.WarnLog("%d stale records could not be deleted; verification will flag them", delRes.Failed)
		}
	}

	insRes, err := w.Write(ctx, plan.ToInsert)
	if err != nil {
		return err
	}

	summary.Succeeded = insRes.Succeeded
	summary.Failed = insRes.Failed
	summary.Degraded = insRes.Degraded
	summary.FailedChunks = insRes.FailedChunks
	return nil
}

func (mc *MigrationContext) verify(ctx context.Context, expected int, summary *Summary) error {
	util.InfoLog("=== Verify ===")

	v := verify.New(&verify.Config{
		Counter:     mc.Destination,
		Partition:   mc.Partition,
		SettleDelay: mc.SettleDelay,
		Logger:      mc.Logger,
	})

	rep, err := v.Verify(ctx, expected)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		// The data may be fine even when the count query is not; report
		// the run unverified instead of failing it
		util.WarnLog("Verification could not complete: %v", err)
		return nil
	}

	summary.Verified = true
	summary.Expected = rep.Expected
	summary.Actual = rep.Actual

	if !rep.Matches() {
		util.WarnLog("%s", rep.Guidance())
	}
	return nil
}

// finishRun persists the run outcome. Best-effort: a ledger hiccup must not
// turn a finished migration into a failure.
func finishRun(db *ledger.Ledger, run *ledger.Run, summary *Summary, runErr error) {
	run.Status = ledger.StatusCompleted
	if runErr != nil {
		run.Status = ledger.StatusFailed
		run.Error = runErr.Error()
	}

	run.FetchedBytes = int64(summary.FetchedBytes)
	run.Transformed = summary.Transformed
	run.Skipped = summary.Skipped
	run.Duplicates = summary.Duplicates
	run.Deleted = summary.Deleted
	run.Succeeded = summary.Succeeded
	run.Failed = summary.Failed
	run.Verified = summary.Verified
	run.Expected = summary.Expected
	run.Actual = summary.Actual

	if err := db.FinishRun(run); err != nil {
		util.WarnLog("Failed to record run outcome: %v", err)
		return
	}

	for _, fc := range summary.FailedChunks {
		cf := &ledger.ChunkFailure{
			RunID:      run.ID,
			ChunkIndex: fc.Index,
			ChunkSize:  fc.Size,
			Reason:     fc.Reason,
		}
		if err := db.InsertChunkFailure(cf); err != nil {
			util.WarnLog("Failed to record chunk failure: %v", err)
		}
	}
}
