package writer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/nkoenig/chord-librarian/internal/chord"
	"github.com/nkoenig/chord-librarian/internal/instant"
	"github.com/nkoenig/chord-librarian/internal/report"
	"github.com/nkoenig/chord-librarian/internal/util"
)

const (
	DefaultBatchSize       = 100
	DefaultMaxRetries      = 3
	DefaultRetryDelay      = time.Second
	DefaultInterChunkDelay = 300 * time.Millisecond

	// DegradedChunkSize is the fixed sub-chunk size used when a chunk
	// larger than this fails at the transport level on its first attempt.
	DegradedChunkSize = 50
)

// errDegrade aborts the retry loop so the chunk can be rewritten as
// smaller sub-chunks instead of resending the same oversized payload
var errDegrade = errors.New("chunk too large for one request")

// Destination is the write access the writer needs from the destination store
type Destination interface {
	UpsertStep(v chord.Voicing) instant.Step
	DeleteStep(id string) instant.Step
	Transact(ctx context.Context, steps []instant.Step) instant.WriteOutcome
	QueryByIDs(ctx context.Context, ids []string) ([]chord.Voicing, error)
}

// Config holds writer configuration
type Config struct {
	Destination     Destination
	BatchSize       int
	MaxRetries      int
	RetryDelay      time.Duration
	InterChunkDelay time.Duration
	VerifyChunks    bool
	Logger          *report.EventLogger
}

// Writer commits voicings to the destination store as sequential atomic
// chunks with per-chunk retries
type Writer struct {
	dest            Destination
	batchSize       int
	maxRetries      int
	retryDelay      time.Duration
	interChunkDelay time.Duration
	verifyChunks    bool
	logger          *report.EventLogger
}

// New creates a new Writer
func New(cfg *Config) *Writer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.InterChunkDelay <= 0 {
		cfg.InterChunkDelay = DefaultInterChunkDelay
	}

	return &Writer{
		dest:            cfg.Destination,
		batchSize:       cfg.BatchSize,
		maxRetries:      cfg.MaxRetries,
		retryDelay:      cfg.RetryDelay,
		interChunkDelay: cfg.InterChunkDelay,
		verifyChunks:    cfg.VerifyChunks,
		logger:          cfg.Logger,
	}
}

// FailedChunk records one chunk whose retry budget was exhausted
type FailedChunk struct {
	Index  int
	Size   int
	Reason string
}

// Result represents write results
type Result struct {
	Succeeded    int
	Failed       int
	Degraded     int
	FailedChunks []FailedChunk
}

// Write commits voicings in chunks of up to the configured batch size.
// Chunk order follows the input order. A chunk that exhausts its retries
// is recorded as failed and the run continues with the next chunk.
func (w *Writer) Write(ctx context.Context, voicings []chord.Voicing) (*Result, error) {
	result := &Result{FailedChunks: make([]FailedChunk, 0)}
	if len(voicings) == 0 {
		util.InfoLog("Nothing to write")
		return result, nil
	}

	// Upserts are keyed by id; records without one get a fresh uuid
	chord.EnsureIDs(voicings)

	chunks := chunkSlice(voicings, w.batchSize)
	util.InfoLog("Writing %d voicings in %d chunks of up to %d", len(voicings), len(chunks), w.batchSize)

	var bar *progressbar.ProgressBar
	if util.ShowProgress() {
		bar = progressbar.NewOptions(len(chunks),
			progressbar.OptionSetDescription("Writing"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("chunks"),
			progressbar.OptionThrottle(200*time.Millisecond),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetRenderBlankState(true),
		)
	}

	for i, chunk := range chunks {
		if err := w.writeChunk(ctx, i, chunk, true, result); err != nil {
			return result, err
		}
		if bar != nil {
			bar.Add(1)
		} else {
			util.DebugLog("Chunk %d/%d done", i+1, len(chunks))
		}
		// Pause between chunks so the remote API is not hammered; the
		// final chunk needs no trailing pause
		if i < len(chunks)-1 {
			if err := util.SleepContext(ctx, w.interChunkDelay); err != nil {
				return result, err
			}
		}
	}

	if bar != nil {
		bar.Finish()
	}

	if result.Failed > 0 {
		util.WarnLog("%d voicings across %d chunks failed to write", result.Failed, len(result.FailedChunks))
	}

	return result, nil
}

// Delete removes records by id in chunks of up to the configured batch
// size. Used by the full-replace strategy to clear a partition before any
// insert chunk is issued.
func (w *Writer) Delete(ctx context.Context, ids []string) (*Result, error) {
	result := &Result{FailedChunks: make([]FailedChunk, 0)}
	if len(ids) == 0 {
		return result, nil
	}

	chunks := chunkSlice(ids, w.batchSize)
	util.InfoLog("Deleting %d records in %d chunks of up to %d", len(ids), len(chunks), w.batchSize)

	for i, chunk := range chunks {
		steps := make([]instant.Step, 0, len(chunk))
		for _, id := range chunk {
			steps = append(steps, w.dest.DeleteStep(id))
		}

		err := util.Retry(ctx, w.retryConfig(), func() error {
			outcome := w.dest.Transact(ctx, steps)
			w.logger.LogDelete(i, len(chunk), outcome.Err())
			return outcome.Err()
		}, fmt.Sprintf("delete chunk %d", i+1))

		if err != nil {
			if ctx.Err() != nil {
				return result, err
			}
			result.Failed += len(chunk)
			result.FailedChunks = append(result.FailedChunks, FailedChunk{Index: i, Size: len(chunk), Reason: err.Error()})
			util.ErrorLog("Delete chunk %d failed permanently: %v", i+1, err)
			continue
		}

		result.Succeeded += len(chunk)
		if i < len(chunks)-1 {
			if err := util.SleepContext(ctx, w.interChunkDelay); err != nil {
				return result, err
			}
		}
	}

	return result, nil
}

// writeChunk commits one chunk, retrying on failure. Oversized chunks that
// fail at the transport level on the first attempt are rewritten as
// DegradedChunkSize sub-chunks, each with its own retry budget.
func (w *Writer) writeChunk(ctx context.Context, index int, chunk []chord.Voicing, allowDegrade bool, result *Result) error {
	steps := make([]instant.Step, 0, len(chunk))
	for _, v := range chunk {
		steps = append(steps, w.dest.UpsertStep(v))
	}

	attempt := 0
	err := util.Retry(ctx, w.retryConfig(), func() error {
		attempt++
		start := time.Now()
		outcome := w.dest.Transact(ctx, steps)
		w.logger.LogChunk(index, len(chunk), attempt, time.Since(start), outcome.Err())

		if !outcome.OK() {
			// A first-try transport failure on an oversized chunk is
			// usually a payload limit, not a transient error
			if allowDegrade && attempt == 1 && outcome.Transport() && len(chunk) > DegradedChunkSize {
				return errDegrade
			}
			return outcome.Err()
		}

		if w.verifyChunks {
			return w.confirmChunk(ctx, index, chunk)
		}
		return nil
	}, fmt.Sprintf("chunk %d", index+1))

	if err == nil {
		result.Succeeded += len(chunk)
		return nil
	}

	if errors.Is(err, errDegrade) {
		w.logger.LogDegrade(index, len(chunk), DegradedChunkSize)
		util.WarnLog("Chunk %d rejected in one request, rewriting as %d-item sub-chunks", index+1, DegradedChunkSize)
		return w.writeDegraded(ctx, index, chunk, result)
	}

	if ctx.Err() != nil {
		return err
	}

	result.Failed += len(chunk)
	result.FailedChunks = append(result.FailedChunks, FailedChunk{Index: index, Size: len(chunk), Reason: err.Error()})
	w.logger.LogChunkFailed(index, len(chunk), err.Error())
	util.ErrorLog("Chunk %d failed permanently: %v", index+1, err)
	return nil
}

// writeDegraded rewrites an oversized chunk as fixed-size sub-chunks
func (w *Writer) writeDegraded(ctx context.Context, index int, chunk []chord.Voicing, result *Result) error {
	result.Degraded++

	subChunks := chunkSlice(chunk, DegradedChunkSize)
	for s, sub := range subChunks {
		if err := w.writeChunk(ctx, index, sub, false, result); err != nil {
			return err
		}
		if s < len(subChunks)-1 {
			if err := util.SleepContext(ctx, w.interChunkDelay); err != nil {
				return err
			}
		}
	}

	return nil
}

// confirmChunk re-queries the chunk's ids. Fewer rows than items means the
// write only partially landed; the remote API does not say which items were
// dropped, so the whole chunk is retried.
func (w *Writer) confirmChunk(ctx context.Context, index int, chunk []chord.Voicing) error {
	ids := make([]string, 0, len(chunk))
	for _, v := range chunk {
		ids = append(ids, v.ID)
	}

	found, err := w.dest.QueryByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("chunk verification failed: %w", err)
	}

	w.logger.LogVerifyChunk(index, len(chunk), len(found))

	if len(found) < len(chunk) {
		return fmt.Errorf("chunk %d: only %d of %d records visible after write", index+1, len(found), len(chunk))
	}

	return nil
}

func (w *Writer) retryConfig() *util.RetryConfig {
	return &util.RetryConfig{
		MaxAttempts: w.maxRetries,
		BaseDelay:   w.retryDelay,
		Backoff:     util.LinearBackoff,
		RetryIf: func(err error) bool {
			return !errors.Is(err, errDegrade)
		},
	}
}

func chunkSlice[T any](items []T, size int) [][]T {
	if size <= 0 || len(items) == 0 {
		return nil
	}

	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}

	return chunks
}
