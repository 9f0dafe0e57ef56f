package verify

import (
	"context"
	"fmt"
	"time"

	"github.com/nkoenig/chord-librarian/internal/instant"
	"github.com/nkoenig/chord-librarian/internal/report"
	"github.com/nkoenig/chord-librarian/internal/util"
)

// DefaultSettleDelay is how long to wait before counting so that the
// destination's indexes catch up with the last write
const DefaultSettleDelay = 2500 * time.Millisecond

// Counter is the read access the verifier needs from the destination store
type Counter interface {
	CountPartition(ctx context.Context, p instant.Partition) (int, error)
}

// Config holds verifier configuration
type Config struct {
	Counter     Counter
	Partition   instant.Partition
	SettleDelay time.Duration
	Logger      *report.EventLogger
}

// Verifier checks the destination record count against what a run wrote
type Verifier struct {
	counter     Counter
	partition   instant.Partition
	settleDelay time.Duration
	logger      *report.EventLogger
}

// New creates a new Verifier
func New(cfg *Config) *Verifier {
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}

	return &Verifier{
		counter:     cfg.Counter,
		partition:   cfg.Partition,
		settleDelay: cfg.SettleDelay,
		logger:      cfg.Logger,
	}
}

// Report holds the outcome of a verification count
type Report struct {
	Expected int
	Actual   int
}

// Matches reports whether the partition holds exactly the expected count
func (r *Report) Matches() bool {
	return r.Actual == r.Expected
}

// Guidance returns operator advice for a mismatched report
func (r *Report) Guidance() string {
	if r.Matches() {
		return ""
	}
	return "Counts can lag briefly after large writes. Re-run `clm verify` before treating this as data loss."
}

// Verify waits for the destination to settle, then counts the partition
// and compares against expected. A timed-out count comes back as an error,
// never as a zero count.
func (v *Verifier) Verify(ctx context.Context, expected int) (*Report, error) {
	if v.settleDelay > 0 {
		util.DebugLog("Verify: waiting %v for the destination to settle", v.settleDelay)
		if err := util.SleepContext(ctx, v.settleDelay); err != nil {
			return nil, err
		}
	}

	actual, err := v.counter.CountPartition(ctx, v.partition)
	if err != nil {
		v.logger.LogVerify(expected, 0, err)
		if instant.IsTimeout(err) {
			return nil, fmt.Errorf("verification count timed out: %w", err)
		}
		return nil, fmt.Errorf("verification count failed: %w", err)
	}

	rep := &Report{Expected: expected, Actual: actual}
	v.logger.LogVerify(expected, actual, nil)

	if rep.Matches() {
		util.InfoLog("Verification passed: %d records in partition", actual)
	} else {
		util.WarnLog("Verification mismatch: expected %d, found %d", expected, actual)
	}

	return rep, nil
}
