package verify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/nkoenig/chord-librarian/internal/instant"
	"github.com/nkoenig/chord-librarian/internal/util"
)

type fakeCounter struct {
	count int
	err   error
	calls int
}

func (f *fakeCounter) CountPartition(ctx context.Context, p instant.Partition) (int, error) {
	f.calls++
	return f.count, f.err
}

func testVerifier(counter *fakeCounter) *Verifier {
	return New(&Config{
		Counter:     counter,
		Partition:   instant.MainPartition(),
		SettleDelay: time.Millisecond,
	})
}

func TestVerify_Match(t *testing.T) {
	counter := &fakeCounter{count: 2024}
	v := testVerifier(counter)

	rep, err := v.Verify(context.Background(), 2024)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !rep.Matches() {
		t.Errorf("expected counts to match, got expected %d actual %d", rep.Expected, rep.Actual)
	}
	if rep.Guidance() != "" {
		t.Errorf("expected no guidance on match, got %q", rep.Guidance())
	}
	if counter.calls != 1 {
		t.Errorf("expected 1 count query, got %d", counter.calls)
	}
}

func TestVerify_Mismatch(t *testing.T) {
	counter := &fakeCounter{count: 1800}
	v := testVerifier(counter)

	rep, err := v.Verify(context.Background(), 2024)
	if err != nil {
		t.Fatalf("a mismatch is a report, not an error: %v", err)
	}

	if rep.Matches() {
		t.Error("expected mismatch")
	}
	if rep.Expected != 2024 || rep.Actual != 1800 {
		t.Errorf("expected 2024/1800, got %d/%d", rep.Expected, rep.Actual)
	}
	if !strings.Contains(rep.Guidance(), "Re-run") {
		t.Errorf("expected re-run guidance, got %q", rep.Guidance())
	}
}

func TestVerify_CountError(t *testing.T) {
	counter := &fakeCounter{err: errors.New("permission denied")}
	v := testVerifier(counter)

	rep, err := v.Verify(context.Background(), 10)
	if err == nil {
		t.Fatal("expected error")
	}
	if rep != nil {
		t.Errorf("expected nil report on error, got %+v", rep)
	}
	if !strings.Contains(err.Error(), "verification count failed") {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestVerify_TimeoutIsNotEmpty(t *testing.T) {
	// A timed-out count must never be read as "the partition holds zero
	// records"
	counter := &fakeCounter{err: fmt.Errorf("%w: query ran too long", util.ErrQueryTimeout)}
	v := testVerifier(counter)

	rep, err := v.Verify(context.Background(), 10)
	if err == nil {
		t.Fatal("expected error for timed-out count")
	}
	if rep != nil {
		t.Errorf("a timeout must not produce a report, got %+v", rep)
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("expected timeout wording, got %v", err)
	}
	if !errors.Is(err, util.ErrQueryTimeout) {
		t.Errorf("expected timeout sentinel to survive wrapping, got %v", err)
	}
}

func TestVerify_SettleCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	counter := &fakeCounter{count: 5}
	v := New(&Config{
		Counter:     counter,
		Partition:   instant.MainPartition(),
		SettleDelay: time.Minute,
	})

	_, err := v.Verify(ctx, 5)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if counter.calls != 0 {
		t.Errorf("expected no count query after cancellation, got %d", counter.calls)
	}
}

func TestNew_DefaultSettleDelay(t *testing.T) {
	v := New(&Config{Counter: &fakeCounter{}, Partition: instant.MainPartition()})
	if v.settleDelay != DefaultSettleDelay {
		t.Errorf("expected settle delay %v, got %v", DefaultSettleDelay, v.settleDelay)
	}
}
