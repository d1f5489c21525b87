package retry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/purchasekit/internal/core/domain"
)

func newTestManager(maxRetries int) (*Manager, *[]time.Duration) {
	m := NewManager(Config{
		MaxRetries:        maxRetries,
		BaseDelay:         1 * time.Second,
		MaxDelay:          16 * time.Second,
		BackoffMultiplier: 2.0,
		Strategy:          StrategyExponential,
	})
	slept := &[]time.Duration{}
	m.sleep = func(ctx context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
	return m, slept
}

func TestDoSucceedsAfterFailures(t *testing.T) {
	m, slept := newTestManager(5)

	calls := 0
	err := m.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return domain.ErrNetworkUnavailable
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if _, ok := m.Record("op"); ok {
		t.Error("record should be cleared after success")
	}
	// Backoff waits before the second and third invocations.
	want := []time.Duration{1 * time.Second, 2 * time.Second}
	if len(*slept) != len(want) {
		t.Fatalf("slept %v, want %v", *slept, want)
	}
	for i, w := range want {
		if (*slept)[i] != w {
			t.Errorf("sleep[%d] = %v, want %v", i, (*slept)[i], w)
		}
	}
}

func TestDoExhaustsRetries(t *testing.T) {
	const maxRetries = 3
	m, _ := newTestManager(maxRetries)

	opErr := fmt.Errorf("query status: %w", domain.ErrRequestTimeout)
	calls := 0
	err := m.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return opErr
	})

	if calls != maxRetries+1 {
		t.Errorf("calls = %d, want %d", calls, maxRetries+1)
	}
	// The original error comes back unmodified so callers can branch on kind.
	if !errors.Is(err, domain.ErrRequestTimeout) {
		t.Errorf("error kind lost: %v", err)
	}
	if err != opErr {
		t.Errorf("error wrapped on exhaustion: got %v", err)
	}

	rec, ok := m.Record("op")
	if !ok {
		t.Fatal("record should survive exhaustion")
	}
	if rec.AttemptCount != maxRetries+1 {
		t.Errorf("AttemptCount = %d, want %d", rec.AttemptCount, maxRetries+1)
	}
	if !m.Exhausted("op") {
		t.Error("Exhausted = false, want true")
	}
}

func TestDoStopsOnTerminalError(t *testing.T) {
	m, _ := newTestManager(5)

	calls := 0
	err := m.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return domain.ErrInvalidReceipt
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if !errors.Is(err, domain.ErrInvalidReceipt) {
		t.Errorf("unexpected error: %v", err)
	}
	if rec, _ := m.Record("op"); rec.AttemptCount != 1 {
		t.Errorf("AttemptCount = %d, want 1", rec.AttemptCount)
	}
}

func TestDoStopsOnUserCancel(t *testing.T) {
	m, _ := newTestManager(5)

	calls := 0
	err := m.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return domain.ErrUserCancelled
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if !errors.Is(err, domain.ErrUserCancelled) {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestGetDelayBeforeAnyAttempt(t *testing.T) {
	m, _ := newTestManager(5)
	if d := m.GetDelay("unknown"); d != 0 {
		t.Errorf("GetDelay = %v, want 0", d)
	}
}

func TestRecordAttemptGrowsUntilCleared(t *testing.T) {
	m, _ := newTestManager(5)

	for i := 1; i <= 4; i++ {
		if got := m.RecordAttempt("op", domain.ErrNetworkUnavailable); got != i {
			t.Errorf("RecordAttempt #%d = %d", i, got)
		}
	}
	m.ClearRecord("op")
	if _, ok := m.Record("op"); ok {
		t.Error("record should be gone after ClearRecord")
	}
	if got := m.RecordAttempt("op", domain.ErrNetworkUnavailable); got != 1 {
		t.Errorf("count after clear = %d, want 1", got)
	}
}

func TestExecuteReturnsValue(t *testing.T) {
	m, _ := newTestManager(2)

	calls := 0
	got, err := Execute(context.Background(), m, "load", func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", domain.ErrNetworkUnavailable
		}
		return "receipt-ok", nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got != "receipt-ok" {
		t.Errorf("got %q", got)
	}
}

func TestConcurrentOperationsIndependentLedger(t *testing.T) {
	m, _ := newTestManager(10)

	var wg sync.WaitGroup
	const ops = 16
	for i := 0; i < ops; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("op-%d", n)
			fails := n % 4
			calls := 0
			err := m.Do(context.Background(), id, func(ctx context.Context) error {
				calls++
				if calls <= fails {
					return domain.ErrRequestTimeout
				}
				return nil
			})
			if err != nil {
				t.Errorf("%s: %v", id, err)
			}
		}(i)
	}
	wg.Wait()

	stats := m.Statistics()
	if stats.ActiveOperations != 0 {
		t.Errorf("ActiveOperations = %d, want 0 after all successes", stats.ActiveOperations)
	}
}

func TestStatisticsCountsExhausted(t *testing.T) {
	m, _ := newTestManager(1)

	_ = m.Do(context.Background(), "dead", func(ctx context.Context) error {
		return domain.ErrNetworkUnavailable
	})
	m.RecordAttempt("live", domain.ErrRequestTimeout)

	stats := m.Statistics()
	if stats.ActiveOperations != 2 {
		t.Errorf("ActiveOperations = %d, want 2", stats.ActiveOperations)
	}
	if stats.ExhaustedOperations != 1 {
		t.Errorf("ExhaustedOperations = %d, want 1", stats.ExhaustedOperations)
	}
	if stats.TotalAttempts != 3 {
		t.Errorf("TotalAttempts = %d, want 3", stats.TotalAttempts)
	}
}

func TestDoRespectsContextCancellation(t *testing.T) {
	m := NewManager(Config{
		MaxRetries: 5,
		BaseDelay:  50 * time.Millisecond,
		Strategy:   StrategyFixed,
	})

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	errCh := make(chan error, 1)
	go func() {
		errCh <- m.Do(ctx, "op", func(ctx context.Context) error {
			calls++
			if calls == 1 {
				cancel()
			}
			return domain.ErrNetworkUnavailable
		})
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not observe cancellation")
	}
}
