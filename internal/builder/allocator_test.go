package builder

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestRowAllocator(t *testing.T) {
	const n = 10000
	alloc := NewRowAllocator(n)
	seen := make([]atomic.Int32, n)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				row, ok := alloc.Next()
				if !ok {
					return
				}
				seen[row].Add(1)
			}
		}()
	}
	wg.Wait()

	for i := range seen {
		if got := seen[i].Load(); got != 1 {
			t.Fatalf("row %d claimed %d times", i, got)
		}
	}
	if alloc.Claimed() != n {
		t.Errorf("Claimed = %d, want %d", alloc.Claimed(), n)
	}
}

func TestForEachRowError(t *testing.T) {
	boom := errors.New("boom")
	var calls atomic.Int32
	err := forEachRow(context.Background(), NewRowAllocator(1000), 4, func(row int) error {
		calls.Add(1)
		if row == 3 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestForEachRowCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var calls atomic.Int32
	err := forEachRow(ctx, NewRowAllocator(100), 2, func(int) error {
		calls.Add(1)
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if calls.Load() != 0 {
		t.Errorf("%d rows processed after cancellation", calls.Load())
	}
}
