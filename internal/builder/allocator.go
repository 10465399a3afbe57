package builder

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// RowAllocator hands out row indexes [0, n) one at a time to any number of
// workers.
type RowAllocator struct {
	next atomic.Int64
	n    int64
}

func NewRowAllocator(n int) *RowAllocator {
	return &RowAllocator{n: int64(n)}
}

// Next claims the next unclaimed row. ok is false once all rows are taken.
func (a *RowAllocator) Next() (row int, ok bool) {
	i := a.next.Add(1) - 1
	if i >= a.n {
		return 0, false
	}
	return int(i), true
}

// Claimed returns the number of rows handed out so far.
func (a *RowAllocator) Claimed() int {
	return int(min(a.next.Load(), a.n))
}

// forEachRow runs fn for every row in [0, n) on the given number of
// workers. Workers stop claiming rows once fn fails or ctx is done; a row
// already being processed always finishes.
func forEachRow(ctx context.Context, alloc *RowAllocator, workers int, fn func(row int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for range workers {
		g.Go(func() error {
			for gctx.Err() == nil {
				row, ok := alloc.Next()
				if !ok {
					return nil
				}
				if err := fn(row); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
