// Package dispatch runs operations with a bounded number of concurrent slots.
//
// Waiters are served in FIFO order. A waiter whose context is cancelled
// before it gets a slot is dropped from the line and never runs. Once an
// operation has started, cancellation is cooperative: the operation receives
// the same context and is expected to honour it.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// ErrCanceled is returned when an operation is dropped before it starts.
var ErrCanceled = errors.New("dispatch: canceled before start")

// Stats reports the current load of a Dispatcher.
type Stats struct {
	Active      int
	Pending     int
	Concurrency int
}

// Dispatcher bounds the number of concurrently running operations.
type Dispatcher struct {
	sem         *semaphore.Weighted
	concurrency int
	active      atomic.Int64
	pending     atomic.Int64
}

// New returns a Dispatcher allowing n concurrent operations. n < 1 is treated as 1.
func New(n int) *Dispatcher {
	if n < 1 {
		n = 1
	}
	return &Dispatcher{sem: semaphore.NewWeighted(int64(n)), concurrency: n}
}

// Do waits for a free slot and runs fn in the calling goroutine, returning
// fn's own error. If ctx is done before a slot is obtained, fn is not called
// and the returned error wraps both ErrCanceled and ctx.Err().
func (d *Dispatcher) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return canceled(err)
	}

	d.pending.Add(1)
	err := d.sem.Acquire(ctx, 1)
	d.pending.Add(-1)
	if err != nil {
		return canceled(err)
	}

	d.active.Add(1)
	defer func() {
		d.active.Add(-1)
		d.sem.Release(1)
	}()
	return fn(ctx)
}

// Run is Do for operations that produce a value.
func Run[T any](ctx context.Context, d *Dispatcher, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := d.Do(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		out = v
		return err
	})
	return out, err
}

// Stats returns a point-in-time view of the dispatcher load.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Active:      int(d.active.Load()),
		Pending:     int(d.pending.Load()),
		Concurrency: d.concurrency,
	}
}

func canceled(cause error) error {
	return fmt.Errorf("%w: %w", ErrCanceled, cause)
}
