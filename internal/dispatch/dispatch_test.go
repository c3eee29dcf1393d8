package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDo_NeverExceedsConcurrency(t *testing.T) {
	const limit = 3
	d := New(limit)

	var running, peak atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = d.Do(context.Background(), func(context.Context) error {
				n := running.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				running.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	if got := peak.Load(); got > limit {
		t.Fatalf("peak concurrency = %d, want <= %d", got, limit)
	}
	if st := d.Stats(); st.Active != 0 || st.Pending != 0 || st.Concurrency != limit {
		t.Fatalf("Stats after drain = %#v, want idle with concurrency %d", st, limit)
	}
}

func TestDo_ReturnsOperationErrorAndFreesSlot(t *testing.T) {
	d := New(1)
	boom := errors.New("boom")

	if err := d.Do(context.Background(), func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("Do error = %v, want boom", err)
	}

	done := make(chan struct{})
	go func() {
		_ = d.Do(context.Background(), func(context.Context) error { return nil })
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("slot was not released after failing operation")
	}
}

func TestDo_AlreadyCanceledDoesNotRun(t *testing.T) {
	d := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	err := d.Do(ctx, func(context.Context) error {
		ran = true
		return nil
	})
	if ran {
		t.Fatalf("operation ran with cancelled context")
	}
	if !errors.Is(err, ErrCanceled) || !errors.Is(err, context.Canceled) {
		t.Fatalf("Do error = %v, want ErrCanceled wrapping context.Canceled", err)
	}
}

func TestDo_WaiterCanceledIsDropped(t *testing.T) {
	d := New(1)
	release := make(chan struct{})
	started := make(chan struct{})

	go func() {
		_ = d.Do(context.Background(), func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	var ran atomic.Bool
	errCh := make(chan error, 1)
	go func() {
		errCh <- d.Do(ctx, func(context.Context) error {
			ran.Store(true)
			return nil
		})
	}()

	waitFor(t, func() bool { return d.Stats().Pending == 1 })
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrCanceled) {
			t.Fatalf("Do error = %v, want ErrCanceled", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("cancelled waiter did not return")
	}
	close(release)

	waitFor(t, func() bool { return d.Stats().Active == 0 })
	if ran.Load() {
		t.Fatalf("cancelled waiter ran")
	}
	if st := d.Stats(); st.Pending != 0 {
		t.Fatalf("Pending = %d, want 0", st.Pending)
	}
}

func TestDo_WaitersRunInFIFOOrder(t *testing.T) {
	d := New(1)
	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = d.Do(context.Background(), func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = d.Do(context.Background(), func(context.Context) error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
		}(i)
		want := i + 1
		waitFor(t, func() bool { return d.Stats().Pending == want })
		// Let the goroutine park inside Acquire before queueing the next one.
		time.Sleep(10 * time.Millisecond)
	}
	close(release)
	wg.Wait()

	for i, v := range order {
		if v != i {
			t.Fatalf("order = %v, want FIFO 0..4", order)
		}
	}
}

func TestRun_ReturnsValue(t *testing.T) {
	d := New(2)
	got, err := Run(context.Background(), d, func(context.Context) (string, error) { return "ok", nil })
	if err != nil || got != "ok" {
		t.Fatalf("Run = %q, %v; want ok, nil", got, err)
	}
}

func TestNew_ClampsConcurrency(t *testing.T) {
	if got := New(0).Stats().Concurrency; got != 1 {
		t.Fatalf("Concurrency = %d, want 1", got)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}
