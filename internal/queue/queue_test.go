package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tjfontaine/polyglot-feed-filter/internal/core/domain"
)

func waitPending(t *testing.T, q *Queue[int], n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for q.Pending() < n {
		if time.Now().After(deadline) {
			t.Fatalf("pending = %d, want %d", q.Pending(), n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestQueue_RunsWork(t *testing.T) {
	q := New[int]()
	got, err := q.Enqueue(context.Background(), func(context.Context) (int, error) { return 7, nil })
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if got != 7 {
		t.Errorf("Enqueue() = %d, want 7", got)
	}
}

func TestQueue_PropagatesWorkError(t *testing.T) {
	q := New[int]()
	want := errors.New("boom")
	if _, err := q.Enqueue(context.Background(), func(context.Context) (int, error) { return 0, want }); !errors.Is(err, want) {
		t.Errorf("Enqueue() error = %v, want %v", err, want)
	}
}

func TestQueue_SerializesFIFO(t *testing.T) {
	q := New[int]()
	gate := make(chan struct{})

	var (
		mu      sync.Mutex
		order   []int
		running int
		maxRun  int
		wg      sync.WaitGroup
	)
	work := func(n int) func(context.Context) (int, error) {
		return func(context.Context) (int, error) {
			mu.Lock()
			running++
			if running > maxRun {
				maxRun = running
			}
			order = append(order, n)
			mu.Unlock()

			if n == 0 {
				<-gate
			}
			time.Sleep(time.Millisecond)

			mu.Lock()
			running--
			mu.Unlock()
			return n, nil
		}
	}

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if _, err := q.Enqueue(context.Background(), work(n)); err != nil {
				t.Errorf("Enqueue(%d) error = %v", n, err)
			}
		}(i)
		waitPending(t, q, i+1)
		// Let the waiter reach the lock before the next one arrives.
		time.Sleep(5 * time.Millisecond)
	}
	close(gate)
	wg.Wait()

	if maxRun != 1 {
		t.Errorf("max concurrent work = %d, want 1", maxRun)
	}
	for i, n := range order {
		if n != i {
			t.Fatalf("order = %v, want FIFO", order)
		}
	}
}

func TestQueue_ClearDropsWaiting(t *testing.T) {
	q := New[int]()
	started := make(chan struct{})
	gate := make(chan struct{})

	firstDone := make(chan error, 1)
	go func() {
		_, err := q.Enqueue(context.Background(), func(context.Context) (int, error) {
			close(started)
			<-gate
			return 1, nil
		})
		firstDone <- err
	}()
	<-started

	secondDone := make(chan error, 1)
	ran := false
	go func() {
		_, err := q.Enqueue(context.Background(), func(context.Context) (int, error) {
			ran = true
			return 2, nil
		})
		secondDone <- err
	}()
	waitPending(t, q, 2)

	clearReturned := make(chan struct{})
	go func() {
		q.Clear()
		close(clearReturned)
	}()
	select {
	case <-clearReturned:
	case <-time.After(time.Second):
		t.Fatal("Clear() blocked on in-flight work")
	}

	close(gate)

	if err := <-firstDone; err != nil {
		t.Errorf("in-flight work error = %v, want nil", err)
	}
	if err := <-secondDone; !errors.Is(err, domain.ErrDroppedByClear) {
		t.Errorf("waiting work error = %v, want ErrDroppedByClear", err)
	}
	if ran {
		t.Error("dropped work ran")
	}
}

func TestQueue_WorkAfterClearRuns(t *testing.T) {
	q := New[int]()
	q.Clear()
	if q.Generation() != 1 {
		t.Errorf("Generation() = %d, want 1", q.Generation())
	}
	got, err := q.Enqueue(context.Background(), func(context.Context) (int, error) { return 3, nil })
	if err != nil || got != 3 {
		t.Errorf("Enqueue() = %d, %v, want 3, nil", got, err)
	}
}

func TestQueue_ContextCancelWhileWaiting(t *testing.T) {
	q := New[int]()
	gate := make(chan struct{})
	defer close(gate)

	go q.Enqueue(context.Background(), func(context.Context) (int, error) {
		<-gate
		return 0, nil
	})
	waitPending(t, q, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := q.Enqueue(ctx, func(context.Context) (int, error) { return 0, nil }); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Enqueue() error = %v, want context.DeadlineExceeded", err)
	}
}
