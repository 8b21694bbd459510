package document

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tjfontaine/polyglot-feed-filter/internal/core/domain"
)

type fakeHost struct {
	mu        sync.Mutex
	exists    bool
	creates   atomic.Int32
	createErr error
	// raceWin makes Create report already-exists after marking the document present.
	raceWin bool
}

func (h *fakeHost) Exists(context.Context) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exists, nil
}

func (h *fakeHost) Create(context.Context) error {
	h.creates.Add(1)
	time.Sleep(5 * time.Millisecond)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.raceWin {
		h.exists = true
		return domain.ErrAlreadyExists
	}
	if h.createErr != nil {
		return h.createErr
	}
	h.exists = true
	return nil
}

func fastOptions() Options {
	return Options{InitAttempts: 3, SettleDelay: time.Millisecond, RetryBackoff: time.Millisecond}
}

func TestEnsureReady_CreatesOnceUnderConcurrency(t *testing.T) {
	host := &fakeHost{}
	var inits atomic.Int32
	c := NewCoordinator(host, func(context.Context) error {
		inits.Add(1)
		return nil
	}, fastOptions())

	var wg sync.WaitGroup
	created := atomic.Int32{}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := c.EnsureReady(context.Background())
			if err != nil {
				t.Errorf("EnsureReady() error = %v", err)
			}
			if r.Created {
				created.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := host.creates.Load(); got != 1 {
		t.Errorf("Create() called %d times, want 1", got)
	}
	if created.Load() != 1 {
		t.Errorf("%d callers reported creation, want 1", created.Load())
	}
	if inits.Load() != 1 {
		t.Errorf("init ran %d times, want 1", inits.Load())
	}
}

func TestEnsureReady_ExistingDocument(t *testing.T) {
	host := &fakeHost{exists: true}
	c := NewCoordinator(host, func(context.Context) error {
		t.Error("init ran for an existing document")
		return nil
	}, fastOptions())

	r, err := c.EnsureReady(context.Background())
	if err != nil || r.Created {
		t.Fatalf("EnsureReady() = %+v, %v", r, err)
	}
	if host.creates.Load() != 0 {
		t.Error("Create() called for an existing document")
	}
}

func TestEnsureReady_AlreadyExistsRace(t *testing.T) {
	host := &fakeHost{raceWin: true}
	c := NewCoordinator(host, nil, fastOptions())

	r, err := c.EnsureReady(context.Background())
	if err != nil {
		t.Fatalf("EnsureReady() error = %v, want success after race", err)
	}
	if r.Created {
		t.Error("Created = true for a document someone else created")
	}
}

func TestEnsureReady_CreateFailure(t *testing.T) {
	host := &fakeHost{createErr: errors.New("host refused")}
	c := NewCoordinator(host, nil, fastOptions())

	if _, err := c.EnsureReady(context.Background()); err == nil {
		t.Fatal("EnsureReady() error = nil, want create failure")
	}
}

func TestEnsureReady_InitRetries(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		wantCalls int32
		wantInit  bool
	}{
		{name: "first attempt", failures: 0, wantCalls: 1, wantInit: true},
		{name: "third attempt", failures: 2, wantCalls: 3, wantInit: true},
		{name: "all attempts fail", failures: 5, wantCalls: 3, wantInit: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			c := NewCoordinator(&fakeHost{}, func(context.Context) error {
				if int(calls.Add(1)) <= tt.failures {
					return errors.New("model downloading")
				}
				return nil
			}, fastOptions())

			r, err := c.EnsureReady(context.Background())
			if err != nil {
				t.Fatalf("EnsureReady() error = %v; init failures must not fail it", err)
			}
			if calls.Load() != tt.wantCalls {
				t.Errorf("init calls = %d, want %d", calls.Load(), tt.wantCalls)
			}
			if r.Initialized != tt.wantInit {
				t.Errorf("Initialized = %v, want %v", r.Initialized, tt.wantInit)
			}
			if !tt.wantInit && r.InitErr == nil {
				t.Error("InitErr = nil after exhausted attempts")
			}
		})
	}
}

func TestEnsureReady_SettleDelayPrecedesInit(t *testing.T) {
	opts := fastOptions()
	opts.SettleDelay = 30 * time.Millisecond

	var firstInit time.Time
	start := time.Now()
	c := NewCoordinator(&fakeHost{}, func(context.Context) error {
		firstInit = time.Now()
		return nil
	}, opts)

	c.EnsureReady(context.Background())
	if firstInit.Sub(start) < opts.SettleDelay {
		t.Errorf("init sent after %v, want at least %v", firstInit.Sub(start), opts.SettleDelay)
	}
}
