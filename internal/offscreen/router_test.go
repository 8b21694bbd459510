package offscreen

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tjfontaine/polyglot-feed-filter/internal/core/domain"
	"github.com/tjfontaine/polyglot-feed-filter/internal/core/ports"
	"github.com/tjfontaine/polyglot-feed-filter/internal/evaluation"
	"github.com/tjfontaine/polyglot-feed-filter/internal/testutil"
	"github.com/tjfontaine/polyglot-feed-filter/internal/transport"
)

var cfg = domain.SessionConfig{Prompt: "no sports", OutputLanguage: domain.OutputLanguageEnglish}

func newTestRouter(t *testing.T, model *testutil.FakeModel) (*Router, *transport.Client) {
	t.Helper()
	opts := evaluation.DefaultOptions()
	opts.PromptTimeout = 2 * time.Second
	r := NewRouter(model, &testutil.FakeFetcher{}, opts)
	t.Cleanup(func() { r.Close(context.Background()) })
	return r, transport.NewClient(transport.NewLoopback(r.Server()), nil)
}

func initSession(t *testing.T, c *transport.Client, config domain.SessionConfig) *domain.InitResponse {
	t.Helper()
	resp, err := transport.Call[*domain.InitResponse](context.Background(), c, &domain.InitRequest{Config: config}, time.Second)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	return resp
}

func evaluate(c *transport.Client, id, text string) (*domain.EvaluateResponse, error) {
	return transport.Call[*domain.EvaluateResponse](context.Background(), c,
		&domain.EvaluateRequest{TweetID: id, TextContent: text}, 5*time.Second)
}

func TestRouter_Init(t *testing.T) {
	tests := []struct {
		name        string
		multi, text string
		wantSuccess bool
		wantType    *domain.SessionType
	}{
		{
			name: "multimodal", multi: "available", text: "available",
			wantSuccess: true, wantType: ptr(domain.SessionTypeMultimodal),
		},
		{
			name: "text-only", multi: "unavailable", text: "available",
			wantSuccess: true, wantType: ptr(domain.SessionTypeTextOnly),
		},
		{
			name: "nothing usable", multi: "unavailable", text: "unavailable",
			wantSuccess: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := testutil.NewFakeModel()
			model.MultimodalAvailability = tt.multi
			model.TextAvailability = tt.text
			_, c := newTestRouter(t, model)

			resp := initSession(t, c, cfg)
			if resp.Success != tt.wantSuccess {
				t.Fatalf("Success = %v, want %v (error %v)", resp.Success, tt.wantSuccess, resp.Error)
			}
			if !tt.wantSuccess && resp.Error == nil {
				t.Error("failed init carries no error text")
			}
			got := resp.SessionStatus.SessionType
			if (got == nil) != (tt.wantType == nil) || (got != nil && *got != *tt.wantType) {
				t.Errorf("SessionType = %v, want %v", got, tt.wantType)
			}
		})
	}
}

func TestRouter_InitReusesSessionForSameConfig(t *testing.T) {
	model := testutil.NewFakeModel()
	_, c := newTestRouter(t, model)

	initSession(t, c, cfg)
	initSession(t, c, domain.SessionConfig{Prompt: "  no sports ", OutputLanguage: domain.OutputLanguageEnglish})

	if got := model.Creates.Load(); got != 1 {
		t.Errorf("Create() called %d times, want 1", got)
	}
}

func TestRouter_Status(t *testing.T) {
	_, c := newTestRouter(t, testutil.NewFakeModel())
	ctx := context.Background()

	before, err := transport.Call[*domain.SessionStatusResponse](ctx, c, &domain.SessionStatusRequest{}, time.Second)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if before.Initialized || before.CurrentConfig != nil {
		t.Errorf("status before init = %+v", before)
	}

	initSession(t, c, cfg)
	after, err := transport.Call[*domain.SessionStatusResponse](ctx, c, &domain.SessionStatusRequest{}, time.Second)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !after.Initialized || !after.IsMultimodal || after.CurrentConfig == nil || after.CurrentConfig.Prompt != "no sports" {
		t.Errorf("status after init = %+v", after)
	}
}

func TestRouter_Evaluate(t *testing.T) {
	model := testutil.NewFakeModel()
	model.SetRespond(func(ctx context.Context, parts []ports.PromptPart) (string, error) {
		if strings.Contains(testutil.PromptText(parts), "touchdown") {
			return `{"show": false}`, nil
		}
		return `{"show": true}`, nil
	})
	_, c := newTestRouter(t, model)
	initSession(t, c, cfg)

	hidden, err := evaluate(c, "t1", "What a touchdown!")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if hidden.ShouldShow || hidden.Error != nil || hidden.CacheHit || hidden.TweetID != "t1" {
		t.Errorf("hidden = %+v", hidden)
	}

	shown, err := evaluate(c, "t2", "A new Go release")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !shown.ShouldShow {
		t.Errorf("shown = %+v", shown)
	}
}

func TestRouter_EvaluateUninitializedFailsOpen(t *testing.T) {
	model := testutil.NewFakeModel()
	_, c := newTestRouter(t, model)

	resp, err := evaluate(c, "t1", "anything")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !resp.ShouldShow {
		t.Error("uninitialized evaluation did not fail open")
	}
	if resp.Error == nil {
		t.Error("uninitialized evaluation carried no error")
	}
	if model.Prompts.Load() != 0 {
		t.Errorf("model prompted %d times", model.Prompts.Load())
	}
}

func TestRouter_ReinitDropsQueuedWork(t *testing.T) {
	model := testutil.NewFakeModel()
	started := make(chan struct{}, 1)
	unblock := make(chan struct{})
	var calls atomic.Int32
	model.SetRespond(func(ctx context.Context, parts []ports.PromptPart) (string, error) {
		if calls.Add(1) == 1 {
			started <- struct{}{}
			select {
			case <-unblock:
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		return `{"show": false}`, nil
	})

	r, c := newTestRouter(t, model)
	initSession(t, c, cfg)

	type outcome struct {
		resp *domain.EvaluateResponse
		err  error
	}
	first := make(chan outcome, 1)
	second := make(chan outcome, 1)

	go func() {
		resp, err := evaluate(c, "running", "first")
		first <- outcome{resp, err}
	}()
	<-started

	go func() {
		resp, err := evaluate(c, "queued", "second")
		second <- outcome{resp, err}
	}()
	deadline := time.Now().Add(time.Second)
	for r.queue.Pending() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("second evaluation never queued")
		}
		time.Sleep(time.Millisecond)
	}
	time.Sleep(5 * time.Millisecond)

	reinit, err := transport.Call[*domain.InitResponse](context.Background(), c,
		&domain.ReinitRequest{Config: domain.SessionConfig{Prompt: "no politics", OutputLanguage: domain.OutputLanguageSpanish}}, time.Second)
	if err != nil || !reinit.Success {
		t.Fatalf("reinit = %+v, %v", reinit, err)
	}
	close(unblock)

	got := <-second
	if got.err != nil {
		t.Fatalf("queued evaluate: %v", got.err)
	}
	if !got.resp.ShouldShow || got.resp.Error == nil || !strings.Contains(*got.resp.Error, "dropped") {
		t.Errorf("queued evaluation = %+v, want fail-open drop", got.resp)
	}

	ran := <-first
	if ran.err != nil || ran.resp.ShouldShow {
		t.Errorf("running evaluation = %+v, %v; it must finish undisturbed", ran.resp, ran.err)
	}

	if cur, _ := r.sessions.CurrentConfig(); cur.Prompt != "no politics" {
		t.Errorf("config after reinit = %+v", cur)
	}
}

func ptr[T any](v T) *T { return &v }
