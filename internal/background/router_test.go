package background

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/tjfontaine/polyglot-feed-filter/internal/cache"
	"github.com/tjfontaine/polyglot-feed-filter/internal/core/domain"
	"github.com/tjfontaine/polyglot-feed-filter/internal/core/ports"
	"github.com/tjfontaine/polyglot-feed-filter/internal/document"
	"github.com/tjfontaine/polyglot-feed-filter/internal/evaluation"
	"github.com/tjfontaine/polyglot-feed-filter/internal/offscreen"
	"github.com/tjfontaine/polyglot-feed-filter/internal/settings"
	"github.com/tjfontaine/polyglot-feed-filter/internal/storage/memory"
	"github.com/tjfontaine/polyglot-feed-filter/internal/testutil"
	"github.com/tjfontaine/polyglot-feed-filter/internal/transport"
)

type harness struct {
	kv       *memory.Store
	cache    *cache.Manager
	settings *settings.Store
	model    *testutil.FakeModel
	doc      *offscreen.Document
	router   *Router
	client   *transport.Client
}

func newHarness(t *testing.T, initial domain.Settings) *harness {
	t.Helper()
	ctx := context.Background()

	h := &harness{
		kv:    memory.New(),
		model: testutil.NewFakeModel(),
	}
	h.cache = cache.NewManager(h.kv, 0, nil)
	h.settings = settings.NewStore(h.kv, nil)
	if err := h.settings.Save(ctx, initial); err != nil {
		t.Fatalf("save settings: %v", err)
	}

	h.model.SetRespond(func(ctx context.Context, parts []ports.PromptPart) (string, error) {
		text := testutil.PromptText(parts)
		switch {
		case strings.Contains(text, "garbled"):
			return "I cannot decide", nil
		case strings.Contains(text, "football"):
			return `{"show": false}`, nil
		}
		return `{"show": true}`, nil
	})
	h.doc = offscreen.NewDocument(func() *offscreen.Router {
		return offscreen.NewRouter(h.model, nil, evaluation.DefaultOptions())
	})

	opts := DefaultOptions()
	opts.Document = document.Options{InitAttempts: 3, SettleDelay: time.Millisecond, RetryBackoff: time.Millisecond}
	h.router = NewRouter(h.cache, h.settings, transport.NewClient(h.doc, nil), h.doc, opts)
	h.client = transport.NewClient(transport.NewLoopback(h.router.Server()), nil)

	t.Cleanup(func() {
		h.router.Close()
		h.doc.Close(context.Background())
	})
	return h
}

func (h *harness) evaluate(t *testing.T, id, text string) *domain.EvaluateResponse {
	t.Helper()
	resp, err := transport.Call[*domain.EvaluateResponse](context.Background(), h.client,
		&domain.EvaluateRequest{TweetID: id, TextContent: text}, 5*time.Second)
	if err != nil {
		t.Fatalf("evaluate %s: %v", id, err)
	}
	return resp
}

// offscreenConfig asks the offscreen context directly for its session config.
func (h *harness) offscreenConfig(t *testing.T) domain.SessionConfig {
	t.Helper()
	resp, err := transport.Call[*domain.SessionStatusResponse](context.Background(),
		transport.NewClient(h.doc, nil), &domain.SessionStatusRequest{}, time.Second)
	if err != nil {
		t.Fatalf("offscreen status: %v", err)
	}
	if resp.CurrentConfig == nil {
		return domain.SessionConfig{}
	}
	return *resp.CurrentConfig
}

func (h *harness) documentExists(t *testing.T) bool {
	t.Helper()
	ok, err := h.doc.Exists(context.Background())
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	return ok
}

var enabled = domain.Settings{Enabled: true, Prompt: "no sports", OutputLanguage: domain.OutputLanguageEnglish}

func TestRouter_MissThenHit(t *testing.T) {
	h := newHarness(t, enabled)

	first := h.evaluate(t, "t1", "Great football match")
	if first.CacheHit || first.ShouldShow {
		t.Fatalf("first = %+v, want uncached hide", first)
	}
	prompts := h.model.Prompts.Load()

	second := h.evaluate(t, "t1", "Great football match")
	if !second.CacheHit || second.ShouldShow || second.EvaluationTime != 0 {
		t.Errorf("second = %+v, want cached hide with evaluationTime 0", second)
	}
	if h.model.Prompts.Load() != prompts {
		t.Error("cache hit prompted the model")
	}
}

func TestRouter_CreatesDocumentAndInitializes(t *testing.T) {
	h := newHarness(t, enabled)

	h.evaluate(t, "t1", "hello")
	h.evaluate(t, "t2", "world")

	if !h.documentExists(t) {
		t.Fatal("document not created")
	}
	if cfg := h.offscreenConfig(t); cfg.Prompt != "no sports" {
		t.Errorf("offscreen config = %+v", cfg)
	}
	if got := h.model.Creates.Load(); got != 1 {
		t.Errorf("sessions created = %d, want 1", got)
	}
}

func TestRouter_DisabledShowsWithoutForwarding(t *testing.T) {
	h := newHarness(t, domain.Settings{Enabled: false, Prompt: "no sports", OutputLanguage: domain.OutputLanguageEnglish})

	resp := h.evaluate(t, "t1", "football")
	if !resp.ShouldShow || resp.CacheHit {
		t.Errorf("resp = %+v, want show", resp)
	}
	if h.documentExists(t) {
		t.Error("disabled filtering created the offscreen document")
	}
	if h.cache.Has(context.Background(), "t1") {
		t.Error("disabled filtering wrote the cache")
	}
}

func TestRouter_InconclusiveVerdictNotCached(t *testing.T) {
	h := newHarness(t, enabled)

	resp := h.evaluate(t, "t1", "garbled")
	if !resp.ShouldShow || resp.Error == nil {
		t.Fatalf("resp = %+v, want fail-open with error", resp)
	}
	if h.cache.Has(context.Background(), "t1") {
		t.Error("fail-open verdict was cached")
	}
}

func TestRouter_UninitializedVerdictNotCached(t *testing.T) {
	h := newHarness(t, enabled)
	h.model.MultimodalAvailability = "unavailable"
	h.model.TextAvailability = "unavailable"
	ctx := context.Background()

	resp := h.evaluate(t, "t1", "football")
	if !resp.ShouldShow || resp.Error == nil {
		t.Fatalf("resp = %+v, want fail-open with error", resp)
	}
	if h.cache.Has(ctx, "t1") {
		t.Fatal("verdict from an uninitialized session was cached")
	}

	h.model.TextAvailability = "available"
	resp = h.evaluate(t, "t1", "football")
	if resp.ShouldShow || resp.CacheHit || resp.Error != nil {
		t.Errorf("resp after model came up = %+v, want fresh hide", resp)
	}
	if show, ok := h.cache.Get(ctx, "t1"); !ok || show {
		t.Errorf("cache = %v, %v, want hide", show, ok)
	}
}

// unreadableKV fails every read.
type unreadableKV struct{ *memory.Store }

func (unreadableKV) Get(context.Context, ...string) (map[string]json.RawMessage, error) {
	return nil, errors.New("disk unavailable")
}

func TestRouter_UnreadableSettingsNotCached(t *testing.T) {
	h := newHarness(t, enabled)
	opts := DefaultOptions()
	opts.Document = document.Options{InitAttempts: 1, SettleDelay: time.Millisecond, RetryBackoff: time.Millisecond}
	r := NewRouter(h.cache, settings.NewStore(unreadableKV{h.kv}, nil), transport.NewClient(h.doc, nil), h.doc, opts)
	client := transport.NewClient(transport.NewLoopback(r.Server()), nil)

	resp, err := transport.Call[*domain.EvaluateResponse](context.Background(), client,
		&domain.EvaluateRequest{TweetID: "t1", TextContent: "football"}, 5*time.Second)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !resp.ShouldShow || resp.Error == nil {
		t.Fatalf("resp = %+v, want fail-open with error", resp)
	}
	if h.cache.Has(context.Background(), "t1") {
		t.Error("verdict cached without readable settings")
	}
	if h.documentExists(t) {
		t.Error("offscreen document created without readable settings")
	}
}

func TestRouter_ReinitPersists(t *testing.T) {
	h := newHarness(t, enabled)
	ctx := context.Background()
	h.router.WatchSettings(h.kv)

	h.evaluate(t, "t1", "football")

	want := domain.SessionConfig{Prompt: "only cats", OutputLanguage: domain.OutputLanguageJapanese}
	resp, err := transport.Call[*domain.InitResponse](ctx, h.client, &domain.ReinitRequest{Config: want}, 5*time.Second)
	if err != nil {
		t.Fatalf("reinit: %v", err)
	}
	if !resp.Success {
		t.Fatalf("reinit = %+v", resp)
	}
	if h.cache.Has(ctx, "t1") {
		t.Error("cache survived reinit")
	}

	h.evaluate(t, "t2", "hello")
	if got := h.offscreenConfig(t); !got.Equal(want) {
		t.Errorf("config after next evaluate = %+v, want %+v", got, want)
	}
	stored := h.settings.Load(ctx)
	if !stored.SessionConfig().Equal(want) || !stored.Enabled {
		t.Errorf("stored settings = %+v", stored)
	}

	h.router.Close()
	if !h.cache.Has(ctx, "t2") {
		t.Error("settings watcher cleared the cache again for an already applied config")
	}
}

func TestRouter_SettingsBurstDoesNotBlockWriter(t *testing.T) {
	h := newHarness(t, enabled)
	ctx := context.Background()
	h.router.WatchSettings(h.kv)
	h.evaluate(t, "t1", "hello")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 64; i++ {
			next := enabled
			next.Prompt = "prompt " + strconv.Itoa(i)
			h.settings.Save(ctx, next)
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("settings writes blocked behind the watcher")
	}

	waitFor(t, func() bool { return h.offscreenConfig(t).Prompt == "prompt 63" })
}

func TestRouter_CacheCheckOmitsMissing(t *testing.T) {
	h := newHarness(t, enabled)
	ctx := context.Background()
	h.cache.Set(ctx, "a", true)
	h.cache.Set(ctx, "b", false)

	resp, err := transport.Call[*domain.CacheCheckResponse](ctx, h.client,
		&domain.CacheCheckRequest{TweetIDs: []string{"a", "b", "c"}}, time.Second)
	if err != nil {
		t.Fatalf("cache check: %v", err)
	}
	if len(resp.Results) != 2 || resp.Results["a"] != true || resp.Results["b"] != false {
		t.Errorf("Results = %v", resp.Results)
	}
	if _, ok := resp.Results["c"]; ok {
		t.Error("missing id present in results")
	}
}

func TestRouter_SessionStatus(t *testing.T) {
	h := newHarness(t, enabled)
	h.evaluate(t, "t1", "hello")

	resp, err := transport.Call[*domain.SessionStatusResponse](context.Background(), h.client,
		&domain.SessionStatusRequest{}, time.Second)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !resp.Initialized || resp.CurrentConfig == nil {
		t.Errorf("status = %+v", resp)
	}
}

func TestRouter_SettingsChangeClearsAndReinitializes(t *testing.T) {
	h := newHarness(t, enabled)
	ctx := context.Background()
	h.router.WatchSettings(h.kv)

	h.evaluate(t, "t1", "football")
	if !h.cache.Has(ctx, "t1") {
		t.Fatal("verdict not cached")
	}

	next := enabled
	next.Prompt = "no politics"
	next.OutputLanguage = domain.OutputLanguageJapanese
	if err := h.settings.Save(ctx, next); err != nil {
		t.Fatalf("save: %v", err)
	}

	waitFor(t, func() bool {
		cfg := h.offscreenConfig(t)
		return cfg.Prompt == "no politics" && cfg.OutputLanguage == domain.OutputLanguageJapanese
	})
	if h.cache.Has(ctx, "t1") {
		t.Error("cache survived a prompt change")
	}
}

func TestRouter_StatisticsToggleKeepsCache(t *testing.T) {
	h := newHarness(t, enabled)
	ctx := context.Background()
	h.router.WatchSettings(h.kv)

	h.evaluate(t, "t1", "football")
	creates := h.model.Creates.Load()

	next := enabled
	next.ShowStatistics = true
	h.settings.Save(ctx, next)
	h.router.Close()

	if !h.cache.Has(ctx, "t1") {
		t.Error("statistics toggle cleared the cache")
	}
	if h.model.Creates.Load() != creates {
		t.Error("statistics toggle reinitialized the session")
	}
}

func TestRouter_DisableClearsCache(t *testing.T) {
	h := newHarness(t, enabled)
	ctx := context.Background()
	h.router.WatchSettings(h.kv)

	h.evaluate(t, "t1", "football")

	next := enabled
	next.Enabled = false
	h.settings.Save(ctx, next)
	h.router.Close()

	if h.cache.Has(ctx, "t1") {
		t.Error("disabling filtering kept the cache")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
