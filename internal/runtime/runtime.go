// Package runtime wires the background, offscreen and content contexts of
// the feed filter and manages their lifecycle.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/tjfontaine/polyglot-feed-filter/internal/backend/httpfetch"
	"github.com/tjfontaine/polyglot-feed-filter/internal/backend/ollama"
	"github.com/tjfontaine/polyglot-feed-filter/internal/background"
	"github.com/tjfontaine/polyglot-feed-filter/internal/cache"
	"github.com/tjfontaine/polyglot-feed-filter/internal/content"
	"github.com/tjfontaine/polyglot-feed-filter/internal/core/domain"
	"github.com/tjfontaine/polyglot-feed-filter/internal/core/ports"
	"github.com/tjfontaine/polyglot-feed-filter/internal/document"
	"github.com/tjfontaine/polyglot-feed-filter/internal/evaluation"
	"github.com/tjfontaine/polyglot-feed-filter/internal/offscreen"
	"github.com/tjfontaine/polyglot-feed-filter/internal/pkg/config"
	"github.com/tjfontaine/polyglot-feed-filter/internal/server"
	"github.com/tjfontaine/polyglot-feed-filter/internal/settings"
	"github.com/tjfontaine/polyglot-feed-filter/internal/storage/badger"
	"github.com/tjfontaine/polyglot-feed-filter/internal/storage/memory"
	"github.com/tjfontaine/polyglot-feed-filter/internal/storage/sqlite"
	"github.com/tjfontaine/polyglot-feed-filter/internal/telemetry"
	"github.com/tjfontaine/polyglot-feed-filter/internal/transport"
	"github.com/tjfontaine/polyglot-feed-filter/internal/transport/httptransport"
)

// Runtime runs the filter in one process. The offscreen document is created
// lazily by the background router on the first evaluation.
type Runtime struct {
	// Dependencies (injected via options)
	config  ports.ConfigProvider
	kv      ports.KVStore
	model   ports.LanguageModel
	fetcher ports.ImageFetcher
	logger  *slog.Logger

	noServer bool

	cfg        *config.Config
	cache      *cache.Manager
	settings   *settings.Store
	doc        *offscreen.Document
	background *background.Router
	content    *content.Client
	server     *server.Server
	addr       string
	serveErr   chan error

	shutdownTracer func(context.Context) error

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
}

// New creates a Runtime with the given options. Storage, model and fetcher
// left unset are built from the configuration at Start.
func New(opts ...Option) (*Runtime, error) {
	r := &Runtime{logger: slog.Default()}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r, nil
}

// Start loads the configuration and brings up the contexts.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ctx != nil {
		return fmt.Errorf("runtime already started")
	}
	r.ctx, r.cancel = context.WithCancel(ctx)

	cfg, err := r.loadConfig(r.ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	r.cfg = cfg

	if cfg.Telemetry.Tracing {
		shutdown, err := telemetry.InitTracer("feedfilter", r.logger)
		if err != nil {
			return fmt.Errorf("init tracer: %w", err)
		}
		r.shutdownTracer = shutdown
	}

	if r.kv == nil {
		kv, err := openStorage(cfg.Storage, r.logger)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		r.kv = kv
	}
	if r.model == nil {
		r.model = ollama.NewClient(
			ollama.WithBaseURL(cfg.Ollama.BaseURL),
			ollama.WithModels(cfg.Ollama.TextModel, cfg.Ollama.VisionModel),
			ollama.WithLogger(r.logger),
		)
	}
	if r.fetcher == nil {
		fetchOpts := []httpfetch.Option{httpfetch.WithMaxBytes(cfg.Fetch.MaxBytes)}
		if cfg.Fetch.RatePerSecond > 0 {
			fetchOpts = append(fetchOpts, httpfetch.WithRateLimit(cfg.Fetch.RatePerSecond, max(cfg.Fetch.Burst, 1)))
		}
		if !cfg.Fetch.AllowPrivate {
			fetchOpts = append(fetchOpts, httpfetch.WithPublicOnly())
		}
		r.fetcher = httpfetch.New(fetchOpts...)
	}

	r.cache = cache.NewManager(r.kv, cfg.Cache.MaxEntries, r.logger)
	r.settings = settings.NewStore(r.kv, r.logger)
	if err := r.seedSettings(r.ctx, cfg.Filter); err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}

	evalOpts := evaluation.DefaultOptions()
	evalOpts.PromptTimeout = cfg.Timeouts.Prompt
	evalOpts.FetchTimeout = cfg.Timeouts.ImageFetch
	evalOpts.Logger = r.logger
	r.doc = offscreen.NewDocument(func() *offscreen.Router {
		return offscreen.NewRouter(r.model, r.fetcher, evalOpts)
	})

	bgOpts := background.Options{
		EvaluateTimeout: cfg.Timeouts.Evaluate,
		ControlTimeout:  cfg.Timeouts.Control,
		InitTimeout:     cfg.Timeouts.Init,
		Document: document.Options{
			InitAttempts: cfg.Document.InitAttempts,
			SettleDelay:  cfg.Document.SettleDelay,
			RetryBackoff: cfg.Document.RetryBackoff,
			Logger:       r.logger,
		},
		Logger: r.logger,
	}
	r.background = background.NewRouter(r.cache, r.settings, transport.NewClient(r.doc, r.logger), r.doc, bgOpts)
	r.background.WatchSettings(r.kv)

	r.content = content.NewClient(transport.NewLoopback(r.background.Server()), content.Timeouts{
		Evaluate:      cfg.Timeouts.Evaluate,
		CheckCache:    cfg.Timeouts.Control,
		SessionStatus: cfg.Timeouts.Control,
		Reinit:        cfg.Timeouts.Init,
	}, r.logger)

	if cfg.Server.Enabled && !r.noServer {
		if err := r.startServer(cfg.Server); err != nil {
			return fmt.Errorf("start server: %w", err)
		}
	}

	if r.config != nil {
		if err := r.config.Watch(r.ctx, r.onConfigChange); err != nil {
			r.logger.Warn("config watch unavailable", slog.String("error", err.Error()))
		}
	}

	r.logger.Info("feed filter started",
		slog.String("storage", cfg.Storage.Type),
		slog.Bool("server", r.server != nil),
		slog.String("text_model", cfg.Ollama.TextModel),
		slog.String("vision_model", cfg.Ollama.VisionModel))

	return nil
}

func (r *Runtime) loadConfig(ctx context.Context) (*config.Config, error) {
	if r.config != nil {
		return r.config.Load(ctx)
	}
	// Environment and defaults only.
	return config.LoadFile("")
}

func openStorage(cfg config.StorageConfig, logger *slog.Logger) (ports.KVStore, error) {
	switch cfg.Type {
	case "memory":
		return memory.New(), nil
	case "sqlite":
		return sqlite.New(cfg.SQLite.Path)
	default:
		bcfg := badger.DefaultConfig(cfg.Badger.Path)
		if cfg.Badger.InMemory {
			bcfg = badger.InMemoryConfig()
		}
		bcfg.Logger = logger
		return badger.Open(bcfg)
	}
}

// seedSettings writes the configured filter section when no settings record
// exists yet. A stored record wins over the file.
func (r *Runtime) seedSettings(ctx context.Context, filter config.FilterConfig) error {
	existing, err := r.kv.Get(ctx, settings.Key)
	if err != nil {
		return domain.ErrStorage("read settings", err)
	}
	if _, ok := existing[settings.Key]; ok {
		return nil
	}
	return r.settings.Save(ctx, filterSettings(filter))
}

func filterSettings(filter config.FilterConfig) domain.Settings {
	s := domain.DefaultSettings()
	s.Enabled = filter.Enabled
	s.Prompt = filter.Prompt
	s.ShowStatistics = filter.ShowStatistics
	if lang, ok := domain.ParseOutputLanguage(filter.OutputLanguage); ok {
		s.OutputLanguage = lang
	}
	return s
}

// onConfigChange writes an edited filter section to the settings record. The
// background router's settings watch does the rest.
func (r *Runtime) onConfigChange(cfg *config.Config) {
	r.mu.Lock()
	prev := r.cfg
	r.cfg = cfg
	r.mu.Unlock()

	if prev != nil && prev.Filter == cfg.Filter {
		return
	}
	ctx, cancel := context.WithTimeout(r.ctx, 5*time.Second)
	defer cancel()
	if err := r.settings.Save(ctx, filterSettings(cfg.Filter)); err != nil {
		r.logger.Error("failed to apply filter config", slog.String("error", err.Error()))
		return
	}
	r.logger.Info("filter settings updated from config")
}

func (r *Runtime) startServer(cfg config.ServerConfig) error {
	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil {
		return fmt.Errorf("parse server timeout %q: %w", cfg.Timeout, err)
	}

	r.server = server.New(cfg.Port, timeout, r.logger)
	r.server.Mount("/v1", httptransport.Handler(r.background.Server()))

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	r.addr = ln.Addr().String()
	r.serveErr = make(chan error, 1)

	go func() {
		r.serveErr <- r.server.Serve(ln)
	}()
	return nil
}

// Content returns the capture surface's client.
func (r *Runtime) Content() *content.Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.content
}

// Addr returns the HTTP listen address, or "" when the server is disabled.
func (r *Runtime) Addr() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addr
}

// Wait blocks until the HTTP server stops or ctx is done.
func (r *Runtime) Wait(ctx context.Context) error {
	r.mu.Lock()
	errc := r.serveErr
	r.mu.Unlock()

	if errc == nil {
		<-ctx.Done()
		return nil
	}
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return nil
	}
}

// Shutdown gracefully stops the runtime.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logger.Info("shutting down feed filter")

	if r.cancel != nil {
		r.cancel()
	}

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if r.server != nil {
		if err := r.server.Shutdown(ctx); err != nil {
			r.logger.Error("failed to shutdown server", slog.String("error", err.Error()))
			keep(err)
		}
	}

	if r.background != nil {
		r.background.Close()
	}

	if r.doc != nil {
		if err := r.doc.Close(ctx); err != nil {
			r.logger.Error("failed to close offscreen document", slog.String("error", err.Error()))
		}
	}

	if r.config != nil {
		if err := r.config.Close(); err != nil {
			r.logger.Error("failed to close config", slog.String("error", err.Error()))
		}
	}

	if r.kv != nil {
		if err := r.kv.Close(); err != nil {
			r.logger.Error("failed to close storage", slog.String("error", err.Error()))
			keep(err)
		}
	}

	if r.shutdownTracer != nil {
		if err := r.shutdownTracer(ctx); err != nil {
			r.logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}

	r.logger.Info("feed filter shutdown complete")
	return firstErr
}

