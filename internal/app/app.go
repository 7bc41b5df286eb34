// Package app assembles Owl Middleware's services from configuration.
// The server and the admin CLI share it.
package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/prn-tf/owl-middleware/internal/auth"
	"github.com/prn-tf/owl-middleware/internal/backend"
	"github.com/prn-tf/owl-middleware/internal/cache/memory"
	cacheredis "github.com/prn-tf/owl-middleware/internal/cache/redis"
	"github.com/prn-tf/owl-middleware/internal/config"
	"github.com/prn-tf/owl-middleware/internal/handler"
	"github.com/prn-tf/owl-middleware/internal/llm"
	"github.com/prn-tf/owl-middleware/internal/lock"
	"github.com/prn-tf/owl-middleware/internal/metrics"
	"github.com/prn-tf/owl-middleware/internal/ocr"
	"github.com/prn-tf/owl-middleware/internal/repository"
	"github.com/prn-tf/owl-middleware/internal/repository/store"
	"github.com/prn-tf/owl-middleware/internal/service"
	"github.com/prn-tf/owl-middleware/internal/storage"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// NewLogger builds the process logger from the logging section.
func NewLogger(cfg config.LoggingConfig) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	if cfg.TimeFormat != "" {
		zerolog.TimeFieldFormat = cfg.TimeFormat
	}

	var out io.Writer
	switch cfg.Output {
	case "", "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("open log output: %w", err)
		}
		out = f
	}
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}

// App holds the opened infrastructure and the services built on it.
type App struct {
	Config *config.Config
	Logger zerolog.Logger

	Store     repository.Store
	Repos     *repository.Repositories
	Cache     repository.Cache
	Locker    lock.Locker
	Backend   *backend.Client
	Artifacts storage.Backend
	Tokens    *auth.TokenIssuer

	// Registry is nil when metrics are disabled.
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	Auth       *service.AuthService
	Users      *service.UserService
	Containers *service.ContainerService
	Files      *service.FileService
	Search     *service.SearchService
	Chat       *service.ChatService
	OCR        *service.OCRService
	State      *service.StateService
	Sessions   *service.SearchSessions
	Janitor    *service.JanitorService

	closers []func()
}

// New opens the metadata store, the cache and every client, then builds the services.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}
	if err := a.open(ctx); err != nil {
		a.Close()
		return nil, err
	}
	a.build()
	return a, nil
}

func (a *App) open(ctx context.Context) error {
	cfg := a.Config

	if cfg.Metrics.Enabled {
		a.Registry = prometheus.NewRegistry()
		a.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		a.Metrics = metrics.New(a.Registry)
	}

	st, err := store.Open(ctx, cfg.Database, a.Logger)
	if err != nil {
		return fmt.Errorf("open metadata store: %w", err)
	}
	a.Store = st
	a.Repos = st.Repositories()
	a.closers = append(a.closers, func() {
		if err := st.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("failed to close metadata store")
		}
	})

	if cfg.Redis.Enabled {
		client, err := cacheredis.NewClient(ctx, cfg.Redis, a.Logger)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		a.Cache = cacheredis.NewCache(client)
		a.Locker = lock.NewRedisLocker(client)
		a.closers = append(a.closers, func() { _ = client.Close() })
	} else {
		c := memory.NewCache(time.Minute)
		l := lock.NewMemoryLocker()
		a.Cache = c
		a.Locker = l
		a.closers = append(a.closers, c.Stop, l.Stop)
	}

	artifacts, err := storage.Open(ctx, cfg.Storage, a.Logger)
	if err != nil {
		return fmt.Errorf("open artifact storage: %w", err)
	}
	a.Artifacts = artifacts

	tokens, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiration)
	if err != nil {
		return err
	}
	a.Tokens = tokens

	a.Backend = backend.New(cfg.Backend, a.Metrics, a.Logger)
	return nil
}

func (a *App) build() {
	cfg := a.Config
	repos := a.Repos

	// Providers without an API key stay unset and their features report unavailable.
	var completer service.Completer
	if cfg.LLM.APIKey != "" {
		completer = llm.New(cfg.LLM, a.Metrics, a.Logger)
	}
	var recognizer service.Recognizer
	if cfg.OCR.APIKey != "" {
		recognizer = ocr.New(cfg.OCR, a.Metrics, a.Logger)
	}

	a.Auth = service.NewAuthService(repos.User, a.Tokens, cfg.Auth.MinPasswordLength, a.Logger)
	a.Users = service.NewUserService(repos.User, a.Logger)
	a.Containers = service.NewContainerService(repos.Container, repos.File, a.Backend, a.Metrics, a.Logger)
	a.Files = service.NewFileService(repos.File, repos.Container, a.Backend, a.Metrics, service.FileServiceConfig{
		MaxFileSize:   cfg.Upload.MaxFileSize,
		PreviewLength: cfg.Upload.PreviewLength,
	}, a.Logger)
	a.Search = service.NewSearchService(repos.Container, a.Backend, a.Logger)
	a.Chat = service.NewChatService(a.Search, repos.Container, repos.File, a.Backend, completer, service.ChatConfig{
		SystemPrompt:    cfg.LLM.SystemPrompt,
		MaxContextFiles: cfg.LLM.MaxContextFiles,
	}, a.Logger)
	a.OCR = service.NewOCRService(recognizer, a.Files, repos.Container, a.Artifacts, cfg.OCR.PreviewLength, a.Logger)
	a.State = service.NewStateService(a.Cache, a.Locker, cfg.State.TTL, cfg.State.LockTTL, a.Metrics, a.Logger)
	a.Sessions = service.NewSearchSessions(cfg.State.SearchSessions, cfg.State.SearchSessionTTL, a.Metrics)
	a.Janitor = service.NewJanitorService(repos.Container, repos.File, a.Backend, a.State, a.Locker, a.Metrics, a.Logger, service.JanitorConfig{
		Enabled:              cfg.Janitor.Enabled,
		StateCleanupSchedule: cfg.Janitor.StateCleanupSchedule,
		ReconcileSchedule:    cfg.Janitor.ReconcileSchedule,
		HealthSchedule:       cfg.Janitor.HealthSchedule,
		GracePeriod:          cfg.Janitor.GracePeriod,
		StateTTL:             cfg.State.TTL,
		DryRun:               cfg.Janitor.DryRun,
		LockTTL:              cfg.Janitor.LockTTL,
	})
}

// HTTPHandler builds the gateway's router over the services.
func (a *App) HTTPHandler() http.Handler {
	authConfig := auth.DefaultConfig()
	authConfig.Logger = &a.Logger

	cfg := a.Config
	rc := handler.RouterConfig{
		AuthHandler:      handler.NewAuthHandler(a.Auth, a.Logger),
		ContainerHandler: handler.NewContainerHandler(a.Containers, a.Logger),
		FileHandler:      handler.NewFileHandler(a.Files, cfg.Upload.MaxFileSize, a.Logger),
		SearchHandler:    handler.NewSearchHandler(a.Search, a.Chat, a.Logger),
		OCRHandler:       handler.NewOCRHandler(a.OCR, a.Logger),
		AuthMiddleware:   auth.Middleware(a.Repos.User, a.Tokens, authConfig),
		Metrics:          a.Metrics,
		MetricsPath:      cfg.Metrics.Path,
		Logger:           a.Logger,
	}
	if a.Registry != nil {
		rc.MetricsHandler = promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{})
	}
	return handler.NewRouter(rc).Handler()
}

// Close releases everything New opened, in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
