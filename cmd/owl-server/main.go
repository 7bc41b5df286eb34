// Package main is the entry point for the Owl Middleware server.
// It serves the HTTP gateway and the Telegram bot from one process.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/prn-tf/owl-middleware/internal/app"
	"github.com/prn-tf/owl-middleware/internal/bot"
	"github.com/prn-tf/owl-middleware/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger, err := app.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up logging")
	}
	log.Logger = logger

	logger.Info().
		Str("version", app.Version).
		Str("build_time", app.BuildTime).
		Str("git_commit", app.GitCommit).
		Msg("Starting Owl Middleware")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
	logger.Info().Msg("Server stopped")
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Store.Migrate(ctx); err != nil {
		return err
	}

	if cfg.Janitor.Enabled {
		if err := a.Janitor.Start(); err != nil {
			return err
		}
		defer a.Janitor.Stop()
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Server.Enabled {
		srv := newHTTPServer(cfg, a)
		g.Go(func() error {
			logger.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			logger.Info().Msg("Shutting down HTTP server")
			return srv.Shutdown(shutdownCtx)
		})
	}

	if cfg.Bot.Enabled {
		b, err := newBot(cfg, a, logger)
		if err != nil {
			return err
		}
		g.Go(func() error { return b.Run(gctx) })
	}

	return g.Wait()
}

func newHTTPServer(cfg *config.Config, a *app.App) *http.Server {
	return &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      http.MaxBytesHandler(a.HTTPHandler(), cfg.Server.MaxBodySize),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

func newBot(cfg *config.Config, a *app.App, logger zerolog.Logger) (*bot.Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.Bot.Token)
	if err != nil {
		return nil, err
	}
	api.Debug = cfg.Bot.Debug
	logger.Info().Str("username", api.Self.UserName).Msg("Authorized on Telegram")

	return bot.New(bot.Config{
		WebURL:      cfg.Bot.WebURL,
		Workers:     cfg.Bot.Workers,
		PollTimeout: cfg.Bot.PollTimeout,
		SearchLimit: cfg.Bot.SearchLimit,
		MaxFileSize: cfg.Upload.MaxFileSize,
		TokenHours:  int(cfg.Auth.TokenExpiration.Hours()),
	}, bot.Deps{
		API:        api,
		Auth:       a.Auth,
		Containers: a.Containers,
		Files:      a.Files,
		Search:     a.Search,
		OCR:        a.OCR,
		State:      a.State,
		Sessions:   a.Sessions,
		Metrics:    a.Metrics,
		Logger:     logger,
	})
}
