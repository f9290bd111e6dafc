package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"imageforge/internal/archive"
	"imageforge/internal/http/handlers"
	httpapi "imageforge/internal/http/httpapi"
	"imageforge/internal/infra"
	"imageforge/internal/ledger"
	"imageforge/internal/poller"
	"imageforge/internal/providers/quickdraw"
	"imageforge/internal/service"
	"imageforge/internal/storage/drive"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	gen := quickdraw.NewClient(quickdraw.Options{
		BaseURL: cfg.QuickdrawBaseURL,
		APIKey:  cfg.QuickdrawAPIKey,
		Logger:  &logger,
	})
	jobPoller := poller.New(gen, poller.Options{
		MaxAttempts: cfg.PollMaxAttempts,
		Interval:    cfg.PollInterval,
	})

	store, err := drive.NewTokenStore(cfg.TokenCachePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init token store")
	}
	connector := drive.NewConnector(drive.OAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	}, store)

	ctx := context.Background()
	if cfg.GoogleServiceAccountFile != "" {
		keyJSON, err := os.ReadFile(cfg.GoogleServiceAccountFile)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to read service account key")
		}
		if _, err := connector.UseServiceAccount(ctx, keyJSON); err != nil {
			logger.Fatal().Err(err).Msg("failed to build service account session")
		}
		logger.Info().Msg("storage connected via service account")
	} else if sess, err := connector.Resume(ctx); err != nil {
		logger.Warn().Err(err).Msg("failed to resume storage session")
	} else if sess != nil {
		logger.Info().Msg("storage session resumed")
	}

	storage := drive.NewClient(drive.Options{Logger: &logger})
	archiver := archive.New(storage, archive.Options{Logger: &logger})

	studio := service.New(service.Options{
		Generation:  gen,
		Poller:      jobPoller,
		Archiver:    archiver,
		Storage:     storage,
		Ledger:      ledger.New(),
		Logger:      logger,
		FolderName:  cfg.DriveFolderName,
		CallbackURL: cfg.CallbackURL,
	})

	app := handlers.NewApp(studio, connector, logger)
	router := httpapi.NewRouter(app, logger, cfg.RateLimitPerMin)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
