package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/nhle/mail-digest/internal/ai"
	"github.com/nhle/mail-digest/internal/credential"
	"github.com/nhle/mail-digest/internal/logger"
	"github.com/nhle/mail-digest/internal/metrics"
	"github.com/nhle/mail-digest/internal/model"
	"github.com/nhle/mail-digest/internal/notify"
	"github.com/nhle/mail-digest/internal/source/email"
	"github.com/nhle/mail-digest/internal/sync"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "mail-digest: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	cfg, err := model.LoadConfig(model.ConfigPath(), credential.New())
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metrics.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info("metrics listening", zap.String("addr", cfg.MetricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	poller := sync.New(
		email.NewIMAPClient(cfg.Mail, cfg.StagingDir, log),
		ai.New(cfg.AI, log),
		notify.NewTelegram(cfg.Telegram, log),
		cfg,
		log,
	)

	log.Info("mail digest started",
		zap.Strings("folders", cfg.Mail.Folders),
		zap.Int("senders", len(cfg.Senders)),
		zap.Duration("interval", cfg.Poll.Interval),
	)

	if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info("stopped by signal")
	return nil
}
