package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"noti-sentry/internal/adapters/repo"
	"noti-sentry/internal/infra/config"
	"noti-sentry/internal/infra/db"
	"noti-sentry/internal/infra/log"
	"noti-sentry/internal/infra/metrics"
	"noti-sentry/internal/usecase/retention"
	settingsusecase "noti-sentry/internal/usecase/settings"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv).With().Str("component", "sweeper").Logger()

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("sweeper: нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)
	settingsService, err := settingsusecase.NewService(repoAdapter)
	if err != nil {
		logger.Fatal().Err(err).Msg("sweeper: настройки не загружены")
	}
	go settingsService.Run(ctx, cfg.Settings.Refresh)
	retentionService := retention.NewService(logger, repoAdapter, repoAdapter, settingsService)

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)

	logger.Info().Dur("interval", cfg.Sweep.Interval).Msg("sweeper: старт")
	if err := retentionService.Sweep(ctx, time.Now()); err != nil {
		logger.Error().Err(err).Msg("sweeper: свип не выполнен")
	}

	ticker := time.NewTicker(cfg.Sweep.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("sweeper: остановка")
			return
		case now := <-ticker.C:
			if err := retentionService.Sweep(ctx, now); err != nil {
				logger.Error().Err(err).Msg("sweeper: свип не выполнен")
			}
		}
	}
}
