package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"price-tracker-bot/internal/app"
	"price-tracker-bot/internal/infra/config"
	applog "price-tracker-bot/internal/infra/log"
	"price-tracker-bot/internal/infra/metrics"
	"price-tracker-bot/internal/usecase/check"
	"price-tracker-bot/internal/worker"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv, cfg.LogFile)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)

	deps, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: не удалось подключиться к инфраструктуре")
	}
	defer deps.Close()

	dispatcher, err := deps.Dispatcher()
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: не удалось собрать рассыльщик")
	}
	task := check.NewTask(deps.Repo, deps.Repo, deps.Registry(), dispatcher, logger)

	w := worker.New(deps.Queue, task, deps.Locker, worker.Config{
		Concurrency: cfg.Check.Workers,
		MaxAttempts: cfg.Check.MaxAttempts,
		RetryDelay:  cfg.Check.RetryDelay,
		LockTTL:     cfg.Check.LockTTL,
	}, logger)

	logger.Info().Int("concurrency", cfg.Check.Workers).Str("queue", cfg.Queue.Backend).Msg("worker: запуск обработки очереди")
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("worker: остановлен с ошибкой")
		return
	}
	logger.Info().Msg("worker: остановлен")
}
