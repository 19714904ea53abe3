package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"price-tracker-bot/internal/app"
	"price-tracker-bot/internal/infra/config"
	applog "price-tracker-bot/internal/infra/log"
	"price-tracker-bot/internal/infra/metrics"
	"price-tracker-bot/internal/usecase/schedule"
)

func main() {
	once := flag.Bool("once", false, "поставить просроченные проверки один раз и выйти")
	flag.Parse()

	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv, cfg.LogFile)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось подключиться к инфраструктуре")
	}
	defer deps.Close()

	svc := schedule.NewService(deps.Repo, deps.Queue, logger)
	tick := func() {
		n, err := svc.Tick(ctx, time.Now().UTC())
		if err != nil {
			logger.Error().Err(err).Int("enqueued", n).Msg("scheduler: проход завершён с ошибками")
			return
		}
		logger.Info().Int("enqueued", n).Msg("scheduler: проход завершён")
	}

	if *once {
		tick()
		return
	}

	metrics.MustRegister(prometheus.DefaultRegisterer)
	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)

	cronLog := applog.CronLogger(logger)
	c := cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)
	if _, err := c.AddFunc(cfg.SchedulerCron, tick); err != nil {
		logger.Fatal().Err(err).Str("spec", cfg.SchedulerCron).Msg("scheduler: некорректное расписание")
	}
	c.Start()
	logger.Info().Str("spec", cfg.SchedulerCron).Msg("scheduler: запущен")

	<-ctx.Done()
	<-c.Stop().Done()
	logger.Info().Msg("scheduler: остановлен")
}
