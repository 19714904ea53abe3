package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"price-tracker-bot/internal/adapters/bot"
	"price-tracker-bot/internal/app"
	"price-tracker-bot/internal/infra/config"
	httpinfra "price-tracker-bot/internal/infra/http"
	applog "price-tracker-bot/internal/infra/log"
	"price-tracker-bot/internal/infra/metrics"
	"price-tracker-bot/internal/usecase/chat"
	"price-tracker-bot/internal/usecase/products"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv, cfg.LogFile)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot-gateway: не удалось подключиться к инфраструктуре")
	}
	defer deps.Close()
	if deps.Sender == nil {
		logger.Fatal().Msg("bot-gateway: не указан токен Telegram (TELEGRAM_BOT_TOKEN)")
	}
	if cfg.Telegram.SecretToken == "" {
		logger.Warn().Msg("bot-gateway: TELEGRAM_SECRET_TOKEN не задан, заголовок вебхука не проверяется")
	}

	productService := products.NewService(deps.Repo, deps.Repo, deps.Queue, logger)
	machine := chat.NewMachine(deps.Repo, deps.Sessions, productService, deps.Registry(), deps.Translator, logger, chat.WithSiteURL(cfg.SiteURL))
	handler := bot.NewHandler(machine, deps.Sender, cfg.Telegram.SecretToken, logger)

	server := httpinfra.NewServer(logger)
	handler.Mount(server.Router)

	if cfg.Telegram.WebhookURL != "" {
		if err := deps.Sender.SetWebhook(cfg.Telegram.WebhookURL, cfg.Telegram.SecretToken); err != nil {
			logger.Error().Err(err).Msg("bot-gateway: не удалось зарегистрировать вебхук")
		}
	}

	handlerDone := make(chan struct{})
	go func() {
		handler.Run(ctx)
		close(handlerDone)
	}()

	go func() {
		if err := server.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logger.Error().Err(err).Msg("bot-gateway: HTTP сервер остановлен")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("bot-gateway: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("bot-gateway: ошибка при остановке HTTP сервера")
	}
	handler.Close()
	<-handlerDone
	logger.Info().Msg("bot-gateway: принятые апдейты обработаны")
}
