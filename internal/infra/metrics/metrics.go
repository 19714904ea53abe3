package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	FetchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "price_fetch_duration_seconds",
		Help:    "Длительность получения цены по стратегиям",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 30, 45, 60, 90, 120},
	}, []string{"strategy", "status"})

	BrowserSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "browser_sessions_active",
		Help: "Число запущенных headless-браузеров",
	})

	PriceChecksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "price_checks_total",
		Help: "Результаты проверок цены",
	}, []string{"mode", "outcome", "stage"})

	PriceCheckRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "price_check_retries_total",
		Help: "Повторы проверок цены после ошибок хранения",
	})

	AlertsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "price_alerts_total",
		Help: "Сработавшие ценовые события",
	}, []string{"type"})

	NotificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_total",
		Help: "Отправка уведомлений по каналам",
	}, []string{"channel", "status"})

	SchedulerEnqueued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_enqueued_total",
		Help: "Задачи проверки, поставленные планировщиком",
	})

	BotSendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_send_errors_total",
		Help: "Ошибки отправки сообщений ботом",
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 25, 30, 35, 40, 45, 50, 55, 60, 90, 120},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		FetchDuration,
		BrowserSessions,
		PriceChecksTotal,
		PriceCheckRetries,
		AlertsTotal,
		NotificationsTotal,
		SchedulerEnqueued,
		BotSendErrors,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := statusOf(err)
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveFetch записывает длительность работы стратегии получения цены.
func ObserveFetch(strategy string, start time.Time, err error) {
	FetchDuration.WithLabelValues(strategy, statusOf(err)).Observe(time.Since(start).Seconds())
}

// IncPriceCheck учитывает завершённую проверку цены.
func IncPriceCheck(mock bool, outcome, stage string) {
	mode := "real"
	if mock {
		mode = "mock"
	}
	PriceChecksTotal.WithLabelValues(mode, outcome, stage).Inc()
}

// IncAlert учитывает сработавшее событие.
func IncAlert(alertType string) {
	AlertsTotal.WithLabelValues(alertType).Inc()
}

// IncNotification учитывает попытку доставки в канал.
func IncNotification(channel string, err error) {
	NotificationsTotal.WithLabelValues(channel, statusOf(err)).Inc()
}
