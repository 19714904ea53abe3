// Package worker разбирает очередь задач проверки цены.
package worker

import (
	"context"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"price-tracker-bot/internal/domain"
	"price-tracker-bot/internal/infra/metrics"
	"price-tracker-bot/internal/usecase/check"
)

const lockPrefix = "price_check_lock:"

// attemptBudget ограничивает одну попытку: API, прокси и рендер браузером.
const attemptBudget = 2 * time.Minute

// LockKey возвращает ключ блокировки проверки товара.
func LockKey(productID int64) string {
	return lockPrefix + strconv.FormatInt(productID, 10)
}

// Runner выполняет одну попытку проверки.
type Runner interface {
	Run(ctx context.Context, job domain.PriceCheckJob) check.Outcome
}

// Config задаёт параллелизм и политику повторов.
type Config struct {
	Concurrency int
	MaxAttempts int
	RetryDelay  time.Duration
	LockTTL     time.Duration
}

// Worker читает задачи из очереди и повторяет проверку при временных ошибках.
type Worker struct {
	queue    domain.CheckQueue
	runner   Runner
	locker   domain.Locker
	validate *validator.Validate
	cfg      Config
	log      zerolog.Logger
}

// New создаёт исполнителя. locker может быть nil, тогда проверки не блокируются.
func New(queue domain.CheckQueue, runner Runner, locker domain.Locker, cfg Config, logger zerolog.Logger) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	// блокировка держится на всех попытках вместе с паузами между ними
	if hold := lockHold(cfg); cfg.LockTTL < hold {
		logger.Debug().Dur("configured", cfg.LockTTL).Dur("ttl", hold).Msg("worker: TTL блокировки увеличен под повторы")
		cfg.LockTTL = hold
	}
	return &Worker{
		queue:    queue,
		runner:   runner,
		locker:   locker,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		cfg:      cfg,
		log:      logger,
	}
}

func lockHold(cfg Config) time.Duration {
	return time.Duration(cfg.MaxAttempts-1)*cfg.RetryDelay + time.Duration(cfg.MaxAttempts)*attemptBudget
}

// Run запускает потребителей и ждёт их остановки по отмене контекста.
func (w *Worker) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < w.cfg.Concurrency; i++ {
		consumer := i
		g.Go(func() error {
			w.consume(gctx, consumer)
			return nil
		})
	}
	w.log.Info().Int("consumers", w.cfg.Concurrency).Msg("worker: запущен")
	return g.Wait()
}

func (w *Worker) consume(ctx context.Context, consumer int) {
	logger := w.log.With().Int("consumer", consumer).Logger()
	for {
		job, ack, err := w.queue.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error().Err(err).Msg("worker: ошибка чтения очереди")
			if sleep(ctx, time.Second) != nil {
				return
			}
			continue
		}
		w.Handle(ctx, job, ack)
	}
}

// Handle обрабатывает одну полученную задачу и подтверждает её.
func (w *Worker) Handle(ctx context.Context, job domain.PriceCheckJob, ack domain.AckFunc) check.Outcome {
	logger := w.log.With().Str("job_id", job.ID).Int64("product", job.ProductID).Logger()

	if err := w.validate.Struct(job); err != nil {
		logger.Error().Err(err).Msg("worker: некорректная задача, подтверждаем и пропускаем")
		confirm(logger, ack, true)
		return check.Outcome{Kind: check.OutcomeFatal, Stage: check.StageStart, Err: err}
	}

	if !job.IsMock() && w.locker != nil {
		release, ok, err := w.locker.TryLock(ctx, LockKey(job.ProductID), w.cfg.LockTTL)
		switch {
		case err != nil:
			logger.Warn().Err(err).Msg("worker: блокировка недоступна, проверяем без неё")
		case !ok:
			logger.Info().Msg("worker: товар уже проверяется, пропускаем")
			confirm(logger, ack, true)
			return check.Outcome{Kind: check.OutcomeSkipped, Stage: check.StageStart}
		default:
			defer release()
		}
	}

	out := w.Process(ctx, job)
	// при остановке незавершённая задача возвращается в очередь
	requeue := out.Kind == check.OutcomeRetryable && ctx.Err() != nil
	confirm(logger, ack, !requeue)
	return out
}

// Process выполняет проверку с повторами временных ошибок.
func (w *Worker) Process(ctx context.Context, job domain.PriceCheckJob) check.Outcome {
	logger := w.log.With().Str("job_id", job.ID).Int64("product", job.ProductID).Logger()
	for attempt := 1; ; attempt++ {
		out := w.runner.Run(ctx, job)
		switch out.Kind {
		case check.OutcomeOK:
			logger.Info().Int("attempt", attempt).Int("alerts", len(out.Alerts)).Msg("worker: проверка завершена")
			return out
		case check.OutcomeRetryable:
		default:
			logger.Error().Err(out.Err).Str("stage", string(out.Stage)).Msg("worker: проверка завершилась ошибкой")
			return out
		}

		if attempt >= w.cfg.MaxAttempts {
			logger.Error().Err(out.Err).Int("attempts", attempt).Msg("worker: исчерпаны попытки проверки")
			return out
		}
		metrics.PriceCheckRetries.Inc()
		logger.Warn().Err(out.Err).Int("attempt", attempt).Dur("delay", w.cfg.RetryDelay).Msg("worker: повторим проверку")
		if sleep(ctx, w.cfg.RetryDelay) != nil {
			return out
		}
	}
}

func confirm(logger zerolog.Logger, ack domain.AckFunc, success bool) {
	if err := ack(success); err != nil {
		logger.Error().Err(err).Bool("success", success).Msg("worker: не удалось подтвердить задачу")
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
