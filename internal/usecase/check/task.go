// Package check выполняет одну проверку цены товара.
package check

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"price-tracker-bot/internal/adapters/fetcher"
	"price-tracker-bot/internal/domain"
	"price-tracker-bot/internal/infra/metrics"
	"price-tracker-bot/internal/usecase/notify"
	"price-tracker-bot/internal/usecase/pricing"
)

// OutcomeKind говорит исполнителю, что делать с задачей дальше.
type OutcomeKind string

const (
	// OutcomeOK означает, что проверка завершена.
	OutcomeOK OutcomeKind = "ok"
	// OutcomeRetryable означает временную ошибку, задачу стоит повторить.
	OutcomeRetryable OutcomeKind = "retryable"
	// OutcomeFatal означает, что повтор не поможет.
	OutcomeFatal OutcomeKind = "fatal"
	// OutcomeSkipped означает, что проверка того же товара уже идёт.
	OutcomeSkipped OutcomeKind = "skipped"
)

// Stage отмечает шаг, на котором остановилась проверка.
type Stage string

const (
	StageStart       Stage = "start"
	StageFetching    Stage = "fetching"
	StageNormalizing Stage = "normalizing"
	StageEvaluating  Stage = "evaluating"
	StagePersisting  Stage = "persisting"
	StageDispatching Stage = "dispatching"
	StageDone        Stage = "done"
)

// Outcome описывает результат запуска.
type Outcome struct {
	Kind    OutcomeKind
	Stage   Stage
	Err     error
	Price   decimal.Decimal
	Alerts  []domain.AlertType
	Reports []notify.Report
}

// Dispatcher рассылает сработавшие события.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev domain.AlertEvent) notify.Report
}

// Task проверяет цену товара: получение, нормализация, оценка, сохранение, рассылка.
type Task struct {
	products   domain.ProductRepo
	users      domain.UserRepo
	fetcher    domain.PriceFetcher
	dispatcher Dispatcher
	now        func() time.Time
	log        zerolog.Logger
}

// NewTask создаёт задачу проверки.
func NewTask(products domain.ProductRepo, users domain.UserRepo, f domain.PriceFetcher, dispatcher Dispatcher, logger zerolog.Logger) *Task {
	return &Task{
		products:   products,
		users:      users,
		fetcher:    f,
		dispatcher: dispatcher,
		now:        func() time.Time { return time.Now().UTC() },
		log:        logger,
	}
}

// Run выполняет одну попытку. Тестовый запуск работает с копией товара
// и ничего не пишет в хранилище.
func (t *Task) Run(ctx context.Context, job domain.PriceCheckJob) (out Outcome) {
	mock := job.IsMock()
	logger := t.log.With().Int64("product", job.ProductID).Str("job_id", job.ID).Bool("mock", mock).Logger()
	defer func() {
		metrics.IncPriceCheck(mock, string(out.Kind), string(out.Stage))
	}()

	product, err := t.products.GetProduct(ctx, job.ProductID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			logger.Warn().Msg("check: товар не найден")
			return fatal(StageStart, err)
		}
		logger.Error().Err(err).Msg("check: не удалось загрузить товар")
		return retryable(StageStart, err)
	}
	user, err := t.users.GetUser(ctx, product.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			logger.Warn().Int64("user", product.UserID).Msg("check: владелец товара не найден")
			return fatal(StageStart, err)
		}
		return retryable(StageStart, err)
	}

	working := product
	target := product.URL
	if mock {
		working = mockCopy(product, job)
		target = fetcher.MockURL(job.MockScenario, product.ID)
		logger.Info().Str("scenario", job.MockScenario).Msg("check: тестовая проверка")
	} else {
		logger.Info().Str("cause", string(job.Cause)).Msg("check: проверка цены")
	}

	snap, err := t.fetcher.Fetch(ctx, target)
	if err != nil {
		if ctx.Err() != nil {
			return retryable(StageFetching, ctx.Err())
		}
		logger.Error().Err(err).Str("code", domain.FetchErrorCode(err)).Msg("check: не удалось получить цену")
		return fatal(StageFetching, err)
	}

	price, ok := pricing.Normalize(snap.RawPrice)
	if !ok {
		logger.Error().Interface("raw_price", snap.RawPrice).Msg("check: не удалось разобрать цену")
		return fatal(StageNormalizing, fmt.Errorf("unparsable price %v", snap.RawPrice))
	}

	decision := pricing.Evaluate(pricing.InputFor(working, user, price))
	for _, a := range decision.Alerts {
		metrics.IncAlert(string(a))
	}

	if !mock {
		err := t.products.RecordPriceCheck(ctx, domain.PriceCheck{
			ProductID:      product.ID,
			Price:          price,
			CheckedAt:      t.now(),
			TargetNotified: decision.TargetNotified,
		})
		if err != nil {
			logger.Error().Err(err).Msg("check: не удалось сохранить цену")
			out = retryable(StagePersisting, err)
			out.Price = price
			return out
		}
		logger.Info().Str("price", price.String()).Msg("check: цена обновлена")
	}

	out = Outcome{Kind: OutcomeOK, Stage: StageDone, Price: price, Alerts: decision.Alerts}
	for _, alert := range decision.Alerts {
		report := t.dispatcher.Dispatch(ctx, domain.AlertEvent{
			Product:  working,
			Type:     alert,
			OldPrice: working.CurrentPrice,
			NewPrice: price,
			Locale:   job.Locale,
		})
		out.Reports = append(out.Reports, report)
	}
	return out
}

// mockCopy строит отдельный товар с тестовыми ценами. Флаг цели сброшен.
func mockCopy(p domain.Product, job domain.PriceCheckJob) domain.Product {
	c := p.Clone()
	c.TargetPrice = fetcher.MockTargetPrice
	if job.MockTargetPrice != nil {
		c.TargetPrice = *job.MockTargetPrice
	}
	current := fetcher.MockOldPrice
	if job.MockCurrentPrice != nil {
		current = *job.MockCurrentPrice
	}
	c.CurrentPrice = decimal.NewNullDecimal(current)
	c.TargetNotified = false
	return c
}

func fatal(stage Stage, err error) Outcome {
	return Outcome{Kind: OutcomeFatal, Stage: stage, Err: err}
}

func retryable(stage Stage, err error) Outcome {
	return Outcome{Kind: OutcomeRetryable, Stage: stage, Err: err}
}
