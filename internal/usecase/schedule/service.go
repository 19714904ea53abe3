// Package schedule ставит в очередь проверки товаров, у которых истёк интервал.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"price-tracker-bot/internal/domain"
	"price-tracker-bot/internal/infra/metrics"
)

// Service отвечает за периодический отбор товаров на проверку.
type Service struct {
	products domain.ProductRepo
	queue    domain.CheckQueue
	log      zerolog.Logger
	newID    func() string
}

// NewService создаёт сервис.
func NewService(products domain.ProductRepo, queue domain.CheckQueue, logger zerolog.Logger) *Service {
	return &Service{
		products: products,
		queue:    queue,
		log:      logger,
		newID:    func() string { return uuid.NewString() },
	}
}

// Tick ставит по одной задаче на каждый просроченный товар и возвращает их число.
// Ошибка постановки одной задачи не прерывает остальные.
func (s *Service) Tick(ctx context.Context, now time.Time) (int, error) {
	products, err := s.products.ListDueProducts(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("выборка товаров: %w", err)
	}
	s.log.Info().Int("due", len(products)).Msg("scheduler: найдены товары для проверки")

	seen := make(map[int64]struct{}, len(products))
	enqueued := 0
	var firstErr error
	for _, p := range products {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}

		job := domain.PriceCheckJob{
			ID:          s.newID(),
			ProductID:   p.ID,
			RequestedAt: now,
			Cause:       domain.CheckCauseScheduled,
		}
		if err := s.queue.Enqueue(ctx, job); err != nil {
			s.log.Error().Err(err).Int64("product", p.ID).Msg("scheduler: не удалось поставить задачу")
			if firstErr == nil {
				firstErr = fmt.Errorf("постановка задачи %d: %w", p.ID, err)
			}
			continue
		}
		metrics.SchedulerEnqueued.Inc()
		enqueued++
	}
	return enqueued, firstErr
}
