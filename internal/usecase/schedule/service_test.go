package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"price-tracker-bot/internal/adapters/memory"
	"price-tracker-bot/internal/domain"
)

type duplicatingRepo struct {
	*memory.Store
}

func (r duplicatingRepo) ListDueProducts(ctx context.Context, now time.Time) ([]domain.Product, error) {
	products, err := r.Store.ListDueProducts(ctx, now)
	return append(products, products...), err
}

type failingQueue struct {
	*memory.Queue
	failFor int64
}

func (q failingQueue) Enqueue(ctx context.Context, job domain.PriceCheckJob) error {
	if job.ProductID == q.failFor {
		return errors.New("broker unavailable")
	}
	return q.Queue.Enqueue(ctx, job)
}

func TestTickEnqueuesDueProductsOnce(t *testing.T) {
	store := memory.NewStore()
	now := time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-2 * time.Hour)
	old := now.Add(-25 * time.Hour)
	never := store.PutProduct(domain.Product{UserID: 1, URL: "a", CheckFrequency: 24})
	store.PutProduct(domain.Product{UserID: 1, URL: "b", CheckFrequency: 24, LastChecked: &recent})
	stale := store.PutProduct(domain.Product{UserID: 1, URL: "c", CheckFrequency: 24, LastChecked: &old})

	q := memory.NewQueue(10)
	svc := NewService(duplicatingRepo{store}, q, zerolog.Nop())

	n, err := svc.Tick(context.Background(), now)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if n != 2 {
		t.Fatalf("ожидали 2 задачи, получили %d", n)
	}
	jobs := q.Enqueued()
	if len(jobs) != 2 || jobs[0].ProductID != never.ID || jobs[1].ProductID != stale.ID {
		t.Fatalf("неожиданные задачи: %+v", jobs)
	}
	for _, job := range jobs {
		if job.ID == "" || job.Cause != domain.CheckCauseScheduled || !job.RequestedAt.Equal(now) {
			t.Fatalf("неполная задача: %+v", job)
		}
	}
	if jobs[0].ID == jobs[1].ID {
		t.Fatalf("идентификаторы задач должны различаться")
	}
}

func TestTickContinuesAfterEnqueueError(t *testing.T) {
	store := memory.NewStore()
	first := store.PutProduct(domain.Product{UserID: 1, URL: "a", CheckFrequency: 12})
	store.PutProduct(domain.Product{UserID: 1, URL: "b", CheckFrequency: 12})

	q := memory.NewQueue(10)
	svc := NewService(store, failingQueue{Queue: q, failFor: first.ID}, zerolog.Nop())

	n, err := svc.Tick(context.Background(), time.Now())
	if err == nil {
		t.Fatalf("ожидали ошибку постановки")
	}
	if n != 1 || len(q.Enqueued()) != 1 {
		t.Fatalf("вторая задача должна быть поставлена, n=%d", n)
	}
}
