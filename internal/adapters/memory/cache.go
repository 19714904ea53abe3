package memory

import (
	"context"
	"sync"
	"time"

	"price-tracker-bot/internal/domain"
)

type tokenEntry struct {
	value   string
	expires time.Time
}

// TokenCache хранит токены в памяти процесса.
type TokenCache struct {
	mu     sync.RWMutex
	now    func() time.Time
	tokens map[string]tokenEntry
}

var _ domain.TokenCache = (*TokenCache)(nil)

// NewTokenCache создаёт пустой кэш токенов.
func NewTokenCache() *TokenCache {
	return &TokenCache{now: time.Now, tokens: make(map[string]tokenEntry)}
}

// GetToken реализует domain.TokenCache.
func (c *TokenCache) GetToken(_ context.Context, key string) (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.tokens[key]
	if !ok || !c.now().Before(entry.expires) {
		return "", false, nil
	}
	return entry.value, true, nil
}

// SetToken реализует domain.TokenCache.
func (c *TokenCache) SetToken(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[key] = tokenEntry{value: value, expires: c.now().Add(ttl)}
	return nil
}

// TTL возвращает оставшееся время жизни токена.
func (c *TokenCache) TTL(key string) time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.tokens[key]
	if !ok {
		return 0
	}
	return entry.expires.Sub(c.now())
}

// Locker выдаёт блокировки в пределах одного процесса.
type Locker struct {
	mu    sync.Mutex
	now   func() time.Time
	locks map[string]time.Time
}

var _ domain.Locker = (*Locker)(nil)

// NewLocker создаёт пустой набор блокировок.
func NewLocker() *Locker {
	return &Locker{now: time.Now, locks: make(map[string]time.Time)}
}

// TryLock реализует domain.Locker. Просроченная блокировка считается свободной.
func (l *Locker) TryLock(_ context.Context, key string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if expires, held := l.locks[key]; held && l.now().Before(expires) {
		return nil, false, nil
	}
	expires := l.now().Add(ttl)
	l.locks[key] = expires
	release := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.locks[key].Equal(expires) {
			delete(l.locks, key)
		}
	}
	return release, true, nil
}

// Queue реализует domain.CheckQueue на буферизованном канале.
type Queue struct {
	jobs chan domain.PriceCheckJob

	mu       sync.Mutex
	enqueued []domain.PriceCheckJob
}

var _ domain.CheckQueue = (*Queue)(nil)

// NewQueue создаёт очередь заданной ёмкости.
func NewQueue(capacity int) *Queue {
	return &Queue{jobs: make(chan domain.PriceCheckJob, capacity)}
}

// Enqueue реализует domain.CheckQueue.
func (q *Queue) Enqueue(ctx context.Context, job domain.PriceCheckJob) error {
	select {
	case q.jobs <- job:
	case <-ctx.Done():
		return ctx.Err()
	}
	q.mu.Lock()
	q.enqueued = append(q.enqueued, job)
	q.mu.Unlock()
	return nil
}

// Receive реализует domain.CheckQueue. Ack(false) возвращает задачу в очередь.
func (q *Queue) Receive(ctx context.Context) (domain.PriceCheckJob, domain.AckFunc, error) {
	select {
	case <-ctx.Done():
		return domain.PriceCheckJob{}, nil, ctx.Err()
	case job := <-q.jobs:
		ack := func(success bool) error {
			if success {
				return nil
			}
			q.jobs <- job
			return nil
		}
		return job, ack, nil
	}
}

// Enqueued возвращает все опубликованные задачи по порядку.
func (q *Queue) Enqueued() []domain.PriceCheckJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]domain.PriceCheckJob(nil), q.enqueued...)
}
