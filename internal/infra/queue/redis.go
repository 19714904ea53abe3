package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"price-tracker-bot/internal/domain"
	"price-tracker-bot/internal/infra/metrics"
)

// RedisCheckQueue реализует очередь задач на базе Redis lists.
type RedisCheckQueue struct {
	client *redis.Client
	key    string
}

var _ domain.CheckQueue = (*RedisCheckQueue)(nil)

// NewRedisCheckQueue создаёт очередь по указанному ключу.
func NewRedisCheckQueue(client *redis.Client, key string) *RedisCheckQueue {
	return &RedisCheckQueue{client: client, key: key}
}

// Enqueue публикует задачу в очередь.
func (q *RedisCheckQueue) Enqueue(ctx context.Context, job domain.PriceCheckJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	start := time.Now()
	err = q.client.LPush(ctx, q.key, payload).Err()
	metrics.ObserveNetworkRequest("redis", "lpush", q.key, start, err)
	if err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Receive блокирующе читает задачу из очереди. Неподтверждённая задача
// возвращается в хвост очереди.
func (q *RedisCheckQueue) Receive(ctx context.Context) (domain.PriceCheckJob, domain.AckFunc, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.PriceCheckJob{}, nil, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.PriceCheckJob{}, nil, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.PriceCheckJob{}, nil, err
		}
		if len(res) != 2 {
			return domain.PriceCheckJob{}, nil, errors.New("redis queue: unexpected response")
		}
		payload := []byte(res[1])
		var job domain.PriceCheckJob
		if err := json.Unmarshal(payload, &job); err != nil {
			return domain.PriceCheckJob{}, nil, fmt.Errorf("decode job: %w", err)
		}
		ack := func(success bool) error {
			if success {
				return nil
			}
			return q.client.RPush(context.Background(), q.key, payload).Err()
		}
		return job, ack, nil
	}
}
