package queue

import (
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"price-tracker-bot/internal/domain"
)

// Open выбирает реализацию очереди: rabbitmq или redis. close освобождает соединение.
func Open(backend, rabbitURL, name string, prefetch int, client *redis.Client) (q domain.CheckQueue, closeFn func() error, err error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "rabbitmq":
		rq, err := NewRabbitCheckQueue(rabbitURL, name, prefetch)
		if err != nil {
			return nil, nil, err
		}
		return rq, rq.Close, nil
	case "redis":
		if client == nil {
			return nil, nil, fmt.Errorf("redis queue requires REDIS_ADDR")
		}
		return NewRedisCheckQueue(client, name), func() error { return nil }, nil
	}
	return nil, nil, fmt.Errorf("unknown queue backend %q", backend)
}
