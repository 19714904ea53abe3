package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"price-tracker-bot/internal/domain"
	"price-tracker-bot/internal/infra/metrics"
)

// RabbitCheckQueue реализует очередь задач проверки через AMQP.
type RabbitCheckQueue struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	queue    string
	prefetch int

	publishMu  sync.Mutex
	consumeMu  sync.Mutex
	deliveries <-chan amqp.Delivery
}

var _ domain.CheckQueue = (*RabbitCheckQueue)(nil)

// NewRabbitCheckQueue подключается к брокеру и объявляет durable очередь.
// prefetch ограничивает число неподтверждённых задач на потребителя.
func NewRabbitCheckQueue(amqpURL, queue string, prefetch int) (*RabbitCheckQueue, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queue == "" {
		return nil, errors.New("queue name is empty")
	}
	if prefetch <= 0 {
		prefetch = 1
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}
	return &RabbitCheckQueue{conn: conn, ch: ch, queue: queue, prefetch: prefetch}, nil
}

// Enqueue публикует задачу в очередь как persistent сообщение.
func (q *RabbitCheckQueue) Enqueue(ctx context.Context, job domain.PriceCheckJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	q.publishMu.Lock()
	defer q.publishMu.Unlock()

	start := time.Now()
	err = q.ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID,
		Timestamp:    time.Now().UTC(),
		Body:         payload,
	})
	metrics.ObserveNetworkRequest("rabbitmq", "publish", q.queue, start, err)
	if err != nil {
		return fmt.Errorf("publish job: %w", err)
	}
	return nil
}

// Receive ждёт следующую задачу. Ack(false) возвращает задачу брокеру.
func (q *RabbitCheckQueue) Receive(ctx context.Context) (domain.PriceCheckJob, domain.AckFunc, error) {
	deliveries, err := q.consume()
	if err != nil {
		return domain.PriceCheckJob{}, nil, err
	}
	select {
	case <-ctx.Done():
		return domain.PriceCheckJob{}, nil, ctx.Err()
	case d, ok := <-deliveries:
		if !ok {
			return domain.PriceCheckJob{}, nil, errors.New("rabbitmq: delivery channel closed")
		}
		var job domain.PriceCheckJob
		if err := json.Unmarshal(d.Body, &job); err != nil {
			_ = d.Reject(false)
			return domain.PriceCheckJob{}, nil, fmt.Errorf("decode job: %w", err)
		}
		ack := func(success bool) error {
			if success {
				return d.Ack(false)
			}
			return d.Nack(false, true)
		}
		return job, ack, nil
	}
}

func (q *RabbitCheckQueue) consume() (<-chan amqp.Delivery, error) {
	q.consumeMu.Lock()
	defer q.consumeMu.Unlock()
	if q.deliveries != nil {
		return q.deliveries, nil
	}
	deliveries, err := q.ch.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}
	q.deliveries = deliveries
	return deliveries, nil
}

// Close закрывает канал и соединение.
func (q *RabbitCheckQueue) Close() error {
	chErr := q.ch.Close()
	connErr := q.conn.Close()
	return errors.Join(chErr, connErr)
}
