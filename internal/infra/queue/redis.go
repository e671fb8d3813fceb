package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"noti-sentry/internal/domain"
)

// RedisEventQueue реализует очередь событий на базе Redis lists.
// Используется как запасной транспорт, когда RabbitMQ не сконфигурирован.
type RedisEventQueue struct {
	client *redis.Client
	key    string
}

// NewRedisEventQueue создаёт очередь по указанному ключу.
func NewRedisEventQueue(client *redis.Client, key string) *RedisEventQueue {
	return &RedisEventQueue{client: client, key: key}
}

var _ domain.EventQueue = (*RedisEventQueue)(nil)

// Enqueue публикует событие в очередь.
func (q *RedisEventQueue) Enqueue(ctx context.Context, event domain.NotificationEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("push event: %w", err)
	}
	return nil
}

// Receive блокирующе читает событие из очереди. BRPOP снимает элемент сразу,
// поэтому ack(false) возвращает полезную нагрузку в хвост очереди.
func (q *RedisEventQueue) Receive(ctx context.Context) (domain.NotificationEvent, domain.EventAckFunc, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.NotificationEvent{}, nil, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.NotificationEvent{}, nil, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.NotificationEvent{}, nil, err
		}
		if len(res) != 2 {
			return domain.NotificationEvent{}, nil, errors.New("redis queue: unexpected response")
		}
		payload := res[1]
		var event domain.NotificationEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			return domain.NotificationEvent{}, nil, fmt.Errorf("decode event: %w", err)
		}
		ack := func(success bool) error {
			if success {
				return nil
			}
			return q.client.LPush(context.Background(), q.key, payload).Err()
		}
		return event, ack, nil
	}
}
