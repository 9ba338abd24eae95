package websocket

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const relayChannel = "chat:fanout"

// Relay переносит fan-out между инстансами сервера
type Relay interface {
	Publish(ctx context.Context, d Delivery) error
	Subscribe(ctx context.Context) (<-chan Delivery, error)
}

// RedisRelay Relay поверх Redis pub/sub. Публикации одного инстанса
// идут последовательно, поэтому порядок внутри комнаты сохраняется.
type RedisRelay struct {
	rdb     *redis.Client
	channel string
	logger  *zap.Logger
}

func NewRedisRelay(rdb *redis.Client, logger *zap.Logger) *RedisRelay {
	return &RedisRelay{rdb: rdb, channel: relayChannel, logger: logger}
}

func (r *RedisRelay) Publish(ctx context.Context, d Delivery) error {
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, r.channel, data).Err()
}

func (r *RedisRelay) Subscribe(ctx context.Context) (<-chan Delivery, error) {
	pubsub := r.rdb.Subscribe(ctx, r.channel)
	// ждём подтверждения подписки, иначе первые публикации теряются
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	out := make(chan Delivery, 256)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var d Delivery
				if err := json.Unmarshal([]byte(msg.Payload), &d); err != nil {
					r.logger.Warn("Dropping malformed relay payload", zap.Error(err))
					continue
				}
				select {
				case out <- d:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
