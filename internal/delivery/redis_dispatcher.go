package delivery

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/go-redis/redis/v8"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/metrics"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/models"
)

// RedisDispatcher hands work to an external delivery subsystem through Redis.
// Work tokens are pushed onto a list, control signals and completion events
// travel over pub/sub channels.
type RedisDispatcher struct {
	client  *redis.Client
	prefix  string
	logger  log.Logger
	metrics *metrics.Metrics
}

// NewRedisDispatcher creates a dispatcher on an existing client
func NewRedisDispatcher(client *redis.Client, prefix string, logger log.Logger, m *metrics.Metrics) *RedisDispatcher {
	if prefix == "" {
		prefix = "mailbeacon:"
	}
	return &RedisDispatcher{
		client:  client,
		prefix:  prefix,
		logger:  logger,
		metrics: m,
	}
}

// TokensKey is the list work tokens are pushed to
func (d *RedisDispatcher) TokensKey() string { return d.prefix + "delivery:tokens" }

// SignalsChannel carries pause and cancel signals
func (d *RedisDispatcher) SignalsChannel() string { return d.prefix + "delivery:signals" }

// CompletionsChannel carries completion events from the delivery subsystem
func (d *RedisDispatcher) CompletionsChannel() string { return d.prefix + "delivery:completions" }

// Dispatch implements service.Dispatcher
func (d *RedisDispatcher) Dispatch(ctx context.Context, token models.WorkToken) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("JSON marshal error: %w", err)
	}

	if err := d.client.RPush(ctx, d.TokensKey(), data).Err(); err != nil {
		d.metrics.RecordDispatchError("redis", "token")
		return fmt.Errorf("Redis push error: %w", err)
	}
	return nil
}

// Signal implements service.Dispatcher
func (d *RedisDispatcher) Signal(ctx context.Context, sig models.ControlSignal) error {
	data, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("JSON marshal error: %w", err)
	}

	if err := d.client.Publish(ctx, d.SignalsChannel(), data).Err(); err != nil {
		d.metrics.RecordDispatchError("redis", "signal")
		return fmt.Errorf("Redis publish error: %w", err)
	}
	return nil
}

// ListenCompletions finishes campaigns reported done until ctx is done
func (d *RedisDispatcher) ListenCompletions(ctx context.Context, engine Engine) error {
	pubsub := d.client.Subscribe(ctx, d.CompletionsChannel())
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			// pub/sub has no redelivery, so a completion still contended here is lost
			if err := handleCompletion(ctx, engine, d.logger, d.metrics, "redis", []byte(msg.Payload)); err != nil && redeliver(err) {
				level.Error(d.logger).Log("msg", "dropping completion", "payload", msg.Payload, "err", err)
			}
		}
	}
}
