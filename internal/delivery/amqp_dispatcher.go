package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/metrics"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/models"
	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPDispatcher hands work to an external delivery subsystem over RabbitMQ.
// Tokens go to the base queue, signals to <queue>.signals and completions are
// read from <queue>.completions.
type AMQPDispatcher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
	logger  log.Logger
	metrics *metrics.Metrics

	// amqp channels are not safe for concurrent publishing
	mu sync.Mutex
}

// NewAMQPDispatcher connects and declares the durable queues
func NewAMQPDispatcher(url, queue string, logger log.Logger, m *metrics.Metrics) (*AMQPDispatcher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	for _, name := range []string{queue, signalsQueue(queue), completionsQueue(queue)} {
		_, err = channel.QueueDeclare(
			name,  // name
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,   // arguments
		)
		if err != nil {
			channel.Close()
			conn.Close()
			return nil, fmt.Errorf("failed to declare queue %s: %w", name, err)
		}
	}

	level.Info(logger).Log("msg", "RabbitMQ dispatcher initialized", "queue", queue)
	return &AMQPDispatcher{
		conn:    conn,
		channel: channel,
		queue:   queue,
		logger:  logger,
		metrics: m,
	}, nil
}

func signalsQueue(queue string) string     { return queue + ".signals" }
func completionsQueue(queue string) string { return queue + ".completions" }

// Dispatch implements service.Dispatcher
func (d *AMQPDispatcher) Dispatch(ctx context.Context, token models.WorkToken) error {
	if err := d.publish(ctx, d.queue, token); err != nil {
		d.metrics.RecordDispatchError("amqp", "token")
		return err
	}
	return nil
}

// Signal implements service.Dispatcher
func (d *AMQPDispatcher) Signal(ctx context.Context, sig models.ControlSignal) error {
	if err := d.publish(ctx, signalsQueue(d.queue), sig); err != nil {
		d.metrics.RecordDispatchError("amqp", "signal")
		return err
	}
	return nil
}

func (d *AMQPDispatcher) publish(ctx context.Context, queue string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	err = d.channel.PublishWithContext(ctx,
		"",    // exchange
		queue, // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// ListenCompletions consumes completion events until ctx is done
func (d *AMQPDispatcher) ListenCompletions(ctx context.Context, engine Engine) error {
	d.mu.Lock()
	deliveries, err := d.channel.Consume(
		completionsQueue(d.queue), // queue
		"",                        // consumer
		false,                     // auto-ack
		false,                     // exclusive
		false,                     // no-local
		false,                     // no-wait
		nil,                       // args
	)
	d.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to consume completions: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-deliveries:
			if !ok {
				return nil
			}
			// contended finishes go back to the queue; a refused finish is
			// acked since the campaign has moved on
			if err := handleCompletion(ctx, engine, d.logger, d.metrics, "amqp", msg.Body); err != nil && redeliver(err) {
				if err := msg.Nack(false, true); err != nil {
					level.Warn(d.logger).Log("msg", "failed to requeue completion", "err", err)
				}
				continue
			}
			if err := msg.Ack(false); err != nil {
				level.Warn(d.logger).Log("msg", "failed to ack completion", "err", err)
			}
		}
	}
}

// Close closes the RabbitMQ channel and connection
func (d *AMQPDispatcher) Close() error {
	if d.channel != nil {
		if err := d.channel.Close(); err != nil {
			level.Warn(d.logger).Log("msg", "error closing channel", "err", err)
		}
	}
	if d.conn != nil {
		return d.conn.Close()
	}
	return nil
}
