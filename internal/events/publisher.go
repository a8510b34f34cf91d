package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Routing keys published by the platform
const (
	KeySyncCompleted   = "sync.completed"
	KeyMessageImported = "message.imported"
	KeyContactMerged   = "contact.merged"
	KeyChannelStatus   = "channel.status_changed"
	KeyScheduleSent    = "schedule.dispatched"
)

// Publisher emits domain events to the message broker
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload interface{}) error
	Close() error
}

type rmqPublisher struct {
	conn     *amqp091.Connection
	exchange string
	log      zerolog.Logger
}

// DialOptions configures the broker connection
type DialOptions struct {
	URL           string
	Exchange      string
	RetryAttempts int
	Delay         time.Duration
}

const maxDialDelay = 60 * time.Second

// DialWithRetry connects to RabbitMQ with exponential backoff, honoring
// context cancellation during the waits
func DialWithRetry(ctx context.Context, opts DialOptions, log zerolog.Logger) (*amqp091.Connection, error) {
	var lastErr error

	for i := 1; i <= opts.RetryAttempts; i++ {
		conn, err := amqp091.Dial(opts.URL)
		if err == nil {
			if i > 1 {
				log.Info().Int("attempt", i).Msg("RabbitMQ connected")
			}
			return conn, nil
		}
		lastErr = err

		sleep := opts.Delay * time.Duration(math.Pow(2, float64(i-1)))
		if sleep > maxDialDelay {
			sleep = maxDialDelay
		}
		log.Warn().Err(err).Int("attempt", i).Dur("sleep", sleep).Msg("RabbitMQ dial failed")

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.New("dial cancelled: " + ctx.Err().Error())
		case <-timer.C:
		}
	}

	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", opts.RetryAttempts, lastErr)
}

// New creates a topic-exchange publisher
func New(ctx context.Context, opts DialOptions, log zerolog.Logger) (Publisher, error) {
	if opts.Exchange == "" {
		opts.Exchange = "zapdesk.events"
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 5
	}
	if opts.Delay <= 0 {
		opts.Delay = time.Second
	}

	conn, err := DialWithRetry(ctx, opts, log)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(opts.Exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, err
	}

	return &rmqPublisher{conn: conn, exchange: opts.Exchange, log: log}, nil
}

// NewFromEnv creates a publisher from RABBITMQ_URL, falling back to a no-op
// publisher when the broker is not configured
func NewFromEnv(ctx context.Context, log zerolog.Logger) Publisher {
	url := os.Getenv("RABBITMQ_URL")
	if url == "" {
		log.Warn().Msg("RABBITMQ_URL not set, domain events disabled")
		return NewFallback(log)
	}

	pub, err := New(ctx, DialOptions{URL: url, Exchange: os.Getenv("RABBITMQ_EXCHANGE")}, log)
	if err != nil {
		log.Error().Err(err).Msg("RabbitMQ unavailable, domain events disabled")
		return NewFallback(log)
	}
	return pub
}

func (r *rmqPublisher) Publish(ctx context.Context, routingKey string, payload interface{}) error {
	ch, err := r.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	err = ch.PublishWithContext(
		ctx, r.exchange, routingKey, false, false,
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    uuid.NewString(),
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err == nil {
		r.log.Debug().Str("key", routingKey).Str("exchange", r.exchange).Msg("Event published")
	}
	return err
}

func (r *rmqPublisher) Close() error {
	return r.conn.Close()
}

// FallbackPublisher drops events when no broker is configured, keeping the
// rest of the system unaware of the difference
type FallbackPublisher struct {
	log zerolog.Logger
}

// NewFallback creates a no-op publisher
func NewFallback(log zerolog.Logger) Publisher {
	return &FallbackPublisher{log: log}
}

func (p *FallbackPublisher) Publish(ctx context.Context, routingKey string, payload interface{}) error {
	p.log.Debug().Str("key", routingKey).Msg("Event dropped, no broker configured")
	return nil
}

func (p *FallbackPublisher) Close() error {
	return nil
}
