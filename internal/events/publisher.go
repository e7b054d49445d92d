// Package events publishes collected items and dead letters to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"

	"github.com/newsroom/news-collector/internal/models"
)

// DeadLetterSuffix is appended to the collected topic to name the topic that
// receives items the store rejected.
const DeadLetterSuffix = "_dlq"

// batchTimeout bounds how long a synchronous write waits for more messages
// to fill a batch; kafka-go's 1s default would stall every item worker.
const batchTimeout = 10 * time.Millisecond

// Publisher announces stored items and dead-letters dropped ones.
type Publisher interface {
	Collected(ctx context.Context, item models.NewsItem) error
	DeadLetter(ctx context.Context, item models.NewsItem, cause error) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes to a collected topic and its dead-letter topic.
type Kafka struct {
	collected messageWriter
	dlq       messageWriter
	log       *slog.Logger
	now       func() time.Time
	retry     func() backoff.BackOff
}

// Option customises a Kafka publisher.
type Option func(*Kafka)

// WithClock overrides the clock used for the timestamp header.
func WithClock(now func() time.Time) Option {
	return func(k *Kafka) { k.now = now }
}

// WithRetry overrides the back-off used for dead-letter writes.
func WithRetry(fn func() backoff.BackOff) Option {
	return func(k *Kafka) { k.retry = fn }
}

// NewKafka dials nothing up front; kafka-go connects lazily on first write.
func NewKafka(brokers []string, topic string, logger *slog.Logger, opts ...Option) *Kafka {
	collected := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      brokers,
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		MaxAttempts:  3,
		BatchTimeout: batchTimeout,
	})
	dlq := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      brokers,
		Topic:        topic + DeadLetterSuffix,
		MaxAttempts:  3,
		BatchTimeout: batchTimeout,
	})
	return newKafka(collected, dlq, logger, opts...)
}

func newKafka(collected, dlq messageWriter, logger *slog.Logger, opts ...Option) *Kafka {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	k := &Kafka{
		collected: collected,
		dlq:       dlq,
		log:       logger,
		now:       time.Now,
		retry: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			return backoff.WithMaxRetries(b, 4)
		},
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Collected publishes item keyed by uid. Failures are returned, not retried.
func (k *Kafka) Collected(ctx context.Context, item models.NewsItem) error {
	msg, err := collectedMessage(item, k.now())
	if err != nil {
		return err
	}
	if err := k.collected.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish collected %s: %w", item.UID, err)
	}
	return nil
}

// DeadLetter publishes item with the cause attached, retrying with
// exponential back-off.
func (k *Kafka) DeadLetter(ctx context.Context, item models.NewsItem, cause error) error {
	msg, err := deadLetterMessage(item, cause, k.now())
	if err != nil {
		return err
	}

	attempt := 0
	op := func() error {
		attempt++
		return k.dlq.WriteMessages(ctx, msg)
	}
	notify := func(err error, wait time.Duration) {
		k.log.Warn("DLQ write failed, retrying",
			slog.Any("err", err),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", wait),
		)
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(k.retry(), ctx), notify); err != nil {
		return fmt.Errorf("publish dead letter %s: %w", item.UID, err)
	}

	k.log.Info("item sent to DLQ", slog.String("uid", item.UID), slog.Int("attempt", attempt))
	return nil
}

func (k *Kafka) Close() error {
	cerr := k.collected.Close()
	derr := k.dlq.Close()
	if cerr != nil {
		return cerr
	}
	return derr
}

func collectedMessage(item models.NewsItem, at time.Time) (kafka.Message, error) {
	value, err := json.Marshal(item)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal item %s: %w", item.UID, err)
	}
	return kafka.Message{
		Key:   []byte(item.UID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "keyword", Value: []byte(item.Keyword)},
			{Key: "timestamp", Value: []byte(at.UTC().Format(time.RFC3339))},
		},
	}, nil
}

func deadLetterMessage(item models.NewsItem, cause error, at time.Time) (kafka.Message, error) {
	msg, err := collectedMessage(item, at)
	if err != nil {
		return kafka.Message{}, err
	}
	reason := "unknown"
	if cause != nil {
		reason = cause.Error()
	}
	msg.Headers = append(msg.Headers, kafka.Header{Key: "error", Value: []byte(reason)})
	return msg, nil
}

// Noop discards everything. It stands in when no brokers are configured.
type Noop struct{}

func (Noop) Collected(context.Context, models.NewsItem) error         { return nil }
func (Noop) DeadLetter(context.Context, models.NewsItem, error) error { return nil }
func (Noop) Close() error                                             { return nil }
