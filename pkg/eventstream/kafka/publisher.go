// Package kafka publishes relay events to a Kafka topic using kafka-go.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/sserelay/pkg/eventstream"
	"github.com/papercomputeco/sserelay/pkg/logger"
)

const defaultBatchTimeout = 100 * time.Millisecond

// ErrClosed is returned when publishing through a closed Publisher.
var ErrClosed = errors.New("kafka publisher closed")

// Config configures a Kafka publisher.
type Config struct {
	// Brokers are the bootstrap broker addresses (host:port).
	Brokers []string

	// Topic receives every relay event.
	Topic string

	// BatchTimeout bounds how long the writer waits to fill a batch.
	BatchTimeout time.Duration

	// Logger is the provided slog logger.
	Logger *slog.Logger
}

// messageWriter is the subset of *kafkago.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher writes relay events as JSON messages keyed by request ID.
type Publisher struct {
	writer messageWriter
	topic  string
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewPublisher creates a Publisher backed by a kafka-go Writer.
func NewPublisher(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka publisher requires at least one broker")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka publisher requires a topic")
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = defaultBatchTimeout
	}

	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		BatchTimeout:           cfg.BatchTimeout,
		AllowAutoTopicCreation: true,
	}

	return newPublisher(w, cfg.Topic, cfg.Logger), nil
}

func newPublisher(w messageWriter, topic string, log *slog.Logger) *Publisher {
	if log == nil {
		log = logger.Nop()
	}

	return &Publisher{
		writer: w,
		topic:  topic,
		logger: log,
	}
}

// PublishRelay encodes event and writes it to the configured topic.
func (p *Publisher) PublishRelay(ctx context.Context, event *eventstream.RelayCompletedEvent) error {
	if event == nil {
		return eventstream.ErrNilRelayEvent
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding relay event: %w", err)
	}

	msg := kafkago.Message{
		Key:   []byte(event.RequestMeta.RequestID),
		Value: value,
		Time:  event.EmittedAt,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "schema_version", Value: []byte(strconv.Itoa(event.SchemaVersion))},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("writing relay event to %s: %w", p.topic, err)
	}

	p.logger.Debug("relay event published",
		"topic", p.topic,
		"event_id", event.EventID,
		"request_id", event.RequestMeta.RequestID,
	)
	return nil
}

// Close flushes pending messages and closes the writer. It is safe to call
// more than once.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	return p.writer.Close()
}
