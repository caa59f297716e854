// Package redis publishes relay events to a Redis stream using go-redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	"github.com/papercomputeco/sserelay/pkg/eventstream"
	"github.com/papercomputeco/sserelay/pkg/logger"
)

// defaultMaxLen caps the stream length; trimming is approximate.
const defaultMaxLen = 10000

// ErrClosed is returned when publishing through a closed Publisher.
var ErrClosed = errors.New("redis publisher closed")

// Config configures a Redis stream publisher.
type Config struct {
	// Addr is the Redis server address (host:port).
	Addr string

	// Password authenticates with the server when set.
	Password string

	// DB selects the Redis database.
	DB int

	// Stream is the stream key every relay event is appended to.
	Stream string

	// MaxLen caps the stream length. Zero uses the default.
	MaxLen int64

	// Logger is the provided slog logger.
	Logger *slog.Logger
}

// Publisher appends relay events to a Redis stream with XADD.
type Publisher struct {
	client *goredis.Client
	stream string
	maxLen int64
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewPublisher creates a Publisher. The connection is established lazily on
// the first publish.
func NewPublisher(cfg Config) (*Publisher, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis publisher requires an address")
	}
	if cfg.Stream == "" {
		return nil, errors.New("redis publisher requires a stream key")
	}
	if cfg.MaxLen <= 0 {
		cfg.MaxLen = defaultMaxLen
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &Publisher{
		client: client,
		stream: cfg.Stream,
		maxLen: cfg.MaxLen,
		logger: cfg.Logger,
	}, nil
}

// PublishRelay encodes event and appends it to the stream.
func (p *Publisher) PublishRelay(ctx context.Context, event *eventstream.RelayCompletedEvent) error {
	if event == nil {
		return eventstream.ErrNilRelayEvent
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding relay event: %w", err)
	}

	id, err := p.client.XAdd(ctx, &goredis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{
			"event_type":     event.EventType,
			"schema_version": strconv.Itoa(event.SchemaVersion),
			"request_id":     event.RequestMeta.RequestID,
			"payload":        string(payload),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("appending relay event to %s: %w", p.stream, err)
	}

	p.logger.Debug("relay event published",
		"stream", p.stream,
		"entry_id", id,
		"event_id", event.EventID,
		"request_id", event.RequestMeta.RequestID,
	)
	return nil
}

// Close closes the client connection pool. It is safe to call more than once.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	return p.client.Close()
}
