// Package redis appends new-post events to a Redis stream.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"
)

// Config addresses the server and names the default stream. MaxLen caps the
// stream approximately; 0 keeps every entry.
type Config struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	MaxLen   int64
}

// Publisher XADDs one entry per event with the JSON body under "payload".
type Publisher struct {
	client        *goredis.Client
	defaultStream string
	maxLen        int64
	owned         bool
}

// New connects and pings the server.
func New(ctx context.Context, cfg Config) (*Publisher, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, fmt.Errorf("redis.addr is required")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	p, err := NewWithClient(client, cfg.Stream, cfg.MaxLen)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	p.owned = true
	return p, nil
}

// NewWithClient wraps an existing client, which the caller keeps owning.
func NewWithClient(client *goredis.Client, stream string, maxLen int64) (*Publisher, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if strings.TrimSpace(stream) == "" {
		return nil, fmt.Errorf("redis.stream is required")
	}
	return &Publisher{client: client, defaultStream: stream, maxLen: maxLen}, nil
}

// Publish returns the stream entry id. An empty topic selects the default
// stream.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	if topic == "" {
		topic = p.defaultStream
	}
	args := &goredis.XAddArgs{
		Stream: topic,
		Values: map[string]any{
			"content_type": "application/json",
			"payload":      string(data),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", topic, err)
	}
	return id, nil
}

// Close releases the client when New created it.
func (p *Publisher) Close() error {
	if !p.owned {
		return nil
	}
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}
