// Package kafka publishes new-post events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
)

// Config lists the brokers and the topic used when the caller names none.
type Config struct {
	Brokers  []string
	Topic    string
	ClientID string
}

// Publisher sends each event synchronously and waits for the leader ack.
type Publisher struct {
	producer     sarama.SyncProducer
	defaultTopic string
}

// New dials the brokers.
func New(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka.brokers is required")
	}
	sc := sarama.NewConfig()
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForLocal
	sc.Producer.Retry.Max = 3
	if cfg.ClientID != "" {
		sc.ClientID = cfg.ClientID
	}
	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return NewWithProducer(producer, cfg.Topic)
}

// NewWithProducer wraps an existing producer.
func NewWithProducer(producer sarama.SyncProducer, topic string) (*Publisher, error) {
	if producer == nil {
		return nil, fmt.Errorf("kafka producer is required")
	}
	if strings.TrimSpace(topic) == "" {
		return nil, fmt.Errorf("kafka.topic is required")
	}
	return &Publisher{producer: producer, defaultTopic: topic}, nil
}

// Publish marshals payload to JSON and returns "<partition>/<offset>".
// Payloads exposing EventKey are keyed so one post always lands on the same
// partition.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	if topic == "" {
		topic = p.defaultTopic
	}
	msg := &sarama.ProducerMessage{
		Topic:     topic,
		Value:     sarama.ByteEncoder(data),
		Timestamp: time.Now(),
		Headers: []sarama.RecordHeader{
			{Key: []byte("content_type"), Value: []byte("application/json")},
		},
	}
	if k, ok := payload.(interface{ EventKey() string }); ok {
		msg.Key = sarama.StringEncoder(k.EventKey())
	}
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return fmt.Sprintf("%d/%d", partition, offset), nil
}

// Close flushes and shuts down the producer.
func (p *Publisher) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}
