// Package kafka provides the producer behind the optional alert topic sink.
package kafka

import (
	"context"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

// Producer wraps a kafka-go Writer tuned for low-volume alert traffic:
// single-message batches, one delivery attempt, leader ack only. Alert
// delivery is fire-and-forget, so there is no point queueing or retrying.
type Producer struct {
	writer *kafkago.Writer
}

type ProducerConfig struct {
	Brokers []string
	Topic   string
}

// NewProducer constructs a Producer from the given configuration.
func NewProducer(cfg ProducerConfig) *Producer {
	return &Producer{
		writer: &kafkago.Writer{
			Addr:         kafkago.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafkago.Hash{},
			BatchSize:    1,
			BatchTimeout: 50 * time.Millisecond,
			RequiredAcks: kafkago.RequireOne,
			MaxAttempts:  1,
		},
	}
}

// Publish sends one Kafka message with optional headers.
func (p *Producer) Publish(ctx context.Context, key, value []byte, headers map[string]string) error {
	msg := kafkago.Message{
		Key:   key,
		Value: value,
		Time:  time.Now().UTC(),
	}
	for k, v := range headers {
		msg.Headers = append(msg.Headers, kafkago.Header{Key: k, Value: []byte(v)})
	}
	return p.writer.WriteMessages(ctx, msg)
}

// Close flushes and closes the underlying writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
