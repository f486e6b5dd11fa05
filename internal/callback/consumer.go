// Package callback receives externally-delivered inference answers. An
// inference deployment that cannot call back in-process publishes each
// answer to a topic; the feed decodes it and re-delivers it to the agent as
// an answer signal keyed by its request ID.
package callback

import (
	"context"
	"strings"
	"sync"

	"log/slog"

	"github.com/segmentio/kafka-go"
)

// ConsumerMessage is one raw delivery from the answer topic.
type ConsumerMessage struct {
	Topic string
	Key   []byte
	Value []byte
}

// Consumer abstracts the answer transport so the feed can be tested
// in-process.
type Consumer interface {
	Start(ctx context.Context) error
	Messages() <-chan ConsumerMessage
	Close() error
}

// KafkaConsumer implements Consumer using segmentio/kafka-go.
type KafkaConsumer struct {
	brokers string
	groupID string
	topic   string
	reader  *kafka.Reader
	msgs    chan ConsumerMessage
	mu      sync.Mutex
}

// NewKafkaConsumer creates a Kafka consumer for the answer topic.
func NewKafkaConsumer(brokers, groupID, topic string) *KafkaConsumer {
	return &KafkaConsumer{
		brokers: brokers,
		groupID: groupID,
		topic:   topic,
		msgs:    make(chan ConsumerMessage, 100),
	}
}

// Start begins consuming from the answer topic.
func (c *KafkaConsumer) Start(ctx context.Context) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  strings.Split(c.brokers, ","),
		Topic:    c.topic,
		GroupID:  c.groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})

	c.mu.Lock()
	c.reader = reader
	c.mu.Unlock()

	go func() {
		for {
			msg, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("Answer feed read error", "topic", c.topic, "error", err)
				continue
			}
			c.msgs <- ConsumerMessage{
				Topic: c.topic,
				Key:   msg.Key,
				Value: msg.Value,
			}
		}
	}()
	return nil
}

// Messages returns the channel of consumed messages.
func (c *KafkaConsumer) Messages() <-chan ConsumerMessage {
	return c.msgs
}

// Close stops the reader.
func (c *KafkaConsumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reader != nil {
		return c.reader.Close()
	}
	return nil
}

// ChannelConsumer is an in-process Consumer implementation backed by a Go
// channel, used in tests.
type ChannelConsumer struct {
	ch chan ConsumerMessage
}

// NewChannelConsumer creates an in-process consumer.
func NewChannelConsumer() *ChannelConsumer {
	return &ChannelConsumer{ch: make(chan ConsumerMessage, 100)}
}

// Start is a no-op for the channel consumer.
func (c *ChannelConsumer) Start(_ context.Context) error { return nil }

// Messages returns the message channel.
func (c *ChannelConsumer) Messages() <-chan ConsumerMessage { return c.ch }

// Close closes the channel.
func (c *ChannelConsumer) Close() error {
	close(c.ch)
	return nil
}

// Send pushes a message into the channel consumer.
func (c *ChannelConsumer) Send(msg ConsumerMessage) {
	c.ch <- msg
}
