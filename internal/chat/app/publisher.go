package app

import (
	"context"
	"fmt"

	errprocess "marketplace_chat_service/pkg/err"

	"github.com/segmentio/kafka-go"
)

// KafkaEventPublisher implements EventPublisher on a kafka writer whose Hash
// balancer pins each conversation to one partition.
type KafkaEventPublisher struct {
	writer *kafka.Writer
}

// NewKafkaEventPublisher create a KafkaEventPublisher
func NewKafkaEventPublisher(writer *kafka.Writer) *KafkaEventPublisher {
	return &KafkaEventPublisher{writer: writer}
}

// Publish appends one event keyed by conversationId.
func (p *KafkaEventPublisher) Publish(ctx context.Context, key string, value []byte) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
	})
	if err != nil {
		return errprocess.Set(fmt.Sprintf("durable log append failed(conversation: %s): %v", key, err))
	}
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaEventPublisher) Close() error {
	return p.writer.Close()
}
