package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// NewKafkaWriterWithRetry builds a Kafka writer and verifies the connection
// with a probe message. The Hash balancer keeps every message with the same
// key on the same partition.
func NewKafkaWriterWithRetry(k KafkaConnection) (*kafka.Writer, error) {
	var writer *kafka.Writer
	var err error

	for attempt := 1; attempt <= k.RetryCount; attempt++ {
		writer = kafka.NewWriter(kafka.WriterConfig{
			Brokers:  k.Brokers,
			Topic:    k.Topic,
			Balancer: &kafka.Hash{},
		})

		// probe message, dropped by consumers as malformed
		err = writer.WriteMessages(context.Background(), kafka.Message{
			Key:   []byte("ping"),
			Value: []byte("ping"),
		})
		if err == nil {
			log.Printf("Kafka Writer ready (attempt %d)", attempt)
			return writer, nil
		}

		log.Printf("Kafka Writer connect failed (attempt %d/%d): %v", attempt, k.RetryCount, err)
		writer.Close()
		time.Sleep(k.RetryInterval * time.Second)
	}

	return nil, fmt.Errorf("unable to create Kafka Writer after %d attempts: %v", k.RetryCount, err)
}

// NewKafkaReaderWithRetry builds a consumer-group reader and verifies the
// brokers are reachable.
func NewKafkaReaderWithRetry(k KafkaConnection) (*kafka.Reader, error) {
	var err error

	for attempt := 1; attempt <= k.RetryCount; attempt++ {
		var conn *kafka.Conn
		conn, err = kafka.Dial("tcp", k.Brokers[0])
		if err == nil {
			conn.Close()
			log.Printf("Kafka Reader ready (attempt %d)", attempt)
			return kafka.NewReader(kafka.ReaderConfig{
				Brokers:  k.Brokers,
				Topic:    k.Topic,
				GroupID:  k.GroupID,
				MinBytes: 1,
				MaxBytes: 10e6,
			}), nil
		}

		log.Printf("Kafka Reader connect failed (attempt %d/%d): %v", attempt, k.RetryCount, err)
		time.Sleep(k.RetryInterval * time.Second)
	}

	return nil, fmt.Errorf("unable to create Kafka Reader after %d attempts: %v", k.RetryCount, err)
}
