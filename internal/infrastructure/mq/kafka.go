package mq

import (
	"fmt"

	"pointsystem/internal/config"

	"github.com/IBM/sarama"
)

// Producer sends keyed messages to Kafka.
type Producer struct {
	producer sarama.SyncProducer
}

// NewKafkaProducer connects a synchronous producer that waits for all replicas.
func NewKafkaProducer(cfg *config.KafkaConfig) (*Producer, error) {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll
	kafkaConfig.Producer.Retry.Max = 3
	kafkaConfig.Producer.Return.Successes = true
	// same key, same partition: keeps one user's events in order
	kafkaConfig.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(cfg.Brokers, kafkaConfig)
	if err != nil {
		return nil, fmt.Errorf("kafka: create producer: %w", err)
	}
	return NewProducer(producer), nil
}

// NewProducer wraps an existing sarama producer, e.g. sarama/mocks in tests.
func NewProducer(producer sarama.SyncProducer) *Producer {
	return &Producer{producer: producer}
}

// SendMessage sends value keyed by key and waits for the broker ack.
func (p *Producer) SendMessage(topic, key string, value []byte) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(value),
	}
	_, _, err := p.producer.SendMessage(msg)
	return err
}

// Close flushes and closes the producer.
func (p *Producer) Close() error {
	return p.producer.Close()
}
