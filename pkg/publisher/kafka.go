package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"go.uber.org/zap"

	"github.com/chainsafe/htlc-resolver/internal/metrics"
	"github.com/chainsafe/htlc-resolver/pkg/config"
)

const flushTimeoutMs = 5000

type producer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Flush(timeoutMs int) int
	Close()
}

// KafkaPublisher writes transition events to one topic, keyed by order hash
// so every order's transitions land on one partition in order.
type KafkaPublisher struct {
	producer producer
	topic    string
	logger   *zap.Logger
}

// New returns a Kafka publisher when cfg is enabled and a no-op otherwise.
func New(cfg config.KafkaConfig, logger *zap.Logger) (Publisher, error) {
	if !cfg.Enabled {
		logger.Info("Transition publishing disabled")
		return NewNop(), nil
	}
	return NewKafkaPublisher(cfg, logger)
}

// NewKafkaPublisher connects a producer to cfg.Brokers.
func NewKafkaPublisher(cfg config.KafkaConfig, logger *zap.Logger) (*KafkaPublisher, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":  cfg.Brokers,
		"client.id":          cfg.ClientID,
		"acks":               "all",
		"enable.idempotence": true,
		"retries":            3,
		"retry.backoff.ms":   100,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	logger.Info("Kafka publisher ready",
		zap.String("brokers", cfg.Brokers),
		zap.String("topic", cfg.Topic))
	return newKafkaPublisher(p, cfg.Topic, logger), nil
}

func newKafkaPublisher(p producer, topic string, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{producer: p, topic: topic, logger: logger}
}

func (k *KafkaPublisher) Publish(ctx context.Context, ev *TransitionEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode transition event: %w", err)
	}

	delivery := make(chan kafka.Event, 1)
	err = k.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &k.topic, Partition: kafka.PartitionAny},
		Key:            ev.OrderHash.Bytes(),
		Value:          payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(ev.ID)},
			{Key: "status", Value: []byte(ev.To)},
		},
	}, delivery)
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues("publisher", "produce").Inc()
		return fmt.Errorf("failed to produce transition event: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case e := <-delivery:
		msg, ok := e.(*kafka.Message)
		if !ok {
			return fmt.Errorf("unexpected delivery report %T", e)
		}
		if msg.TopicPartition.Error != nil {
			metrics.ErrorsTotal.WithLabelValues("publisher", "delivery").Inc()
			return fmt.Errorf("transition event not delivered: %w", msg.TopicPartition.Error)
		}
	}

	k.logger.Debug("Published transition",
		zap.String("event_id", ev.ID),
		zap.String("order_hash", ev.OrderHash.Hex()),
		zap.String("to", string(ev.To)))
	return nil
}

// Close flushes outstanding messages and releases the producer.
func (k *KafkaPublisher) Close() {
	if left := k.producer.Flush(flushTimeoutMs); left > 0 {
		k.logger.Warn("Kafka producer closed with undelivered messages", zap.Int("pending", left))
	}
	k.producer.Close()
}
