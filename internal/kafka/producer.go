package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ms-auction/internal/logger"
	"ms-auction/internal/models"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes auction domain events. Messages are keyed by auction id so
// one auction's events stay ordered within a partition.
type Producer struct {
	writer messageWriter
	log    *logger.Logger
}

func NewProducer(brokers []string, log *logger.Logger) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			BatchTimeout:           10 * time.Millisecond,
			AllowAutoTopicCreation: true,
		},
		log: log,
	}
}

func (p *Producer) Publish(ctx context.Context, topic, key string, value []byte) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
		Time:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	p.log.LogKafka("PUBLISH", topic, fmt.Sprintf("key=%s bytes=%d", key, len(value)))
	return nil
}

// PublishEvent writes a live event as JSON, keyed by its auction id.
func (p *Producer) PublishEvent(ctx context.Context, topic string, ev models.LiveEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.Publish(ctx, topic, ev.AuctionID, value)
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
