package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"ms-auction/internal/logger"
	"ms-auction/internal/models"

	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads live events from the auction topics as one consumer group.
type Consumer struct {
	reader messageReader
	log    *logger.Logger
}

func NewConsumer(brokers []string, groupID string, topics []string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		GroupTopics: topics,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return &Consumer{reader: reader, log: log}
}

// Run hands each decoded event to handle until ctx is cancelled. Messages
// that do not decode are logged and committed so they are not redelivered.
func (c *Consumer) Run(ctx context.Context, handle func(context.Context, models.LiveEvent)) error {
	c.log.Info("KAFKA", "Live event consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		var ev models.LiveEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil || ev.AuctionID == "" || ev.Type == "" {
			c.log.Warn("KAFKA", fmt.Sprintf("Dropping undecodable message on %s at offset %d", msg.Topic, msg.Offset))
		} else {
			handle(ctx, ev)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Error("KAFKA", fmt.Sprintf("Commit failed on %s: %v", msg.Topic, err))
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
