package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"kasa-backend/internal/events"
)

// Consumer diğer node'ların yayınladığı olayları okuyup yerel hub'a teslim eder.
type Consumer struct {
	reader *kafka.Reader
	hub    *events.Hub
	logger *slog.Logger
}

func NewConsumer(brokers []string, topic, groupID string, hub *events.Hub, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: brokers,
			Topic:   topic,
			GroupID: groupID,
		}),
		hub:    hub,
		logger: logger,
	}
}

// Run ctx iptal edilene kadar okur.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return err
		}
		c.handle(msg)
	}
}

func (c *Consumer) handle(msg kafka.Message) {
	var e events.Event
	if err := json.Unmarshal(msg.Value, &e); err != nil {
		c.logger.Warn("kafka mesajı çözümlenemedi", "offset", msg.Offset, "error", err)
		return
	}
	// kendi yayınladığımız olay zaten yerelde teslim edildi
	if e.Origin == c.hub.Origin() {
		return
	}
	c.hub.Deliver(e)
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
