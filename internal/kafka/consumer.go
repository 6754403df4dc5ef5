package kafka

import (
	"context"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/segmentio/kafka-go"
)

type Config struct {
	Brokers        []string
	Topic          string
	GroupID        string
	MinBytes       int           // default 1B, events are small
	MaxBytes       int           // default 1MB
	CommitInterval time.Duration // default 1s
	MaxWait        time.Duration // default 500ms
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Brokers, validation.Required, validation.Each(validation.Required)),
		validation.Field(&c.Topic, validation.Required),
		validation.Field(&c.GroupID, validation.Required),
	)
}

// Consumer is a thin wrapper around a group-managed kafka-go Reader.
// Offsets are committed explicitly after each event is handled.
type Consumer struct {
	r *kafka.Reader
}

func NewConsumer(c Config) (*Consumer, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}

	minB := c.MinBytes
	if minB <= 0 {
		minB = 1
	}
	maxB := c.MaxBytes
	if maxB <= 0 {
		maxB = 1 << 20
	}
	ci := c.CommitInterval
	if ci <= 0 {
		ci = time.Second
	}
	mw := c.MaxWait
	if mw <= 0 {
		mw = 500 * time.Millisecond
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        c.Brokers,
		GroupID:        c.GroupID,
		Topic:          c.Topic,
		MinBytes:       minB,
		MaxBytes:       maxB,
		CommitInterval: ci,
		MaxWait:        mw,
	})

	return &Consumer{r: r}, nil
}

type Message = kafka.Message

func (c *Consumer) Fetch(ctx context.Context) (Message, error) {
	return c.r.FetchMessage(ctx)
}

func (c *Consumer) Commit(ctx context.Context, m Message) error {
	return c.r.CommitMessages(ctx, m)
}

func (c *Consumer) Close() error { return c.r.Close() }
