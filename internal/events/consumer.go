package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"emergency-dispatch-service/internal/models"
	"emergency-dispatch-service/internal/observability/logging"
)

// ConsumerConfig configures a transcript topic reader.
type ConsumerConfig struct {
	Brokers []string
	Topic   string
	// Since rewinds a partition reader this far before now. Ignored when
	// GroupID is set.
	Since   time.Duration
	GroupID string
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Consumer reads transcript updates back from Kafka and forwards them to a
// Notifier, e.g. to watch calls from another host.
type Consumer struct {
	reader messageReader
	topic  string
	since  time.Duration
	log    zerolog.Logger
}

// NewConsumer creates a reader on cfg.Topic.
func NewConsumer(cfg ConsumerConfig) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("events: consumer needs at least one broker")
	}
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}

	rc := kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	}
	if cfg.GroupID != "" {
		rc.GroupID = cfg.GroupID
	} else {
		// Partition reader without a consumer group works through port-forwards.
		rc.Partition = 0
	}

	return &Consumer{
		reader: kafka.NewReader(rc),
		topic:  topic,
		since:  cfg.Since,
		log:    logging.WithComponent("events.consumer"),
	}, nil
}

// Run forwards updates until ctx is done. Malformed messages are skipped.
func (c *Consumer) Run(ctx context.Context, sink Notifier) error {
	if r, ok := c.reader.(*kafka.Reader); ok && c.since > 0 && r.Config().GroupID == "" {
		if err := r.SetOffsetAt(ctx, time.Now().Add(-c.since)); err != nil {
			c.log.Warn().Err(err).Msg("Could not rewind reader, starting from latest")
		}
	}

	c.log.Info().Str("topic", c.topic).Dur("since", c.since).Msg("Consuming transcript updates")

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Warn().Err(err).Str("topic", c.topic).Msg("Kafka read error")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		u, err := DecodeMessage(msg)
		if err != nil {
			c.log.Warn().Err(err).Int64("offset", msg.Offset).Msg("Skipping malformed message")
			continue
		}
		if err := sink.Notify(ctx, u); err != nil {
			c.log.Warn().Err(err).Str("sessionId", u.SessionID).Msg("Sink rejected update")
		}
	}
}

// Close closes the reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DecodeMessage parses a message written by Publisher.
func DecodeMessage(msg kafka.Message) (models.TranscriptUpdate, error) {
	for _, h := range msg.Headers {
		if h.Key == "eventType" && string(h.Value) != EventTranscriptUpdate {
			return models.TranscriptUpdate{}, fmt.Errorf("unexpected event type %q", h.Value)
		}
	}
	var u models.TranscriptUpdate
	if err := json.Unmarshal(msg.Value, &u); err != nil {
		return models.TranscriptUpdate{}, fmt.Errorf("decode transcript update: %w", err)
	}
	if u.SessionID == "" {
		u.SessionID = string(msg.Key)
	}
	return u, nil
}
