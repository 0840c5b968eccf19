package export

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/mr1hm/go-live-alerts/internal/models"
)

const writeTimeout = 10 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes accepted events to a Kafka topic, keyed by event id.
type Writer struct {
	writer messageWriter
	topic  string
}

func NewWriter(brokers []string, topic string) (*Writer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("brokers cannot be empty")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic cannot be empty")
	}
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		WriteTimeout: writeTimeout,
		RequiredAcks: kafkago.RequireOne,
	}
	return &Writer{writer: w, topic: topic}, nil
}

func (w *Writer) Export(ctx context.Context, e models.DisasterEvent) error {
	msg, err := serializeToMessage(e)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("writing %s to %s: %w", e.ID, w.topic, err)
	}
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

func serializeToMessage(e models.DisasterEvent) (kafkago.Message, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize disaster event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(e.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "kind", Value: []byte(e.Kind)},
			{Key: "severity", Value: []byte(e.Severity)},
			{Key: "source", Value: []byte(e.Source)},
		},
		Time: e.Timestamp(),
	}, nil
}
