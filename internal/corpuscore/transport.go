package corpuscore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"cmdcorpus/internal/logger"
)

var kafkaLog = logger.New("kafka")

// MessageWriter is the part of *kafka.Writer the producer uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// MessageReader is the part of *kafka.Reader the consumer uses.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// RecordSink receives classified records.
type RecordSink interface {
	SaveRecords(records []*Record) error
}

// NewKafkaWriter returns a writer for topic on broker.
func NewKafkaWriter(broker, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(broker),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
}

// NewKafkaReader returns a consumer-group reader for topic on broker.
func NewKafkaReader(broker, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       topic,
		GroupID:     groupID,
		MinBytes:    10e3, // 10KB
		MaxBytes:    10e6, // 10MB
		MaxAttempts: 10,
		Dialer: &kafka.Dialer{
			Timeout:   10 * time.Second,
			DualStack: true,
		},
	})
}

// Producer publishes raw entries as JSON messages keyed by dataset.
type Producer struct {
	writer MessageWriter
}

func NewProducer(w MessageWriter) *Producer {
	return &Producer{writer: w}
}

// Publish sends entries one message at a time. Entries that fail to publish
// are logged and skipped; the count of published entries is returned.
func (p *Producer) Publish(ctx context.Context, entries []RawEntry) (int, error) {
	published := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return published, err
		}

		data, err := json.Marshal(entry)
		if err != nil {
			kafkaLog.Error("❌ Error marshaling entry from %s: %v", entry.Source, err)
			continue
		}
		msg := kafka.Message{
			Key:   []byte(entry.Dataset),
			Value: data,
		}
		if err := p.writer.WriteMessages(ctx, msg); err != nil {
			kafkaLog.Error("❌ Error publishing entry from %s to Kafka: %v", entry.Source, err)
			continue
		}
		published++
	}
	kafkaLog.Info("✅ Published %d/%d entries", published, len(entries))
	return published, nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// Read errors back off exponentially between these bounds; a successful
// read resets the delay.
const (
	minReadBackoff = 250 * time.Millisecond
	maxReadBackoff = 30 * time.Second
)

// Consumer reads raw entries from Kafka, classifies them and hands the
// records to every sink.
type Consumer struct {
	reader  MessageReader
	builder *RecordBuilder
	sinks   []RecordSink

	minBackoff, maxBackoff time.Duration
	wait                   func(ctx context.Context, d time.Duration) error
}

func NewConsumer(r MessageReader, builder *RecordBuilder, sinks ...RecordSink) *Consumer {
	return &Consumer{
		reader:     r,
		builder:    builder,
		sinks:      sinks,
		minBackoff: minReadBackoff,
		maxBackoff: maxReadBackoff,
		wait:       sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Run consumes until ctx is cancelled. Bad messages are logged and skipped.
func (c *Consumer) Run(ctx context.Context) error {
	kafkaLog.Info("Starting Kafka consumer")

	processed := 0
	var backoff time.Duration
	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				kafkaLog.Info("Kafka consumer stopped after %d records.", processed)
				return nil
			}
			backoff = c.nextBackoff(backoff)
			kafkaLog.Error("Error reading message from Kafka: %v (retrying in %s)", err, backoff)
			if err := c.wait(ctx, backoff); err != nil {
				kafkaLog.Info("Kafka consumer stopped after %d records.", processed)
				return nil
			}
			continue
		}
		backoff = 0

		kafkaLog.Trace("Received message from topic %s, partition %d, offset %d",
			m.Topic, m.Partition, m.Offset)

		if err := c.handle(m); err != nil {
			kafkaLog.Warn("Skipping message at offset %d: %v", m.Offset, err)
			continue
		}
		processed++
	}
}

func (c *Consumer) nextBackoff(prev time.Duration) time.Duration {
	if prev <= 0 {
		return c.minBackoff
	}
	return min(prev*2, c.maxBackoff)
}

func (c *Consumer) handle(m kafka.Message) error {
	var entry RawEntry
	if err := json.Unmarshal(m.Value, &entry); err != nil {
		return fmt.Errorf("failed to unmarshal entry: %w", err)
	}

	record, err := c.builder.Build(entry)
	if err != nil {
		return err
	}

	for _, sink := range c.sinks {
		if err := sink.SaveRecords([]*Record{record}); err != nil {
			return fmt.Errorf("failed to save record %d: %w", record.ID, err)
		}
	}
	return nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
