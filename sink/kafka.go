package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/solanatracker/data-api-sdk/logging"
	"github.com/solanatracker/data-api-sdk/models"
)

const forwardTimeout = 10 * time.Second

// ForwarderStats holds forwarding statistics.
type ForwarderStats struct {
	MessagesSent  int64     `json:"messages_sent"`
	MessagesError int64     `json:"messages_error"`
	LastSentTime  time.Time `json:"last_sent_time"`
	LastError     string    `json:"last_error"`
}

// TradeForwarder publishes deduplicated trade events onto a Kafka topic
// so downstream consumers see each transaction exactly once per session.
type TradeForwarder struct {
	writer *kafka.Writer
	logger *logging.Logger

	mutex sync.RWMutex
	stats ForwarderStats
}

// NewTradeForwarder creates a forwarder writing to the given brokers and
// topic.
func NewTradeForwarder(brokers []string, topic string) (*TradeForwarder, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("brokers cannot be empty")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic cannot be empty")
	}

	logger := logging.NewLogger("datastream", "trade-forwarder")

	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      brokers,
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    50,
		BatchTimeout: 100 * time.Millisecond,
		RequiredAcks: 1,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Error("Kafka producer error", map[string]interface{}{
				"message": fmt.Sprintf(msg, args...),
			})
		}),
	})

	return &TradeForwarder{
		writer: writer,
		logger: logger,
	}, nil
}

// Forward publishes one trade event, keyed by wallet so one wallet's
// trades stay ordered within a partition.
func (f *TradeForwarder) Forward(ctx context.Context, event models.TradeEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal trade event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, forwardTimeout)
	defer cancel()

	err = f.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Wallet),
		Value: value,
	})

	f.mutex.Lock()
	if err != nil {
		f.stats.MessagesError++
		f.stats.LastError = err.Error()
	} else {
		f.stats.MessagesSent++
		f.stats.LastSentTime = time.Now()
	}
	f.mutex.Unlock()

	if err != nil {
		f.logger.WithError(err).Error("Failed to forward trade event")
		return fmt.Errorf("forward trade event: %w", err)
	}
	return nil
}

// ForwardRaw publishes a raw room payload as delivered by the stream,
// keyed by room.
func (f *TradeForwarder) ForwardRaw(ctx context.Context, room string, data json.RawMessage) error {
	ctx, cancel := context.WithTimeout(ctx, forwardTimeout)
	defer cancel()

	err := f.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(room),
		Value: data,
	})

	f.mutex.Lock()
	if err != nil {
		f.stats.MessagesError++
		f.stats.LastError = err.Error()
	} else {
		f.stats.MessagesSent++
		f.stats.LastSentTime = time.Now()
	}
	f.mutex.Unlock()

	if err != nil {
		f.logger.WithRoom(room).WithError(err).Error("Failed to forward payload")
		return fmt.Errorf("forward payload: %w", err)
	}
	return nil
}

// Stats returns a snapshot of the forwarding counters.
func (f *TradeForwarder) Stats() ForwarderStats {
	f.mutex.RLock()
	defer f.mutex.RUnlock()
	return f.stats
}

// Close flushes and closes the underlying writer.
func (f *TradeForwarder) Close() error {
	return f.writer.Close()
}
