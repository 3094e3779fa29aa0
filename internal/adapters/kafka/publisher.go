package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kevin07696/purchase-service/internal/domain/ports"
	"github.com/kevin07696/purchase-service/pkg/observability"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// ErrQueueFull is returned when the publish buffer has no room
var ErrQueueFull = errors.New("event queue full")

// ErrClosed is returned after Close
var ErrClosed = errors.New("event publisher closed")

// Config holds Kafka publisher settings
type Config struct {
	Brokers      []string
	Topic        string
	BufferSize   int
	BatchSize    int
	BatchTimeout time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns publisher defaults for the given brokers and topic
func DefaultConfig(brokers []string, topic string) Config {
	return Config{
		Brokers:      brokers,
		Topic:        topic,
		BufferSize:   1024,
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// EventPublisher implements ports.EventQueue. Queue only buffers; a
// background loop writes batches to Kafka so the purchase path never waits
// on the broker.
type EventPublisher struct {
	writer  messageWriter
	logger  *zap.Logger
	cfg     Config
	buffer  chan kafkago.Message
	done    chan struct{}
	mu      sync.RWMutex
	closed  bool
	started sync.Once
}

// NewEventPublisher creates a publisher writing to cfg.Topic
func NewEventPublisher(cfg Config, logger *zap.Logger) *EventPublisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.Hash{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafkago.RequireAll,
	}
	return newEventPublisher(w, cfg, logger)
}

func newEventPublisher(w messageWriter, cfg Config, logger *zap.Logger) *EventPublisher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &EventPublisher{
		writer: w,
		logger: logger,
		cfg:    cfg,
		buffer: make(chan kafkago.Message, cfg.BufferSize),
		done:   make(chan struct{}),
	}
}

// Start launches the background write loop
func (p *EventPublisher) Start(ctx context.Context) {
	p.started.Do(func() {
		go p.run(ctx)
	})
}

// Queue buffers an event. Events are keyed by session id so the events of one
// purchase land on the same partition.
func (p *EventPublisher) Queue(_ context.Context, event ports.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.Type, err)
	}
	msg := kafkago.Message{
		Key:   []byte(event.SessionID),
		Value: value,
		Time:  event.OccurredAt,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "site_id", Value: []byte(event.SiteID)},
		},
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.buffer <- msg:
		return nil
	default:
		observability.RecordEventPublished(event.Type, "dropped")
		return ErrQueueFull
	}
}

func eventType(msg kafkago.Message) string {
	for _, h := range msg.Headers {
		if h.Key == "event_type" {
			return string(h.Value)
		}
	}
	return ""
}

func (p *EventPublisher) run(ctx context.Context) {
	defer close(p.done)

	batch := make([]kafkago.Message, 0, p.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.writeTimeout())
		defer cancel()
		status := "published"
		if err := p.writer.WriteMessages(writeCtx, batch...); err != nil {
			status = "failed"
			p.logger.Error("Failed to publish purchase events",
				zap.String("topic", p.cfg.Topic),
				zap.Int("count", len(batch)),
				zap.Error(err),
			)
		}
		for _, msg := range batch {
			observability.RecordEventPublished(eventType(msg), status)
		}
		batch = batch[:0]
	}

	for {
		select {
		case msg, ok := <-p.buffer:
			if !ok {
				return
			}
			batch = append(batch, msg)
			closed := p.fill(&batch)
			flush()
			if closed {
				return
			}
		case <-ctx.Done():
			for {
				closed := p.fill(&batch)
				if len(batch) == 0 {
					return
				}
				flush()
				if closed {
					return
				}
			}
		}
	}
}

// fill moves already buffered messages into batch without blocking and
// reports whether the buffer was closed
func (p *EventPublisher) fill(batch *[]kafkago.Message) bool {
	for len(*batch) < p.cfg.BatchSize {
		select {
		case msg, ok := <-p.buffer:
			if !ok {
				return true
			}
			*batch = append(*batch, msg)
		default:
			return false
		}
	}
	return false
}

func (p *EventPublisher) writeTimeout() time.Duration {
	if p.cfg.WriteTimeout > 0 {
		return p.cfg.WriteTimeout
	}
	return 5 * time.Second
}

// Close stops accepting events, flushes the buffer and closes the writer
func (p *EventPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.buffer)
	p.mu.Unlock()

	// Flush here when the loop never ran
	p.started.Do(func() { go p.run(context.Background()) })
	select {
	case <-p.done:
	case <-time.After(p.writeTimeout()):
		p.logger.Warn("Timed out flushing purchase events", zap.String("topic", p.cfg.Topic))
	}

	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("close kafka writer for %s: %w", p.cfg.Topic, err)
	}
	return nil
}
