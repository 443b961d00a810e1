package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"gardenperf.ai/internal/sim/world"
)

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher streams transitions and sessions to Kafka from a background
// goroutine. The world-facing methods never block; events are dropped when
// the queue is full.
type Publisher struct {
	source  string
	writers map[string]MessageWriter
	logger  *log.Logger

	ch     chan queued
	wg     sync.WaitGroup
	once   sync.Once
	closed atomic.Bool

	published atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

type queued struct {
	topic string
	event Event
}

type Stats struct {
	QueueDepth int    `json:"queue_depth"`
	Published  uint64 `json:"published_total"`
	Dropped    uint64 `json:"dropped_total"`
	Failed     uint64 `json:"failed_total"`
}

func NewPublisher(brokers []string, source string, logger *log.Logger) *Publisher {
	writers := map[string]MessageWriter{}
	for _, topic := range []string{TopicTransitions, TopicSessions} {
		writers[topic] = &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 50 * time.Millisecond,
		}
	}
	return newPublisher(writers, source, logger, 4096)
}

func newPublisher(writers map[string]MessageWriter, source string, logger *log.Logger, queue int) *Publisher {
	p := &Publisher{
		source:  source,
		writers: writers,
		logger:  logger,
		ch:      make(chan queued, queue),
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.loop()
	}()
	return p
}

func (p *Publisher) WriteTransition(rec world.TransitionRecord) error {
	return p.enqueue(TopicTransitions, rec.EventID, EventTypeTransition, rec.WorldID, rec)
}

func (p *Publisher) WriteSession(rec world.SessionRecord) error {
	return p.enqueue(TopicSessions, "", EventTypeSession, rec.WorldID, rec)
}

func (p *Publisher) enqueue(topic, eventID, eventType, worldID string, payload any) error {
	if p == nil || p.closed.Load() {
		return nil
	}
	ev, err := NewEvent(eventID, eventType, p.source, worldID, payload)
	if err != nil {
		return fmt.Errorf("eventbus: %w", err)
	}
	select {
	case p.ch <- queued{topic: topic, event: ev}:
	default:
		p.dropped.Add(1)
	}
	return nil
}

func (p *Publisher) loop() {
	for q := range p.ch {
		if err := p.Publish(context.Background(), q.topic, q.event); err != nil {
			p.failed.Add(1)
			p.printf("eventbus: publish %s %s: %v", q.topic, q.event.EventID, err)
			continue
		}
		p.published.Add(1)
	}
}

// Publish writes one event synchronously, keyed by world id.
func (p *Publisher) Publish(ctx context.Context, topic string, event Event) error {
	if event.EventID == "" || event.EventType == "" || event.WorldID == "" {
		return fmt.Errorf("event missing required fields: event_id=%q, event_type=%q, world_id=%q",
			event.EventID, event.EventType, event.WorldID)
	}
	w, ok := p.writers[topic]
	if !ok {
		return fmt.Errorf("unknown topic %q", topic)
	}
	msg, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.WorldID),
		Value: msg,
	})
}

func (p *Publisher) Stats() Stats {
	if p == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth: len(p.ch),
		Published:  p.published.Load(),
		Dropped:    p.dropped.Load(),
		Failed:     p.failed.Load(),
	}
}

// Close drains the queue and closes the writers.
func (p *Publisher) Close() error {
	var err error
	p.once.Do(func() {
		p.closed.Store(true)
		close(p.ch)
		p.wg.Wait()
		var errs []error
		for topic, w := range p.writers {
			if cerr := w.Close(); cerr != nil {
				errs = append(errs, fmt.Errorf("close writer for topic %s: %w", topic, cerr))
			}
		}
		err = errors.Join(errs...)
	})
	return err
}

func (p *Publisher) printf(format string, args ...any) {
	if p.logger != nil {
		p.logger.Printf(format, args...)
	}
}

// Subscribe reads events from topic until ctx is done.
func Subscribe(ctx context.Context, brokers []string, topic, groupID string, logger *log.Logger, handler func(Event)) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  time.Second,
	})
	defer reader.Close()
	for {
		m, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read %s: %w", topic, err)
		}
		var event Event
		if err := json.Unmarshal(m.Value, &event); err != nil {
			if logger != nil {
				logger.Printf("parse error on %s key=%s: %v", topic, string(m.Key), err)
			}
			continue
		}
		handler(event)
	}
}
