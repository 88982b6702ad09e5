package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"booking/pkg/utils"
)

type EventType string

const (
	EventBookCheckedOut       EventType = "book.checked_out"
	EventBookReturned         EventType = "book.returned"
	EventFineAssessed         EventType = "fine.assessed"
	EventReservationAvailable EventType = "reservation.available"
	EventRideRequested        EventType = "ride.requested"
	EventRideAccepted         EventType = "ride.accepted"
	EventRideStarted          EventType = "ride.started"
	EventRideCompleted        EventType = "ride.completed"
	EventRideCancelled        EventType = "ride.cancelled"
	EventRatingReceived       EventType = "rating.received"
)

// Event is an outbound notification. Subject is the barcode or ride id the
// event is about; Recipient is the member, rider or driver to tell.
type Event struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	Recipient string            `json:"recipient"`
	Subject   string            `json:"subject"`
	Data      map[string]string `json:"data,omitempty"`
	At        time.Time         `json:"at"`
}

func NewEvent(typ EventType, recipient, subject string, at time.Time, kv ...string) Event {
	e := Event{
		ID:        utils.GenerateID(),
		Type:      typ,
		Recipient: recipient,
		Subject:   subject,
		At:        at,
	}
	if len(kv) > 1 {
		e.Data = make(map[string]string, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			e.Data[kv[i]] = kv[i+1]
		}
	}
	return e
}

// Notifier is the outbound port the services talk to. Notify must not block
// the caller and has no result: a transition that already committed is never
// rolled back because somebody could not be told about it.
//
//go:generate mockgen -destination=mocks/mock_notifier.go -package=mocks booking/internal/services Notifier
type Notifier interface {
	Notify(ctx context.Context, e Event)
}

// Sink delivers events somewhere outside the process.
type Sink interface {
	Deliver(ctx context.Context, e Event) error
	Close() error
}

// NotificationService fans events out to its sinks from a single background
// goroutine.
//
// Go Learning Note (Buffered Channels as Queues):
// events is a buffered channel. Notify does a non-blocking send
// (`select { case ch <- e: default: }`), so a slow sink can fill the buffer
// but can never stall a checkout or a ride acceptance; once full, events are
// dropped and counted. The worker drains the channel with for-range, which
// ends when Close closes the channel.
type NotificationService struct {
	events chan Event
	sinks  []Sink
	log    *zap.Logger

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
	done    chan struct{}
}

var _ Notifier = (*NotificationService)(nil)

// NewNotificationService starts the delivery worker.
func NewNotificationService(buffer int, log *zap.Logger, sinks ...Sink) *NotificationService {
	if buffer < 1 {
		buffer = 1
	}
	s := &NotificationService{
		events: make(chan Event, buffer),
		sinks:  sinks,
		log:    log,
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *NotificationService) Notify(ctx context.Context, e Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		s.dropped.Add(1)
		return
	}
	select {
	case s.events <- e:
	default:
		s.dropped.Add(1)
		s.log.Warn("notification queue full, dropping event",
			zap.String("type", string(e.Type)),
			zap.String("recipient", e.Recipient))
	}
}

func (s *NotificationService) run() {
	defer close(s.done)
	for e := range s.events {
		for _, sink := range s.sinks {
			if err := sink.Deliver(context.Background(), e); err != nil {
				s.log.Warn("notification delivery failed",
					zap.String("type", string(e.Type)),
					zap.String("recipient", e.Recipient),
					zap.Error(err))
			}
		}
	}
}

// Dropped is the number of events discarded because the queue was full or
// the service was closed.
func (s *NotificationService) Dropped() int64 {
	return s.dropped.Load()
}

// Close stops accepting events, delivers what is queued and closes the
// sinks. It returns early with ctx's error if draining takes too long.
// Only the first call closes the sinks.
func (s *NotificationService) Close(ctx context.Context) error {
	s.mu.Lock()
	first := !s.closed
	if first {
		s.closed = true
		close(s.events)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if !first {
		return nil
	}

	var firstErr error
	for _, sink := range s.sinks {
		if err := sink.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// LogSink writes every event to the structured log.
type LogSink struct {
	log *zap.Logger
}

func NewLogSink(log *zap.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Deliver(_ context.Context, e Event) error {
	fields := []zap.Field{
		zap.String("type", string(e.Type)),
		zap.String("recipient", e.Recipient),
		zap.String("subject", e.Subject),
	}
	for k, v := range e.Data {
		fields = append(fields, zap.String(k, v))
	}
	s.log.Info("notification", fields...)
	return nil
}

func (s *LogSink) Close() error { return nil }

// KafkaSink publishes events as JSON, keyed by recipient so each
// recipient's events stay ordered within a partition.
type KafkaSink struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaProducer builds a producer that waits for all in-sync replicas.
func NewKafkaProducer(brokers []string) (sarama.SyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Successes = true
	cfg.Producer.Retry.Max = 3

	p, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "kafka producer")
	}
	return p, nil
}

func NewKafkaSink(producer sarama.SyncProducer, topic string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic}
}

func (s *KafkaSink) Deliver(_ context.Context, e Event) error {
	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "encode event")
	}
	msg := &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(e.Recipient),
		Value: sarama.ByteEncoder(data),
	}
	if _, _, err := s.producer.SendMessage(msg); err != nil {
		return errors.Wrapf(err, "publish %s", e.Type)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return s.producer.Close()
}
