// Package bus provides the durable, topic-routed message fabric that carries
// domain events between the Books, Reservations and Wallets services once
// they have been durably appended to the event store.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/Merodami/book-library-tool-ddd-sub001/internal/event"
)

const (
	// Exchange is the single topic exchange every service publishes to and
	// binds its queue against. Routing keys are event types.
	Exchange = "library.events"
	// DeadLetterExchange receives messages nacked after their retry budget
	// is exhausted.
	DeadLetterExchange = "library.events.dlx"
)

// Handler processes one event off a queue. Returning an error causes the
// message to be nacked and, per retry policy, eventually dead-lettered; it
// never blocks consumption of a different event type.
type Handler func(ctx context.Context, e event.Envelope) error

// Bus is a RabbitMQ-backed publisher/subscriber for the shared topic
// exchange. A publish that finds the channel missing or closed first
// reconnects with exponential backoff; consumers started by Subscribe are
// not re-established after a connection loss. Publishes are wrapped in a
// circuit breaker so a downed broker fails fast instead of piling up
// blocked goroutines.
type Bus struct {
	url         string
	serviceName string

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel

	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	tracer  trace.Tracer
}

// Config controls reconnect and throttling behavior.
type Config struct {
	URL         string
	ServiceName string
	// RedeliveryRatePerSecond caps how fast this Bus's consumers take
	// deliveries, first deliveries and requeued redeliveries alike; one
	// limiter is shared by all of the Bus's subscriptions, bounding load
	// during an incident.
	RedeliveryRatePerSecond float64
}

// New dials the broker, declares the shared topology, and returns a ready
// Bus. It does not start consuming; call Subscribe per event type.
func New(ctx context.Context, cfg Config) (*Bus, error) {
	if cfg.RedeliveryRatePerSecond <= 0 {
		cfg.RedeliveryRatePerSecond = 50
	}

	b := &Bus{
		url:         cfg.URL,
		serviceName: cfg.ServiceName,
		limiter:     rate.NewLimiter(rate.Limit(cfg.RedeliveryRatePerSecond), int(cfg.RedeliveryRatePerSecond)),
		tracer:      otel.Tracer("library/bus"),
	}

	b.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        fmt.Sprintf("bus-publish-%s", cfg.ServiceName),
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 10 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
	})

	if err := b.connect(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Bus) connect(ctx context.Context) error {
	operation := func() (struct{}, error) {
		conn, err := amqp.Dial(b.url)
		if err != nil {
			return struct{}{}, err
		}
		ch, err := conn.Channel()
		if err != nil {
			conn.Close()
			return struct{}{}, err
		}
		if err := declareTopology(ch, b.serviceName); err != nil {
			ch.Close()
			conn.Close()
			return struct{}{}, err
		}

		b.mu.Lock()
		b.conn = conn
		b.channel = ch
		b.mu.Unlock()
		return struct{}{}, nil
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(10),
	)
	return err
}

func declareTopology(ch *amqp.Channel, serviceName string) error {
	if err := ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if err := ch.ExchangeDeclare(DeadLetterExchange, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dead-letter exchange: %w", err)
	}

	dlq := serviceName + ".dlq"
	if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dead-letter queue: %w", err)
	}
	if err := ch.QueueBind(dlq, "", DeadLetterExchange, false, nil); err != nil {
		return fmt.Errorf("bind dead-letter queue: %w", err)
	}
	return nil
}

// Publish sends an already-appended event to the shared exchange, routed by
// event type. Publication is at-least-once and best-effort from the
// command handler's perspective: a failure here never rolls back the
// append that already happened.
func (b *Bus) Publish(ctx context.Context, e event.Envelope) error {
	ctx, span := b.tracer.Start(ctx, "bus.publish", trace.WithAttributes(
		attribute.String("event.type", e.EventType),
		attribute.String("aggregate.id", e.AggregateID.String()),
	))
	defer span.End()

	_, err := b.breaker.Execute(func() (interface{}, error) {
		return nil, b.publishOnce(ctx, e)
	})
	return err
}

func (b *Bus) publishOnce(ctx context.Context, e event.Envelope) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	b.mu.RLock()
	ch := b.channel
	b.mu.RUnlock()
	if ch == nil || ch.IsClosed() {
		if err := b.connect(ctx); err != nil {
			return err
		}
		b.mu.RLock()
		ch = b.channel
		b.mu.RUnlock()
	}

	return ch.PublishWithContext(ctx, Exchange, e.EventType, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		MessageId:    e.Metadata.CorrelationID.String(),
		Timestamp:    e.Timestamp,
		DeliveryMode: amqp.Persistent,
	})
}

// Subscribe declares a durable queue bound to eventType on the shared
// exchange and dispatches deliveries to handler. maxRetries bounds
// redelivery before a message is dead-lettered. Subscribe starts its own
// consumption goroutine and returns immediately.
func (b *Bus) Subscribe(ctx context.Context, eventType string, maxRetries int, handler Handler) error {
	b.mu.RLock()
	ch := b.channel
	b.mu.RUnlock()
	if ch == nil {
		return fmt.Errorf("bus: not connected")
	}

	queue := fmt.Sprintf("%s.%s", b.serviceName, eventType)
	args := amqp.Table{"x-dead-letter-exchange": DeadLetterExchange}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, args); err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	if err := ch.QueueBind(queue, eventType, Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s to %s: %w", queue, eventType, err)
	}

	deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", queue, err)
	}

	go b.consume(ctx, deliveries, maxRetries, handler)
	return nil
}

func (b *Bus) consume(ctx context.Context, deliveries <-chan amqp.Delivery, maxRetries int, handler Handler) {
	// failures counts handler failures per event on this consumer: a nack
	// with requeue adds no x-death header, so the header alone never
	// reaches maxRetries.
	failures := make(map[string]int)
	for d := range deliveries {
		if err := b.limiter.Wait(ctx); err != nil {
			return
		}

		var e event.Envelope
		if err := json.Unmarshal(d.Body, &e); err != nil {
			log.Printf("bus: discarding unparseable message: %v", err)
			d.Nack(false, false)
			continue
		}

		ctx, span := b.tracer.Start(ctx, "bus.consume", trace.WithAttributes(
			attribute.String("event.type", e.EventType),
		))

		key := fmt.Sprintf("%s/%d", e.AggregateID, e.Version)
		if err := handler(ctx, e); err != nil {
			retryCount := deliveryRetryCount(d) + failures[key]
			// Domain errors produced by a projection handler are not
			// retried here; per policy only infrastructure failures do —
			// the handler itself decides what counts as retryable by
			// whether it returns an error at all.
			if retryCount >= maxRetries {
				log.Printf("bus: %s exhausted %d retries, dead-lettering: %v", e.EventType, maxRetries, err)
				delete(failures, key)
				d.Nack(false, false)
			} else {
				log.Printf("bus: %s failed (retry %d/%d): %v", e.EventType, retryCount+1, maxRetries, err)
				failures[key]++
				d.Nack(false, true)
			}
			span.End()
			continue
		}

		delete(failures, key)
		d.Ack(false)
		span.End()
	}
}

func deliveryRetryCount(d amqp.Delivery) int {
	if d.Headers == nil {
		return 0
	}
	if v, ok := d.Headers["x-death"]; ok {
		if deaths, ok := v.([]interface{}); ok {
			return len(deaths)
		}
	}
	return 0
}

// BreakerState reports the circuit breaker's current state ("closed",
// "open", or "half-open"), for health checks and chaos experiments that
// need to observe trip/reset behavior from outside the package.
func (b *Bus) BreakerState() string {
	return b.breaker.State().String()
}

// Close releases the underlying connection and channel.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.channel != nil {
		b.channel.Close()
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}
