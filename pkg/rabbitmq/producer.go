/**
 * @description
 * This package provides a producer for publishing subscription lifecycle
 * events to RabbitMQ. Publishing is best-effort: the service commits its
 * database writes first and event failures are logged, never surfaced to
 * the admin performing the review.
 *
 * @dependencies
 * - github.com/rabbitmq/amqp091-go: The RabbitMQ client library.
 */
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
)

// SubscriptionEventsExchange is the topic exchange all lifecycle events
// are published to.
const SubscriptionEventsExchange = "subscription_events"

// Routing keys.
const (
	RoutingKeyApproved = "subscription.approved"
	RoutingKeyRejected = "subscription.rejected"
)

// SubscriptionApprovedEvent is published after an approval transaction
// commits, carrying the commission fan-out size for downstream consumers.
type SubscriptionApprovedEvent struct {
	SubscriptionID  uuid.UUID       `json:"subscription_id"`
	UserID          uuid.UUID       `json:"user_id"`
	PlanID          string          `json:"plan_id"`
	PaidAmount      decimal.Decimal `json:"paid_amount"`
	CommissionCount int             `json:"commission_count"`
	Timestamp       time.Time       `json:"timestamp"`
}

// SubscriptionRejectedEvent is published after a rejection.
type SubscriptionRejectedEvent struct {
	SubscriptionID uuid.UUID `json:"subscription_id"`
	UserID         uuid.UUID `json:"user_id"`
	PlanID         string    `json:"plan_id"`
	Timestamp      time.Time `json:"timestamp"`
}

// EventProducer holds the RabbitMQ connection and channel for publishing
// messages.
type EventProducer struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
}

// EventProducerFallback is a minimal no-op publisher used when RabbitMQ
// is unavailable at startup.
type EventProducerFallback struct{}

func (p *EventProducerFallback) PublishSubscriptionApproved(ctx context.Context, event SubscriptionApprovedEvent) error {
	log.Printf("level=warn component=rabbitmq_producer mode=fallback msg=\"approval event publish skipped\" subscription_id=%s", event.SubscriptionID)
	return nil
}

func (p *EventProducerFallback) PublishSubscriptionRejected(ctx context.Context, event SubscriptionRejectedEvent) error {
	log.Printf("level=warn component=rabbitmq_producer mode=fallback msg=\"rejection event publish skipped\" subscription_id=%s", event.SubscriptionID)
	return nil
}

func (p *EventProducerFallback) Close() {}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	// If any stray characters precede the scheme, slice from first occurrence of amqp
	idx := strings.Index(strings.ToLower(clean), "amqp")
	if idx > 0 {
		clean = clean[idx:]
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// NewEventProducer creates and returns a new EventProducer. The topic
// exchange is declared on connect so consumers can bind before any
// approval happens.
func NewEventProducer(amqpURL string) (*EventProducer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	// Use a bounded dial timeout so startup does not hang indefinitely
	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := ch.ExchangeDeclare(SubscriptionEventsExchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &EventProducer{conn: conn, channel: ch}, nil
}

// Publish marshals the body as JSON and publishes it to the given
// routing key on the subscription events exchange.
func (p *EventProducer) Publish(ctx context.Context, routingKey string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	publishCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return p.channel.PublishWithContext(publishCtx,
		SubscriptionEventsExchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         payload,
		},
	)
}

// PublishSubscriptionApproved publishes an approval event.
func (p *EventProducer) PublishSubscriptionApproved(ctx context.Context, event SubscriptionApprovedEvent) error {
	return p.Publish(ctx, RoutingKeyApproved, event)
}

// PublishSubscriptionRejected publishes a rejection event.
func (p *EventProducer) PublishSubscriptionRejected(ctx context.Context, event SubscriptionRejectedEvent) error {
	return p.Publish(ctx, RoutingKeyRejected, event)
}

// Close shuts down the channel and connection.
func (p *EventProducer) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
