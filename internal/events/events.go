// Package events publishes housing lifecycle events to RabbitMQ so that other
// services (mailing, accounting) can react to approvals and freed beds.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"dorm-open-data-backend/config"
)

// ApplicationApproved is emitted after an application became an accepted application.
type ApplicationApproved struct {
	AcceptedApplicationID int64     `json:"accepted_application_id"`
	ApplicationID         int64     `json:"application_id"`
	UserID                int64     `json:"user_id"`
	RoomID                int64     `json:"room_id"`
	AcademicYear          string    `json:"academic_year"`
	PaymentID             *int64    `json:"payment_id,omitempty"`
	OccurredAt            time.Time `json:"occurred_at"`
}

// RoomVacated is emitted after a resident left a room, by eviction or checkout.
type RoomVacated struct {
	RoomID     int64     `json:"room_id"`
	UserID     int64     `json:"user_id"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Reasons carried by RoomVacated.
const (
	ReasonEviction = "eviction"
	ReasonCheckout = "checkout"
)

// Publisher delivers lifecycle events. Failures are returned so callers can
// log them; they never undo the write that produced the event.
type Publisher interface {
	PublishApproved(ctx context.Context, event ApplicationApproved) error
	PublishVacated(ctx context.Context, event RoomVacated) error
}

// New returns an AMQP publisher, or a no-op one when no broker URL is configured.
func New(cfg config.EventsConfig, logger *zap.Logger) Publisher {
	if cfg.URL == "" {
		return NopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AMQPPublisher{
		url:           cfg.URL,
		approvedQueue: cfg.ApprovedQueue,
		vacatedQueue:  cfg.VacatedQueue,
		logger:        logger,
	}
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) PublishApproved(context.Context, ApplicationApproved) error { return nil }
func (NopPublisher) PublishVacated(context.Context, RoomVacated) error          { return nil }

// AMQPPublisher dials the broker for every event and declares the target
// queue before publishing a persistent JSON message.
type AMQPPublisher struct {
	url           string
	approvedQueue string
	vacatedQueue  string
	logger        *zap.Logger
}

func (p *AMQPPublisher) PublishApproved(ctx context.Context, event ApplicationApproved) error {
	return p.publish(ctx, p.approvedQueue, event)
}

func (p *AMQPPublisher) PublishVacated(ctx context.Context, event RoomVacated) error {
	return p.publish(ctx, p.vacatedQueue, event)
}

func (p *AMQPPublisher) publish(ctx context.Context, queue string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", queue, err)
	}

	conn, err := amqp.Dial(p.url)
	if err != nil {
		p.logger.Warn("rabbitmq dial failed", zap.String("queue", queue), zap.Error(err))
		return fmt.Errorf("dial broker: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", queue, false, false, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", queue, err)
	}
	p.logger.Debug("event published", zap.String("queue", queue))
	return nil
}
