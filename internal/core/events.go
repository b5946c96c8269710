package core

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Domain event routing keys.
const (
	EventBookingCreated        = "booking.created"
	EventBookingAmended        = "booking.amended"
	EventBookingCancelled      = "booking.cancelled"
	EventBookingConverted      = "booking.converted"
	EventCheckoutScanCompleted = "checkout.scan_completed"
	EventCheckoutCompleted     = "checkout.completed"
	EventOverrideCreated       = "override.created"
	EventStockAdjusted         = "stock.adjusted"
)

// Event is the envelope published after a write commits.
type Event struct {
	Type        string    `json:"type"`
	EntityID    string    `json:"entityId"`
	ActorUserID string    `json:"actorUserId,omitempty"`
	OccurredAt  time.Time `json:"occurredAt"`
	Payload     any       `json:"payload,omitempty"`
}

// EventPublisher delivers domain events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) error { return nil }

// NopPublisher discards every event.
func NopPublisher() EventPublisher { return nopPublisher{} }

// publishAfterCommit sends an event once the write is durable. Delivery is
// best-effort: a failure is logged and never undoes the committed write.
func publishAfterCommit(ctx context.Context, pub EventPublisher, log *zap.Logger, event Event) {
	if pub == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := pub.Publish(ctx, event); err != nil {
		log.Warn("failed to publish domain event",
			zap.String("event", event.Type),
			zap.String("entity_id", event.EntityID),
			zap.Error(err))
	}
}
