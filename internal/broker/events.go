package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"marketplace/internal/models"

	"github.com/segmentio/kafka-go"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishOrderCreated publishes OrderCreated event
func (ep *EventPublisher) PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	key := fmt.Sprintf("order-%d", event.OrderID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishFulfillmentSubmitted publishes FulfillmentSubmitted event
func (ep *EventPublisher) PublishFulfillmentSubmitted(ctx context.Context, event *models.FulfillmentSubmittedEvent) error {
	key := fmt.Sprintf("order-%d", event.OrderID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishEscrowReleased publishes EscrowReleased event
func (ep *EventPublisher) PublishEscrowReleased(ctx context.Context, event *models.EscrowReleasedEvent) error {
	key := fmt.Sprintf("order-%d", event.OrderID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishEscrowRefunded publishes EscrowRefunded event
func (ep *EventPublisher) PublishEscrowRefunded(ctx context.Context, event *models.EscrowRefundedEvent) error {
	key := fmt.Sprintf("order-%d", event.OrderID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishOrderDisputed publishes OrderDisputed event
func (ep *EventPublisher) PublishOrderDisputed(ctx context.Context, event *models.OrderDisputedEvent) error {
	key := fmt.Sprintf("order-%d", event.OrderID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// EventHandler routes incoming events to registered callbacks
type EventHandler struct {
	onDisputeResolved func(context.Context, *models.DisputeResolvedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnDisputeResolved registers a handler for DisputeResolved events
func (eh *EventHandler) OnDisputeResolved(handler func(context.Context, *models.DisputeResolvedEvent) error) {
	eh.onDisputeResolved = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	switch baseEvent.EventType {
	case models.EventTypeDisputeResolved:
		if eh.onDisputeResolved != nil {
			var event models.DisputeResolvedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal DisputeResolved event: %w", err)
			}
			return eh.onDisputeResolved(ctx, &event)
		}

	default:
		log.Printf("Unhandled event type: %s", baseEvent.EventType)
	}

	return nil
}
