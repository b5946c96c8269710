package events

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"booking-engine/internal/core"
)

func getAMQPURL(t *testing.T) string {
	url := os.Getenv("AMQP_URL")
	if url == "" {
		t.Skip("AMQP_URL not set, skipping RabbitMQ test")
	}
	return url
}

func TestPublisher_RoutesByEventType(t *testing.T) {
	url := getAMQPURL(t)
	exchange := "booking.events.test"

	pub, err := NewPublisher(url, exchange)
	if err != nil {
		t.Skipf("RabbitMQ not available: %v", err)
	}
	defer pub.Close()

	conn, err := amqp.Dial(url)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	ch, err := conn.Channel()
	if err != nil {
		t.Fatalf("channel: %v", err)
	}
	defer ch.Close()

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		t.Fatalf("queue declare: %v", err)
	}
	if err := ch.QueueBind(q.Name, "booking.*", exchange, false, nil); err != nil {
		t.Fatalf("queue bind: %v", err)
	}
	msgs, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}

	ctx := context.Background()
	event := core.Event{Type: core.EventBookingCreated, EntityID: "b-1", OccurredAt: time.Now().UTC()}
	if err := pub.Publish(ctx, event); err != nil {
		t.Fatalf("publish: %v", err)
	}
	// Not bound by the test queue's pattern.
	if err := pub.Publish(ctx, core.Event{Type: core.EventStockAdjusted, EntityID: "s-1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case msg := <-msgs:
		if msg.RoutingKey != core.EventBookingCreated {
			t.Errorf("Expected routing key %s, got %s", core.EventBookingCreated, msg.RoutingKey)
		}
		var got core.Event
		if err := json.Unmarshal(msg.Body, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.EntityID != "b-1" {
			t.Errorf("Expected entity b-1, got %s", got.EntityID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}

	select {
	case msg := <-msgs:
		t.Errorf("Unexpected message with routing key %s", msg.RoutingKey)
	case <-time.After(300 * time.Millisecond):
	}
}
