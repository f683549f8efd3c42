package notify

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/sentineltrade/futuresbot/internal/events"
)

func TestNewPush_ReturnsNilWhenCredentialsFileMissing(t *testing.T) {
	p := NewPush(context.Background(), "/nonexistent/creds.json", zerolog.Nop())
	assert.Nil(t, p)
}

func TestNilPush_MethodsAreNoops(t *testing.T) {
	var p *Push
	bus := events.New(zerolog.Nop())

	assert.NotPanics(t, func() { p.SubscribeAll(bus) })
	assert.NotPanics(t, func() { p.enqueue(pushMessage{Topic: "TRADING_ALERTS"}) })
}

func TestPushEnqueue_DropsMessageWhenQueueFull(t *testing.T) {
	p := &Push{log: zerolog.Nop(), queue: make(chan pushMessage, 1)}

	p.enqueue(pushMessage{Title: "first"})
	assert.NotPanics(t, func() { p.enqueue(pushMessage{Title: "second"}) }, "enqueue must drop rather than block when the queue is full")

	assert.Len(t, p.queue, 1)
	queued := <-p.queue
	assert.Equal(t, "first", queued.Title, "the already-queued message should be left untouched by the dropped send")
}

func TestPushSubscribeAll_EnqueuesOnEmergencyStop(t *testing.T) {
	p := &Push{log: zerolog.Nop(), queue: make(chan pushMessage, 4)}
	bus := events.New(zerolog.Nop())
	p.SubscribeAll(bus)

	events.Publish(bus, events.EmergencyStopEvent{Symbol: "BTCUSDT", Reason: "max drawdown"})

	msg := <-p.queue
	assert.Equal(t, "TRADING_ALERTS", msg.Topic)
	assert.Contains(t, msg.Body, "BTCUSDT")
}

func TestPushSubscribeAll_EnqueuesOnCircuitBreakerOpened(t *testing.T) {
	p := &Push{log: zerolog.Nop(), queue: make(chan pushMessage, 4)}
	bus := events.New(zerolog.Nop())
	p.SubscribeAll(bus)

	events.Publish(bus, events.CircuitBreakerOpenedEvent{ConsecutiveErrors: 7})

	msg := <-p.queue
	assert.Equal(t, "TRADING_ALERTS", msg.Topic)
	assert.Contains(t, msg.Body, "7")
}
