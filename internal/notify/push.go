// Package notify: Push adapts push_service.go's Firebase Cloud Messaging
// worker into a second optional event-bus collaborator, keeping the
// buffered-channel-plus-worker-goroutine shape and the non-blocking
// drop-on-full send path, but subscribing to the domain's own trading
// events instead of whale/alert types.
package notify

import (
	"context"
	"fmt"
	"os"

	firebase "firebase.google.com/go"
	"firebase.google.com/go/messaging"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"github.com/sentineltrade/futuresbot/internal/events"
)

const pushQueueDepth = 500

// pushMessage is one queued FCM notification.
type pushMessage struct {
	Topic string
	Title string
	Body  string
	Data  map[string]string
}

// Push is the concrete optional FCM notifier. A nil *Push is valid.
type Push struct {
	client *messaging.Client
	log    zerolog.Logger
	queue  chan pushMessage
}

// NewPush initializes Firebase from a service-account credentials file, or
// returns nil if the file is absent/unreadable, matching the source
// material's nil-safe optional-service idiom.
func NewPush(ctx context.Context, credentialsFile string, log zerolog.Logger) *Push {
	if _, err := os.Stat(credentialsFile); err != nil {
		return nil
	}

	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		log.Warn().Err(err).Msg("firebase app init failed, push disabled")
		return nil
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("firebase messaging client init failed, push disabled")
		return nil
	}

	p := &Push{
		client: client,
		log:    log.With().Str("component", "notify_push").Logger(),
		queue:  make(chan pushMessage, pushQueueDepth),
	}
	go p.worker(ctx)
	return p
}

func (p *Push) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-p.queue:
			fcm := &messaging.Message{
				Notification: &messaging.Notification{Title: msg.Title, Body: msg.Body},
				Data:         msg.Data,
				Topic:        msg.Topic,
			}
			if _, err := p.client.Send(ctx, fcm); err != nil {
				p.log.Warn().Err(err).Msg("fcm send failed")
			}
		}
	}
}

// SubscribeAll wires emergency-stop and circuit-breaker events to push
// notifications on a shared topic. Safe to call on a nil *Push (no-op).
func (p *Push) SubscribeAll(bus *events.Bus) {
	if p == nil {
		return
	}
	events.Subscribe(bus, func(e events.EmergencyStopEvent) {
		p.enqueue(pushMessage{
			Topic: "TRADING_ALERTS",
			Title: "Emergency stop",
			Body:  fmt.Sprintf("%s: %s", e.Symbol, e.Reason),
			Data:  map[string]string{"symbol": string(e.Symbol), "reason": e.Reason},
		})
	})
	events.Subscribe(bus, func(e events.CircuitBreakerOpenedEvent) {
		p.enqueue(pushMessage{
			Topic: "TRADING_ALERTS",
			Title: "Circuit breaker open",
			Body:  fmt.Sprintf("%d consecutive errors", e.ConsecutiveErrors),
		})
	})
}

func (p *Push) enqueue(msg pushMessage) {
	if p == nil {
		return
	}
	select {
	case p.queue <- msg:
	default:
		p.log.Warn().Msg("push queue full, dropping message")
	}
}
