// Package statusserver implements the read-only status surface: a
// one-to-many WebSocket broadcaster fanning out activity/trade events to
// connected UI clients, plus a liveness endpoint. The client
// register/unregister/broadcast shape is grounded on hub.go's Hub; the
// liveness handler is adapted directly from health_check.go's
// SimpleHealthCheck.
package statusserver

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/sentineltrade/futuresbot/internal/events"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Server is the concrete WebSocket status broadcaster.
type Server struct {
	log      zerolog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}

	startedAt time.Time
}

func New(log zerolog.Logger) *Server {
	return &Server{
		log:     log.With().Str("component", "statusserver").Logger(),
		clients: make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		startedAt: time.Now(),
	}
}

// SubscribeAll wires the bus's lifecycle/trade events to broadcasted
// status frames.
func (s *Server) SubscribeAll(bus *events.Bus) {
	events.Subscribe(bus, func(e events.ActivityEvent) {
		s.broadcast("activity", e)
	})
	events.Subscribe(bus, func(e events.TradeExecutedEvent) {
		s.broadcast("tradeExecuted", e)
	})
	events.Subscribe(bus, func(e events.TradeRejectedEvent) {
		s.broadcast("tradeRejected", e)
	})
	events.Subscribe(bus, func(e events.PositionRemovedEvent) {
		s.broadcast("positionRemoved", e)
	})
	events.Subscribe(bus, func(e events.TickerUpdateEvent) {
		s.broadcast("ticker", e)
	})
	events.Subscribe(bus, func(e events.CircuitBreakerOpenedEvent) {
		s.broadcast("circuitBreakerOpened", e)
	})
	events.Subscribe(bus, func(e events.EmergencyStopEvent) {
		s.broadcast("emergencyStop", e)
	})
}

// HandleWebSocket upgrades the connection and keeps it alive with a
// read/ping loop until the client disconnects.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	s.register(conn)
	conn.WriteJSON(map[string]any{
		"type":      "connection_init",
		"status":    "connected",
		"timestamp": time.Now().UnixMilli(),
	})

	defer func() {
		s.unregister(conn)
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go s.pinger(conn)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (s *Server) pinger(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for range ticker.C {
		if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeWait)); err != nil {
			return
		}
	}
}

func (s *Server) register(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[conn] = struct{}{}
}

func (s *Server) unregister(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, conn)
}

func (s *Server) broadcast(kind string, payload any) {
	data, err := json.Marshal(map[string]any{"type": kind, "data": payload})
	if err != nil {
		s.log.Warn().Err(err).Msg("status broadcast marshal failed")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			conn.Close()
			delete(s.clients, conn)
		}
	}
}

// HandleHealthz reports process liveness, adapted from health_check.go.
func (s *Server) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
		"uptime": time.Since(s.startedAt).String(),
		"time":   time.Now().Format(time.RFC3339),
	})
}
