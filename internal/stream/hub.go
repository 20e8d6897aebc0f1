// Package stream pushes live odds updates to websocket clients. Updates
// are delivered as explicit events after committed pool mutations; slow
// clients are dropped rather than allowed to block the hub.
package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/sidepot/sidepot/internal/metrics"
	"github.com/sidepot/sidepot/internal/models"
	"github.com/sidepot/sidepot/internal/odds"
)

// OddsUpdate is the message broadcast to connected clients
type OddsUpdate struct {
	MarketID    string             `json:"market_id"`
	Odds        map[string]float64 `json:"odds"`
	DisplayOdds map[string]string  `json:"display_odds"`
	TotalPool   int64              `json:"total_pool"`
	OptionPools map[string]int64   `json:"option_pools"`
	Timestamp   time.Time          `json:"timestamp"`
}

const (
	writeWait      = 10 * time.Second
	clientBuffer   = 32
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser clients connect from app origins the gateway already vetted.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans odds updates out to connected websocket clients
type Hub struct {
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	clients    map[*client]struct{}
	logger     *logrus.Logger
}

// NewHub creates a new odds stream hub
func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 64),
		clients:    make(map[*client]struct{}),
		logger:     logger,
	}
}

// Run processes registrations and broadcasts until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			metrics.StreamClients.Set(0)
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
			metrics.StreamClients.Set(float64(len(h.clients)))
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				metrics.StreamClients.Set(float64(len(h.clients)))
			}
		case message := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- message:
				default:
					// Slow client; drop it.
					delete(h.clients, c)
					close(c.send)
				}
			}
			metrics.StreamClients.Set(float64(len(h.clients)))
		}
	}
}

// ObserveMarket implements engine.OddsObserver: it recomputes the
// market's odds and broadcasts them. Failures are logged only.
func (h *Hub) ObserveMarket(_ context.Context, m *models.Market) {
	current, err := odds.Compute(m)
	if err != nil {
		h.logger.WithError(err).WithField("market_id", m.ID).Warn("Skipping odds broadcast")
		return
	}

	display := make(map[string]string, len(current))
	for option, p := range current {
		display[option] = odds.FormatImplied(p)
	}

	update := OddsUpdate{
		MarketID:    m.ID.String(),
		Odds:        current,
		DisplayOdds: display,
		TotalPool:   m.TotalPool,
		OptionPools: m.OptionPools,
		Timestamp:   time.Now().UTC(),
	}

	message, err := json.Marshal(update)
	if err != nil {
		h.logger.WithError(err).Warn("Failed to marshal odds update")
		return
	}

	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("Odds broadcast buffer full, dropping update")
	}
}

// ServeWS upgrades an HTTP request to a websocket subscription.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}
	h.register <- c

	go c.writePump()
	go c.readPump(h)
}

// writePump forwards hub messages to the connection.
func (c *client) writePump() {
	defer c.conn.Close()
	for message := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// readPump discards client messages and detects disconnects.
func (c *client) readPump(h *Hub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
