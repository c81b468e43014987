package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/bobmcallan/coindex/internal/common"
	"github.com/bobmcallan/coindex/internal/interfaces"
	"github.com/bobmcallan/coindex/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// PriceWSHub manages WebSocket clients and re-broadcasts price change
// events from the stream. Delivery to browsers is best-effort; slow
// clients are dropped rather than backing up the hub.
type PriceWSHub struct {
	clients    map[*priceWSClient]bool
	broadcast  chan models.PriceEvent
	register   chan *priceWSClient
	unregister chan *priceWSClient
	done       chan struct{}
	mu         sync.RWMutex
	logger     *common.Logger
}

type priceWSClient struct {
	hub  *PriceWSHub
	conn *websocket.Conn
	send chan []byte
}

// NewPriceWSHub creates a new WebSocket hub.
func NewPriceWSHub(logger *common.Logger) *PriceWSHub {
	return &PriceWSHub{
		clients:    make(map[*priceWSClient]bool),
		broadcast:  make(chan models.PriceEvent, 256),
		register:   make(chan *priceWSClient),
		unregister: make(chan *priceWSClient),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run starts the hub's main event loop. Should be called as a goroutine.
func (h *PriceWSHub) Run() {
	for {
		select {
		case <-h.done:
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug().Int("clients", len(h.clients)).Msg("WebSocket client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Debug().Int("clients", len(h.clients)).Msg("WebSocket client disconnected")

		case event := <-h.broadcast:
			data, err := json.Marshal(event)
			if err != nil {
				h.logger.Warn().Err(err).Msg("Failed to marshal price event")
				continue
			}

			h.mu.RLock()
			var slow []*priceWSClient
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					slow = append(slow, client)
				}
			}
			h.mu.RUnlock()

			if len(slow) > 0 {
				h.mu.Lock()
				for _, c := range slow {
					delete(h.clients, c)
					close(c.send)
				}
				h.mu.Unlock()
			}
		}
	}
}

// Stop signals the hub's event loop to exit.
func (h *PriceWSHub) Stop() {
	select {
	case <-h.done:
		// Already stopped
	default:
		close(h.done)
	}
}

// Broadcast sends a price event to all connected clients.
func (h *PriceWSHub) Broadcast(event models.PriceEvent) {
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn().Msg("WebSocket broadcast channel full, dropping event")
	}
}

// FeedFrom subscribes to the price change stream and pumps its events into
// the hub, resubscribing with exponential backoff when the stream drops.
// Blocks until the hub is stopped; run as a goroutine.
func (h *PriceWSHub) FeedFrom(stream interfaces.PriceStream) {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0

	for {
		select {
		case <-h.done:
			stream.Unsubscribe()
			return
		default:
		}

		ch, err := stream.Subscribe(context.Background())
		if err != nil {
			h.logger.Warn().Err(err).Msg("Price stream subscribe failed, retrying")
			select {
			case <-h.done:
				return
			case <-time.After(bo.NextBackOff()):
			}
			continue
		}
		bo.Reset()

	feeding:
		for {
			select {
			case <-h.done:
				// Stop must not strand this goroutine on an open stream.
				stream.Unsubscribe()
				return
			case event, ok := <-ch:
				if !ok {
					break feeding
				}
				h.Broadcast(event)
			}
		}
		stream.Unsubscribe()
		h.logger.Warn().Msg("Price stream dropped, resubscribing")
	}
}

// ClientCount returns the number of connected clients.
func (h *PriceWSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// handlePricesWS upgrades GET /ws/prices to a WebSocket subscription.
func (s *Server) handlePricesWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := &priceWSClient{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, 256),
	}

	s.hub.register <- client

	go client.writePump()
	go client.readPump()
}

// writePump sends messages from the send channel to the WebSocket connection.
func (c *priceWSClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads messages from the WebSocket connection (mainly to detect close).
func (c *priceWSClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}
