// Package hub implements the websocket fan-out channel: one event broadcast
// to every currently connected subscriber, best-effort and at-most-once.
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
)

// message is the wire envelope pushed to subscribers.
type message struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Hub maintains the set of active clients and broadcasts events to them.
// The client set is owned by the Run goroutine; all mutation goes through
// channels.
type Hub struct {
	logger *slog.Logger

	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan message
}

// NewHub creates a Hub. Call Run to start it.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:     logger,
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan message, 64),
	}
}

// Run processes client lifecycle and broadcast events until ctx is
// cancelled, then closes every client connection.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				close(client.send)
			}
			h.clients = nil
			return

		case client := <-h.register:
			h.clients[client] = struct{}{}
			h.logger.Info("client connected", "client_id", client.id, "total_clients", len(h.clients))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.logger.Info("client disconnected", "client_id", client.id, "total_clients", len(h.clients))

		case msg := <-h.broadcast:
			payload, err := json.Marshal(msg)
			if err != nil {
				h.logger.Error("failed to marshal broadcast", "event", msg.Event, "error", err)
				continue
			}
			for client := range h.clients {
				select {
				case client.send <- payload:
				default:
					// Slow consumer; drop it rather than stall
					// the broadcast.
					delete(h.clients, client)
					close(client.send)
					h.logger.Warn("dropping slow client", "client_id", client.id)
				}
			}
		}
	}
}

// Broadcast queues an event for delivery to all connected clients. Delivery
// is best-effort: if the hub's queue is full the event is dropped with a log
// entry. Implements domain.Broadcaster.
func (h *Hub) Broadcast(event string, payload any) {
	select {
	case h.broadcast <- message{Event: event, Data: payload}:
	default:
		h.logger.Warn("broadcast queue full, dropping event", "event", event)
	}
}
