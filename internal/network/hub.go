// Package network serves the live event feed over WebSocket and the
// HTTP control API of a running simulation.
package network

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/MRamiBalles/coreria/internal/events"
	"github.com/MRamiBalles/coreria/internal/platform/logger"
	"github.com/MRamiBalles/coreria/internal/platform/metrics"
	"github.com/MRamiBalles/coreria/internal/platform/optimization"
)

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.Mutex

	commands Commands
	tuning   *optimization.Config
	metrics  *metrics.Collector
	logger   *logger.Logger
}

// NewHub initializes a new WebSocket Hub. commands may be nil for a
// read-only feed.
func NewHub(commands Commands, tuning *optimization.Config, m *metrics.Collector, log *logger.Logger) *Hub {
	if tuning == nil {
		tuning = optimization.DefaultConfig()
	}
	if m == nil {
		m = metrics.Get()
	}
	return &Hub{
		broadcast:  make(chan []byte, tuning.BroadcastChannelBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		commands:   commands,
		tuning:     tuning,
		metrics:    m,
		logger:     log,
	}
}

// Run starts the Hub's main loop to handle client connections and broadcasts.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("WebSocket hub shutting down")
			h.mu.Lock()
			for client := range h.clients {
				h.drop(client)
			}
			h.mu.Unlock()
			return
		case client := <-h.register:
			h.mu.Lock()
			if len(h.clients) >= h.tuning.MaxClients {
				close(client.send)
				h.mu.Unlock()
				h.logger.Warn("rejecting WebSocket client, hub is full", "max_clients", h.tuning.MaxClients)
				continue
			}
			h.clients[client] = true
			h.mu.Unlock()
			h.metrics.RecordWSConnection(1)
			h.logger.Info("WebSocket client connected", "remote", client.remote)
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				h.logger.Info("WebSocket client disconnected", "remote", client.remote)
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
					h.metrics.RecordWSMessage(false)
				default:
					h.drop(client)
					h.metrics.RecordWSDropped()
					h.logger.Warn("dropping slow WebSocket client", "remote", client.remote)
				}
			}
			h.mu.Unlock()
		}
	}
}

// drop must be called with h.mu held.
func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.send)
	h.metrics.RecordWSConnection(-1)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// BroadcastEvent serializes event to JSON and queues it for every client.
// It gives up once the hub has stopped.
func (h *Hub) BroadcastEvent(event events.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to serialize event for WebSocket broadcast", "type", event.Type, "error", err)
		return
	}
	select {
	case h.broadcast <- payload:
	case <-h.done:
	}
}

// StartEventPoller spawns a goroutine that polls the EventLog and pushes new
// events to the Hub. This lets the Hub run independently from the engine
// loop while picking up the same events. Every event appended after
// StartEventPoller returns is broadcast.
func (h *Hub) StartEventPoller(ctx context.Context, eventLog *events.EventLog, interval time.Duration) {
	cursor := eventLog.Len()
	go func() {
		pollInterval := time.NewTicker(interval)
		defer pollInterval.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-pollInterval.C:
				var fresh []events.Event
				fresh, cursor = eventLog.Since(cursor)
				for _, event := range fresh {
					h.BroadcastEvent(event)
				}
			}
		}
	}()
}
