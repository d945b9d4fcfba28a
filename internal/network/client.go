package network

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

// Command types accepted from clients.
const (
	CommandSpawn = "spawn"
	CommandStop  = "stop"
)

// Commands is what clients are allowed to do to the simulation.
// *Control implements it.
type Commands interface {
	Spawn(kind, source string) (string, error)
	Stop(source string)
}

// Command represents an incoming message from a client.
type Command struct {
	Type string `json:"type"` // "spawn" or "stop"
	Kind string `json:"kind,omitempty"`
}

// Reply is sent back to the client that issued a command.
type Reply struct {
	Type    string `json:"type"` // "ack" or "error"
	Command string `json:"command,omitempty"`
	ID      string `json:"id,omitempty"`
	Error   string `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Client holds one WebSocket connection.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter
	remote  string
}

// NewClient creates a new WebSocket client and returns it.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, hub.tuning.ClientSendBuffer),
		limiter: rate.NewLimiter(rate.Limit(hub.tuning.MaxMessagesPerSecond), hub.tuning.MessageBurst),
		remote:  conn.RemoteAddr().String(),
	}
}

// ServeWs upgrades the request and starts the client's pumps.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.metrics.RecordWSError()
		h.logger.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	client := NewClient(h, conn)
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}
	go client.WritePump()
	go client.ReadPump()
}

// ReadPump pumps commands from the websocket connection to the simulation.
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.metrics.RecordWSError()
				c.hub.logger.Warn("WebSocket read failed", "remote", c.remote, "error", err)
			}
			break
		}
		c.hub.metrics.RecordWSMessage(true)

		var cmd Command
		if err := json.Unmarshal(message, &cmd); err != nil {
			c.reply(Reply{Type: "error", Error: "invalid command"})
			continue
		}
		c.handleCommand(cmd)
	}
}

func (c *Client) handleCommand(cmd Command) {
	if !c.limiter.Allow() {
		c.hub.metrics.RecordWSRateLimited()
		c.reply(Reply{Type: "error", Command: cmd.Type, Error: "rate limit exceeded"})
		return
	}
	if c.hub.commands == nil {
		c.reply(Reply{Type: "error", Command: cmd.Type, Error: "commands disabled"})
		return
	}

	switch cmd.Type {
	case CommandSpawn:
		id, err := c.hub.commands.Spawn(cmd.Kind, "ws:"+c.remote)
		if err != nil {
			c.reply(Reply{Type: "error", Command: cmd.Type, Error: err.Error()})
			return
		}
		c.reply(Reply{Type: "ack", Command: cmd.Type, ID: id})
	case CommandStop:
		c.hub.commands.Stop("ws:" + c.remote)
		c.reply(Reply{Type: "ack", Command: cmd.Type})
	default:
		c.reply(Reply{Type: "error", Command: cmd.Type, Error: "unknown command"})
	}
}

// reply queues a message for this client only. It never blocks; a full
// send buffer loses the reply and the hub will drop the client on the
// next broadcast anyway.
func (c *Client) reply(r Reply) {
	data, err := json.Marshal(r)
	if err != nil {
		return
	}
	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()
	if _, ok := c.hub.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// WritePump pumps messages from the hub to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current websocket message.
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
