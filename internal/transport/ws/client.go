package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/FlorentDgrs/Dvoting/internal/domain"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096

	// Size of the send channel buffer
	sendBufferSize = 256

	// Size of the ledger subscription buffer
	subscriptionBufferSize = 64
)

// Client represents a WebSocket client following the ledger notifications
type Client struct {
	conn         *websocket.Conn
	source       NotificationSource
	connectionID string
	send         chan []byte
	done         chan struct{}
	logger       *slog.Logger
	mu           sync.Mutex
	closed       bool
}

// NewClient creates a new WebSocket client
func NewClient(conn *websocket.Conn, source NotificationSource, connectionID string, logger *slog.Logger) *Client {
	return &Client{
		conn:         conn,
		source:       source,
		connectionID: connectionID,
		send:         make(chan []byte, sendBufferSize),
		done:         make(chan struct{}),
		logger:       logger.With("connectionId", connectionID),
	}
}

// Send queues a message for the write pump
func (c *Client) Send(message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	select {
	case c.send <- data:
		return nil
	default:
		// Buffer full, message dropped
		c.logger.Warn("send buffer full, message dropped")
		return nil
	}
}

// Close closes the connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	close(c.done)
	return c.conn.Close()
}

// Run streams notifications with seq greater than after, then live ones, until
// the connection closes
func (c *Client) Run(after uint64) {
	// Subscribe before replaying so nothing falls between the two
	events := make(chan *domain.Event, subscriptionBufferSize)
	sub := c.source.Subscribe(events)

	c.Send(NewServerMessage(MsgConnected, &ConnectedPayload{
		ConnectionID: c.connectionID,
		LedgerID:     c.source.ID(),
		LastSeq:      c.source.LastSeq(),
	}))

	go c.writePump()
	go c.forward(sub.Err(), events, after, sub.Unsubscribe)
	c.readPump()
}

// forward relays ledger notifications to the peer in seq order
func (c *Client) forward(errc <-chan error, events <-chan *domain.Event, last uint64, unsubscribe func()) {
	defer unsubscribe()

	last, ok := c.replay(last)
	if !ok {
		return
	}

	for {
		select {
		case <-c.done:
			return
		case <-errc:
			// Ledger closed
			c.Close()
			return
		case ev := <-events:
			if ev.Seq <= last {
				continue
			}
			if ev.Seq > last+1 {
				if last, ok = c.replay(last); !ok {
					return
				}
				continue
			}
			if !c.deliver(NewServerMessage(MsgNotification, ev)) {
				return
			}
			last = ev.Seq
		}
	}
}

// replay sends every logged notification after seq and returns the last one sent.
// It reports false once the connection is closed.
func (c *Client) replay(last uint64) (uint64, bool) {
	for {
		backlog := c.source.Notifications(last, 0)
		if len(backlog) == 0 {
			return last, true
		}
		for _, ev := range backlog {
			if !c.deliver(NewServerMessage(MsgNotification, ev)) {
				return last, false
			}
			last = ev.Seq
		}
	}
}

// deliver queues a notification, waiting for room in the send buffer
func (c *Client) deliver(message *ServerMessage) bool {
	data, err := json.Marshal(message)
	if err != nil {
		c.logger.Error("failed to encode notification", "error", err)
		return true
	}

	select {
	case c.send <- data:
		return true
	case <-c.done:
		return false
	}
}

// readPump pumps messages from the WebSocket connection
func (c *Client) readPump() {
	defer c.Close()

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
				c.logger.Debug("websocket read error", "error", err)
			}
			break
		}

		c.handleMessage(message)
	}
}

// writePump pumps messages from the send channel to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

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

// handleMessage processes an incoming message from the client
func (c *Client) handleMessage(data []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError(ErrCodeInvalidMessage, "Invalid message format")
		return
	}

	switch msg.Type {
	case MsgPing:
		c.sendPong()
	default:
		c.sendError(ErrCodeInvalidAction, "Mutations go through the HTTP API")
	}
}

// sendError sends an error message to the client
func (c *Client) sendError(code, message string) {
	payload := &ErrorPayload{
		Code:    code,
		Message: message,
	}

	msg := NewServerMessage(MsgError, payload)
	c.Send(msg)
}

// sendPong sends a pong message in response to ping
func (c *Client) sendPong() {
	msg := NewServerMessage(MsgPong, nil)
	c.Send(msg)
}
