// ABOUTME: Websocket client for the metric feed
// ABOUTME: Connects to a feed server and routes readings to a channel
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const handshakeTimeout = 5 * time.Second

// Client reads messages from one feed server
type Client struct {
	addr   string
	conn   *websocket.Conn
	mu     sync.RWMutex
	logger *slog.Logger

	// Messages delivers decoded readings; closed when the connection ends
	Messages chan Message

	connected bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewClient creates a client for the feed at addr (host:port)
func NewClient(addr string) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		addr:     addr,
		logger:   slog.Default().With("component", "feed-client", "addr", addr),
		Messages: make(chan Message, sendBuffer),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Connect dials the feed and starts reading
func (c *Client) Connect() error {
	u := url.URL{Scheme: "ws", Host: c.addr, Path: Path}
	c.logger.Info("connecting", "url", u.String())

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(c.ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	go c.readMessages()
	return nil
}

func (c *Client) readMessages() {
	defer close(c.Messages)
	defer c.Close()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("read error", "err", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			c.logger.Debug("ignoring non-text message", "type", messageType)
			continue
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("failed to parse message", "err", err)
			continue
		}

		select {
		case c.Messages <- msg:
		case <-c.ctx.Done():
			return
		}
	}
}

// Close closes the connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancel()
	if c.connected {
		c.connected = false
		c.conn.Close()
		c.logger.Info("connection closed")
	}
}

// IsConnected returns connection status
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}
