package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/gazelog/internal/log"
)

// ClientConfig configures a dialing bridge client.
type ClientConfig struct {
	// URL of the bridge, e.g. ws://localhost:7070/gaze
	URL string

	// HandshakeTimeout bounds each dial attempt.
	HandshakeTimeout time.Duration

	// ReconnectDelay is the wait between failed dials.
	ReconnectDelay time.Duration

	// ReadTimeout closes a connection that delivers nothing for this long.
	ReadTimeout time.Duration
}

// DefaultClientConfig returns sensible defaults for a local bridge.
func DefaultClientConfig(url string) ClientConfig {
	return ClientConfig{
		URL:              url,
		HandshakeTimeout: 5 * time.Second,
		ReconnectDelay:   time.Second,
		ReadTimeout:      10 * time.Second,
	}
}

// Client dials a tracker bridge and feeds its messages into a Buffer.
type Client struct {
	config ClientConfig
	buffer *Buffer
	logger *slog.Logger

	wsMu sync.Mutex
	ws   *websocket.Conn

	connected atomic.Bool
	dials     atomic.Uint64
}

// NewClient creates a client. Call Run to connect.
func NewClient(config ClientConfig, buffer *Buffer) *Client {
	d := DefaultClientConfig(config.URL)
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = d.HandshakeTimeout
	}
	if config.ReconnectDelay <= 0 {
		config.ReconnectDelay = d.ReconnectDelay
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = d.ReadTimeout
	}
	return &Client{
		config: config,
		buffer: buffer,
		logger: log.For("bridge").With("url", config.URL),
	}
}

// Buffer returns the buffer the client feeds.
func (c *Client) Buffer() *Buffer {
	return c.buffer
}

// IsConnected reports whether a bridge connection is open.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// Dials returns the number of successful connections made.
func (c *Client) Dials() uint64 {
	return c.dials.Load()
}

// Connect dials the bridge once.
func (c *Client) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: c.config.HandshakeTimeout,
	}
	ws, _, err := dialer.DialContext(ctx, c.config.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to tracker bridge: %w", err)
	}

	c.wsMu.Lock()
	c.ws = ws
	c.wsMu.Unlock()
	c.connected.Store(true)
	c.dials.Add(1)
	c.logger.Info("connected to tracker bridge")
	return nil
}

// Run connects and reads until ctx is done, redialing after failures.
func (c *Client) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, c.Close)
	defer stop()

	for {
		if err := c.Connect(ctx); err != nil {
			c.logger.Warn("tracker bridge unavailable", "error", err, "retry_in", c.config.ReconnectDelay)
		} else {
			c.readLoop()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.config.ReconnectDelay):
		}
	}
}

// Close closes the current connection, if any.
func (c *Client) Close() {
	c.wsMu.Lock()
	defer c.wsMu.Unlock()
	if c.ws != nil {
		c.ws.Close()
		c.ws = nil
	}
	c.connected.Store(false)
}

func (c *Client) readLoop() {
	c.wsMu.Lock()
	ws := c.ws
	c.wsMu.Unlock()
	if ws == nil {
		return
	}
	defer c.Close()

	for {
		ws.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("tracker bridge read error", "error", err)
			}
			return
		}

		reply, err := c.buffer.Handle(data)
		if err != nil {
			c.logger.Debug("rejected bridge message", "error", err)
			continue
		}
		if reply != nil {
			if err := c.send(ws, reply.Bytes); err != nil {
				return
			}
		}
	}
}

func (c *Client) send(ws *websocket.Conn, encode func() ([]byte, error)) error {
	raw, err := encode()
	if err != nil {
		return err
	}
	c.wsMu.Lock()
	defer c.wsMu.Unlock()
	ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return ws.WriteMessage(websocket.TextMessage, raw)
}
