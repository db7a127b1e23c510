package chatclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/event"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	channelWriteWait   = 10 * time.Second
	channelPongWait    = 70 * time.Second
	channelDialTimeout = 10 * time.Second
)

// Emitter sends client events over the realtime channel.
type Emitter interface {
	Emit(ctx context.Context, ev event.WsEvent) error
}

// Channel is the client side of the realtime channel. Inbound events are
// handed to the Bus; a Channel serves one connection at a time.
type Channel struct {
	url    string
	bus    *Bus
	dialer *websocket.Dialer
	logger *zap.Logger

	writeMu sync.Mutex
	mu      sync.RWMutex
	conn    *websocket.Conn
}

// NewChannel builds a channel for wsURL, authenticating with token.
func NewChannel(wsURL, token string, bus *Bus, logger *zap.Logger) (*Channel, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("parse socket url: %w", err)
	}
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Channel{
		url: u.String(),
		bus: bus,
		dialer: &websocket.Dialer{
			HandshakeTimeout: channelDialTimeout,
		},
		logger: logger,
	}, nil
}

// Connect dials the server, replacing any previous connection.
func (c *Channel) Connect(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial realtime channel: %w", err)
	}

	c.mu.Lock()
	old := c.conn
	c.conn = conn
	c.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	return nil
}

// Listen reads events until the connection fails or ctx is done.
// Malformed frames are dropped; the connection stays up.
func (c *Channel) Listen(ctx context.Context) error {
	conn := c.current()
	if conn == nil {
		return ErrNotConnected
	}

	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	_ = conn.SetReadDeadline(time.Now().Add(channelPongWait))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(channelPongWait))
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(channelWriteWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read realtime channel: %w", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(channelPongWait))

		var ev event.WsEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			c.logger.Debug("dropping undecodable frame", zap.Error(err))
			continue
		}
		c.bus.Dispatch(ev)
	}
}

func (c *Channel) Emit(ctx context.Context, ev event.WsEvent) error {
	conn := c.current()
	if conn == nil {
		return ErrNotConnected
	}

	deadline := time.Now().Add(channelWriteWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(ev); err != nil {
		return fmt.Errorf("emit %s: %w", ev.Event, err)
	}
	return nil
}

// Close sends a close frame and drops the connection.
func (c *Channel) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return conn.Close()
}

func (c *Channel) current() *websocket.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}
