package hub

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/event"
	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/model"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Client is one WebSocket session of a user.
type Client struct {
	ID          string
	userID      model.UserID
	conn        *websocket.Conn
	manager     *Hub
	egress      chan event.WsEvent
	typing      *rate.Limiter
	connectedAt time.Time
	logger      *zap.Logger

	// cancel or stop goroutine
	cancel         context.CancelFunc
	ctx            context.Context
	once           sync.Once
	connClosed     chan struct{}
	connClosedOnce sync.Once
	closed         bool         // tracks if client is closed
	closedMu       sync.RWMutex // protects closed flag
}

var (
	// tuning parameters
	writeWait          = 10 * time.Second       // time allowed to write a message to the peer
	pongWait           = 60 * time.Second       // time allowed to read the next pong message from the peer
	pingInterval       = (pongWait * 9) / 10    // send pings to peer with this period
	maxMessageSize     = 64 * 1024              // max inbound message size (64KB)
	sendBufSize        = 256                    // per-connection outbound buffer size
	workerPoolSize     = 16                     // number of workers to process inbound messages
	sendTimeout        = 2 * time.Second        // timeout for enqueuing outbound messages
	kickOnFull         = true                   // when true, disconnect client when egress is full
	registerTimeout    = 5 * time.Second        // timeout for client registration
	unregisterTimeout  = 5 * time.Second        // timeout for client unregistration
	inboundSendTimeout = 500 * time.Millisecond // timeout for sending to inbound channel
	typingRate         = rate.Limit(5)          // typing events per second per session
	typingBurst        = 10
)

// RegisterClient creates a new client with a single WebSocket connection
func RegisterClient(userID model.UserID, conn *websocket.Conn, h *Hub) *Client {
	ctx, cancel := context.WithCancel(h.ctx)
	clientID := uuid.New().String()

	client := &Client{
		ID:          clientID,
		userID:      userID,
		conn:        conn,
		manager:     h,
		egress:      make(chan event.WsEvent, sendBufSize),
		typing:      rate.NewLimiter(typingRate, typingBurst),
		connectedAt: time.Now().UTC(),
		logger:      h.logger.With(zap.String("client_id", clientID), zap.String("user_id", userID.String())),
		cancel:      cancel,
		ctx:         ctx,
		connClosed:  make(chan struct{}),
	}

	select {
	case h.register <- client:
		go client.ReadMessages()
		go client.WriteMessage()
		return client
	case <-time.After(registerTimeout):
		client.logger.Error("failed to register client: timeout")
		cancel()
		conn.Close()
		return nil
	}
}

func (c *Client) ReadMessages() {
	defer func() {
		select {
		case c.manager.unregister <- c:
			// unregistered successfully
		case <-c.manager.ctx.Done():
			// hub stopping, registry is discarded
		case <-time.After(unregisterTimeout):
			c.logger.Error("failed to unregister client: timeout")
		}
		c.Close()
	}()

	c.conn.SetReadLimit(int64(maxMessageSize))
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(c.pongHandler)

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		var ev event.WsEvent
		if err := c.conn.ReadJSON(&ev); err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
			) {
				c.logger.Debug("client disconnected")
				return
			}

			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				c.logger.Info("client timed out - closing connection")
				return
			}

			if _, ok := err.(*websocket.CloseError); ok || c.IsClosed() {
				return
			}

			// A frame that is not a JSON envelope is a client bug, not a
			// reason to drop the session.
			if isDecodeError(err) {
				c.logger.Debug("dropping malformed frame", zap.Error(err))
				c.SafeSend(event.NewError("invalid_event", "frame is not a JSON event envelope"), sendTimeout)
				continue
			}

			c.logger.Debug("error reading from client", zap.Error(err))
			return
		}

		// Non-blocking send into inbound processing queue to avoid blocking reader
		select {
		case c.manager.inbound <- inboundMessage{client: c, event: ev}:
			// accepted for processing
		case <-time.After(inboundSendTimeout):
			c.logger.Warn("inbound queue full, dropping event", zap.String("event", ev.Event))
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) WriteMessage() {
	ticker := time.NewTicker(pingInterval)

	defer func() {
		ticker.Stop()
		c.Close()
		_ = c.conn.Close()

		// Safe close of connClosed channel using sync.Once
		c.connClosedOnce.Do(func() {
			close(c.connClosed)
		})
	}()

	for {
		select {
		case <-c.ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case ev := <-c.egress:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				c.logger.Debug("write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.logger.Debug("ping failed", zap.Error(err))
				return
			}
		}
	}
}

func (c *Client) pongHandler(string) error {
	return c.conn.SetReadDeadline(time.Now().Add(pongWait))
}

func (c *Client) allowTyping() bool {
	return c.typing.Allow()
}

// Close stops both pumps. The egress channel is never closed, so a
// concurrent publisher cannot panic on send.
func (c *Client) Close() {
	c.once.Do(func() {
		// Mark as closed BEFORE cancelling
		c.closedMu.Lock()
		c.closed = true
		c.closedMu.Unlock()

		c.cancel()

		// Wait for WriteMessage to close conn, or force close after timeout
		go func() {
			select {
			case <-c.connClosed:
				// WriteMessage closed it properly
			case <-time.After(5 * time.Second):
				_ = c.conn.Close()
				c.logger.Warn("safety timeout: force closed connection")
			}
		}()
	})
}

// IsClosed returns true if the client has been closed
func (c *Client) IsClosed() bool {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()
	return c.closed
}

// SafeSend attempts to send an event to the client's egress channel.
// Returns true if sent successfully, false if client is closed or timeout.
func (c *Client) SafeSend(ev event.WsEvent, timeout time.Duration) bool {
	// Check if closed first (fast path)
	if c.IsClosed() {
		return false
	}

	select {
	case <-c.ctx.Done():
		return false
	case c.egress <- ev:
		return true
	case <-time.After(timeout):
		return false
	}
}

func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, io.ErrUnexpectedEOF)
}
