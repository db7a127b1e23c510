package hub

import (
	"context"
	"crypto/sha1"
	"encoding/binary"
	"net/http"
	"sync"
	"time"

	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/event"
	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/model"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	shardCount = 64 // tune: 16/64/128 depending on load
)

// InboundHandler receives the events clients are allowed to send.
type InboundHandler interface {
	RelayTyping(ctx context.Context, from model.UserID, t event.Typing, stop bool) error
}

type inboundMessage struct {
	event  event.WsEvent
	client *Client
}

type clientBucket struct {
	sync.RWMutex
	users map[model.UserID]map[string]*Client
}

// Hub is the server side of the real-time channel. It tracks every open
// session per user and delivers events to all of them.
type Hub struct {
	shards     [shardCount]*clientBucket
	register   chan *Client
	unregister chan *Client
	inbound    chan inboundMessage
	handler    InboundHandler
	logger     *zap.Logger
	upgrader   websocket.Upgrader
	origins    map[string]struct{}
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	stopOnce   sync.Once
}

// NewHub starts the registry loop and the inbound worker pool.
// allowedOrigins empty means any browser origin is rejected; requests
// without an Origin header (native clients) are always accepted.
func NewHub(logger *zap.Logger, allowedOrigins []string) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		register:   make(chan *Client, 1024),
		unregister: make(chan *Client, 1024),
		inbound:    make(chan inboundMessage, 4096), // buffer for burst handling
		logger:     logger,
		origins:    make(map[string]struct{}, len(allowedOrigins)),
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, o := range allowedOrigins {
		h.origins[o] = struct{}{}
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}

	for i := 0; i < shardCount; i++ {
		h.shards[i] = &clientBucket{
			users: make(map[model.UserID]map[string]*Client),
		}
	}

	// run manager loop
	h.wg.Add(1)
	go h.run()

	// start worker loop
	for i := 0; i < workerPoolSize; i++ {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			for {
				select {
				case <-h.ctx.Done():
					return
				case in := <-h.inbound:
					h.handleEvent(in.event, in.client)
				}
			}
		}()
	}

	return h
}

// SetHandler sets the inbound handler. Must be called before serving
// connections; the service that handles inbound events also publishes
// through the hub, so the two are wired after construction.
func (h *Hub) SetHandler(handler InboundHandler) {
	h.handler = handler
}

func (h *Hub) handleEvent(ev event.WsEvent, c *Client) {
	switch ev.Event {
	case event.EventTyping, event.EventStopTyping:
		stop := ev.Event == event.EventStopTyping
		payload, err := event.DecodeTyping(ev)
		if err != nil || payload.ReceiverID == "" {
			h.logger.Debug("dropping malformed typing event",
				zap.String("client_id", c.ID),
				zap.Error(err),
			)
			c.SafeSend(event.NewError("invalid_payload", "typing requires receiverId"), sendTimeout)
			return
		}

		// stopTyping is never throttled so an indicator can always be cleared
		if !stop && !c.allowTyping() {
			return
		}

		if h.handler == nil {
			h.logger.Warn("no inbound handler configured, dropping event", zap.String("event", ev.Event))
			return
		}

		if err := h.handler.RelayTyping(h.ctx, c.userID, payload, stop); err != nil {
			h.logger.Debug("typing relay rejected",
				zap.String("user_id", c.userID.String()),
				zap.Error(err),
			)
			c.SafeSend(event.NewError("typing_rejected", err.Error()), sendTimeout)
		}
	default:
		h.logger.Debug("unknown event type",
			zap.String("event", ev.Event),
			zap.String("client_id", c.ID),
		)
		c.SafeSend(event.NewError("unknown_event", "unsupported event: "+ev.Event), sendTimeout)
	}
}

// Publish delivers ev to every session of user connected to this instance.
func (h *Hub) Publish(_ context.Context, user model.UserID, ev event.WsEvent) {
	clients := h.sessions(user)
	if len(clients) == 0 {
		return
	}

	// deliver to clients without holding lock
	for _, c := range clients {
		if c.SafeSend(ev, sendTimeout) {
			continue
		}
		if c.IsClosed() {
			continue
		}
		h.logger.Warn("egress full, disconnecting client",
			zap.String("client_id", c.ID),
			zap.String("user_id", user.String()),
		)
		if kickOnFull {
			select {
			case h.unregister <- c:
			case <-time.After(unregisterTimeout):
				h.logger.Error("failed to unregister client", zap.String("client_id", c.ID))
			}
		}
	}
}

// sessions snapshots the clients of a user.
func (h *Hub) sessions(user model.UserID) []*Client {
	b := h.shards[getShard(user)]

	b.RLock()
	defer b.RUnlock()

	sessions := b.users[user]
	clients := make([]*Client, 0, len(sessions))
	for _, c := range sessions {
		clients = append(clients, c)
	}
	return clients
}

// SessionCount returns how many sessions user has on this instance.
func (h *Hub) SessionCount(user model.UserID) int {
	b := h.shards[getShard(user)]
	b.RLock()
	defer b.RUnlock()
	return len(b.users[user])
}

func getShard(user model.UserID) uint32 {
	if user == "" {
		return 0
	}

	sum := sha1.Sum([]byte(user))
	return binary.BigEndian.Uint32(sum[:4]) % shardCount
}

func (h *Hub) addClient(c *Client) {
	sh := getShard(c.userID)
	b := h.shards[sh]
	b.Lock()
	defer b.Unlock()

	sessions, ok := b.users[c.userID]
	if !ok {
		sessions = make(map[string]*Client)
		b.users[c.userID] = sessions
	}

	sessions[c.ID] = c
	h.logger.Info("client registered",
		zap.String("client_id", c.ID),
		zap.String("user_id", c.userID.String()),
		zap.Uint32("shard", sh),
	)
}

func (h *Hub) removeClient(c *Client) {
	sh := getShard(c.userID)
	b := h.shards[sh]
	b.Lock()
	defer b.Unlock()

	if sessions, ok := b.users[c.userID]; ok {
		delete(sessions, c.ID)
		if len(sessions) == 0 {
			delete(b.users, c.userID)
		}
	}

	c.Close()
	h.logger.Info("client removed",
		zap.String("client_id", c.ID),
		zap.String("user_id", c.userID.String()),
		zap.Uint32("shard", sh),
	)
}

func (h *Hub) run() {
	defer h.wg.Done()
	for {
		select {
		case <-h.ctx.Done():
			return
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.removeClient(c)
		}
	}
}

// Stop closes every session and waits for the hub goroutines to exit.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		h.cancel()

		// Close all client connections
		for _, shard := range h.shards {
			shard.RLock()
			for _, sessions := range shard.users {
				for _, client := range sessions {
					client.Close()
				}
			}
			shard.RUnlock()
		}

		h.wg.Wait()
		h.logger.Info("hub stopped")
	})
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	_, ok := h.origins[origin]
	return ok
}

// ServeWS upgrades the request and registers a session for user.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, user model.UserID) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	RegisterClient(user, conn, h)
}
