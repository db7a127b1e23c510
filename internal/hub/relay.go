package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/event"
	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/model"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const relayPublishTimeout = 2 * time.Second

type relayEnvelope struct {
	User  model.UserID  `json:"user"`
	Event event.WsEvent `json:"event"`
}

// Relay fans events out through a Redis channel so every server instance
// delivers them to its own sessions. While subscribed, publishing never
// delivers locally; the local copy arrives through the subscription like any
// other. Without a confirmed subscription events go straight to the hub.
type Relay struct {
	rdb        *redis.Client
	hub        *Hub
	channel    string
	logger     *zap.Logger
	subscribed atomic.Bool
}

func NewRelay(rdb *redis.Client, hub *Hub, channel string, logger *zap.Logger) *Relay {
	return &Relay{
		rdb:     rdb,
		hub:     hub,
		channel: channel,
		logger:  logger,
	}
}

// Channel is the Redis channel name events travel on.
func (r *Relay) Channel() string {
	return r.channel
}

// Subscribed reports whether Run is consuming the channel.
func (r *Relay) Subscribed() bool {
	return r.subscribed.Load()
}

// Publish sends ev for user through Redis, falling back to local delivery
// when Redis is unreachable or this instance is not subscribed.
func (r *Relay) Publish(ctx context.Context, user model.UserID, ev event.WsEvent) {
	if !r.subscribed.Load() {
		r.hub.Publish(ctx, user, ev)
		return
	}

	data, err := json.Marshal(relayEnvelope{User: user, Event: ev})
	if err != nil {
		r.logger.Error("failed to encode relay envelope", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), relayPublishTimeout)
	defer cancel()

	if err := r.rdb.Publish(ctx, r.channel, data).Err(); err != nil {
		r.logger.Warn("redis publish failed, delivering locally",
			zap.String("user_id", user.String()),
			zap.String("event", ev.Event),
			zap.Error(err),
		)
		r.hub.Publish(ctx, user, ev)
	}
}

// Run consumes the relay channel until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.rdb.Subscribe(ctx, r.channel)
	defer sub.Close()

	// Wait for confirmation that subscription is created
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.subscribed.Store(true)
	defer r.subscribed.Store(false)
	r.logger.Info("relay subscribed", zap.String("channel", r.channel))

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			r.deliver(ctx, msg.Payload)
		}
	}
}

func (r *Relay) deliver(ctx context.Context, payload string) {
	var env relayEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil || env.User == "" || env.Event.Event == "" {
		r.logger.Debug("dropping malformed relay message", zap.Error(err))
		return
	}
	r.hub.Publish(ctx, env.User, env.Event)
}
