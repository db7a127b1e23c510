package chatclient

import (
	"sync"

	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/event"
	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/model"

	"go.uber.org/zap"
)

// Handlers is one subscriber's set of callbacks. Nil fields are skipped.
type Handlers struct {
	NewMessage       func(msg model.Message)
	MessagesRead     func(p event.MessagesRead)
	MessagesReadByMe func(p event.MessagesReadByMe)
	Typing           func(p event.Typing)
	StopTyping       func(p event.Typing)
	Error            func(p model.ErrorPayload)
}

// Bus fans decoded realtime events out to any number of subscribers.
// Payloads are decoded once per event; malformed events are dropped.
type Bus struct {
	mu     sync.RWMutex
	next   uint64
	subs   map[uint64]Handlers
	logger *zap.Logger
}

func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		subs:   make(map[uint64]Handlers),
		logger: logger,
	}
}

// Subscribe registers h and returns a func removing exactly this
// subscription. Calling it more than once is harmless.
func (b *Bus) Subscribe(h Handlers) (unsubscribe func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = h
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Len returns the number of live subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Bus) snapshot() []Handlers {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Handlers, 0, len(b.subs))
	for _, h := range b.subs {
		out = append(out, h)
	}
	return out
}

// Dispatch decodes ev and invokes matching handlers outside the bus lock,
// so a handler may unsubscribe itself. It reports whether ev was delivered.
func (b *Bus) Dispatch(ev event.WsEvent) bool {
	var deliver func(h Handlers)

	switch ev.Event {
	case event.EventNewMessage:
		msg, err := event.DecodeNewMessage(ev)
		if err != nil {
			return b.drop(ev, err)
		}
		deliver = func(h Handlers) {
			if h.NewMessage != nil {
				h.NewMessage(msg)
			}
		}

	case event.EventMessagesRead:
		p, err := event.DecodeMessagesRead(ev)
		if err != nil {
			return b.drop(ev, err)
		}
		deliver = func(h Handlers) {
			if h.MessagesRead != nil {
				h.MessagesRead(p)
			}
		}

	case event.EventMessagesReadByMe:
		p, err := event.DecodeMessagesReadByMe(ev)
		if err != nil {
			return b.drop(ev, err)
		}
		deliver = func(h Handlers) {
			if h.MessagesReadByMe != nil {
				h.MessagesReadByMe(p)
			}
		}

	case event.EventTyping, event.EventStopTyping:
		p, err := event.DecodeTyping(ev)
		if err != nil {
			return b.drop(ev, err)
		}
		if p.SenderID == "" {
			return b.drop(ev, event.ErrMalformed)
		}
		stop := ev.Event == event.EventStopTyping
		deliver = func(h Handlers) {
			if stop && h.StopTyping != nil {
				h.StopTyping(p)
			}
			if !stop && h.Typing != nil {
				h.Typing(p)
			}
		}

	case event.EventError:
		p, err := event.DecodeError(ev)
		if err != nil {
			return b.drop(ev, err)
		}
		b.logger.Debug("server reported error", zap.String("code", p.Code), zap.String("message", p.Message))
		deliver = func(h Handlers) {
			if h.Error != nil {
				h.Error(p)
			}
		}

	default:
		b.logger.Debug("ignoring unknown event", zap.String("event", ev.Event))
		return false
	}

	for _, h := range b.snapshot() {
		deliver(h)
	}
	return true
}

func (b *Bus) drop(ev event.WsEvent, err error) bool {
	b.logger.Debug("dropping malformed event", zap.String("event", ev.Event), zap.Error(err))
	return false
}
