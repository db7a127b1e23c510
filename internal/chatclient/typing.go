package chatclient

import (
	"context"
	"sync"
	"time"

	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/event"
	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/model"

	"go.uber.org/zap"
)

const (
	// TypingTimeout is how long typing stays on without a new keystroke.
	TypingTimeout = 3 * time.Second

	emitTimeout = 2 * time.Second
)

// TypingNotifier emits typing on every keystroke with a non-empty draft and
// stopTyping once the draft is cleared, the message is sent, or no keystroke
// arrives within the timeout.
type TypingNotifier struct {
	mu      sync.Mutex
	emitter Emitter
	me      model.UserID
	target  model.ConversationKey
	timeout time.Duration
	timer   *time.Timer
	seq     uint64
	active  bool
	logger  *zap.Logger
}

func NewTypingNotifier(emitter Emitter, me model.UserID, timeout time.Duration, logger *zap.Logger) *TypingNotifier {
	if timeout <= 0 {
		timeout = TypingTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TypingNotifier{
		emitter: emitter,
		me:      me,
		timeout: timeout,
		logger:  logger,
	}
}

// SetTarget switches the conversation typing is reported to. A pending
// typing state for the previous target is stopped first.
func (n *TypingNotifier) SetTarget(key model.ConversationKey) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.target == key {
		return
	}
	n.stopLocked()
	n.target = key
}

// Keystroke reports the draft after an edit.
func (n *TypingNotifier) Keystroke(draft string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if draft == "" {
		n.stopLocked()
		return
	}
	if n.target.IsZero() {
		return
	}

	n.seq++
	seq := n.seq
	if n.timer != nil {
		n.timer.Stop()
	}
	n.timer = time.AfterFunc(n.timeout, func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if n.seq == seq {
			n.stopLocked()
		}
	})

	n.active = true
	n.emit(event.EventTyping)
}

// Stop emits stopTyping if typing is currently reported.
func (n *TypingNotifier) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopLocked()
}

// Active reports whether typing is currently reported.
func (n *TypingNotifier) Active() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.active
}

func (n *TypingNotifier) stopLocked() {
	n.seq++
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	if !n.active {
		return
	}
	n.active = false
	n.emit(event.EventStopTyping)
}

func (n *TypingNotifier) emit(name string) {
	if n.emitter == nil || n.target.IsZero() {
		return
	}

	ev, err := event.New(name, event.Typing{
		SenderID:   n.me,
		ReceiverID: n.target.OtherUserID,
		BookID:     n.target.BookID,
	})
	if err != nil {
		n.logger.Error("failed to encode typing event", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
	defer cancel()
	if err := n.emitter.Emit(ctx, ev); err != nil {
		n.logger.Debug("typing emit failed", zap.String("event", name), zap.Error(err))
	}
}

// TypingIndicator tracks which counterparties are typing. Each flag expires
// on its own after the timeout, whether or not stopTyping ever arrives.
type TypingIndicator struct {
	mu       sync.Mutex
	timeout  time.Duration
	active   map[model.UserID]*typingEntry
	onChange func(sender model.UserID, typing bool)
}

type typingEntry struct {
	timer *time.Timer
}

func NewTypingIndicator(timeout time.Duration, onChange func(sender model.UserID, typing bool)) *TypingIndicator {
	if timeout <= 0 {
		timeout = TypingTimeout
	}
	return &TypingIndicator{
		timeout:  timeout,
		active:   make(map[model.UserID]*typingEntry),
		onChange: onChange,
	}
}

// Typing marks sender as typing and restarts its expiry.
func (i *TypingIndicator) Typing(sender model.UserID) {
	i.mu.Lock()
	old, was := i.active[sender]
	if was {
		old.timer.Stop()
	}
	entry := &typingEntry{}
	entry.timer = time.AfterFunc(i.timeout, func() {
		i.expire(sender, entry)
	})
	i.active[sender] = entry
	i.mu.Unlock()

	if !was {
		i.notify(sender, true)
	}
}

// Clear removes the flag for sender, on stopTyping or a message from them.
func (i *TypingIndicator) Clear(sender model.UserID) {
	i.mu.Lock()
	entry, ok := i.active[sender]
	if ok {
		entry.timer.Stop()
		delete(i.active, sender)
	}
	i.mu.Unlock()

	if ok {
		i.notify(sender, false)
	}
}

func (i *TypingIndicator) IsTyping(sender model.UserID) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	_, ok := i.active[sender]
	return ok
}

// Reset drops every flag without notifying.
func (i *TypingIndicator) Reset() {
	i.mu.Lock()
	defer i.mu.Unlock()
	for sender, entry := range i.active {
		entry.timer.Stop()
		delete(i.active, sender)
	}
}

func (i *TypingIndicator) expire(sender model.UserID, entry *typingEntry) {
	i.mu.Lock()
	current, ok := i.active[sender]
	if !ok || current != entry {
		i.mu.Unlock()
		return
	}
	delete(i.active, sender)
	i.mu.Unlock()

	i.notify(sender, false)
}

func (i *TypingIndicator) notify(sender model.UserID, typing bool) {
	if i.onChange != nil {
		i.onChange(sender, typing)
	}
}
