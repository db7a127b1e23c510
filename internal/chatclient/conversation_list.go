package chatclient

import (
	"context"
	"sync"

	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/event"
	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/model"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// maxSeenMessages bounds the ids remembered to ignore redelivered events.
const maxSeenMessages = 4096

type ListOptions struct {
	Logger   *zap.Logger
	OnChange func()
}

// ConversationList keeps the user's conversations ordered by recency with
// per-conversation unread counters, updated from realtime events.
type ConversationList struct {
	api      API
	me       model.UserID
	onChange func()
	logger   *zap.Logger

	unsubscribe func()

	mu      sync.Mutex
	gen     uint64
	closed  bool
	items   []model.Conversation
	loading bool
	failure *Failure
	open    model.ConversationKey
	visible bool
	seen    map[primitive.ObjectID]struct{}
	// messages folded in while a Load is in flight, replayed onto its snapshot
	inflight []model.Message
}

func NewConversationList(me model.UserID, api API, bus *Bus, opts ListOptions) *ConversationList {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	l := &ConversationList{
		api:      api,
		me:       me,
		onChange: opts.OnChange,
		logger:   opts.Logger,
		visible:  true,
		seen:     make(map[primitive.ObjectID]struct{}),
	}
	l.unsubscribe = bus.Subscribe(Handlers{
		NewMessage:       l.handleNewMessage,
		MessagesReadByMe: l.handleMessagesReadByMe,
	})
	return l
}

// Load fetches every conversation of the user, newest first.
func (l *ConversationList) Load(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.gen++
	gen := l.gen
	l.loading = true
	l.failure = nil
	l.inflight = nil
	l.mu.Unlock()
	l.changed()

	cvs, err := l.api.Conversations(ctx)

	l.mu.Lock()
	if l.closed || l.gen != gen {
		l.mu.Unlock()
		return nil
	}
	l.loading = false
	inflight := l.inflight
	l.inflight = nil
	if err != nil {
		l.failure = &Failure{Op: OpLoadConversations, Err: err}
		f := l.failure
		l.mu.Unlock()
		l.logger.Debug("conversation list load failed", zap.Error(err))
		l.changed()
		return f
	}

	l.items = cvs
	if l.items == nil {
		l.items = []model.Conversation{}
	}
	for i := range inflight {
		msg := &inflight[i]
		if j := l.indexLocked(model.KeyFor(l.me, msg)); j >= 0 && !msg.CreatedAt.After(l.items[j].LastMessageTimestamp) {
			// already part of the snapshot
			continue
		}
		l.foldLocked(msg)
	}
	if i := l.indexLocked(l.open); i >= 0 && l.visible {
		l.items[i].UnreadCount = 0
	}
	model.SortByRecency(l.items)
	l.mu.Unlock()

	l.changed()
	return nil
}

// Retry reloads after a failed Load.
func (l *ConversationList) Retry(ctx context.Context) error {
	l.mu.Lock()
	failed := l.failure != nil
	l.mu.Unlock()
	if !failed {
		return nil
	}
	return l.Load(ctx)
}

// Select records key as the open conversation and clears its badge
// optimistically. The view's read round trip confirms it.
func (l *ConversationList) Select(key model.ConversationKey) {
	l.mu.Lock()
	l.open = key
	l.zeroLocked(key)
	l.mu.Unlock()
	l.changed()
}

// Deselect clears the open conversation.
func (l *ConversationList) Deselect() {
	l.mu.Lock()
	l.open = model.ConversationKey{}
	l.mu.Unlock()
	l.changed()
}

// SetVisible records whether the open conversation is on screen. While
// hidden, new messages in it count as unread.
func (l *ConversationList) SetVisible(visible bool) {
	l.mu.Lock()
	l.visible = visible
	l.mu.Unlock()
}

// ClearUnread zeroes the badge for key.
func (l *ConversationList) ClearUnread(key model.ConversationKey) {
	l.mu.Lock()
	changed := l.zeroLocked(key)
	l.mu.Unlock()
	if changed {
		l.changed()
	}
}

// Items returns a copy of the conversations, newest first.
func (l *ConversationList) Items() []model.Conversation {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.Conversation, len(l.items))
	copy(out, l.items)
	return out
}

// Get returns the conversation for key.
func (l *ConversationList) Get(key model.ConversationKey) (model.Conversation, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i := l.indexLocked(key); i >= 0 {
		return l.items[i], true
	}
	return model.Conversation{}, false
}

// TotalUnread sums every badge.
func (l *ConversationList) TotalUnread() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := 0
	for i := range l.items {
		total += l.items[i].UnreadCount
	}
	return total
}

func (l *ConversationList) Loading() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loading
}

func (l *ConversationList) Failure() *Failure {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.failure
}

// Close detaches the list from the bus.
func (l *ConversationList) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()
	l.unsubscribe()
}

func (l *ConversationList) handleNewMessage(msg model.Message) {
	l.mu.Lock()
	if l.closed || (msg.SenderID != l.me && msg.ReceiverID != l.me) {
		l.mu.Unlock()
		return
	}
	if _, dup := l.seen[msg.ID]; dup {
		l.mu.Unlock()
		return
	}
	if len(l.seen) >= maxSeenMessages {
		l.seen = make(map[primitive.ObjectID]struct{})
	}
	l.seen[msg.ID] = struct{}{}

	if l.loading {
		l.inflight = append(l.inflight, msg)
	}
	l.foldLocked(&msg)
	model.SortByRecency(l.items)
	l.mu.Unlock()

	l.changed()
}

// foldLocked applies msg to its conversation, starting one if the key is new.
func (l *ConversationList) foldLocked(msg *model.Message) {
	key := model.KeyFor(l.me, msg)
	i := l.indexLocked(key)
	if i < 0 {
		l.items = append(l.items, model.Conversation{
			OtherUserID: key.OtherUserID,
			BookID:      key.BookID,
		})
		i = len(l.items) - 1
	}

	c := &l.items[i]
	c.Apply(msg)
	focused := key == l.open && l.visible
	if !msg.IsFrom(l.me) && !msg.Read && !focused {
		c.UnreadCount++
	}
}

func (l *ConversationList) handleMessagesReadByMe(p event.MessagesReadByMe) {
	l.ClearUnread(model.ConversationKey{OtherUserID: p.OtherUserID, BookID: p.BookID})
}

func (l *ConversationList) indexLocked(key model.ConversationKey) int {
	if key.IsZero() {
		return -1
	}
	for i := range l.items {
		if l.items[i].Key() == key {
			return i
		}
	}
	return -1
}

func (l *ConversationList) zeroLocked(key model.ConversationKey) bool {
	i := l.indexLocked(key)
	if i < 0 || l.items[i].UnreadCount == 0 {
		return false
	}
	l.items[i].UnreadCount = 0
	return true
}

func (l *ConversationList) changed() {
	if l.onChange != nil {
		l.onChange()
	}
}
