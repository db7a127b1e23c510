package chatclient

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/event"
	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/model"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

var (
	ErrNoConversation = errors.New("no conversation selected")
	ErrMessageTooLong = errors.New("message is too long")
)

const defaultViewportHeight = 20

type ViewState int

const (
	StateIdle ViewState = iota
	StateLoadingInitial
	StateReady
)

func (s ViewState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoadingInitial:
		return "loading-initial"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// ViewSnapshot is a copy of a ChatView's state for rendering.
type ViewSnapshot struct {
	State              ViewState
	Key                model.ConversationKey
	Messages           []model.Message
	HasMore            bool
	LoadingMore        bool
	Sending            bool
	Draft              string
	Visible            bool
	PendingUnread      int
	Failure            *Failure
	CounterpartyTyping bool
	Viewport           Viewport
}

type ViewOptions struct {
	PageSize       int
	TypingTimeout  time.Duration
	Measure        Measure
	ViewportHeight float64
	Logger         *zap.Logger

	// OnChange runs after every state change, outside the view's lock.
	OnChange func()
	// OnRead runs after the server confirmed a mark-as-read for key.
	OnRead func(key model.ConversationKey)
}

// ChatView holds one open conversation: its history window, the draft being
// composed and the read state reconciled with the counterparty.
type ChatView struct {
	api       API
	me        model.UserID
	pageSize  int
	measure   Measure
	notifier  *TypingNotifier
	indicator *TypingIndicator
	onChange  func()
	onRead    func(key model.ConversationKey)
	logger    *zap.Logger

	unsubscribe func()

	mu            sync.Mutex
	gen           uint64
	closed        bool
	key           model.ConversationKey
	state         ViewState
	messages      []model.Message
	page          int
	hasMore       bool
	loadingMore   bool
	sending       bool
	draft         string
	visible       bool
	pendingUnread int
	failure       *Failure
	viewport      Viewport
}

func NewChatView(me model.UserID, api API, bus *Bus, emitter Emitter, opts ViewOptions) *ChatView {
	if opts.PageSize <= 0 {
		opts.PageSize = model.DefaultPageSize
	}
	if opts.Measure == nil {
		opts.Measure = LineMeasure(80)
	}
	if opts.ViewportHeight <= 0 {
		opts.ViewportHeight = defaultViewportHeight
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	v := &ChatView{
		api:      api,
		me:       me,
		pageSize: opts.PageSize,
		measure:  opts.Measure,
		onChange: opts.OnChange,
		onRead:   opts.OnRead,
		logger:   opts.Logger,
		visible:  true,
		viewport: Viewport{Height: opts.ViewportHeight},
	}
	v.notifier = NewTypingNotifier(emitter, me, opts.TypingTimeout, opts.Logger)
	v.indicator = NewTypingIndicator(opts.TypingTimeout, func(model.UserID, bool) { v.changed() })

	v.unsubscribe = bus.Subscribe(Handlers{
		NewMessage:       v.handleNewMessage,
		MessagesRead:     v.handleMessagesRead,
		MessagesReadByMe: v.handleMessagesReadByMe,
		Typing:           v.handleTyping,
		StopTyping:       v.handleStopTyping,
	})
	return v
}

// Open switches the view to key, loads the newest page and marks the
// conversation read. Completions from a previous Open are discarded.
func (v *ChatView) Open(ctx context.Context, key model.ConversationKey) error {
	if key.IsZero() {
		return ErrNoConversation
	}

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	v.gen++
	gen := v.gen
	v.key = key
	v.state = StateLoadingInitial
	v.messages = nil
	v.page = 0
	v.hasMore = false
	v.loadingMore = false
	v.sending = false
	v.draft = ""
	v.pendingUnread = 0
	v.failure = nil
	v.viewport = Viewport{Height: v.viewport.Height}
	v.mu.Unlock()

	v.indicator.Reset()
	v.notifier.SetTarget(key)
	v.changed()

	return v.loadInitial(ctx, gen, key)
}

func (v *ChatView) loadInitial(ctx context.Context, gen uint64, key model.ConversationKey) error {
	msgs, err := v.api.History(ctx, key, 1, v.pageSize)

	v.mu.Lock()
	if !v.currentLocked(gen) {
		v.mu.Unlock()
		return nil
	}
	if err != nil {
		f := v.failLocked(OpLoadHistory, err)
		v.mu.Unlock()
		v.changed()
		return f
	}

	// History arrives newest first; order is restored by insertion.
	for i := range msgs {
		v.upsertLocked(msgs[i])
	}
	v.page = 1
	v.hasMore = len(msgs) >= v.pageSize
	v.state = StateReady
	v.viewport.Resize(v.measure(v.messages), 0)
	v.viewport.ScrollToBottom()
	v.mu.Unlock()

	v.changed()
	return v.markRead(ctx, gen)
}

// LoadOlder fetches the next page back in time. It only runs when the
// viewport is at the top and more history is known to exist.
func (v *ChatView) LoadOlder(ctx context.Context) error {
	return v.loadOlder(ctx, false)
}

// loadOlder fetches the next older page. force skips the scroll position
// check for a retry the user asked for explicitly.
func (v *ChatView) loadOlder(ctx context.Context, force bool) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	if v.state != StateReady || v.loadingMore || !v.hasMore || (!force && !v.viewport.AtTop()) {
		v.mu.Unlock()
		return nil
	}
	v.loadingMore = true
	v.clearFailureLocked(OpLoadOlder)
	gen, key, page := v.gen, v.key, v.page+1
	v.mu.Unlock()
	v.changed()

	msgs, err := v.api.History(ctx, key, page, v.pageSize)

	v.mu.Lock()
	if !v.currentLocked(gen) {
		v.mu.Unlock()
		return nil
	}
	v.loadingMore = false
	if err != nil {
		f := v.failLocked(OpLoadOlder, err)
		v.mu.Unlock()
		v.changed()
		return f
	}

	before := v.measure(v.messages)
	for i := range msgs {
		v.upsertLocked(msgs[i])
	}
	after := v.measure(v.messages)
	v.viewport.Resize(after, after-before)
	v.page = page
	v.hasMore = len(msgs) >= v.pageSize
	v.mu.Unlock()

	v.changed()
	return nil
}

// SetDraft records the composer text and reports typing to the counterparty.
func (v *ChatView) SetDraft(text string) {
	v.mu.Lock()
	if v.closed || v.state == StateIdle {
		v.mu.Unlock()
		return
	}
	v.draft = text
	v.mu.Unlock()

	v.notifier.Keystroke(text)
	v.changed()
}

// Send persists the draft. The returned message is shown at once and the
// realtime echo replaces it by id. On failure the draft is kept.
func (v *ChatView) Send(ctx context.Context) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	content := strings.TrimSpace(v.draft)
	if v.state != StateReady || v.sending || content == "" {
		v.mu.Unlock()
		return nil
	}
	if utf8.RuneCountInString(content) > model.MaxContentLength {
		f := v.failLocked(OpSend, ErrMessageTooLong)
		v.mu.Unlock()
		v.changed()
		return f
	}
	v.sending = true
	v.clearFailureLocked(OpSend)
	gen, key := v.gen, v.key
	v.mu.Unlock()

	v.notifier.Stop()
	v.changed()

	msg, err := v.api.Send(ctx, key, content)

	v.mu.Lock()
	if !v.currentLocked(gen) {
		v.mu.Unlock()
		return nil
	}
	v.sending = false
	if err != nil {
		f := v.failLocked(OpSend, err)
		v.mu.Unlock()
		v.changed()
		return f
	}

	if strings.TrimSpace(v.draft) == content {
		v.draft = ""
	}
	if msg != nil && msg.Valid() {
		v.upsertLocked(*msg)
		v.viewport.Resize(v.measure(v.messages), 0)
	}
	v.mu.Unlock()

	v.changed()
	return nil
}

// SetVisible records whether the view is on screen. Becoming visible with
// unread messages from the counterparty marks them read.
func (v *ChatView) SetVisible(ctx context.Context, visible bool) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	v.visible = visible
	need := visible && v.state == StateReady && (v.pendingUnread > 0 || len(v.unreadReceivedLocked()) > 0)
	gen := v.gen
	v.mu.Unlock()
	v.changed()

	if !need {
		return nil
	}
	return v.markRead(ctx, gen)
}

// MarkAsRead marks the open conversation read.
func (v *ChatView) MarkAsRead(ctx context.Context) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	if v.state != StateReady {
		v.mu.Unlock()
		return nil
	}
	gen := v.gen
	v.mu.Unlock()
	return v.markRead(ctx, gen)
}

// Retry repeats the operation behind the current failure.
func (v *ChatView) Retry(ctx context.Context) error {
	v.mu.Lock()
	f := v.failure
	if v.closed || f == nil {
		v.mu.Unlock()
		return nil
	}
	v.failure = nil
	gen, key := v.gen, v.key
	v.mu.Unlock()
	v.changed()

	switch f.Op {
	case OpLoadHistory:
		return v.loadInitial(ctx, gen, key)
	case OpLoadOlder:
		return v.loadOlder(ctx, true)
	case OpSend:
		return v.Send(ctx)
	case OpMarkRead:
		return v.markRead(ctx, gen)
	default:
		return nil
	}
}

// ScrollTo moves the viewport, e.g. when the user scrolls.
func (v *ChatView) ScrollTo(offset float64) {
	v.mu.Lock()
	v.viewport.ScrollTo(offset)
	v.mu.Unlock()
	v.changed()
}

func (v *ChatView) Snapshot() ViewSnapshot {
	v.mu.Lock()
	defer v.mu.Unlock()

	msgs := make([]model.Message, len(v.messages))
	copy(msgs, v.messages)

	return ViewSnapshot{
		State:              v.state,
		Key:                v.key,
		Messages:           msgs,
		HasMore:            v.hasMore,
		LoadingMore:        v.loadingMore,
		Sending:            v.sending,
		Draft:              v.draft,
		Visible:            v.visible,
		PendingUnread:      v.pendingUnread,
		Failure:            v.failure,
		CounterpartyTyping: v.state != StateIdle && v.indicator.IsTyping(v.key.OtherUserID),
		Viewport:           v.viewport,
	}
}

// Close detaches the view from the bus. Late completions become no-ops.
func (v *ChatView) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	v.gen++
	v.mu.Unlock()

	v.unsubscribe()
	v.notifier.Stop()
	v.indicator.Reset()
}

// markRead asks the server to mark the conversation read, then flags the
// received messages that were unread when the call started.
func (v *ChatView) markRead(ctx context.Context, gen uint64) error {
	v.mu.Lock()
	if !v.currentLocked(gen) {
		v.mu.Unlock()
		return nil
	}
	key := v.key
	ids := v.unreadReceivedLocked()
	pending := v.pendingUnread
	v.mu.Unlock()

	err := v.api.MarkAsRead(ctx, key)

	v.mu.Lock()
	if !v.currentLocked(gen) {
		v.mu.Unlock()
		return nil
	}
	if err != nil {
		f := v.failLocked(OpMarkRead, err)
		v.mu.Unlock()
		v.changed()
		return f
	}
	v.flagReadLocked(ids)
	v.pendingUnread -= pending
	if v.pendingUnread < 0 {
		v.pendingUnread = 0
	}
	v.mu.Unlock()

	if v.onRead != nil {
		v.onRead(key)
	}
	v.changed()
	return nil
}

func (v *ChatView) handleNewMessage(msg model.Message) {
	v.mu.Lock()
	if !v.acceptsLocked(&msg) {
		v.mu.Unlock()
		return
	}

	fromOther := !msg.IsFrom(v.me)
	inserted := v.upsertLocked(msg)
	v.viewport.Resize(v.measure(v.messages), 0)

	trigger := false
	if fromOther && inserted && !msg.Read {
		switch {
		case !v.visible:
			v.pendingUnread++
		case v.state == StateReady:
			trigger = true
		}
	}
	gen := v.gen
	v.mu.Unlock()

	if fromOther {
		v.indicator.Clear(msg.SenderID)
	}
	v.changed()

	if trigger {
		go func() {
			if err := v.markRead(context.Background(), gen); err != nil {
				v.logger.Debug("mark as read after new message failed", zap.Error(err))
			}
		}()
	}
}

func (v *ChatView) handleMessagesRead(p event.MessagesRead) {
	v.mu.Lock()
	if v.closed || v.state == StateIdle || p.ReaderID != v.key.OtherUserID || p.BookID != v.key.BookID {
		v.mu.Unlock()
		return
	}

	var only map[string]struct{}
	if len(p.MessageIDs) > 0 {
		only = make(map[string]struct{}, len(p.MessageIDs))
		for _, id := range p.MessageIDs {
			only[id] = struct{}{}
		}
	}

	changed := false
	for i := range v.messages {
		m := &v.messages[i]
		if m.Read || !m.IsFrom(v.me) {
			continue
		}
		if only != nil {
			if _, ok := only[m.ID.Hex()]; !ok {
				continue
			}
		}
		m.Read = true
		changed = true
	}
	v.mu.Unlock()

	if changed {
		v.changed()
	}
}

func (v *ChatView) handleMessagesReadByMe(p event.MessagesReadByMe) {
	v.mu.Lock()
	if v.closed || v.state == StateIdle || p.OtherUserID != v.key.OtherUserID || p.BookID != v.key.BookID {
		v.mu.Unlock()
		return
	}
	v.flagReadLocked(v.unreadReceivedLocked())
	v.pendingUnread = 0
	v.mu.Unlock()

	v.changed()
}

func (v *ChatView) handleTyping(p event.Typing) {
	if v.typingFromCounterparty(p) {
		v.indicator.Typing(p.SenderID)
	}
}

func (v *ChatView) handleStopTyping(p event.Typing) {
	if v.typingFromCounterparty(p) {
		v.indicator.Clear(p.SenderID)
	}
}

func (v *ChatView) typingFromCounterparty(p event.Typing) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed || v.state == StateIdle || p.SenderID != v.key.OtherUserID {
		return false
	}
	return p.BookID == "" || p.BookID == v.key.BookID
}

func (v *ChatView) acceptsLocked(msg *model.Message) bool {
	if v.closed || v.state == StateIdle {
		return false
	}
	if msg.SenderID != v.me && msg.ReceiverID != v.me {
		return false
	}
	return model.KeyFor(v.me, msg) == v.key
}

// upsertLocked replaces a message with the same id in place or inserts it in
// timestamp order. It reports whether the message was new.
func (v *ChatView) upsertLocked(msg model.Message) bool {
	for i := range v.messages {
		if v.messages[i].ID == msg.ID {
			msg.Read = msg.Read || v.messages[i].Read
			v.messages[i] = msg
			return false
		}
	}

	i := sort.Search(len(v.messages), func(i int) bool {
		return msg.Before(&v.messages[i])
	})
	v.messages = append(v.messages, model.Message{})
	copy(v.messages[i+1:], v.messages[i:])
	v.messages[i] = msg
	return true
}

func (v *ChatView) unreadReceivedLocked() []primitive.ObjectID {
	var ids []primitive.ObjectID
	for i := range v.messages {
		if !v.messages[i].Read && !v.messages[i].IsFrom(v.me) {
			ids = append(ids, v.messages[i].ID)
		}
	}
	return ids
}

func (v *ChatView) flagReadLocked(ids []primitive.ObjectID) {
	if len(ids) == 0 {
		return
	}
	set := make(map[primitive.ObjectID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	for i := range v.messages {
		if _, ok := set[v.messages[i].ID]; ok {
			v.messages[i].Read = true
		}
	}
}

func (v *ChatView) currentLocked(gen uint64) bool {
	return !v.closed && v.gen == gen
}

func (v *ChatView) failLocked(op Op, err error) *Failure {
	v.failure = &Failure{Op: op, Err: err}
	v.logger.Debug("chat view operation failed", zap.String("op", string(op)), zap.Error(err))
	return v.failure
}

func (v *ChatView) clearFailureLocked(op Op) {
	if v.failure != nil && v.failure.Op == op {
		v.failure = nil
	}
}

func (v *ChatView) changed() {
	if v.onChange != nil {
		v.onChange()
	}
}
