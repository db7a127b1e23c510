package chatclient

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/event"
	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/model"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	alice = model.UserID("64b000000000000000000a11")
	bob   = model.UserID("64b000000000000000000b0b")
	carol = model.UserID("64b000000000000000000ca1")

	baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	errOffline = errors.New("connection refused")
)

// fakeAPI serves history pages newest first, like the server.
type fakeAPI struct {
	mu sync.Mutex

	conversations     []model.Conversation
	conversationsErr  error
	conversationsGate chan struct{}

	history    map[model.ConversationKey][]model.Message // chronological
	historyErr error
	block      map[model.UserID]chan struct{}

	sendErr error
	sent    []string

	markErr   error
	markCalls map[model.ConversationKey]int

	historyCalls []int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		history:   make(map[model.ConversationKey][]model.Message),
		block:     make(map[model.UserID]chan struct{}),
		markCalls: make(map[model.ConversationKey]int),
	}
}

func (f *fakeAPI) Conversations(ctx context.Context) ([]model.Conversation, error) {
	f.mu.Lock()
	gate := f.conversationsGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conversationsErr != nil {
		return nil, f.conversationsErr
	}
	out := make([]model.Conversation, len(f.conversations))
	copy(out, f.conversations)
	return out, nil
}

func (f *fakeAPI) History(ctx context.Context, key model.ConversationKey, page, pageSize int) ([]model.Message, error) {
	f.mu.Lock()
	wait := f.block[key.OtherUserID]
	f.historyCalls = append(f.historyCalls, page)
	f.mu.Unlock()

	if wait != nil {
		<-wait
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.historyErr != nil {
		return nil, f.historyErr
	}

	all := f.history[key]
	end := len(all) - (page-1)*pageSize
	if end <= 0 {
		return []model.Message{}, nil
	}
	start := end - pageSize
	if start < 0 {
		start = 0
	}

	out := make([]model.Message, 0, end-start)
	for i := end - 1; i >= start; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (f *fakeAPI) Send(ctx context.Context, key model.ConversationKey, content string) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, content)
	msg := model.Message{
		ID:         primitive.NewObjectID(),
		SenderID:   alice,
		ReceiverID: key.OtherUserID,
		BookID:     key.BookID,
		Content:    content,
		CreatedAt:  baseTime.Add(time.Hour + time.Duration(len(f.sent))*time.Second),
	}
	f.history[key] = append(f.history[key], msg)
	return &msg, nil
}

func (f *fakeAPI) MarkAsRead(ctx context.Context, key model.ConversationKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markCalls[key]++
	return f.markErr
}

func (f *fakeAPI) marks(key model.ConversationKey) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.markCalls[key]
}

func (f *fakeAPI) pagesRequested() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, len(f.historyCalls))
	copy(out, f.historyCalls)
	return out
}

func (f *fakeAPI) set(fn func(f *fakeAPI)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

// seed stores n alternating messages between alice and other, oldest first.
func (f *fakeAPI) seed(key model.ConversationKey, n int) []model.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := make([]model.Message, n)
	for i := range msgs {
		from, to := key.OtherUserID, alice
		if i%2 == 1 {
			from, to = alice, key.OtherUserID
		}
		msgs[i] = model.Message{
			ID:         primitive.NewObjectID(),
			SenderID:   from,
			ReceiverID: to,
			BookID:     key.BookID,
			Content:    "message",
			CreatedAt:  baseTime.Add(time.Duration(i) * time.Minute),
		}
	}
	f.history[key] = append(f.history[key], msgs...)
	return msgs
}

type fakeEmitter struct {
	mu     sync.Mutex
	events []event.WsEvent
	err    error
}

func (e *fakeEmitter) Emit(ctx context.Context, ev event.WsEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	return e.err
}

func (e *fakeEmitter) names() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.events))
	for i, ev := range e.events {
		out[i] = ev.Event
	}
	return out
}

func (e *fakeEmitter) count(name string) int {
	n := 0
	for _, got := range e.names() {
		if got == name {
			n++
		}
	}
	return n
}

func incoming(from model.UserID, key model.ConversationKey, at time.Time, content string) model.Message {
	return model.Message{
		ID:         primitive.NewObjectID(),
		SenderID:   from,
		ReceiverID: alice,
		BookID:     key.BookID,
		Content:    content,
		CreatedAt:  at,
	}
}

func dispatch(t *testing.T, bus *Bus, name string, payload any) {
	t.Helper()
	bus.Dispatch(event.Must(name, payload))
}

func ids(msgs []model.Message) []string {
	out := make([]string, len(msgs))
	for i := range msgs {
		out[i] = msgs[i].ID.Hex()
	}
	return out
}
