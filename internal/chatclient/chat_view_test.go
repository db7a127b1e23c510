package chatclient

import (
	"context"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/event"
	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bobKey = model.ConversationKey{OtherUserID: bob, BookID: "book-1"}

func newTestView(t *testing.T, api *fakeAPI) (*ChatView, *Bus, *fakeEmitter) {
	t.Helper()
	bus := NewBus(nil)
	emitter := &fakeEmitter{}
	v := NewChatView(alice, api, bus, emitter, ViewOptions{
		TypingTimeout:  50 * time.Millisecond,
		Measure:        LineMeasure(80),
		ViewportHeight: 10,
	})
	t.Cleanup(v.Close)
	return v, bus, emitter
}

func assertChronological(t *testing.T, msgs []model.Message) {
	t.Helper()
	assert.True(t, sort.SliceIsSorted(msgs, func(i, j int) bool {
		return msgs[i].Before(&msgs[j])
	}), "messages out of order")
}

func assertUnique(t *testing.T, msgs []model.Message) {
	t.Helper()
	seen := make(map[string]bool, len(msgs))
	for _, id := range ids(msgs) {
		assert.False(t, seen[id], "duplicate message %s", id)
		seen[id] = true
	}
}

func TestChatView_OpenLoadsNewestPageAndMarksRead(t *testing.T) {
	api := newFakeAPI()
	all := api.seed(bobKey, 30)
	v, _, _ := newTestView(t, api)

	require.NoError(t, v.Open(context.Background(), bobKey))

	snap := v.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.Equal(t, bobKey, snap.Key)
	require.Len(t, snap.Messages, model.DefaultPageSize)
	assert.Equal(t, ids(all[10:]), ids(snap.Messages))
	assert.True(t, snap.HasMore)
	assert.Equal(t, 1, api.marks(bobKey))

	for _, m := range snap.Messages {
		if !m.IsFrom(alice) {
			assert.True(t, m.Read, "received message should be read after open")
		}
	}
}

func TestChatView_HasMoreEndsOnShortPage(t *testing.T) {
	api := newFakeAPI()
	api.seed(bobKey, 25)
	v, _, _ := newTestView(t, api)
	ctx := context.Background()

	require.NoError(t, v.Open(ctx, bobKey))
	assert.True(t, v.Snapshot().HasMore)

	v.ScrollTo(0)
	require.NoError(t, v.LoadOlder(ctx))

	snap := v.Snapshot()
	assert.False(t, snap.HasMore)
	assert.Len(t, snap.Messages, 25)
	assertChronological(t, snap.Messages)
	assert.Equal(t, []int{1, 2}, api.pagesRequested())

	// Nothing left to fetch.
	require.NoError(t, v.LoadOlder(ctx))
	assert.Equal(t, []int{1, 2}, api.pagesRequested())
}

func TestChatView_LoadOlderOnlyAtTop(t *testing.T) {
	api := newFakeAPI()
	api.seed(bobKey, 40)
	v, _, _ := newTestView(t, api)
	ctx := context.Background()

	require.NoError(t, v.Open(ctx, bobKey))
	require.False(t, v.Snapshot().Viewport.AtTop())

	require.NoError(t, v.LoadOlder(ctx))
	assert.Equal(t, []int{1}, api.pagesRequested())
}

func TestChatView_LoadOlderPreservesScrollPosition(t *testing.T) {
	tests := []struct {
		name   string
		offset float64
	}{
		{"flush with top", 0},
		{"just below top", 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeAPI()
			api.seed(bobKey, 40)
			v, _, _ := newTestView(t, api)
			ctx := context.Background()
			measure := LineMeasure(80)

			require.NoError(t, v.Open(ctx, bobKey))
			v.ScrollTo(tt.offset)

			before := v.Snapshot()
			anchor := before.Messages[0].ID
			posBefore := measure(before.Messages[:0]) - before.Viewport.Offset

			require.NoError(t, v.LoadOlder(ctx))

			after := v.Snapshot()
			require.Len(t, after.Messages, 40)
			idx := -1
			for i := range after.Messages {
				if after.Messages[i].ID == anchor {
					idx = i
				}
			}
			require.Equal(t, 20, idx)

			posAfter := measure(after.Messages[:idx]) - after.Viewport.Offset
			assert.InDelta(t, posBefore, posAfter, 1e-9)
		})
	}
}

func TestChatView_NoDuplicateIDs(t *testing.T) {
	api := newFakeAPI()
	api.seed(bobKey, 5)
	v, bus, _ := newTestView(t, api)
	require.NoError(t, v.Open(context.Background(), bobKey))

	var pool []model.Message
	for i := 0; i < 10; i++ {
		pool = append(pool, incoming(bob, bobKey, baseTime.Add(time.Hour+time.Duration(i)*time.Second), "hi"))
	}

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		dispatch(t, bus, event.EventNewMessage, pool[rng.Intn(len(pool))])
	}

	snap := v.Snapshot()
	assert.Len(t, snap.Messages, 15)
	assertUnique(t, snap.Messages)
	assertChronological(t, snap.Messages)
}

func TestChatView_IgnoresOtherConversations(t *testing.T) {
	api := newFakeAPI()
	v, bus, _ := newTestView(t, api)
	require.NoError(t, v.Open(context.Background(), bobKey))

	otherBook := model.ConversationKey{OtherUserID: bob, BookID: "book-2"}
	noBook := model.ConversationKey{OtherUserID: bob}
	fromCarol := model.ConversationKey{OtherUserID: carol, BookID: bobKey.BookID}

	dispatch(t, bus, event.EventNewMessage, incoming(bob, otherBook, baseTime, "other book"))
	dispatch(t, bus, event.EventNewMessage, incoming(bob, noBook, baseTime, "no book"))
	dispatch(t, bus, event.EventNewMessage, incoming(carol, fromCarol, baseTime, "carol"))

	assert.Empty(t, v.Snapshot().Messages)
}

func TestChatView_SendRendersOnceWithEcho(t *testing.T) {
	api := newFakeAPI()
	v, bus, emitter := newTestView(t, api)
	ctx := context.Background()
	require.NoError(t, v.Open(ctx, bobKey))

	v.SetDraft("hello")
	v.SetDraft("hello bob")
	require.NoError(t, v.Send(ctx))

	snap := v.Snapshot()
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, "hello bob", snap.Messages[0].Content)
	assert.Empty(t, snap.Draft)
	assert.False(t, snap.Sending)

	dispatch(t, bus, event.EventNewMessage, snap.Messages[0])
	assert.Len(t, v.Snapshot().Messages, 1)

	assert.Equal(t, []string{event.EventTyping, event.EventTyping, event.EventStopTyping}, emitter.names())
}

func TestChatView_SendFailureKeepsDraftAndRetries(t *testing.T) {
	api := newFakeAPI()
	v, _, _ := newTestView(t, api)
	ctx := context.Background()
	require.NoError(t, v.Open(ctx, bobKey))

	api.set(func(f *fakeAPI) { f.sendErr = errOffline })
	v.SetDraft("is this still available?")

	err := v.Send(ctx)
	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, OpSend, failure.Op)

	snap := v.Snapshot()
	assert.Equal(t, "is this still available?", snap.Draft)
	require.NotNil(t, snap.Failure)
	assert.Empty(t, snap.Messages)

	api.set(func(f *fakeAPI) { f.sendErr = nil })
	require.NoError(t, v.Retry(ctx))

	snap = v.Snapshot()
	assert.Nil(t, snap.Failure)
	assert.Empty(t, snap.Draft)
	require.Len(t, snap.Messages, 1)
}

func TestChatView_SendIgnoresBlankDraft(t *testing.T) {
	api := newFakeAPI()
	v, _, _ := newTestView(t, api)
	ctx := context.Background()
	require.NoError(t, v.Open(ctx, bobKey))

	v.SetDraft("   ")
	require.NoError(t, v.Send(ctx))
	assert.Empty(t, api.sent)
}

func TestChatView_HiddenMessageReadWhenVisible(t *testing.T) {
	api := newFakeAPI()
	v, bus, _ := newTestView(t, api)
	ctx := context.Background()
	require.NoError(t, v.Open(ctx, bobKey))
	require.Equal(t, 1, api.marks(bobKey))

	require.NoError(t, v.SetVisible(ctx, false))
	dispatch(t, bus, event.EventNewMessage, incoming(bob, bobKey, baseTime, "are you there?"))

	snap := v.Snapshot()
	assert.Equal(t, 1, snap.PendingUnread)
	assert.Equal(t, 1, api.marks(bobKey))

	require.NoError(t, v.SetVisible(ctx, true))

	snap = v.Snapshot()
	assert.Equal(t, 0, snap.PendingUnread)
	assert.Equal(t, 2, api.marks(bobKey))
	require.Len(t, snap.Messages, 1)
	assert.True(t, snap.Messages[0].Read)
}

func TestChatView_VisibleMessageMarkedRead(t *testing.T) {
	api := newFakeAPI()
	v, bus, _ := newTestView(t, api)
	require.NoError(t, v.Open(context.Background(), bobKey))

	dispatch(t, bus, event.EventNewMessage, incoming(bob, bobKey, baseTime, "hello"))

	require.Eventually(t, func() bool {
		return api.marks(bobKey) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, v.Snapshot().PendingUnread)
}

func TestChatView_MarkAsReadIsIdempotent(t *testing.T) {
	api := newFakeAPI()
	api.seed(bobKey, 4)
	v, _, _ := newTestView(t, api)
	ctx := context.Background()
	require.NoError(t, v.Open(ctx, bobKey))

	require.NoError(t, v.MarkAsRead(ctx))
	first := v.Snapshot()
	require.NoError(t, v.MarkAsRead(ctx))
	second := v.Snapshot()

	assert.Equal(t, 0, second.PendingUnread)
	assert.Equal(t, first.Messages, second.Messages)
	assert.Equal(t, 3, api.marks(bobKey))
}

func TestChatView_MessagesReadFlagsOwnMessages(t *testing.T) {
	tests := []struct {
		name     string
		payload  func(own []model.Message) event.MessagesRead
		wantRead int
	}{
		{
			name: "all own messages",
			payload: func([]model.Message) event.MessagesRead {
				return event.MessagesRead{ReaderID: bob, BookID: bobKey.BookID}
			},
			wantRead: 2,
		},
		{
			name: "listed ids only",
			payload: func(own []model.Message) event.MessagesRead {
				return event.MessagesRead{ReaderID: bob, BookID: bobKey.BookID, MessageIDs: []string{own[0].ID.Hex()}}
			},
			wantRead: 1,
		},
		{
			name: "different reader",
			payload: func([]model.Message) event.MessagesRead {
				return event.MessagesRead{ReaderID: carol, BookID: bobKey.BookID}
			},
			wantRead: 0,
		},
		{
			name: "different book",
			payload: func([]model.Message) event.MessagesRead {
				return event.MessagesRead{ReaderID: bob, BookID: "book-9"}
			},
			wantRead: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeAPI()
			api.seed(bobKey, 4)
			v, bus, _ := newTestView(t, api)
			require.NoError(t, v.Open(context.Background(), bobKey))

			var own []model.Message
			for _, m := range v.Snapshot().Messages {
				if m.IsFrom(alice) {
					own = append(own, m)
				}
			}
			require.Len(t, own, 2)

			dispatch(t, bus, event.EventMessagesRead, tt.payload(own))

			read := 0
			for _, m := range v.Snapshot().Messages {
				if m.IsFrom(alice) && m.Read {
					read++
				}
			}
			assert.Equal(t, tt.wantRead, read)
		})
	}
}

func TestChatView_MessagesReadByMeClearsPending(t *testing.T) {
	api := newFakeAPI()
	v, bus, _ := newTestView(t, api)
	ctx := context.Background()
	require.NoError(t, v.Open(ctx, bobKey))
	require.NoError(t, v.SetVisible(ctx, false))

	dispatch(t, bus, event.EventNewMessage, incoming(bob, bobKey, baseTime, "one"))
	dispatch(t, bus, event.EventNewMessage, incoming(bob, bobKey, baseTime.Add(time.Second), "two"))
	require.Equal(t, 2, v.Snapshot().PendingUnread)

	dispatch(t, bus, event.EventMessagesReadByMe, event.MessagesReadByMe{OtherUserID: bob, BookID: bobKey.BookID})

	snap := v.Snapshot()
	assert.Equal(t, 0, snap.PendingUnread)
	for _, m := range snap.Messages {
		assert.True(t, m.Read)
	}
}

func TestChatView_DiscardsStaleOpen(t *testing.T) {
	api := newFakeAPI()
	api.seed(bobKey, 3)
	carolKey := model.ConversationKey{OtherUserID: carol}
	carolMsgs := api.seed(carolKey, 2)

	release := make(chan struct{})
	api.set(func(f *fakeAPI) { f.block[bob] = release })

	v, _, _ := newTestView(t, api)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- v.Open(ctx, bobKey) }()

	require.Eventually(t, func() bool {
		return len(api.pagesRequested()) == 1
	}, time.Second, time.Millisecond)

	require.NoError(t, v.Open(ctx, carolKey))
	close(release)
	require.NoError(t, <-done)

	snap := v.Snapshot()
	assert.Equal(t, carolKey, snap.Key)
	assert.Equal(t, ids(carolMsgs), ids(snap.Messages))
	assert.Equal(t, 0, api.marks(bobKey))
}

func TestChatView_HistoryFailureRetry(t *testing.T) {
	api := newFakeAPI()
	api.seed(bobKey, 3)
	api.set(func(f *fakeAPI) { f.historyErr = errOffline })
	v, _, _ := newTestView(t, api)
	ctx := context.Background()

	err := v.Open(ctx, bobKey)
	require.ErrorIs(t, err, errOffline)

	snap := v.Snapshot()
	assert.Equal(t, StateLoadingInitial, snap.State)
	require.NotNil(t, snap.Failure)
	assert.Equal(t, OpLoadHistory, snap.Failure.Op)

	api.set(func(f *fakeAPI) { f.historyErr = nil })
	require.NoError(t, v.Retry(ctx))

	snap = v.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.Len(t, snap.Messages, 3)
	assert.Nil(t, snap.Failure)
}

func TestChatView_LoadOlderRetryAfterScrollingAway(t *testing.T) {
	api := newFakeAPI()
	api.seed(bobKey, 30)
	v, _, _ := newTestView(t, api)
	ctx := context.Background()

	require.NoError(t, v.Open(ctx, bobKey))
	v.ScrollTo(0)
	api.set(func(f *fakeAPI) { f.historyErr = errOffline })
	require.ErrorIs(t, v.LoadOlder(ctx), errOffline)
	require.NotNil(t, v.Snapshot().Failure)

	v.ScrollTo(1000)
	require.False(t, v.Snapshot().Viewport.AtTop())

	api.set(func(f *fakeAPI) { f.historyErr = nil })
	require.NoError(t, v.Retry(ctx))

	snap := v.Snapshot()
	assert.Nil(t, snap.Failure)
	assert.Len(t, snap.Messages, 30)
	assert.False(t, snap.HasMore)
	assert.Equal(t, []int{1, 2, 2}, api.pagesRequested())
	assertChronological(t, snap.Messages)
}

func TestChatView_CounterpartyTypingExpires(t *testing.T) {
	api := newFakeAPI()
	v, bus, _ := newTestView(t, api)
	require.NoError(t, v.Open(context.Background(), bobKey))

	dispatch(t, bus, event.EventTyping, event.Typing{SenderID: carol})
	assert.False(t, v.Snapshot().CounterpartyTyping)

	dispatch(t, bus, event.EventTyping, event.Typing{SenderID: bob, BookID: bobKey.BookID})
	assert.True(t, v.Snapshot().CounterpartyTyping)

	// No stopTyping arrives; the flag still clears.
	require.Eventually(t, func() bool {
		return !v.Snapshot().CounterpartyTyping
	}, time.Second, 5*time.Millisecond)
}

func TestChatView_MessageClearsTyping(t *testing.T) {
	api := newFakeAPI()
	v, bus, _ := newTestView(t, api)
	require.NoError(t, v.Open(context.Background(), bobKey))

	dispatch(t, bus, event.EventTyping, event.Typing{SenderID: bob})
	require.True(t, v.Snapshot().CounterpartyTyping)

	dispatch(t, bus, event.EventNewMessage, incoming(bob, bobKey, baseTime, "done typing"))
	assert.False(t, v.Snapshot().CounterpartyTyping)
}

func TestChatView_CloseStopsHandling(t *testing.T) {
	api := newFakeAPI()
	v, bus, _ := newTestView(t, api)
	ctx := context.Background()
	require.NoError(t, v.Open(ctx, bobKey))
	require.Equal(t, 1, bus.Len())

	v.Close()
	assert.Equal(t, 0, bus.Len())

	dispatch(t, bus, event.EventNewMessage, incoming(bob, bobKey, baseTime, "late"))
	assert.Empty(t, v.Snapshot().Messages)
	assert.ErrorIs(t, v.Open(ctx, bobKey), ErrClosed)
}
