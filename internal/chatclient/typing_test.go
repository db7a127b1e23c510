package chatclient

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/event"
	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypingNotifier_StopsAfterInactivity(t *testing.T) {
	emitter := &fakeEmitter{}
	n := NewTypingNotifier(emitter, alice, 40*time.Millisecond, nil)
	n.SetTarget(bobKey)

	n.Keystroke("h")
	n.Keystroke("he")
	assert.Equal(t, 2, emitter.count(event.EventTyping))
	assert.True(t, n.Active())

	require.Eventually(t, func() bool {
		return emitter.count(event.EventStopTyping) == 1
	}, time.Second, 5*time.Millisecond)
	assert.False(t, n.Active())

	// The timer fired once; nothing else follows.
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, []string{event.EventTyping, event.EventTyping, event.EventStopTyping}, emitter.names())
}

func TestTypingNotifier_PayloadCarriesBothParties(t *testing.T) {
	emitter := &fakeEmitter{}
	n := NewTypingNotifier(emitter, alice, time.Minute, nil)
	n.SetTarget(bobKey)
	n.Keystroke("x")
	n.Stop()

	emitter.mu.Lock()
	defer emitter.mu.Unlock()
	require.Len(t, emitter.events, 2)
	for _, ev := range emitter.events {
		var p event.Typing
		require.NoError(t, json.Unmarshal(ev.Payload, &p))
		assert.Equal(t, alice, p.SenderID)
		assert.Equal(t, bob, p.ReceiverID)
		assert.Equal(t, bobKey.BookID, p.BookID)
	}
}

func TestTypingNotifier_ClearingDraftStops(t *testing.T) {
	emitter := &fakeEmitter{}
	n := NewTypingNotifier(emitter, alice, time.Minute, nil)
	n.SetTarget(bobKey)

	n.Keystroke("a")
	n.Keystroke("")
	n.Keystroke("")
	n.Stop()

	assert.Equal(t, []string{event.EventTyping, event.EventStopTyping}, emitter.names())
}

func TestTypingNotifier_SwitchingTargetStopsPrevious(t *testing.T) {
	emitter := &fakeEmitter{}
	n := NewTypingNotifier(emitter, alice, time.Minute, nil)
	n.SetTarget(bobKey)
	n.Keystroke("a")

	n.SetTarget(model.ConversationKey{OtherUserID: carol})

	emitter.mu.Lock()
	defer emitter.mu.Unlock()
	require.Len(t, emitter.events, 2)
	var p event.Typing
	require.NoError(t, json.Unmarshal(emitter.events[1].Payload, &p))
	assert.Equal(t, event.EventStopTyping, emitter.events[1].Event)
	assert.Equal(t, bob, p.ReceiverID)
}

func TestTypingNotifier_NoTargetEmitsNothing(t *testing.T) {
	emitter := &fakeEmitter{}
	n := NewTypingNotifier(emitter, alice, time.Minute, nil)

	n.Keystroke("a")
	n.Stop()
	assert.Empty(t, emitter.names())
}

func TestTypingIndicator_ExpiresWithoutStop(t *testing.T) {
	var mu sync.Mutex
	var changes []bool
	ind := NewTypingIndicator(40*time.Millisecond, func(sender model.UserID, typing bool) {
		mu.Lock()
		defer mu.Unlock()
		changes = append(changes, typing)
	})

	ind.Typing(bob)
	ind.Typing(bob)
	assert.True(t, ind.IsTyping(bob))
	assert.False(t, ind.IsTyping(carol))

	require.Eventually(t, func() bool { return !ind.IsTyping(bob) }, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true, false}, changes)
}

func TestTypingIndicator_RefreshExtendsExpiry(t *testing.T) {
	ind := NewTypingIndicator(60*time.Millisecond, nil)

	ind.Typing(bob)
	time.Sleep(40 * time.Millisecond)
	ind.Typing(bob)
	time.Sleep(40 * time.Millisecond)
	assert.True(t, ind.IsTyping(bob))

	ind.Clear(bob)
	assert.False(t, ind.IsTyping(bob))
}
