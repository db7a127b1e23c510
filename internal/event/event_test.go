package event

import (
	"encoding/json"
	"testing"

	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func raw(name, payload string) WsEvent {
	return WsEvent{Event: name, Payload: json.RawMessage(payload)}
}

func TestDecodeNewMessage(t *testing.T) {
	t.Run("populated sender", func(t *testing.T) {
		msg, err := DecodeNewMessage(raw(EventNewMessage,
			`{"id":"64b0000000000000000000f1","senderId":{"_id":"64b000000000000000000a11"},"receiverId":"64b000000000000000000b0b","content":"hi"}`))
		require.NoError(t, err)
		assert.Equal(t, model.UserID("64b000000000000000000a11"), msg.SenderID)
	})

	tests := map[string]WsEvent{
		"missing payload":  {Event: EventNewMessage},
		"missing id":       raw(EventNewMessage, `{"senderId":"a","receiverId":"b"}`),
		"missing receiver": raw(EventNewMessage, `{"id":"64b0000000000000000000f1","senderId":"a"}`),
		"not an object":    raw(EventNewMessage, `"hello"`),
	}
	for name, ev := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeNewMessage(ev)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestDecodeMessagesRead(t *testing.T) {
	p, err := DecodeMessagesRead(raw(EventMessagesRead, `{"readerId":{"id":"r1"},"bookId":"b1","messageIds":["m1"]}`))
	require.NoError(t, err)
	assert.Equal(t, MessagesRead{ReaderID: "r1", BookID: "b1", MessageIDs: []string{"m1"}}, p)

	_, err = DecodeMessagesRead(raw(EventMessagesRead, `{"bookId":"b1"}`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeMessagesReadByMe(t *testing.T) {
	p, err := DecodeMessagesReadByMe(raw(EventMessagesReadByMe, `{"otherUserId":"u2"}`))
	require.NoError(t, err)
	assert.Equal(t, model.UserID("u2"), p.OtherUserID)

	_, err = DecodeMessagesReadByMe(raw(EventMessagesReadByMe, `{}`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeError(t *testing.T) {
	p, err := DecodeError(NewError("unknown_event", "unsupported event: dance"))
	require.NoError(t, err)
	assert.Equal(t, "unknown_event", p.Code)

	_, err = DecodeError(raw(EventError, `{"message":"no code"}`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestNew_RoundTripsThroughEnvelope(t *testing.T) {
	ev := Must(EventTyping, Typing{SenderID: "u1", ReceiverID: "u2"})

	data, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"typing","payload":{"senderId":"u1","receiverId":"u2"}}`, string(data))

	var back WsEvent
	require.NoError(t, json.Unmarshal(data, &back))
	p, err := DecodeTyping(back)
	require.NoError(t, err)
	assert.Equal(t, Typing{SenderID: "u1", ReceiverID: "u2"}, p)
}

func TestNew_UnmarshalablePayload(t *testing.T) {
	_, err := New(EventTyping, make(chan int))
	assert.Error(t, err)
	assert.Panics(t, func() { Must(EventTyping, make(chan int)) })
}
