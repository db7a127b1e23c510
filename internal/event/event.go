package event

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/model"
)

// Server to client
const (
	EventNewMessage       = "newMessage"
	EventMessagesRead     = "messagesRead"
	EventMessagesReadByMe = "messagesReadByMe"
	EventError            = "error"
)

// Both directions
const (
	EventTyping     = "typing"
	EventStopTyping = "stopTyping"
)

var ErrMalformed = errors.New("malformed event")

// WsEvent is the envelope for everything sent over the real-time channel.
type WsEvent struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// MessagesRead tells a sender that the reader has seen their messages.
// An empty MessageIDs means every message sent to the reader in that context.
type MessagesRead struct {
	ReaderID   model.UserID `json:"readerId"`
	BookID     string       `json:"bookId,omitempty"`
	MessageIDs []string     `json:"messageIds,omitempty"`
}

// MessagesReadByMe tells a reader's other sessions that a conversation was read.
type MessagesReadByMe struct {
	OtherUserID model.UserID `json:"otherUserId"`
	BookID      string       `json:"bookId,omitempty"`
}

// Typing is used for both typing and stopTyping.
type Typing struct {
	SenderID   model.UserID `json:"senderId,omitempty"`
	ReceiverID model.UserID `json:"receiverId,omitempty"`
	BookID     string       `json:"bookId,omitempty"`
}

// New marshals payload into an envelope.
func New(name string, payload any) (WsEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return WsEvent{}, fmt.Errorf("marshal %s payload: %w", name, err)
	}
	return WsEvent{Event: name, Payload: raw}, nil
}

// Must is New for payloads that cannot fail to marshal.
func Must(name string, payload any) WsEvent {
	ev, err := New(name, payload)
	if err != nil {
		panic(err)
	}
	return ev
}

// NewError builds an error event.
func NewError(code, message string) WsEvent {
	return Must(EventError, model.ErrorPayload{Code: code, Message: message})
}

func DecodeNewMessage(ev WsEvent) (model.Message, error) {
	var msg model.Message
	if err := decode(ev, &msg); err != nil {
		return msg, err
	}
	if !msg.Valid() {
		return msg, fmt.Errorf("%w: %s missing id or participants", ErrMalformed, ev.Event)
	}
	return msg, nil
}

func DecodeMessagesRead(ev WsEvent) (MessagesRead, error) {
	var p MessagesRead
	if err := decode(ev, &p); err != nil {
		return p, err
	}
	if p.ReaderID == "" {
		return p, fmt.Errorf("%w: %s missing readerId", ErrMalformed, ev.Event)
	}
	return p, nil
}

func DecodeMessagesReadByMe(ev WsEvent) (MessagesReadByMe, error) {
	var p MessagesReadByMe
	if err := decode(ev, &p); err != nil {
		return p, err
	}
	if p.OtherUserID == "" {
		return p, fmt.Errorf("%w: %s missing otherUserId", ErrMalformed, ev.Event)
	}
	return p, nil
}

// DecodeTyping decodes typing and stopTyping. Which id is required depends on
// direction, so callers validate it.
func DecodeTyping(ev WsEvent) (Typing, error) {
	var p Typing
	err := decode(ev, &p)
	return p, err
}

func DecodeError(ev WsEvent) (model.ErrorPayload, error) {
	var p model.ErrorPayload
	if err := decode(ev, &p); err != nil {
		return p, err
	}
	if p.Code == "" {
		return p, fmt.Errorf("%w: %s missing code", ErrMalformed, ev.Event)
	}
	return p, nil
}

func decode(ev WsEvent, v any) error {
	if len(ev.Payload) == 0 {
		return fmt.Errorf("%w: %s has no payload", ErrMalformed, ev.Event)
	}
	if err := json.Unmarshal(ev.Payload, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, ev.Event, err)
	}
	return nil
}
