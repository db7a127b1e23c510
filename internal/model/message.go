package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	// MaxContentLength is the longest message body accepted, in runes.
	MaxContentLength = 4000

	// DefaultPageSize is the history page size used by chat views.
	DefaultPageSize = 20

	// MaxPageSize caps history requests.
	MaxPageSize = 100
)

// Message represents a chat message between two users in MongoDB.
// Only Read ever changes after insertion, and only from false to true.
type Message struct {
	ID         primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	SenderID   UserID             `json:"senderId" bson:"sender_id"`
	ReceiverID UserID             `json:"receiverId" bson:"receiver_id"`
	BookID     string             `json:"bookId,omitempty" bson:"book_id"`
	Content    string             `json:"content" bson:"content"`
	CreatedAt  time.Time          `json:"timestamp" bson:"created_at"`
	Read       bool               `json:"read" bson:"read"`
}

// IsFrom reports whether the message was authored by user.
func (m *Message) IsFrom(user UserID) bool {
	return m.SenderID == user
}

// Valid reports whether the message carries the fields every consumer relies on.
func (m *Message) Valid() bool {
	return !m.ID.IsZero() && m.SenderID != "" && m.ReceiverID != ""
}

// Before orders messages by server timestamp, breaking ties by id.
func (m *Message) Before(other *Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.ID.Hex() < other.ID.Hex()
}

// ErrorPayload represents an error response sent to client via WebSocket
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
