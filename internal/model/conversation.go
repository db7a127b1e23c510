package model

import (
	"sort"
	"time"
)

// ConversationKey identifies a conversation from one user's point of view.
// The same counterparty with a different book context is a different conversation.
type ConversationKey struct {
	OtherUserID UserID `json:"otherUserId"`
	BookID      string `json:"bookId,omitempty"`
}

// KeyFor derives the conversation a message belongs to for user me.
func KeyFor(me UserID, msg *Message) ConversationKey {
	other := msg.SenderID
	if msg.SenderID == me {
		other = msg.ReceiverID
	}
	return ConversationKey{OtherUserID: other, BookID: msg.BookID}
}

// IsZero reports whether no counterparty is set.
func (k ConversationKey) IsZero() bool {
	return k.OtherUserID == ""
}

func (k ConversationKey) String() string {
	if k.BookID == "" {
		return string(k.OtherUserID)
	}
	return string(k.OtherUserID) + "/" + k.BookID
}

// Conversation is a derived summary of the messages exchanged with one
// counterparty in one book context. It is never persisted.
type Conversation struct {
	OtherUserID          UserID    `json:"otherUserId" bson:"other_user_id"`
	BookID               string    `json:"bookId,omitempty" bson:"book_id"`
	OtherUserName        string    `json:"otherUserName" bson:"-"`
	BookTitle            string    `json:"bookTitle,omitempty" bson:"-"`
	LastMessage          string    `json:"lastMessage" bson:"last_message"`
	LastMessageTimestamp time.Time `json:"lastMessageTimestamp" bson:"last_message_at"`
	LastSenderID         UserID    `json:"lastSenderId" bson:"last_sender_id"`
	UnreadCount          int       `json:"unreadCount" bson:"unread_count"`
}

// Key returns the conversation identity.
func (c *Conversation) Key() ConversationKey {
	return ConversationKey{OtherUserID: c.OtherUserID, BookID: c.BookID}
}

// Apply folds a message into the summary's last-message fields.
// Older messages never overwrite a newer preview.
func (c *Conversation) Apply(msg *Message) {
	if msg.CreatedAt.Before(c.LastMessageTimestamp) {
		return
	}
	c.LastMessage = msg.Content
	c.LastMessageTimestamp = msg.CreatedAt
	c.LastSenderID = msg.SenderID
}

// SortByRecency orders conversations newest first.
func SortByRecency(cs []Conversation) {
	sort.SliceStable(cs, func(i, j int) bool {
		return cs[i].LastMessageTimestamp.After(cs[j].LastMessageTimestamp)
	})
}
