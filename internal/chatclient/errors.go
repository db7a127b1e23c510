package chatclient

import (
	"errors"
	"fmt"
)

// Op names the operation a Failure came from.
type Op string

const (
	OpLoadConversations Op = "load conversations"
	OpLoadHistory       Op = "load history"
	OpLoadOlder         Op = "load older messages"
	OpSend              Op = "send message"
	OpMarkRead          Op = "mark as read"
)

var (
	ErrNotConnected = errors.New("realtime channel not connected")
	ErrClosed       = errors.New("view closed")
)

// Failure is a failed network operation the user can retry.
type Failure struct {
	Op  Op
	Err error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Op, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// APIError is a non-success response from the chat API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("chat api: status %d", e.Status)
	}
	return fmt.Sprintf("chat api: status %d: %s", e.Status, e.Message)
}
