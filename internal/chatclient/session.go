package chatclient

import (
	"context"
	"time"

	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/model"

	"go.uber.org/zap"
)

type SessionOptions struct {
	PageSize       int
	TypingTimeout  time.Duration
	Measure        Measure
	ViewportHeight float64
	Logger         *zap.Logger
	OnChange       func()
}

// Session ties one user's conversation list and chat view to a shared API
// and event bus. Everything a session touches is owned by it.
type Session struct {
	Me   model.UserID
	Bus  *Bus
	List *ConversationList
	View *ChatView
}

func NewSession(me model.UserID, api API, bus *Bus, emitter Emitter, opts SessionOptions) *Session {
	list := NewConversationList(me, api, bus, ListOptions{
		Logger:   opts.Logger,
		OnChange: opts.OnChange,
	})
	view := NewChatView(me, api, bus, emitter, ViewOptions{
		PageSize:       opts.PageSize,
		TypingTimeout:  opts.TypingTimeout,
		Measure:        opts.Measure,
		ViewportHeight: opts.ViewportHeight,
		Logger:         opts.Logger,
		OnChange:       opts.OnChange,
		OnRead:         list.ClearUnread,
	})

	return &Session{
		Me:   me,
		Bus:  bus,
		List: list,
		View: view,
	}
}

// Open selects key in the list and loads it into the view.
func (s *Session) Open(ctx context.Context, key model.ConversationKey) error {
	s.List.Select(key)
	return s.View.Open(ctx, key)
}

// SetVisible propagates page focus to both components.
func (s *Session) SetVisible(ctx context.Context, visible bool) error {
	s.List.SetVisible(visible)
	return s.View.SetVisible(ctx, visible)
}

func (s *Session) Close() {
	s.View.Close()
	s.List.Close()
}
