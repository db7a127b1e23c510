package service

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/apperror"
	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/event"
	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/model"
	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/repo"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Publisher delivers an event to every live session of a user.
type Publisher interface {
	Publish(ctx context.Context, user model.UserID, ev event.WsEvent)
}

type ChatService interface {
	Conversations(ctx context.Context, me model.UserID) ([]model.Conversation, error)
	History(ctx context.Context, me model.UserID, key model.ConversationKey, page, pageSize int64) ([]model.Message, error)
	Send(ctx context.Context, me model.UserID, key model.ConversationKey, content string) (*model.Message, error)
	MarkAsRead(ctx context.Context, me model.UserID, key model.ConversationKey) (int64, error)
	UnreadCount(ctx context.Context, me model.UserID) (int64, error)
	RelayTyping(ctx context.Context, from model.UserID, t event.Typing, stop bool) error
}

type chatService struct {
	messages      repo.MessageRepository
	conversations repo.ConversationRepository
	users         repo.UserRepository
	publisher     Publisher
	logger        *zap.Logger
}

func NewChatService(
	messages repo.MessageRepository,
	conversations repo.ConversationRepository,
	users repo.UserRepository,
	publisher Publisher,
	logger *zap.Logger,
) ChatService {
	return &chatService{
		messages:      messages,
		conversations: conversations,
		users:         users,
		publisher:     publisher,
		logger:        logger,
	}
}

func (s *chatService) Conversations(ctx context.Context, me model.UserID) ([]model.Conversation, error) {
	if me == "" {
		return nil, apperror.Unauthorized("user not authenticated", nil)
	}

	cvs, err := s.conversations.ForUser(ctx, me)
	if err != nil {
		return nil, apperror.Internal("failed to get conversations", err)
	}

	s.enrich(ctx, cvs)
	model.SortByRecency(cvs)
	return cvs, nil
}

// enrich fills names and titles. Lookup failures degrade to blank labels.
func (s *chatService) enrich(ctx context.Context, cvs []model.Conversation) {
	if len(cvs) == 0 {
		return
	}

	userIDs := Unique(cvs, func(c model.Conversation) model.UserID { return c.OtherUserID })
	names, err := s.users.DisplayNames(ctx, userIDs)
	if err != nil {
		s.logger.Warn("failed to resolve display names", zap.Error(err))
	}

	withBook := Filter(cvs, func(c model.Conversation) bool { return c.BookID != "" })
	titles, err := s.users.BookTitles(ctx, Unique(withBook, func(c model.Conversation) string { return c.BookID }))
	if err != nil {
		s.logger.Warn("failed to resolve book titles", zap.Error(err))
	}

	for i := range cvs {
		cvs[i].OtherUserName = names[cvs[i].OtherUserID]
		if cvs[i].BookID != "" {
			cvs[i].BookTitle = titles[cvs[i].BookID]
		}
	}
}

func (s *chatService) History(ctx context.Context, me model.UserID, key model.ConversationKey, page, pageSize int64) ([]model.Message, error) {
	if err := validateKey(me, key); err != nil {
		return nil, err
	}
	if page < 1 {
		return nil, apperror.BadRequest("page must be 1 or greater", nil)
	}
	if pageSize <= 0 {
		pageSize = model.DefaultPageSize
	}
	if pageSize > model.MaxPageSize {
		pageSize = model.MaxPageSize
	}

	msgs, err := s.messages.History(ctx, me, key, page, pageSize)
	if err != nil {
		return nil, apperror.Internal("failed to get messages", err)
	}
	return msgs, nil
}

func (s *chatService) Send(ctx context.Context, me model.UserID, key model.ConversationKey, content string) (*model.Message, error) {
	if err := validateKey(me, key); err != nil {
		return nil, err
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperror.BadRequest("message content is required", nil)
	}
	if utf8.RuneCountInString(content) > model.MaxContentLength {
		return nil, apperror.BadRequest("message content is too long", nil)
	}

	msg := &model.Message{
		SenderID:   me,
		ReceiverID: key.OtherUserID,
		BookID:     key.BookID,
		Content:    content,
	}
	if err := s.messages.InsertMessage(ctx, msg); err != nil {
		return nil, apperror.Internal("failed to send message", err)
	}

	ev, err := event.New(event.EventNewMessage, msg)
	if err != nil {
		s.logger.Error("failed to encode new message event", zap.Error(err))
		return msg, nil
	}

	// Both parties get the echo; the sender's views reconcile it by id.
	s.publisher.Publish(ctx, key.OtherUserID, ev)
	s.publisher.Publish(ctx, me, ev)

	return msg, nil
}

func (s *chatService) MarkAsRead(ctx context.Context, me model.UserID, key model.ConversationKey) (int64, error) {
	if err := validateKey(me, key); err != nil {
		return 0, err
	}

	ids, err := s.messages.UnreadIDs(ctx, me, key)
	if err != nil {
		return 0, apperror.Internal("failed to mark messages as read", err)
	}

	modified, err := s.messages.MarkRead(ctx, ids)
	if err != nil {
		return 0, apperror.Internal("failed to mark messages as read", err)
	}

	if modified > 0 {
		s.publisher.Publish(ctx, key.OtherUserID, event.Must(event.EventMessagesRead, event.MessagesRead{
			ReaderID:   me,
			BookID:     key.BookID,
			MessageIDs: hexIDs(ids),
		}))
	}

	s.publisher.Publish(ctx, me, event.Must(event.EventMessagesReadByMe, event.MessagesReadByMe{
		OtherUserID: key.OtherUserID,
		BookID:      key.BookID,
	}))

	s.logger.Debug("conversation marked read",
		zap.String("user_id", me.String()),
		zap.String("conversation", key.String()),
		zap.Int64("modified", modified),
	)
	return modified, nil
}

func (s *chatService) UnreadCount(ctx context.Context, me model.UserID) (int64, error) {
	if me == "" {
		return 0, apperror.Unauthorized("user not authenticated", nil)
	}
	total, err := s.conversations.UnreadTotal(ctx, me)
	if err != nil {
		return 0, apperror.Internal("failed to count unread messages", err)
	}
	return total, nil
}

// RelayTyping forwards a typing signal. The sender is always the
// authenticated user, whatever the payload claims.
func (s *chatService) RelayTyping(ctx context.Context, from model.UserID, t event.Typing, stop bool) error {
	if from == "" {
		return apperror.Unauthorized("user not authenticated", nil)
	}
	if t.ReceiverID == "" {
		return apperror.BadRequest("receiverId is required", nil)
	}
	if t.ReceiverID == from {
		return apperror.BadRequest("cannot signal typing to yourself", nil)
	}

	name := event.EventTyping
	if stop {
		name = event.EventStopTyping
	}

	s.publisher.Publish(ctx, t.ReceiverID, event.Must(name, event.Typing{
		SenderID:   from,
		ReceiverID: t.ReceiverID,
		BookID:     t.BookID,
	}))
	return nil
}

func validateKey(me model.UserID, key model.ConversationKey) error {
	if me == "" {
		return apperror.Unauthorized("user not authenticated", nil)
	}
	if key.IsZero() {
		return apperror.BadRequest("otherUserId is required", repo.ErrInvalidConversation)
	}
	if key.OtherUserID == me {
		return apperror.BadRequest("cannot chat with yourself", nil)
	}
	return nil
}

func hexIDs(ids []primitive.ObjectID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.Hex()
	}
	return out
}

// IsClientError reports whether err is the caller's fault.
func IsClientError(err error) bool {
	var appErr *apperror.AppError
	return errors.As(err, &appErr) && appErr.Status < 500
}
