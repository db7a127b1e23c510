package repo

import (
	"context"
	"fmt"

	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/db"
	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/model"

	"go.uber.org/zap"
)

type conversationRepository struct {
	messages *db.Repository[model.Message]
	logger   *zap.Logger
}

// ConversationRepository derives conversation summaries from the messages
// collection. Nothing here writes.
type ConversationRepository interface {
	ForUser(ctx context.Context, me model.UserID) ([]model.Conversation, error)
	UnreadTotal(ctx context.Context, me model.UserID) (int64, error)
}

func NewConversationRepository(messages *db.Repository[model.Message], logger *zap.Logger) ConversationRepository {
	return &conversationRepository{
		messages: messages,
		logger:   logger,
	}
}

// ForUser aggregates one summary per (counterparty, book), newest first.
func (r *conversationRepository) ForUser(ctx context.Context, me model.UserID) ([]model.Conversation, error) {
	if me == "" {
		return nil, ErrInvalidUser
	}

	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	var conversations []model.Conversation
	err := retry(ctx, r.logger, "aggregate conversations", func() error {
		var err error
		conversations, err = db.Aggregate[model.Conversation](ctx, r.messages, conversationPipeline(me))
		return err
	})
	if err != nil {
		r.logger.Error("failed to aggregate conversations",
			zap.String("user_id", me.String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to get conversations: %w", err)
	}

	r.logger.Debug("conversations retrieved",
		zap.String("user_id", me.String()),
		zap.Int("count", len(conversations)),
	)
	return conversations, nil
}

// UnreadTotal counts every unread message addressed to me.
func (r *conversationRepository) UnreadTotal(ctx context.Context, me model.UserID) (int64, error) {
	if me == "" {
		return 0, ErrInvalidUser
	}

	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().
		Eq(fieldReceiverID, string(me)).
		Eq(fieldRead, false).
		Build()

	var total int64
	err := retry(ctx, r.logger, "count unread", func() error {
		var err error
		total, err = r.messages.Count(ctx, filter)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return total, nil
}
