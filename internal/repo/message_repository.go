package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/db"
	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

var (
	ErrInvalidMessage      = errors.New("invalid message: message cannot be nil")
	ErrInvalidConversation = errors.New("invalid conversation: counterparty cannot be empty")
	ErrInvalidUser         = errors.New("invalid user: id cannot be empty")
	ErrOperationTimeout    = errors.New("operation timeout exceeded")
)

const (
	// Timeouts
	defaultWriteTimeout = 5 * time.Second
	defaultReadTimeout  = 30 * time.Second

	// Retry configuration
	maxRetries     = 3
	baseRetryDelay = 100 * time.Millisecond
	maxRetryDelay  = 2 * time.Second
)

type messageRepository struct {
	mongoRepo *db.Repository[model.Message]
	logger    *zap.Logger
	now       func() time.Time
}

// MessageRepository is the Message Store.
type MessageRepository interface {
	InsertMessage(ctx context.Context, msg *model.Message) error
	History(ctx context.Context, me model.UserID, key model.ConversationKey, page, pageSize int64) ([]model.Message, error)
	UnreadIDs(ctx context.Context, reader model.UserID, key model.ConversationKey) ([]primitive.ObjectID, error)
	MarkRead(ctx context.Context, ids []primitive.ObjectID) (int64, error)
	EnsureIndexes(ctx context.Context) error
}

func NewMessageRepository(repo *db.Repository[model.Message], logger *zap.Logger) MessageRepository {
	return &messageRepository{
		mongoRepo: repo,
		logger:    logger,
		now:       time.Now,
	}
}

// -----------------------------------------------------------------------------
// InsertMessage - assigns id, timestamp and unread state, then persists
// -----------------------------------------------------------------------------

func (m *messageRepository) InsertMessage(ctx context.Context, msg *model.Message) error {
	if err := m.validateMessage(msg); err != nil {
		return err
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	// The id is assigned before the first attempt so a retried insert that
	// actually landed fails on the duplicate key instead of writing twice.
	msg.ID = primitive.NewObjectID()
	msg.CreatedAt = m.now().UTC().Truncate(time.Millisecond)
	msg.Read = false

	err := retry(ctx, m.logger, "insert message", func() error {
		_, err := m.mongoRepo.Create(ctx, *msg)
		return err
	})
	if mongo.IsDuplicateKeyError(err) {
		m.logger.Warn("message already persisted by an earlier attempt",
			zap.String("message_id", msg.ID.Hex()),
		)
		err = nil
	}
	if err != nil {
		m.logger.Error("failed to insert message after all retries",
			zap.Error(err),
			zap.String("sender_id", msg.SenderID.String()),
			zap.String("receiver_id", msg.ReceiverID.String()),
		)
		return fmt.Errorf("insert message failed: %w", err)
	}

	m.logger.Info("message inserted successfully",
		zap.String("message_id", msg.ID.Hex()),
		zap.String("sender_id", msg.SenderID.String()),
		zap.String("receiver_id", msg.ReceiverID.String()),
		zap.String("book_id", msg.BookID),
	)
	return nil
}

// -----------------------------------------------------------------------------
// History - one page of a conversation, newest first
// -----------------------------------------------------------------------------

func (m *messageRepository) History(ctx context.Context, me model.UserID, key model.ConversationKey, page, pageSize int64) ([]model.Message, error) {
	if me == "" {
		return nil, ErrInvalidUser
	}
	if key.IsZero() {
		return nil, ErrInvalidConversation
	}

	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := conversationFilter(me, key)
	params := db.PaginationParams{
		Page:     page,
		PageSize: pageSize,
		SortBy:   fieldCreatedAt,
		SortDesc: true,
	}.Normalize()

	m.logger.Debug("fetching history",
		zap.String("user_id", me.String()),
		zap.String("conversation", key.String()),
		zap.Int64("page", params.Page),
		zap.Int64("page_size", params.PageSize),
	)

	var result []model.Message
	err := retry(ctx, m.logger, "fetch history", func() error {
		var err error
		result, err = m.mongoRepo.FindPage(ctx, filter, params)
		return err
	})
	if err != nil {
		return nil, m.handleReadError(err, key)
	}

	m.logger.Debug("history fetched",
		zap.String("conversation", key.String()),
		zap.Int("count", len(result)),
	)
	return result, nil
}

// -----------------------------------------------------------------------------
// Read state
// -----------------------------------------------------------------------------

func (m *messageRepository) UnreadIDs(ctx context.Context, reader model.UserID, key model.ConversationKey) ([]primitive.ObjectID, error) {
	if reader == "" {
		return nil, ErrInvalidUser
	}
	if key.IsZero() {
		return nil, ErrInvalidConversation
	}

	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	opts := options.Find().SetProjection(bson.M{fieldID: 1})

	var unread []model.Message
	err := retry(ctx, m.logger, "find unread", func() error {
		var err error
		unread, err = m.mongoRepo.FindAll(ctx, unreadFilter(reader, key), opts)
		return err
	})
	if err != nil {
		return nil, m.handleReadError(err, key)
	}

	ids := make([]primitive.ObjectID, 0, len(unread))
	for _, msg := range unread {
		ids = append(ids, msg.ID)
	}
	return ids, nil
}

func (m *messageRepository) MarkRead(ctx context.Context, ids []primitive.ObjectID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	var modified int64
	err := retry(ctx, m.logger, "mark read", func() error {
		res, err := m.mongoRepo.UpdateMany(ctx, markReadFilter(ids), bson.M{fieldRead: true})
		if err != nil {
			return err
		}
		modified = res.ModifiedCount
		return nil
	})
	if err != nil {
		m.logger.Error("failed to mark messages read", zap.Error(err), zap.Int("ids", len(ids)))
		return 0, fmt.Errorf("mark read failed: %w", err)
	}

	m.logger.Debug("messages marked read",
		zap.Int("requested", len(ids)),
		zap.Int64("modified", modified),
	)
	return modified, nil
}

func (m *messageRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()
	if err := m.mongoRepo.EnsureIndexes(ctx, messageIndexes()); err != nil {
		return fmt.Errorf("create message indexes: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Private Helper Methods
// -----------------------------------------------------------------------------

func (m *messageRepository) validateMessage(msg *model.Message) error {
	if msg == nil {
		return ErrInvalidMessage
	}
	if msg.SenderID == "" || msg.ReceiverID == "" {
		return ErrInvalidConversation
	}
	return nil
}

func (m *messageRepository) handleReadError(err error, key model.ConversationKey) error {
	if errors.Is(err, context.DeadlineExceeded) {
		m.logger.Error("read timeout", zap.String("conversation", key.String()))
		return ErrOperationTimeout
	}

	if errors.Is(err, context.Canceled) {
		m.logger.Debug("read cancelled", zap.String("conversation", key.String()))
		return err
	}

	m.logger.Error("read failed", zap.Error(err), zap.String("conversation", key.String()))
	return fmt.Errorf("read messages failed: %w", err)
}
