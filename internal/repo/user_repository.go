package repo

import (
	"context"
	"fmt"

	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/db"
	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// UserRepository resolves the display data shown next to a conversation.
type UserRepository interface {
	DisplayNames(ctx context.Context, ids []model.UserID) (map[model.UserID]string, error)
	BookTitles(ctx context.Context, ids []string) (map[string]string, error)
}

type userRepository struct {
	users  *db.Repository[model.User]
	books  *db.Repository[model.Book]
	logger *zap.Logger
}

func NewUserRepository(users *db.Repository[model.User], books *db.Repository[model.Book], logger *zap.Logger) UserRepository {
	return &userRepository{
		users:  users,
		books:  books,
		logger: logger,
	}
}

func (r *userRepository) DisplayNames(ctx context.Context, ids []model.UserID) (map[model.UserID]string, error) {
	names := make(map[model.UserID]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}

	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	hex := make([]string, len(ids))
	for i, id := range ids {
		hex[i] = string(id)
	}

	opts := options.Find().SetProjection(bson.M{"userName": 1, "firstName": 1, "lastName": 1})
	users, err := r.users.FindAll(ctx, db.NewFilter().ObjectIDs("_id", hex).Build(), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}

	for i := range users {
		names[model.UserID(users[i].ID.Hex())] = users[i].DisplayName()
	}

	r.logger.Debug("display names resolved",
		zap.Int("requested", len(ids)),
		zap.Int("found", len(names)),
	)
	return names, nil
}

func (r *userRepository) BookTitles(ctx context.Context, ids []string) (map[string]string, error) {
	titles := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return titles, nil
	}

	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	opts := options.Find().SetProjection(bson.M{"title": 1})
	books, err := r.books.FindAll(ctx, db.NewFilter().ObjectIDs("_id", ids).Build(), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load books: %w", err)
	}

	for i := range books {
		titles[books[i].ID.Hex()] = books[i].Title
	}
	return titles, nil
}
