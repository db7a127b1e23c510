package configuration

import (
	"context"
	"fmt"
	"time"

	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/auth"
	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/db"
	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/handler"
	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/hub"
	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/model"
	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/repo"
	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/service"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type Container struct {
	ChatHandler    handler.ChatHandler
	MonitorHandler handler.MonitorHandler
	Hub            *hub.Hub
	Relay          *hub.Relay
	Tokens         *auth.TokenManager
	Config         Config
	Logger         *zap.Logger

	// private - for cleanup
	mongoClient *mongo.Database
	redisClient *redis.Client
	relayCancel context.CancelFunc
}

func NewLogger(environment string) (*zap.Logger, error) {
	if environment == EnvDevelopment {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func BuildContainer() (*Container, error) {
	config, err := LoadConfig(ConfigPath())
	if err != nil {
		return nil, err
	}

	logger, err := NewLogger(config.Environment)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	logger.Info("config loaded",
		zap.String("environment", config.Environment),
		zap.String("database", config.ChatDatabase.Database),
		zap.Int("app_port", config.Server.AppPort),
		zap.Int("socket_port", config.Server.SocketPort),
		zap.Bool("redis", config.Redis.Addr != ""),
	)

	con, err := db.OpenConnection(config.ChatDatabase.Uri, config.ChatDatabase.Database)
	if err != nil {
		return nil, err
	}

	c := &Container{
		Config:      *config,
		Logger:      logger,
		mongoClient: con,
		Tokens:      auth.NewTokenManager(config.Auth.JWTSecret, config.Auth.Issuer, config.Auth.TokenTTL()),
	}

	messages := db.NewRepository[model.Message](con, config.ChatDatabase.MessagesCollection)
	users := db.NewRepository[model.User](con, config.ChatDatabase.UsersCollection)
	books := db.NewRepository[model.Book](con, config.ChatDatabase.BooksCollection)

	messageRepo := repo.NewMessageRepository(messages, logger)
	conversationRepo := repo.NewConversationRepository(messages, logger)
	userRepo := repo.NewUserRepository(users, books, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := messageRepo.EnsureIndexes(ctx); err != nil {
		logger.Warn("failed to ensure message indexes", zap.Error(err))
	}

	c.Hub = hub.NewHub(logger, config.Server.AllowedOrigins)

	var publisher service.Publisher = c.Hub
	if config.Redis.Addr != "" {
		c.redisClient = redis.NewClient(&redis.Options{
			Addr:     config.Redis.Addr,
			Password: config.Redis.Password,
			DB:       config.Redis.DB,
		})
		if err := c.redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unavailable, events stay on this instance", zap.Error(err))
			_ = c.redisClient.Close()
			c.redisClient = nil
		} else {
			c.Relay = hub.NewRelay(c.redisClient, c.Hub, config.Redis.Channel, logger)
			publisher = c.Relay
		}
	}

	chatService := service.NewChatService(messageRepo, conversationRepo, userRepo, publisher, logger)
	c.Hub.SetHandler(chatService)

	c.ChatHandler = handler.NewChatHandler(chatService, logger)
	c.MonitorHandler = handler.NewMonitorHandler(hub.NewMonitorService(c.Hub, c.Relay))

	if c.Relay != nil {
		relayCtx, relayCancel := context.WithCancel(context.Background())
		c.relayCancel = relayCancel
		go func() {
			if err := c.Relay.Run(relayCtx); err != nil {
				logger.Error("relay stopped, delivering events on this instance only", zap.Error(err))
			}
		}()
	}

	return c, nil
}

// Close gracefully shuts down all connections
func (c *Container) Close() error {
	if c.relayCancel != nil {
		c.relayCancel()
	}

	// Stop the hub first (closes all WebSocket connections)
	if c.Hub != nil {
		c.Hub.Stop()
	}

	if c.redisClient != nil {
		if err := c.redisClient.Close(); err != nil {
			c.Logger.Warn("failed to close redis client", zap.Error(err))
		}
	}

	// Close MongoDB connection pool
	if c.mongoClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.mongoClient.Client().Disconnect(ctx); err != nil {
			return fmt.Errorf("failed to close MongoDB connection: %w", err)
		}
	}

	if c.Logger != nil {
		_ = c.Logger.Sync()
	}
	return nil
}
