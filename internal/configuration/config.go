package configuration

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	defaultConfigPath = "config.dev.json"
)

type MongoConfig struct {
	Uri                string `json:"uri" validate:"required"`
	Database           string `json:"database" validate:"required"`
	MessagesCollection string `json:"messagesCollection"`
	UsersCollection    string `json:"usersCollection"`
	BooksCollection    string `json:"booksCollection"`
	SocketRoute        string `json:"socketRoute"`
}

type ServerConfig struct {
	AppPort        int      `json:"app_port" validate:"min=1,max=65535,nefield=SocketPort"`
	SocketPort     int      `json:"socket_port" validate:"min=1,max=65535"`
	AllowedOrigins []string `json:"allowed_origins" validate:"min=1,dive,required"`
}

// RedisConfig enables the cross-instance relay when Addr is set.
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Channel  string `json:"channel"`
}

type AuthConfig struct {
	JWTSecret       string `json:"jwt_secret" validate:"required"`
	Issuer          string `json:"issuer"`
	TokenTTLMinutes int    `json:"token_ttl_minutes"`
}

func (a AuthConfig) TokenTTL() time.Duration {
	return time.Duration(a.TokenTTLMinutes) * time.Minute
}

type Config struct {
	ChatDatabase MongoConfig  `json:"mongo"`
	Server       ServerConfig `json:"server"`
	Redis        RedisConfig  `json:"redis"`
	Auth         AuthConfig   `json:"auth"`
	Environment  string       `json:"environment" validate:"oneof=development production"`
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == EnvDevelopment
}

// ConfigPath returns CONFIG_PATH or the development default.
func ConfigPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return defaultConfigPath
}

// LoadConfig reads the JSON file at configPath, applies environment
// overrides and validates the result. A missing .env file is not an error.
func LoadConfig(configPath string) (*Config, error) {
	_ = godotenv.Load()

	file, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", configPath, err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", configPath, err)
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("MONGO_URI"); v != "" {
		c.ChatDatabase.Uri = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("ENVIRONMENT"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = splitList(v)
	}

	for name, dst := range map[string]*int{
		"APP_PORT":    &c.Server.AppPort,
		"SOCKET_PORT": &c.Server.SocketPort,
	} {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s must be a number: %w", name, err)
		}
		*dst = port
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Environment == "" {
		c.Environment = EnvDevelopment
	}
	if c.ChatDatabase.MessagesCollection == "" {
		c.ChatDatabase.MessagesCollection = "messages"
	}
	if c.ChatDatabase.UsersCollection == "" {
		c.ChatDatabase.UsersCollection = "users"
	}
	if c.ChatDatabase.BooksCollection == "" {
		c.ChatDatabase.BooksCollection = "books"
	}
	if c.ChatDatabase.SocketRoute == "" {
		c.ChatDatabase.SocketRoute = "ws"
	}
	c.ChatDatabase.SocketRoute = strings.TrimPrefix(c.ChatDatabase.SocketRoute, "/")
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"http://localhost:5173"}
	}
	if c.Redis.Channel == "" {
		c.Redis.Channel = "chat:events"
	}
	if c.Auth.TokenTTLMinutes <= 0 {
		c.Auth.TokenTTLMinutes = 60 * 24
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "pustakbazzar"
	}
}

var validate = func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}()

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("invalid config: %w", err)
	}

	errs := make([]error, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		errs = append(errs, fmt.Errorf("%s %s", configPath(fe), friendlyMessage(fe)))
	}
	return fmt.Errorf("invalid config: %w", errors.Join(errs...))
}

// configPath turns "Config.mongo.uri" into "mongo.uri".
func configPath(fe validator.FieldError) string {
	_, path, found := strings.Cut(fe.Namespace(), ".")
	if !found {
		return fe.Field()
	}
	return path
}

func friendlyMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must not exceed " + fe.Param()
	case "nefield":
		return "must differ from " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return "is invalid"
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
