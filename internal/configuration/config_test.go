package configuration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const minimalConfig = `{
  "mongo": {"uri": "mongodb://localhost:27017", "database": "pustakbazzar"},
  "server": {"app_port": 8080, "socket_port": 8081},
  "auth": {"jwt_secret": "s3cret"}
}`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{"MONGO_URI", "REDIS_ADDR", "JWT_SECRET", "ENVIRONMENT", "ALLOWED_ORIGINS", "APP_PORT", "SOCKET_PORT"} {
		t.Setenv(name, "")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, "messages", cfg.ChatDatabase.MessagesCollection)
	assert.Equal(t, "users", cfg.ChatDatabase.UsersCollection)
	assert.Equal(t, "books", cfg.ChatDatabase.BooksCollection)
	assert.Equal(t, "ws", cfg.ChatDatabase.SocketRoute)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "chat:events", cfg.Redis.Channel)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL())
	assert.Equal(t, "pustakbazzar", cfg.Auth.Issuer)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("MONGO_URI", "mongodb://mongo:27017")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("APP_PORT", "9090")

	cfg, err := LoadConfig(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "mongodb://mongo:27017", cfg.ChatDatabase.Uri)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 9090, cfg.Server.AppPort)
	assert.Equal(t, 8081, cfg.Server.SocketPort)
}

func TestLoadConfig_BadPortEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("SOCKET_PORT", "eighty")

	_, err := LoadConfig(writeConfig(t, minimalConfig))
	assert.ErrorContains(t, err, "SOCKET_PORT must be a number")
}

func TestLoadConfig_FileErrors(t *testing.T) {
	clearEnv(t)

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "read config")

	_, err = LoadConfig(writeConfig(t, "{not json"))
	assert.ErrorContains(t, err, "parse config")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			ChatDatabase: MongoConfig{Uri: "mongodb://localhost", Database: "pustakbazzar"},
			Server:       ServerConfig{AppPort: 8080, SocketPort: 8081, AllowedOrigins: []string{"http://localhost:5173"}},
			Auth:         AuthConfig{JWTSecret: "s3cret"},
			Environment:  EnvDevelopment,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr []string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "missing mongo",
			mutate:  func(c *Config) { c.ChatDatabase = MongoConfig{} },
			wantErr: []string{"mongo.uri is required", "mongo.database is required"},
		},
		{
			name:    "same ports",
			mutate:  func(c *Config) { c.Server.SocketPort = c.Server.AppPort },
			wantErr: []string{"server.app_port must differ from SocketPort"},
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.SocketPort = 70000 },
			wantErr: []string{"server.socket_port must not exceed 65535"},
		},
		{
			name:    "blank origin",
			mutate:  func(c *Config) { c.Server.AllowedOrigins = []string{""} },
			wantErr: []string{"server.allowed_origins[0] is required"},
		},
		{
			name:    "unknown environment",
			mutate:  func(c *Config) { c.Environment = "staging" },
			wantErr: []string{"environment must be one of: development production"},
		},
		{
			name:    "missing secret",
			mutate:  func(c *Config) { c.Auth.JWTSecret = "" },
			wantErr: []string{"auth.jwt_secret is required"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if len(tt.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, want := range tt.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestConfigPath(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	assert.Equal(t, "config.dev.json", ConfigPath())

	t.Setenv("CONFIG_PATH", "/etc/chat/config.json")
	assert.Equal(t, "/etc/chat/config.json", ConfigPath())
}

func TestNewLogger(t *testing.T) {
	dev, err := NewLogger(EnvDevelopment)
	require.NoError(t, err)
	assert.True(t, dev.Core().Enabled(zap.DebugLevel), "development logs debug")

	prod, err := NewLogger(EnvProduction)
	require.NoError(t, err)
	assert.False(t, prod.Core().Enabled(zap.DebugLevel))
}
