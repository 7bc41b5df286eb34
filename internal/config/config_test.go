package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoadDefaultsWithEnv(t *testing.T) {
	t.Setenv("OWL_AUTH_JWT_SECRET", testSecret)
	t.Setenv("OWL_BOT_ENABLED", "false")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "mongo", cfg.Database.Driver)
	assert.Equal(t, 30*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, 5*time.Second, cfg.Backend.HealthTimeout)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenExpiration)
	assert.Equal(t, 3000, cfg.Upload.PreviewLength)
	assert.Equal(t, 4000, cfg.OCR.PreviewLength)
	assert.Equal(t, 24*time.Hour, cfg.State.TTL)
	assert.Equal(t, 10, cfg.Bot.SearchLimit)
	assert.Equal(t, "none", cfg.Storage.Backend)
	assert.False(t, cfg.Bot.Enabled)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
database:
  driver: sqlite
  path: /tmp/owl.db
backend:
  base_url: http://vfs:9000
auth:
  jwt_secret: ` + testSecret + `
bot:
  token: "123:abc"
storage:
  backend: s3
  s3:
    bucket: artifacts
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.Database.IsEmbedded())
	assert.Equal(t, "/tmp/owl.db", cfg.Database.Path)
	assert.Equal(t, "http://vfs:9000", cfg.Backend.BaseURL)
	assert.Equal(t, "123:abc", cfg.Bot.Token)
	assert.Equal(t, "artifacts", cfg.Storage.S3.Bucket)
}

func TestLoadBotTokenFallback(t *testing.T) {
	t.Setenv("OWL_AUTH_JWT_SECRET", testSecret)
	t.Setenv("BOT_TOKEN", "42:token")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "42:token", cfg.Bot.Token)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:   ServerConfig{Enabled: true, Port: 8000},
			Database: DatabaseConfig{Driver: "mongo", MongoURI: "mongodb://localhost", MongoDatabase: "owl"},
			Backend:  BackendConfig{BaseURL: "http://localhost", Timeout: time.Second, HealthTimeout: time.Second},
			Auth:     AuthConfig{JWTSecret: testSecret, TokenExpiration: time.Hour},
			Bot:      BotConfig{Enabled: false, Workers: 1},
			Upload:   UploadConfig{MaxFileSize: 1024},
			Storage:  StorageConfig{Backend: "none"},
			Logging:  LoggingConfig{Level: "info"},
		}
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"bad driver", func(c *Config) { c.Database.Driver = "mysql" }, "database.driver"},
		{"postgres without host", func(c *Config) { c.Database.Driver = "postgres" }, "database.host"},
		{"short secret", func(c *Config) { c.Auth.JWTSecret = "short" }, "auth.jwt_secret"},
		{"bot without token", func(c *Config) { c.Bot.Enabled = true }, "bot.token"},
		{"nothing enabled", func(c *Config) { c.Server.Enabled = false }, "at least one"},
		{"huge uploads", func(c *Config) { c.Upload.MaxFileSize = 200 * 1024 * 1024 }, "upload.max_file_size"},
		{"s3 without bucket", func(c *Config) { c.Storage.Backend = "s3" }, "storage.s3.bucket"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestAddrHelpers(t *testing.T) {
	assert.Equal(t, "0.0.0.0:8000", ServerConfig{Host: "0.0.0.0", Port: 8000}.Addr())
	assert.Equal(t, "redis:6379", RedisConfig{Host: "redis", Port: 6379}.Addr())
	assert.Contains(t, DatabaseConfig{Host: "db", Port: 5432, User: "u", Database: "d", SSLMode: "disable"}.DSN(), "host=db port=5432")
}
