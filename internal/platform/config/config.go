package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Store backends selectable with PORTAL_STORE_BACKEND.
const (
	StoreFile     = "file"
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Config captures everything the portal client needs at start-up.
type Config struct {
	LogLevel  string `split_words:"true" default:"info"`
	LogFormat string `split_words:"true" default:"text"`

	API   APIConfig
	Store StoreConfig
	Redis RedisConfig
	DB    DatabaseConfig
	Audit AuditConfig
	HTTP  HTTPConfig
}

// APIConfig points at the remote accounts/todo API.
type APIConfig struct {
	BaseURL string        `split_words:"true" default:"https://facul.subarashii.com.br"`
	Timeout time.Duration `split_words:"true" default:"10s"`

	// VerifyTimeout bounds the single token verification performed at start-up.
	VerifyTimeout time.Duration `split_words:"true" default:"5s"`
	LogoutTimeout time.Duration `split_words:"true" default:"5s"`

	// BreakerThreshold consecutive transport failures or 5xx answers make
	// further calls fail fast for BreakerCooldown.
	BreakerThreshold int           `split_words:"true" default:"5"`
	BreakerCooldown  time.Duration `split_words:"true" default:"30s"`
}

// StoreConfig selects where the token pair is persisted.
type StoreConfig struct {
	Backend      string        `split_words:"true" default:"file"`
	Path         string        `split_words:"true"`
	Namespace    string        `split_words:"true" default:"portal"`
	PollInterval time.Duration `split_words:"true" default:"1s"`
}

// RedisConfig mirrors go-redis pool settings.
type RedisConfig struct {
	URL          string        `split_words:"true"`
	PoolSize     int           `split_words:"true" default:"10"`
	MinIdleConns int           `split_words:"true" default:"1"`
	DialTimeout  time.Duration `split_words:"true" default:"5s"`
	ReadTimeout  time.Duration `split_words:"true" default:"3s"`
	WriteTimeout time.Duration `split_words:"true" default:"3s"`
}

// DatabaseConfig configures the pgx pool used by the postgres token store.
type DatabaseConfig struct {
	URL      string `split_words:"true"`
	MaxConns int32  `split_words:"true" default:"4"`
	MinConns int32  `split_words:"true" default:"0"`
}

// AuditConfig routes session audit events. Without brokers events go to the logger.
type AuditConfig struct {
	KafkaBrokers []string `split_words:"true"`
	KafkaTopic   string   `split_words:"true" default:"portal.session.audit"`
	BufferSize   int      `split_words:"true" default:"256"`
}

// HTTPConfig configures the local status surface started by `portal serve`.
type HTTPConfig struct {
	Addr string `split_words:"true" default:"127.0.0.1:8089"`
}

// FromEnv builds a Config from PORTAL_* environment variables so main stays lean.
// Nested sections are prefixed with their field name, e.g. PORTAL_API_BASE_URL
// or PORTAL_STORE_BACKEND.
func FromEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process("portal", &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = DefaultStorePath()
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field requirements envconfig cannot express.
func (c Config) Validate() error {
	switch c.Store.Backend {
	case StoreFile, StoreMemory:
	case StoreRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("PORTAL_REDIS_URL is required for the redis store")
		}
	case StorePostgres:
		if c.DB.URL == "" {
			return fmt.Errorf("PORTAL_DB_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.API.BaseURL == "" {
		return fmt.Errorf("PORTAL_API_BASE_URL is required")
	}
	return nil
}

// DefaultStorePath places the session file under the user config directory.
func DefaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "portal", "session.json")
}
