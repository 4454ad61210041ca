package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Session store backends.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Results sink backends.
const (
	SinkMemory   = "memory"
	SinkPostgres = "postgres"
	SinkSQLite   = "sqlite"
	SinkMongo    = "mongo"
)

// Auth modes.
const (
	AuthDevelopment = "development"
	AuthJWT         = "jwt"
)

type Config struct {
	Port              string        `mapstructure:"PORT"`
	Env               string        `mapstructure:"ENV"`
	AuthMode          string        `mapstructure:"AUTH_MODE"`
	AuthSigningKey    string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer        string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience      string        `mapstructure:"AUTH_AUDIENCE"`
	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	DBMaxConns        int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL          string        `mapstructure:"REDIS_URL"`
	SessionStore      string        `mapstructure:"SESSION_STORE"`
	SessionTTL        time.Duration `mapstructure:"SESSION_TTL"`
	ResultsSink       string        `mapstructure:"RESULTS_SINK"`
	SQLitePath        string        `mapstructure:"SQLITE_PATH"`
	MongoURL          string        `mapstructure:"MONGO_URL"`
	MongoDatabase     string        `mapstructure:"MONGO_DATABASE"`
	CatalogDir        string        `mapstructure:"CATALOG_DIR"`
	CatalogVersion    string        `mapstructure:"CATALOG_VERSION"`
	CatalogWatch      bool          `mapstructure:"CATALOG_WATCH"`
	PreRouting        bool          `mapstructure:"PRE_ROUTING"`
	SinkMaxAttempts   int           `mapstructure:"SINK_MAX_ATTEMPTS"`
	SinkRetryInterval time.Duration `mapstructure:"SINK_RETRY_INTERVAL"`
	AlertWebhookURL   string        `mapstructure:"ALERT_WEBHOOK_URL"`
	AlertWebhookKey   string        `mapstructure:"ALERT_WEBHOOK_SECRET"`
}

var keys = []string{
	"PORT", "ENV", "AUTH_MODE", "AUTH_SIGNING_KEY", "AUTH_ISSUER", "AUTH_AUDIENCE",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "REDIS_URL",
	"SESSION_STORE", "SESSION_TTL", "RESULTS_SINK", "SQLITE_PATH",
	"MONGO_URL", "MONGO_DATABASE", "CATALOG_DIR", "CATALOG_VERSION",
	"CATALOG_WATCH", "PRE_ROUTING", "SINK_MAX_ATTEMPTS", "SINK_RETRY_INTERVAL",
	"ALERT_WEBHOOK_URL", "ALERT_WEBHOOK_SECRET",
}

// Load reads configuration from the environment and an optional .env file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("AUTH_MODE", "") // inferred from ENV
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("SESSION_STORE", StoreMemory)
	v.SetDefault("SESSION_TTL", "24h")
	v.SetDefault("RESULTS_SINK", SinkMemory)
	v.SetDefault("SQLITE_PATH", "./data/onboard.db")
	v.SetDefault("MONGO_DATABASE", "onboard")
	v.SetDefault("CATALOG_WATCH", false)
	v.SetDefault("PRE_ROUTING", false)
	v.SetDefault("SINK_MAX_ATTEMPTS", 5)
	v.SetDefault("SINK_RETRY_INTERVAL", "2s")

	// Bind explicitly so Unmarshal sees env-only keys.
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// A missing .env is fine.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ResolvedAuthMode returns AUTH_MODE when set, otherwise "development" in
// development and "jwt" everywhere else.
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return AuthDevelopment
	}
	return AuthJWT
}

// Validate checks that the selected backends have what they need.
func (c *Config) Validate() error {
	switch c.ResolvedAuthMode() {
	case AuthDevelopment:
		if c.IsProduction() {
			return fmt.Errorf("AUTH_MODE=development is not allowed in production")
		}
	case AuthJWT:
		if len(c.AuthSigningKey) < 32 {
			return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes when AUTH_MODE is %q", AuthJWT)
		}
	default:
		return fmt.Errorf("AUTH_MODE must be %q or %q, got %q", AuthDevelopment, AuthJWT, c.AuthMode)
	}

	switch c.SessionStore {
	case StoreMemory:
	case StoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when SESSION_STORE is %q", StoreRedis)
		}
	default:
		return fmt.Errorf("SESSION_STORE must be %q or %q, got %q", StoreMemory, StoreRedis, c.SessionStore)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL)
	}

	switch c.ResultsSink {
	case SinkMemory:
		if c.IsProduction() {
			return fmt.Errorf("RESULTS_SINK=memory loses results on restart and is not allowed in production")
		}
	case SinkPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when RESULTS_SINK is %q", SinkPostgres)
		}
	case SinkSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when RESULTS_SINK is %q", SinkSQLite)
		}
	case SinkMongo:
		if c.MongoURL == "" {
			return fmt.Errorf("MONGO_URL is required when RESULTS_SINK is %q", SinkMongo)
		}
	default:
		return fmt.Errorf("RESULTS_SINK must be one of memory, postgres, sqlite, mongo, got %q", c.ResultsSink)
	}

	if c.SinkMaxAttempts < 1 {
		return fmt.Errorf("SINK_MAX_ATTEMPTS must be at least 1, got %d", c.SinkMaxAttempts)
	}
	if c.SinkRetryInterval <= 0 {
		return fmt.Errorf("SINK_RETRY_INTERVAL must be positive, got %s", c.SinkRetryInterval)
	}
	if c.CatalogWatch && c.CatalogDir == "" {
		return fmt.Errorf("CATALOG_WATCH requires CATALOG_DIR")
	}
	if c.AlertWebhookURL != "" && c.AlertWebhookKey == "" {
		return fmt.Errorf("ALERT_WEBHOOK_SECRET is required when ALERT_WEBHOOK_URL is set")
	}
	return nil
}
