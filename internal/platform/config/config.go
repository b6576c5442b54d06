package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Addr        string `env:"APP_ADDR, default=:8080"`
	Environment string `env:"APP_ENV, default=development"`
	LogLevel    string `env:"LOG_LEVEL, default=info"`
	FrontendDir string `env:"FRONTEND_DIR, default=frontend/dist"`

	StoreDriver string        `env:"STORE_DRIVER, default=postgres"`
	DatabaseURL string        `env:"DATABASE_URL"`
	JWTSecret   string        `env:"JWT_SECRET"`
	SessionTTL  time.Duration `env:"SESSION_TTL, default=24h"`

	Redis RedisConfig

	RunMigrations     bool   `env:"RUN_MIGRATIONS, default=true"`
	RunSeed           bool   `env:"RUN_SEED, default=true"`
	SeedAdminEmail    string `env:"SEED_ADMIN_EMAIL"`
	SeedAdminPassword string `env:"SEED_ADMIN_PASSWORD"`
	SeedAdminName     string `env:"SEED_ADMIN_NAME, default=Administrator"`

	MaxBodyBytes       int64         `env:"MAX_BODY_BYTES, default=1048576"`
	RateLimitPerMinute int           `env:"RATE_LIMIT_PER_MINUTE, default=60"`
	NoticeTTL          time.Duration `env:"NOTICE_TTL, default=3s"`
	WorkspaceIdleTTL   time.Duration `env:"WORKSPACE_IDLE_TTL, default=30m"`
	SweepInterval      time.Duration `env:"SWEEP_INTERVAL, default=5m"`
	SessionWait        time.Duration `env:"SESSION_WAIT, default=5s"`
	MetricsEnabled     bool          `env:"METRICS_ENABLED, default=true"`
}

type RedisConfig struct {
	Addr    string        `env:"REDIS_ADDR"`
	DB      int           `env:"REDIS_DB, default=0"`
	Channel string        `env:"REDIS_SESSION_CHANNEL, default=hradmin:sessions"`
	Timeout time.Duration `env:"REDIS_TIMEOUT, default=5s"`
}

func Load(ctx context.Context) (Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// LoadFrom reads configuration from an explicit lookuper instead of the
// process environment.
func LoadFrom(ctx context.Context, lookuper envconfig.Lookuper) (Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: lookuper}); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c Config) Validate() error {
	switch c.StoreDriver {
	case DriverPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store driver")
		}
	case DriverMemory:
		if c.IsProduction() {
			return fmt.Errorf("STORE_DRIVER=memory is not allowed in production")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q", DriverPostgres, DriverMemory)
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.IsProduction() && len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
	}
	if c.RunSeed && c.IsProduction() && strings.TrimSpace(c.SeedAdminPassword) == "" && strings.TrimSpace(c.SeedAdminEmail) != "" {
		return fmt.Errorf("SEED_ADMIN_PASSWORD must be set or RUN_SEED disabled in production")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}
	if c.MaxBodyBytes < 1024 {
		return fmt.Errorf("MAX_BODY_BYTES must be at least 1024")
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}
	if c.NoticeTTL <= 0 {
		return fmt.Errorf("NOTICE_TTL must be positive")
	}
	return nil
}
