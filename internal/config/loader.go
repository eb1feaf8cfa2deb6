package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/caarlos0/env/v11"

	"github.com/example/portal-scheduler/internal/scheduler"
)

// EnvPrefix is prepended to every variable name.
const EnvPrefix = "SCHEDULER_"

// Store drivers.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Policy store kinds.
const (
	PolicyMemory = "memory"
	PolicyFile   = "file"
	PolicyRedis  = "redis"
)

// Config captures environment driven configuration values for the scheduler service.
type Config struct {
	HTTPPort        int           `env:"HTTP_PORT" envDefault:"8080"`
	Timezone        string        `env:"TIMEZONE" envDefault:"Asia/Tokyo"`
	Store           string        `env:"STORE" envDefault:"sqlite"`
	SQLitePath      string        `env:"SQLITE_PATH" envDefault:"scheduler.db"`
	PostgresURL     string        `env:"POSTGRES_URL"`
	PolicyStore     string        `env:"POLICY_STORE" envDefault:"file"`
	PolicyFile      string        `env:"POLICY_FILE" envDefault:"policy.yaml"`
	PolicyRedisKey  string        `env:"POLICY_REDIS_KEY" envDefault:"scheduler:availability-policy"`
	RedisAddr       string        `env:"REDIS_ADDR"`
	RedisPassword   string        `env:"REDIS_PASSWORD"`
	RedisDB         int           `env:"REDIS_DB" envDefault:"0"`
	RefreshChannel  string        `env:"REFRESH_CHANNEL" envDefault:"scheduler:refresh"`
	ConfirmGrace    time.Duration `env:"CONFIRM_GRACE" envDefault:"500ms"`
	SessionSecret   string        `env:"SESSION_SECRET"`
	AdminKeyHash    string        `env:"ADMIN_KEY_HASH"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"json"`
	WeekStart       string        `env:"WEEK_START" envDefault:"monday"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Location is resolved from Timezone.
	Location *time.Location `env:"-"`
	// FirstWeekday is resolved from WeekStart.
	FirstWeekday time.Weekday `env:"-"`
}

// Load parses configuration values from the current process environment.
//
// The loader applies defaults for optional fields while validating required
// values and reporting localized error messages for missing entries.
func Load() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("環境変数の値が不正です: %w", err)
	}

	missing := make([]string, 0, 2)
	invalid := make([]string, 0, 4)

	if strings.TrimSpace(cfg.SessionSecret) == "" {
		missing = append(missing, EnvPrefix+"SESSION_SECRET")
	}
	if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		invalid = append(invalid, EnvPrefix+"HTTP_PORT")
	}

	loc, err := time.LoadLocation(strings.TrimSpace(cfg.Timezone))
	if err != nil {
		invalid = append(invalid, EnvPrefix+"TIMEZONE")
	} else {
		cfg.Location = loc
	}

	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))
	switch cfg.Store {
	case StoreMemory:
	case StoreSQLite:
		if strings.TrimSpace(cfg.SQLitePath) == "" {
			missing = append(missing, EnvPrefix+"SQLITE_PATH")
		}
	case StorePostgres:
		if strings.TrimSpace(cfg.PostgresURL) == "" {
			missing = append(missing, EnvPrefix+"POSTGRES_URL")
		}
	default:
		invalid = append(invalid, EnvPrefix+"STORE")
	}

	cfg.PolicyStore = strings.ToLower(strings.TrimSpace(cfg.PolicyStore))
	switch cfg.PolicyStore {
	case PolicyMemory:
	case PolicyFile:
		if strings.TrimSpace(cfg.PolicyFile) == "" {
			missing = append(missing, EnvPrefix+"POLICY_FILE")
		}
	case PolicyRedis:
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			missing = append(missing, EnvPrefix+"REDIS_ADDR")
		}
	default:
		invalid = append(invalid, EnvPrefix+"POLICY_STORE")
	}

	if cfg.RedisDB < 0 {
		invalid = append(invalid, EnvPrefix+"REDIS_DB")
	}
	if cfg.ConfirmGrace < 0 {
		invalid = append(invalid, EnvPrefix+"CONFIRM_GRACE")
	}
	if cfg.ShutdownTimeout <= 0 {
		invalid = append(invalid, EnvPrefix+"SHUTDOWN_TIMEOUT")
	}

	if day, ok := scheduler.ParseWeekday(cfg.WeekStart); ok {
		cfg.FirstWeekday = day
	} else {
		invalid = append(invalid, EnvPrefix+"WEEK_START")
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("必須の環境変数が設定されていません: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("環境変数の値が不正です: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

// RedisEnabled reports whether a Redis server is configured for the policy
// store or the cross-process refresh bridge.
func (c Config) RedisEnabled() bool {
	return strings.TrimSpace(c.RedisAddr) != ""
}
