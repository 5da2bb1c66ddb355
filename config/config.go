package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Log       LogConfig       `mapstructure:"log"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Lock      LockConfig      `mapstructure:"lock"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Rollback  RollbackConfig  `mapstructure:"rollback"`
	Sweep     SweepConfig     `mapstructure:"sweep"`
	Fraud     FraudConfig     `mapstructure:"fraud"`
	Backup    BackupConfig    `mapstructure:"backup"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Mirror    MirrorConfig    `mapstructure:"mirror"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

type ServerConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	Mode        string `mapstructure:"mode"` // debug, release, test
	MaxBodySize int64  `mapstructure:"max_body_size"`
	OpenAPIPath string `mapstructure:"openapi_path"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Password        string `mapstructure:"password"`
	DB              int    `mapstructure:"db"`
	ConnectAttempts int    `mapstructure:"connect_attempts"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver string `mapstructure:"driver"` // postgres, memory
}

// LockConfig selects and tunes the account / rollback lock backend.
type LockConfig struct {
	Backend    string        `mapstructure:"backend"` // memory, redis
	Expiry     time.Duration `mapstructure:"expiry"`
	Tries      int           `mapstructure:"tries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

type LedgerConfig struct {
	AppendAttempts int           `mapstructure:"append_attempts"`
	AppendBackoff  time.Duration `mapstructure:"append_backoff"`
}

type RollbackConfig struct {
	Window time.Duration `mapstructure:"window"`
}

type SweepConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Interval       time.Duration `mapstructure:"interval"`
	HoursThreshold int           `mapstructure:"hours_threshold"`
	ActorID        string        `mapstructure:"actor_id"`
	BatchSize      int           `mapstructure:"batch_size"`
}

type FraudConfig struct {
	// Nonblocking keeps settlement going when a party gets flagged.
	Nonblocking bool   `mapstructure:"nonblocking"`
	LargeAmount string `mapstructure:"large_amount"`
	Tolerance   string `mapstructure:"tolerance"`
}

// LargeAmountDecimal parses LargeAmount.
func (f FraudConfig) LargeAmountDecimal() (decimal.Decimal, error) {
	return decimal.NewFromString(f.LargeAmount)
}

// ToleranceDecimal parses Tolerance.
func (f FraudConfig) ToleranceDecimal() (decimal.Decimal, error) {
	return decimal.NewFromString(f.Tolerance)
}

type BackupConfig struct {
	ReconcileOnRestore bool `mapstructure:"reconcile_on_restore"`
}

type AuditConfig struct {
	AppendAttempts int           `mapstructure:"append_attempts"`
	AppendBackoff  time.Duration `mapstructure:"append_backoff"`
}

type MirrorConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	URL          string        `mapstructure:"url"`
	Secret       string        `mapstructure:"secret"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type RateLimitConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	TransferLimit  int64         `mapstructure:"transfer_limit"`
	TransferWindow time.Duration `mapstructure:"transfer_window"`
	AdminLimit     int64         `mapstructure:"admin_limit"`
	AdminWindow    time.Duration `mapstructure:"admin_window"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: FGL_ (FinGuard Ledger).
// Nested keys use underscore: FGL_DATABASE_HOST, FGL_ROLLBACK_WINDOW, etc.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// FGL_DATABASE_HOST -> database.host
	v.SetEnvPrefix("FGL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file is optional; env vars can suffice.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.max_body_size", 1<<20)
	v.SetDefault("server.openapi_path", "docs/api/openapi.yaml")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "finguard")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.connect_attempts", 5)

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "24h")
	v.SetDefault("jwt.issuer", "finguard")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("storage.driver", "postgres")

	v.SetDefault("lock.backend", "redis")
	v.SetDefault("lock.expiry", "10s")
	v.SetDefault("lock.tries", 32)
	v.SetDefault("lock.retry_delay", "50ms")

	v.SetDefault("ledger.append_attempts", 3)
	v.SetDefault("ledger.append_backoff", "50ms")

	v.SetDefault("rollback.window", "72h")

	v.SetDefault("sweep.enabled", true)
	v.SetDefault("sweep.interval", "1h")
	v.SetDefault("sweep.hours_threshold", 24)
	v.SetDefault("sweep.actor_id", "system")
	v.SetDefault("sweep.batch_size", 500)

	v.SetDefault("fraud.nonblocking", true)
	v.SetDefault("fraud.large_amount", "10000.00")
	v.SetDefault("fraud.tolerance", "0.01")

	v.SetDefault("backup.reconcile_on_restore", true)

	v.SetDefault("audit.append_attempts", 3)
	v.SetDefault("audit.append_backoff", "50ms")

	v.SetDefault("mirror.enabled", false)
	v.SetDefault("mirror.url", "")
	v.SetDefault("mirror.secret", "")
	v.SetDefault("mirror.poll_interval", "5s")
	v.SetDefault("mirror.batch_size", 50)
	v.SetDefault("mirror.max_attempts", 5)
	v.SetDefault("mirror.timeout", "10s")

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.transfer_limit", 60)
	v.SetDefault("ratelimit.transfer_window", "1m")
	v.SetDefault("ratelimit.admin_limit", 30)
	v.SetDefault("ratelimit.admin_window", "1m")
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("storage.driver: unsupported value %q", c.Storage.Driver)
	}
	switch c.Lock.Backend {
	case "redis", "memory":
	default:
		return fmt.Errorf("lock.backend: unsupported value %q", c.Lock.Backend)
	}
	if c.Rollback.Window <= 0 {
		return fmt.Errorf("rollback.window must be positive")
	}
	if c.Ledger.AppendAttempts < 1 {
		return fmt.Errorf("ledger.append_attempts must be at least 1")
	}
	if c.Sweep.HoursThreshold < 1 {
		return fmt.Errorf("sweep.hours_threshold must be at least 1")
	}
	if _, err := c.Fraud.LargeAmountDecimal(); err != nil {
		return fmt.Errorf("fraud.large_amount: %w", err)
	}
	if _, err := c.Fraud.ToleranceDecimal(); err != nil {
		return fmt.Errorf("fraud.tolerance: %w", err)
	}
	if c.Mirror.Enabled && c.Mirror.URL == "" {
		return fmt.Errorf("mirror.url is required when mirror.enabled is true")
	}
	return nil
}
