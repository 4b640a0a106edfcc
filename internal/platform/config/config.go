package config

import (
	"time"
)

// Config is the root application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Auth       AuthConfig       `yaml:"auth"`
	Log        LogConfig        `yaml:"log"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Membership MembershipConfig `yaml:"membership"`
	Autosave   AutosaveConfig   `yaml:"autosave"`
	Sweeper    SweeperConfig    `yaml:"sweeper"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"             env:"SERVER_ADDR"             env-default:":8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"SERVER_READ_TIMEOUT"     env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"SERVER_WRITE_TIMEOUT"    env-default:"30s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"     env:"SERVER_IDLE_TIMEOUT"     env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"10s"`
	RunSweeper      bool          `yaml:"run_sweeper"      env:"SERVER_RUN_SWEEPER"      env-default:"false"`
}

// DatabaseConfig holds PostgreSQL connection settings. An empty DSN selects
// the in-memory stores.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"                env:"DATABASE_DSN"`
	MaxConns        int32         `yaml:"max_conns"          env:"DATABASE_MAX_CONNS"          env-default:"25"`
	MinConns        int32         `yaml:"min_conns"          env:"DATABASE_MIN_CONNS"          env-default:"2"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"  env:"DATABASE_MAX_CONN_LIFETIME"  env-default:"1h"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"DATABASE_MAX_CONN_IDLE_TIME" env-default:"30m"`
	Migrate         bool          `yaml:"migrate"            env:"DATABASE_MIGRATE"            env-default:"true"`
}

// RedisConfig holds Redis connection settings. An empty URL selects the
// in-memory sweep ledger.
type RedisConfig struct {
	URL          string        `yaml:"url"            env:"REDIS_URL"`
	PoolSize     int           `yaml:"pool_size"      env:"REDIS_POOL_SIZE"      env-default:"10"`
	MinIdleConns int           `yaml:"min_idle_conns" env:"REDIS_MIN_IDLE_CONNS" env-default:"2"`
	DialTimeout  time.Duration `yaml:"dial_timeout"   env:"REDIS_DIAL_TIMEOUT"   env-default:"5s"`
	ReadTimeout  time.Duration `yaml:"read_timeout"   env:"REDIS_READ_TIMEOUT"   env-default:"3s"`
	WriteTimeout time.Duration `yaml:"write_timeout"  env:"REDIS_WRITE_TIMEOUT"  env-default:"3s"`
}

// KafkaConfig holds notification publishing settings. No brokers selects the
// log notifier.
type KafkaConfig struct {
	Brokers           []string      `yaml:"brokers"            env:"KAFKA_BROKERS"            env-separator:","`
	NotificationTopic string        `yaml:"notification_topic" env:"KAFKA_NOTIFICATION_TOPIC" env-default:"collecta.notifications"`
	Partitions        int32         `yaml:"partitions"         env:"KAFKA_PARTITIONS"         env-default:"3"`
	ReplicationFactor int16         `yaml:"replication_factor" env:"KAFKA_REPLICATION_FACTOR" env-default:"1"`
	ClientID          string        `yaml:"client_id"          env:"KAFKA_CLIENT_ID"          env-default:"collecta"`
	BreakerThreshold  int           `yaml:"breaker_threshold"  env:"KAFKA_BREAKER_THRESHOLD"  env-default:"5"`
	BreakerCooldown   time.Duration `yaml:"breaker_cooldown"   env:"KAFKA_BREAKER_COOLDOWN"   env-default:"30s"`
}

// AuthConfig holds bearer token settings.
// An empty AdminToken disables the operator endpoints.
type AuthConfig struct {
	JWTSecret  string `yaml:"jwt_secret"  env:"AUTH_JWT_SECRET"  env-default:"dev-secret-key-change-in-production"`
	JWTIssuer  string `yaml:"jwt_issuer"  env:"AUTH_JWT_ISSUER"  env-default:"collecta"`
	AdminToken string `yaml:"admin_token" env:"AUTH_ADMIN_TOKEN"`
}

// RateLimitConfig caps authenticated requests per actor. Autosave clients
// are the heaviest callers, so the default leaves room for a save every
// couple of seconds.
type RateLimitConfig struct {
	Enabled  bool          `yaml:"enabled"  env:"RATE_LIMIT_ENABLED"  env-default:"true"`
	Requests int           `yaml:"requests" env:"RATE_LIMIT_REQUESTS" env-default:"120"`
	Window   time.Duration `yaml:"window"   env:"RATE_LIMIT_WINDOW"   env-default:"1m"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

// CatalogConfig points at the YAML field catalog.
type CatalogConfig struct {
	Path string `yaml:"path" env:"CATALOG_PATH" env-default:"./catalog.yaml"`
}

// MembershipConfig points at an optional YAML membership seed.
type MembershipConfig struct {
	SeedPath string `yaml:"seed_path" env:"MEMBERSHIP_SEED_PATH"`
}

// AutosaveConfig tunes editing sessions.
type AutosaveConfig struct {
	DebounceInterval    time.Duration `yaml:"debounce_interval"     env:"AUTOSAVE_DEBOUNCE_INTERVAL"     env-default:"2s"`
	ManualSaveThreshold int           `yaml:"manual_save_threshold" env:"AUTOSAVE_MANUAL_SAVE_THRESHOLD" env-default:"2"`
	FlushTimeout        time.Duration `yaml:"flush_timeout"         env:"AUTOSAVE_FLUSH_TIMEOUT"         env-default:"10s"`
}

// SweeperConfig tunes the deadline sweeper.
type SweeperConfig struct {
	Interval    time.Duration `yaml:"interval"      env:"SWEEPER_INTERVAL"      env-default:"1h"`
	WarningDays []int         `yaml:"warning_days"  env:"SWEEPER_WARNING_DAYS"  env-default:"3,1" env-separator:","`
	GracePeriod time.Duration `yaml:"grace_period"  env:"SWEEPER_GRACE_PERIOD"  env-default:"15m"`
	Concurrency int           `yaml:"concurrency"   env:"SWEEPER_CONCURRENCY"   env-default:"4"`
	Timezone    string        `yaml:"timezone"      env:"SWEEPER_TIMEZONE"      env-default:"UTC"`
	LedgerTTL   time.Duration `yaml:"ledger_ttl"    env:"SWEEPER_LEDGER_TTL"    env-default:"48h"`
	PassTimeout time.Duration `yaml:"pass_timeout"  env:"SWEEPER_PASS_TIMEOUT"  env-default:"5m"`

	// Location is resolved from Timezone during validation.
	Location *time.Location `yaml:"-" env:"-"`
}
