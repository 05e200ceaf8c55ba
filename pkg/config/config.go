package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "JEWELPOS"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	EnvAppEnv   = "JEWELPOS_APP_ENV"
	EnvPort     = "JEWELPOS_APP_PORT"
	EnvDBDSN    = "JEWELPOS_DB_DSN"
	EnvDBDriver = "JEWELPOS_DB_DRIVER"
	EnvDBHost   = "JEWELPOS_DB_HOST"
	EnvDBUser   = "JEWELPOS_DB_USER"
	EnvDBName   = "JEWELPOS_DB_NAME"
	EnvRedisURL = "JEWELPOS_REDIS_URL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Ledger       LedgerConfig
	Mirror       MirrorConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate rejects combinations envconfig cannot express on its own.
func (c *Config) validate() error {
	switch {
	case c.App.IsProd() && c.DB.IsSQLite():
		return fmt.Errorf("%s=%s is not allowed in %s", EnvDBDriver, DriverSQLite, AppEnvProd)
	case c.Ledger.IdempotencyTTL <= 0 || c.Ledger.PayoutIdempotencyTTL <= 0:
		return fmt.Errorf("idempotency ttls must be positive")
	case c.Cron.JobTimeout > c.Cron.LockTTL:
		return fmt.Errorf("cron job timeout %s exceeds lock ttl %s", c.Cron.JobTimeout, c.Cron.LockTTL)
	}
	return nil
}

type AppConfig struct {
	Env          string `envconfig:"JEWELPOS_APP_ENV" required:"true"`
	Port         string `envconfig:"JEWELPOS_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"JEWELPOS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"JEWELPOS_LOG_WARN_STACK" default:"false"`
	// CORSOrigins is a comma separated list of till origins.
	CORSOrigins []string `envconfig:"JEWELPOS_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"JEWELPOS_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"JEWELPOS_DB_DSN"`
	Driver string `envconfig:"JEWELPOS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"JEWELPOS_DB_HOST"`
	LegacyPort     int    `envconfig:"JEWELPOS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"JEWELPOS_DB_USER"`
	LegacyPassword string `envconfig:"JEWELPOS_DB_PASSWORD"`
	LegacyName     string `envconfig:"JEWELPOS_DB_NAME"`
	LegacySSLMode  string `envconfig:"JEWELPOS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"JEWELPOS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"JEWELPOS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"JEWELPOS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"JEWELPOS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	// SlowQueryThreshold logs statements slower than this; zero disables it.
	SlowQueryThreshold time.Duration `envconfig:"JEWELPOS_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

// IsSQLite reports whether the configured driver is the embedded sqlite engine.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"JEWELPOS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"JEWELPOS_REDIS_ADDR"`
	Password     string        `envconfig:"JEWELPOS_REDIS_PASSWORD"`
	DB           int           `envconfig:"JEWELPOS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"JEWELPOS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"JEWELPOS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"JEWELPOS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"JEWELPOS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"JEWELPOS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"JEWELPOS_AUTO_MIGRATE" default:"false"`
	// DistributedLocks switches per-entity locks from in-process mutexes to redis.
	DistributedLocks bool `envconfig:"JEWELPOS_DISTRIBUTED_LOCKS" default:"true"`
}

type LedgerConfig struct {
	PositionCacheTTL time.Duration `envconfig:"JEWELPOS_POSITION_CACHE_TTL" default:"10m"`
	LockTTL          time.Duration `envconfig:"JEWELPOS_ENTITY_LOCK_TTL" default:"30s"`
	LockRetries      int           `envconfig:"JEWELPOS_ENTITY_LOCK_RETRIES" default:"40"`
	LockBackoff      time.Duration `envconfig:"JEWELPOS_ENTITY_LOCK_BACKOFF" default:"50ms"`
	IdempotencyTTL   time.Duration `envconfig:"JEWELPOS_IDEMPOTENCY_TTL" default:"24h"`
	// PayoutIdempotencyTTL applies to payout and commission payment keys.
	PayoutIdempotencyTTL time.Duration `envconfig:"JEWELPOS_PAYOUT_IDEMPOTENCY_TTL" default:"168h"`
}

type MirrorConfig struct {
	RetryBatchSize   int `envconfig:"JEWELPOS_MIRROR_RETRY_BATCH_SIZE" default:"50"`
	RetryMaxAttempts int `envconfig:"JEWELPOS_MIRROR_RETRY_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	Interval   time.Duration `envconfig:"JEWELPOS_CRON_INTERVAL" default:"15m"`
	LockTTL    time.Duration `envconfig:"JEWELPOS_CRON_LOCK_TTL" default:"10m"`
	JobTimeout time.Duration `envconfig:"JEWELPOS_CRON_JOB_TIMEOUT" default:"4m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
