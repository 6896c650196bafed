package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/angelmondragon/pullstream-backend/pkg/db/models"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Engine       EngineConfig
	Ledger       LedgerConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Engine.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Ledger.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PULLSTREAM_APP_ENV" required:"true"`
	Port         string `envconfig:"PULLSTREAM_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"PULLSTREAM_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PULLSTREAM_LOG_WARN_STACK" default:"false"`

	// Per-caller throttle on mutating gig endpoints. A zero limit disables it.
	MutationRateLimit  int           `envconfig:"PULLSTREAM_MUTATION_RATE_LIMIT" default:"120"`
	MutationRateWindow time.Duration `envconfig:"PULLSTREAM_MUTATION_RATE_WINDOW" default:"1m"`

	CORSOrigins []string `envconfig:"PULLSTREAM_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"PULLSTREAM_SERVICE_KIND" default:"api"`
	// Workers expose /metrics here when set, e.g. ":9090".
	MetricsAddr string `envconfig:"PULLSTREAM_WORKER_METRICS_ADDR"`
}

type DBConfig struct {
	DSN    string `envconfig:"PULLSTREAM_DB_DSN"`
	Driver string `envconfig:"PULLSTREAM_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PULLSTREAM_DB_HOST"`
	LegacyPort     int    `envconfig:"PULLSTREAM_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PULLSTREAM_DB_USER"`
	LegacyPassword string `envconfig:"PULLSTREAM_DB_PASSWORD"`
	LegacyName     string `envconfig:"PULLSTREAM_DB_NAME"`
	LegacySSLMode  string `envconfig:"PULLSTREAM_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"PULLSTREAM_SQLITE_PATH" default:"pullstream.db"`

	MaxOpenConns    int           `envconfig:"PULLSTREAM_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PULLSTREAM_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PULLSTREAM_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PULLSTREAM_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PULLSTREAM_REDIS_URL"`
	Address      string        `envconfig:"PULLSTREAM_REDIS_ADDR"`
	Password     string        `envconfig:"PULLSTREAM_REDIS_PASSWORD"`
	DB           int           `envconfig:"PULLSTREAM_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PULLSTREAM_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PULLSTREAM_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PULLSTREAM_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PULLSTREAM_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PULLSTREAM_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether any redis endpoint is configured.
func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Address != ""
}

type JWTConfig struct {
	Secret string `envconfig:"PULLSTREAM_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"PULLSTREAM_JWT_ISSUER" required:"true"`
	// ExpirationMinutes only applies to tokens minted by cmd/dev-token; the API
	// honours whatever expiry the session service puts in the token.
	ExpirationMinutes int `envconfig:"PULLSTREAM_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"PULLSTREAM_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"PULLSTREAM_AUTO_MIGRATE" default:"false"`
}

// EngineConfig tunes the gig engine.
type EngineConfig struct {
	PayoutPolicy string        `envconfig:"PULLSTREAM_PAYOUT_POLICY" default:"freelancer"`
	AmountScale  int32         `envconfig:"PULLSTREAM_AMOUNT_SCALE" default:"8"`
	LockBackend  string        `envconfig:"PULLSTREAM_GIG_LOCK_BACKEND" default:"memory"`
	LockWait     time.Duration `envconfig:"PULLSTREAM_GIG_LOCK_WAIT" default:"2s"`
	LockTTL      time.Duration `envconfig:"PULLSTREAM_GIG_LOCK_TTL" default:"30s"`
}

func (e EngineConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(e.PayoutPolicy)) {
	case PayoutPolicyFreelancer, PayoutPolicyParties, PayoutPolicyAnyone:
	default:
		return fmt.Errorf("%s must be one of %s, %s, %s", EnvPayoutPolicy, PayoutPolicyFreelancer, PayoutPolicyParties, PayoutPolicyAnyone)
	}
	switch strings.ToLower(strings.TrimSpace(e.LockBackend)) {
	case LockBackendMemory, LockBackendRedis:
	default:
		return fmt.Errorf("%s must be %s or %s", EnvGigLockBackend, LockBackendMemory, LockBackendRedis)
	}
	if e.AmountScale < 0 || e.AmountScale > models.AmountColumnScale {
		return fmt.Errorf("%s must be between 0 and %d", EnvAmountScale, models.AmountColumnScale)
	}
	if e.LockWait <= 0 {
		return fmt.Errorf("%s must be positive", EnvGigLockWait)
	}
	return nil
}

// LedgerConfig points the engine at the custody service that moves funds.
type LedgerConfig struct {
	Mode            string        `envconfig:"PULLSTREAM_LEDGER_MODE" default:"sandbox"`
	BaseURL         string        `envconfig:"PULLSTREAM_LEDGER_URL"`
	APIKey          string        `envconfig:"PULLSTREAM_LEDGER_API_KEY"`
	Timeout         time.Duration `envconfig:"PULLSTREAM_LEDGER_TIMEOUT" default:"10s"`
	MaxAttempts     int           `envconfig:"PULLSTREAM_LEDGER_MAX_ATTEMPTS" default:"8"`
	RetryBatchSize  int           `envconfig:"PULLSTREAM_LEDGER_RETRY_BATCH_SIZE" default:"50"`
	DispatchLease   time.Duration `envconfig:"PULLSTREAM_LEDGER_DISPATCH_LEASE" default:"2m"`
	EscrowNamespace string        `envconfig:"PULLSTREAM_LEDGER_ESCROW_NAMESPACE" default:"escrow:gig"`
}

func (l LedgerConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(l.Mode)) {
	case LedgerModeSandbox:
		return nil
	case LedgerModeHTTP:
		if strings.TrimSpace(l.BaseURL) == "" {
			return fmt.Errorf("%s is required when %s=%s", EnvLedgerURL, EnvLedgerMode, LedgerModeHTTP)
		}
		return nil
	default:
		return fmt.Errorf("%s must be %s or %s", EnvLedgerMode, LedgerModeSandbox, LedgerModeHTTP)
	}
}

type GCPConfig struct {
	ProjectID              string `envconfig:"PULLSTREAM_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"PULLSTREAM_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"PULLSTREAM_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	GigTopic        string `envconfig:"PULLSTREAM_PUBSUB_GIG_TOPIC" default:"ps-gig-events"`
	GigSubscription string `envconfig:"PULLSTREAM_PUBSUB_GIG_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"PULLSTREAM_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"PULLSTREAM_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"PULLSTREAM_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"PULLSTREAM_OUTBOX_RETENTION" default:"720h"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"PULLSTREAM_CRON_INTERVAL" default:"1m"`
	LockTTL  time.Duration `envconfig:"PULLSTREAM_CRON_LOCK_TTL" default:"10m"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" || useSQLite {
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
