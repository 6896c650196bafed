package config

const EnvPrefix = "PULLSTREAM"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "PULLSTREAM_APP_ENV"
	EnvPort     = "PULLSTREAM_APP_PORT"
	EnvLogLevel = "PULLSTREAM_LOG_LEVEL"

	EnvDBDSN  = "PULLSTREAM_DB_DSN"
	EnvDBHost = "PULLSTREAM_DB_HOST"
	EnvDBUser = "PULLSTREAM_DB_USER"
	EnvDBName = "PULLSTREAM_DB_NAME"

	EnvRedisURL = "PULLSTREAM_REDIS_URL"

	EnvJWTSecret = "PULLSTREAM_JWT_SECRET"
	EnvJWTIssuer = "PULLSTREAM_JWT_ISSUER"

	EnvUseSQLite = "PULLSTREAM_USE_SQLITE"

	EnvPayoutPolicy   = "PULLSTREAM_PAYOUT_POLICY"
	EnvAmountScale    = "PULLSTREAM_AMOUNT_SCALE"
	EnvGigLockBackend = "PULLSTREAM_GIG_LOCK_BACKEND"
	EnvGigLockWait    = "PULLSTREAM_GIG_LOCK_WAIT"

	EnvLedgerMode = "PULLSTREAM_LEDGER_MODE"
	EnvLedgerURL  = "PULLSTREAM_LEDGER_URL"

	EnvGCPProjectID    = "PULLSTREAM_GCP_PROJECT_ID"
	EnvPubSubGigTopic  = "PULLSTREAM_PUBSUB_GIG_TOPIC"
	EnvOutboxRetention = "PULLSTREAM_OUTBOX_RETENTION"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

const (
	PayoutPolicyFreelancer = "freelancer"
	PayoutPolicyParties    = "parties"
	PayoutPolicyAnyone     = "anyone"
)

const (
	LockBackendMemory = "memory"
	LockBackendRedis  = "redis"
)

const (
	LedgerModeSandbox = "sandbox"
	LedgerModeHTTP    = "http"
)
