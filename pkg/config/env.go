package config

// EnvPrefix is passed to envconfig; field tags carry the full variable names.
const EnvPrefix = "CRED30"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv      = "CRED30_APP_ENV"
	EnvPort        = "CRED30_APP_PORT"
	EnvMetricsPort = "CRED30_METRICS_PORT"
	EnvLogLevel    = "CRED30_LOG_LEVEL"

	EnvDBDSN  = "CRED30_DB_DSN"
	EnvDBHost = "CRED30_DB_HOST"
	EnvDBUser = "CRED30_DB_USER"
	EnvDBName = "CRED30_DB_NAME"

	EnvRedisURL     = "CRED30_REDIS_URL"
	EnvRedisAddress = "CRED30_REDIS_ADDRESS"

	EnvJWTSecret  = "CRED30_JWT_SECRET"
	EnvJWTIssuer  = "CRED30_JWT_ISSUER"
	EnvJWTExpMins = "CRED30_JWT_EXPIRATION_MINUTES"

	EnvUseSQLite   = "CRED30_USE_SQLITE"
	EnvAutoMigrate = "CRED30_AUTO_MIGRATE"

	EnvGCPProjectID      = "CRED30_GCP_PROJECT_ID"
	EnvPubSubLedgerTopic = "CRED30_PUBSUB_LEDGER_TOPIC"

	EnvLoanInterestRate       = "CRED30_LOAN_INTEREST_RATE"
	EnvLoanMaxInstallments    = "CRED30_LOAN_MAX_INSTALLMENTS"
	EnvCollateralRatio        = "CRED30_COLLATERAL_RATIO"
	EnvMinCreditScore         = "CRED30_MIN_CREDIT_SCORE"
	EnvEarlyRedemptionPenalty = "CRED30_EARLY_REDEMPTION_PENALTY"
	EnvEscrowFeeRate          = "CRED30_ESCROW_FEE_RATE"

	EnvGatewayWebhookSecret = "CRED30_GATEWAY_WEBHOOK_SECRET"
)

var discreteDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
