package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Policy       PolicyConfig
	Gateway      GatewayConfig
	Cron         CronConfig
	HTTP         HTTPConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if cfg.Redis.URL == "" && cfg.Redis.Address == "" {
		return nil, fmt.Errorf("either %s or %s is required", EnvRedisURL, EnvRedisAddress)
	}
	if err := cfg.Policy.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CRED30_APP_ENV" required:"true"`
	Port         string `envconfig:"CRED30_APP_PORT" required:"true"`
	MetricsPort  string `envconfig:"CRED30_METRICS_PORT" default:"9090"`
	LogLevel     string `envconfig:"CRED30_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CRED30_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"CRED30_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"CRED30_DB_DSN"`
	Driver string `envconfig:"CRED30_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"CRED30_DB_HOST"`
	Port     int    `envconfig:"CRED30_DB_PORT" default:"5432"`
	User     string `envconfig:"CRED30_DB_USER"`
	Password string `envconfig:"CRED30_DB_PASSWORD"`
	Name     string `envconfig:"CRED30_DB_NAME"`
	SSLMode  string `envconfig:"CRED30_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"CRED30_SQLITE_PATH" default:"cred30.db"`

	MaxOpenConns    int           `envconfig:"CRED30_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CRED30_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CRED30_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CRED30_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CRED30_REDIS_URL"`
	Address      string        `envconfig:"CRED30_REDIS_ADDRESS"`
	Password     string        `envconfig:"CRED30_REDIS_PASSWORD"`
	DB           int           `envconfig:"CRED30_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CRED30_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CRED30_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CRED30_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CRED30_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CRED30_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig verifies access tokens minted by the identity service.
type JWTConfig struct {
	Secret            string `envconfig:"CRED30_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"CRED30_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"CRED30_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"CRED30_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"CRED30_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	IdempotencyTTL time.Duration `envconfig:"CRED30_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"CRED30_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	LedgerTopic string `envconfig:"CRED30_PUBSUB_LEDGER_TOPIC" default:"cred30-ledger-events"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"CRED30_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"CRED30_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"CRED30_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"CRED30_OUTBOX_RETENTION" default:"720h"`
}

// PolicyConfig carries the cooperative's business constants.
type PolicyConfig struct {
	LoanInterestRate       decimal.Decimal `envconfig:"CRED30_LOAN_INTEREST_RATE" default:"0.20"`
	LoanMaxInstallments    int             `envconfig:"CRED30_LOAN_MAX_INSTALLMENTS" default:"12"`
	LoanInstallmentPeriod  time.Duration   `envconfig:"CRED30_LOAN_INSTALLMENT_PERIOD" default:"720h"`
	CollateralRatio        decimal.Decimal `envconfig:"CRED30_COLLATERAL_RATIO" default:"1"`
	MinCreditScore         int             `envconfig:"CRED30_MIN_CREDIT_SCORE" default:"0"`
	EarlyRedemptionPenalty decimal.Decimal `envconfig:"CRED30_EARLY_REDEMPTION_PENALTY" default:"0.40"`
	EarlyRedemptionWindow  time.Duration   `envconfig:"CRED30_EARLY_REDEMPTION_WINDOW" default:"8760h"`
	EscrowFeeRate          decimal.Decimal `envconfig:"CRED30_ESCROW_FEE_RATE" default:"0.05"`
	BoostFee               decimal.Decimal `envconfig:"CRED30_BOOST_FEE" default:"5.00"`
	BoostDuration          time.Duration   `envconfig:"CRED30_BOOST_DURATION" default:"168h"`
	VoteMinQuotas          int             `envconfig:"CRED30_VOTE_MIN_QUOTAS" default:"5"`
	VoteMinScore           int             `envconfig:"CRED30_VOTE_MIN_SCORE" default:"500"`
}

func (p PolicyConfig) validate() error {
	one := decimal.NewFromInt(1)
	for name, rate := range map[string]decimal.Decimal{
		EnvLoanInterestRate:       p.LoanInterestRate,
		EnvEarlyRedemptionPenalty: p.EarlyRedemptionPenalty,
		EnvEscrowFeeRate:          p.EscrowFeeRate,
	} {
		if rate.IsNegative() || rate.GreaterThan(one) {
			return fmt.Errorf("%s must be between 0 and 1", name)
		}
	}
	if p.CollateralRatio.IsNegative() {
		return fmt.Errorf("%s must not be negative", EnvCollateralRatio)
	}
	if p.LoanMaxInstallments <= 0 {
		return fmt.Errorf("%s must be positive", EnvLoanMaxInstallments)
	}
	return nil
}

// GatewayConfig covers the inbound payment-gateway callback path.
type GatewayConfig struct {
	WebhookSecret   string        `envconfig:"CRED30_GATEWAY_WEBHOOK_SECRET"`
	SettlementTTL   time.Duration `envconfig:"CRED30_GATEWAY_SETTLEMENT_TTL" default:"72h"`
	WebhookDedupTTL time.Duration `envconfig:"CRED30_GATEWAY_WEBHOOK_DEDUP_TTL" default:"168h"`
}

type CronConfig struct {
	Interval   time.Duration `envconfig:"CRED30_CRON_INTERVAL" default:"5m"`
	LockTTL    time.Duration `envconfig:"CRED30_CRON_LOCK_TTL" default:"4m"`
	JobTimeout time.Duration `envconfig:"CRED30_CRON_JOB_TIMEOUT" default:"2m"`
}

// HTTPConfig tunes the API edge: allowed browser origins and the per-member write throttle.
type HTTPConfig struct {
	CORSOrigins     []string      `envconfig:"CRED30_CORS_ORIGINS" default:"http://localhost:3000"`
	RateLimitWindow time.Duration `envconfig:"CRED30_RATE_LIMIT_WINDOW" default:"1m"`
	RateLimitMax    int           `envconfig:"CRED30_RATE_LIMIT_MAX" default:"60"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" || useSQLite {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range discreteDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
