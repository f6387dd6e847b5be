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
	Stripe       StripeConfig
	Outbox       OutboxConfig
	NYP          NYPConfig
	Cron         CronConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.NYP.validate(); err != nil {
		return nil, err
	}
	if cfg.FeatureFlags.SpendCache && strings.TrimSpace(cfg.PubSub.OrderSubscription) == "" {
		return nil, fmt.Errorf("%s requires %s so completed and refunded orders invalidate the cache", EnvSpendCache, EnvOrderSubscription)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"NYP_APP_ENV" required:"true"`
	Port         string `envconfig:"NYP_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"NYP_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"NYP_LOG_WARN_STACK" default:"false"`
	// CORSOrigins lists the storefront origins allowed to call the API.
	CORSOrigins []string `envconfig:"NYP_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"NYP_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"NYP_DB_DSN"`
	Driver string `envconfig:"NYP_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"NYP_DB_HOST"`
	LegacyPort     int    `envconfig:"NYP_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"NYP_DB_USER"`
	LegacyPassword string `envconfig:"NYP_DB_PASSWORD"`
	LegacyName     string `envconfig:"NYP_DB_NAME"`
	LegacySSLMode  string `envconfig:"NYP_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"NYP_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"NYP_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"NYP_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"NYP_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"NYP_REDIS_URL" required:"true"`
	Address      string        `envconfig:"NYP_REDIS_ADDR"`
	Password     string        `envconfig:"NYP_REDIS_PASSWORD"`
	DB           int           `envconfig:"NYP_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"NYP_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"NYP_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"NYP_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"NYP_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"NYP_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"NYP_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"NYP_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"NYP_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"NYP_AUTO_MIGRATE" default:"false"`
	// SpendCache enables the redis cache in front of the completed-order spend
	// lookup. It needs the order subscription that drives invalidation.
	SpendCache bool `envconfig:"NYP_FEATURE_SPEND_CACHE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"NYP_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	IdempotencyTTL       time.Duration `envconfig:"NYP_HTTP_IDEMPOTENCY_TTL" default:"24h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"NYP_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	NotificationTopic        string `envconfig:"NYP_PUBSUB_NOTIFICATION_TOPIC" default:"nyp-notification-events"`
	NotificationSubscription string `envconfig:"NYP_PUBSUB_NOTIFICATION_SUBSCRIPTION" default:"nyp-notification-events-sub"`
	InventoryTopic           string `envconfig:"NYP_PUBSUB_INVENTORY_TOPIC" default:"nyp-inventory-events"`
	// OrderSubscription receives order status changes from the order subsystem.
	OrderSubscription string `envconfig:"NYP_PUBSUB_ORDER_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"NYP_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"NYP_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"NYP_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type StripeConfig struct {
	APIKey   string `envconfig:"NYP_STRIPE_API_KEY"`
	Secret   string `envconfig:"NYP_STRIPE_SECRET"`
	Env      string `envconfig:"NYP_STRIPE_ENV" default:"test"`
	Currency string `envconfig:"NYP_STRIPE_CURRENCY" default:"usd"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// NYPConfig holds the Name-Your-Price rules.
type NYPConfig struct {
	UnlockThreshold     string        `envconfig:"NYP_UNLOCK_THRESHOLD" default:"1000"`
	CommitWindow        time.Duration `envconfig:"NYP_COMMIT_WINDOW" default:"24h"`
	PurchaseTokenSecret string        `envconfig:"NYP_PURCHASE_TOKEN_SECRET" required:"true"`
	SpendCacheTTL       time.Duration `envconfig:"NYP_SPEND_CACHE_TTL" default:"10m"`
	Currency            string        `envconfig:"NYP_CURRENCY" default:"USD"`
}

// Threshold parses the configured unlock threshold.
func (n NYPConfig) Threshold() decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(n.UnlockThreshold))
	if err != nil {
		return decimal.NewFromInt(DefaultUnlockThreshold)
	}
	return d
}

func (n NYPConfig) validate() error {
	d, err := decimal.NewFromString(strings.TrimSpace(n.UnlockThreshold))
	if err != nil {
		return fmt.Errorf("%s must be a decimal: %w", EnvNYPUnlockThreshold, err)
	}
	if d.IsNegative() {
		return fmt.Errorf("%s must not be negative", EnvNYPUnlockThreshold)
	}
	if n.CommitWindow <= 0 {
		return fmt.Errorf("%s must be positive", EnvNYPCommitWindow)
	}
	if len(n.PurchaseTokenSecret) < 16 {
		return fmt.Errorf("%s must be at least 16 bytes", EnvNYPPurchaseTokenSecret)
	}
	return nil
}

// RateLimitConfig throttles negotiation writes per actor.
type RateLimitConfig struct {
	NegotiationWrites int           `envconfig:"NYP_RATE_LIMIT_NEGOTIATION_WRITES" default:"30"`
	Window            time.Duration `envconfig:"NYP_RATE_LIMIT_WINDOW" default:"1m"`
}

type CronConfig struct {
	Interval    time.Duration `envconfig:"NYP_CRON_INTERVAL" default:"1m"`
	LockTTL     time.Duration `envconfig:"NYP_CRON_LOCK_TTL" default:"2m"`
	SweepLimit  int           `envconfig:"NYP_CRON_SWEEP_LIMIT" default:"200"`
	MetricsAddr string        `envconfig:"NYP_CRON_METRICS_ADDR" default:":9102"`
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
