package config

// EnvPrefix is handed to envconfig; every field carries its full variable name.
const EnvPrefix = "NYP"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const DefaultUnlockThreshold = 1000

const (
	EnvAppEnv    = "NYP_APP_ENV"
	EnvPort      = "NYP_APP_PORT"
	EnvDBDSN     = "NYP_DB_DSN"
	EnvDBHost    = "NYP_DB_HOST"
	EnvDBUser    = "NYP_DB_USER"
	EnvDBName    = "NYP_DB_NAME"
	EnvRedisURL  = "NYP_REDIS_URL"
	EnvJWTSecret = "NYP_JWT_SECRET"
	EnvJWTIssuer = "NYP_JWT_ISSUER"

	EnvNYPUnlockThreshold     = "NYP_UNLOCK_THRESHOLD"
	EnvNYPCommitWindow        = "NYP_COMMIT_WINDOW"
	EnvNYPPurchaseTokenSecret = "NYP_PURCHASE_TOKEN_SECRET"

	EnvSpendCache        = "NYP_FEATURE_SPEND_CACHE"
	EnvOrderSubscription = "NYP_PUBSUB_ORDER_SUBSCRIPTION"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
