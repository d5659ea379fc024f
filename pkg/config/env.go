package config

// EnvPrefix is handed to envconfig; every field carries an explicit envconfig tag.
const EnvPrefix = "BETZA"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const (
	EnvAppEnv   = "BETZA_APP_ENV"
	EnvPort     = "BETZA_APP_PORT"
	EnvLogLevel = "BETZA_LOG_LEVEL"

	EnvDBDSN  = "BETZA_DB_DSN"
	EnvDBHost = "BETZA_DB_HOST"
	EnvDBUser = "BETZA_DB_USER"
	EnvDBName = "BETZA_DB_NAME"

	EnvUseSQLite = "BETZA_USE_SQLITE"
	EnvRedisURL  = "BETZA_REDIS_URL"
	EnvJWTSecret = "BETZA_JWT_SECRET"

	EnvPaystackSecretKey   = "BETZA_PAYSTACK_SECRET_KEY"
	EnvCheckoutRedirectURL = "BETZA_CHECKOUT_REDIRECT_URL"
	EnvFunctionsBaseURL    = "BETZA_FUNCTIONS_BASE_URL"

	EnvPubSubNotificationTopic = "BETZA_PUBSUB_NOTIFICATION_TOPIC"
)

var discreteDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
