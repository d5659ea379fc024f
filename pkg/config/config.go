package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Paystack     PaystackConfig
	Checkout     CheckoutConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Checkout.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"BETZA_APP_ENV" required:"true"`
	Port         string `envconfig:"BETZA_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"BETZA_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"BETZA_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"BETZA_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"BETZA_DB_DSN"`
	Driver string `envconfig:"BETZA_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"BETZA_DB_HOST"`
	Port     int    `envconfig:"BETZA_DB_PORT" default:"5432"`
	User     string `envconfig:"BETZA_DB_USER"`
	Password string `envconfig:"BETZA_DB_PASSWORD"`
	Name     string `envconfig:"BETZA_DB_NAME"`
	SSLMode  string `envconfig:"BETZA_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BETZA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BETZA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BETZA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BETZA_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the configured driver is the embedded sqlite one.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"BETZA_REDIS_URL"`
	Address      string        `envconfig:"BETZA_REDIS_ADDR"`
	Password     string        `envconfig:"BETZA_REDIS_PASSWORD"`
	DB           int           `envconfig:"BETZA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BETZA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BETZA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BETZA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BETZA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BETZA_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig holds the shared secret of the hosted auth provider's access tokens.
type JWTConfig struct {
	Secret   string `envconfig:"BETZA_JWT_SECRET" required:"true"`
	Issuer   string `envconfig:"BETZA_JWT_ISSUER"`
	Audience string `envconfig:"BETZA_JWT_AUDIENCE" default:"authenticated"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"BETZA_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"BETZA_AUTO_MIGRATE" default:"false"`
}

type PaystackConfig struct {
	SecretKey string        `envconfig:"BETZA_PAYSTACK_SECRET_KEY"`
	BaseURL   string        `envconfig:"BETZA_PAYSTACK_BASE_URL" default:"https://api.paystack.co"`
	Timeout   time.Duration `envconfig:"BETZA_PAYSTACK_TIMEOUT" default:"30s"`
}

type CheckoutConfig struct {
	RedirectURL       string        `envconfig:"BETZA_CHECKOUT_REDIRECT_URL" default:"betza://payment-callback"`
	FunctionsBaseURL  string        `envconfig:"BETZA_FUNCTIONS_BASE_URL" default:"http://localhost:8080/functions/v1"`
	GatewayTimeout    time.Duration `envconfig:"BETZA_CHECKOUT_GATEWAY_TIMEOUT" default:"30s"`
	SettlementLockTTL time.Duration `envconfig:"BETZA_SETTLEMENT_LOCK_TTL" default:"2m"`
}

func (c CheckoutConfig) validate() error {
	if strings.TrimSpace(c.RedirectURL) == "" {
		return fmt.Errorf("%s is required", EnvCheckoutRedirectURL)
	}
	u, err := url.Parse(c.RedirectURL)
	if err != nil || u.Scheme == "" {
		return fmt.Errorf("%s must be an absolute url", EnvCheckoutRedirectURL)
	}
	return nil
}

// RateLimitConfig throttles the payment function endpoints per client IP and payer email.
type RateLimitConfig struct {
	Window     time.Duration `envconfig:"BETZA_PAYMENT_RATE_WINDOW" default:"1m"`
	IPLimit    int           `envconfig:"BETZA_PAYMENT_RATE_IP_LIMIT" default:"30"`
	EmailLimit int           `envconfig:"BETZA_PAYMENT_RATE_EMAIL_LIMIT" default:"10"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"BETZA_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"BETZA_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	NotificationTopic string `envconfig:"BETZA_PUBSUB_NOTIFICATION_TOPIC"`
}

// Enabled reports whether push notifications should be published.
func (p PubSubConfig) Enabled() bool {
	return strings.TrimSpace(p.NotificationTopic) != ""
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if useSQLite {
		db.Driver = DriverSQLite
		if db.DSN == "" {
			db.DSN = "file:betza.db?cache=shared"
		}
		return nil
	}
	if db.DSN != "" {
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
