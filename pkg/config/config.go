package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "NFTCART"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Cart         CartConfig
	Exchange     ExchangeConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"NFTCART_APP_ENV" required:"true"`
	Port         string `envconfig:"NFTCART_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"NFTCART_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"NFTCART_LOG_WARN_STACK" default:"false"`
	ChainID      int    `envconfig:"NFTCART_CHAIN_ID" default:"1"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"NFTCART_DB_DSN"`
	Driver string `envconfig:"NFTCART_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"NFTCART_DB_HOST"`
	LegacyPort     int    `envconfig:"NFTCART_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"NFTCART_DB_USER"`
	LegacyPassword string `envconfig:"NFTCART_DB_PASSWORD"`
	LegacyName     string `envconfig:"NFTCART_DB_NAME"`
	LegacySSLMode  string `envconfig:"NFTCART_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"NFTCART_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"NFTCART_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"NFTCART_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"NFTCART_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"NFTCART_REDIS_URL" required:"true"`
	Address      string        `envconfig:"NFTCART_REDIS_ADDR"`
	Password     string        `envconfig:"NFTCART_REDIS_PASSWORD"`
	DB           int           `envconfig:"NFTCART_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"NFTCART_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"NFTCART_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"NFTCART_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"NFTCART_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"NFTCART_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"NFTCART_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"NFTCART_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"NFTCART_JWT_EXPIRATION_MINUTES" default:"1440"`
}

// SessionTTL returns the wallet session lifetime.
func (j JWTConfig) SessionTTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type CartConfig struct {
	// PersistTTL bounds how long an idle persisted cart survives in Redis.
	PersistTTL     time.Duration `envconfig:"NFTCART_CART_PERSIST_TTL" default:"720h"`
	LookupTimeout  time.Duration `envconfig:"NFTCART_CART_LOOKUP_TIMEOUT" default:"10s"`
	ReferrerFeeCap int           `envconfig:"NFTCART_CART_REFERRER_FEE_CAP_BPS" default:"1000"`
}

type ExchangeConfig struct {
	// Endpoint of the order-book exchange gateway; empty selects the dev client.
	Endpoint       string        `envconfig:"NFTCART_EXCHANGE_ENDPOINT"`
	RequestTimeout time.Duration `envconfig:"NFTCART_EXCHANGE_REQUEST_TIMEOUT" default:"30s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate   bool `envconfig:"NFTCART_AUTO_MIGRATE" default:"false"`
	EventsEnabled bool `envconfig:"NFTCART_EVENTS_ENABLED" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"NFTCART_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"NFTCART_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"NFTCART_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	CartTopic        string `envconfig:"NFTCART_PUBSUB_CART_TOPIC" default:"nft-cart-events"`
	CartSubscription string `envconfig:"NFTCART_PUBSUB_CART_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"NFTCART_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"NFTCART_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"NFTCART_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		"NFTCART_DB_HOST": db.LegacyHost,
		"NFTCART_DB_USER": db.LegacyUser,
		"NFTCART_DB_NAME": db.LegacyName,
	}
	for _, env := range []string{"NFTCART_DB_HOST", "NFTCART_DB_USER", "NFTCART_DB_NAME"} {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either NFTCART_DB_DSN or %s are required", strings.Join(missing, ", "))
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
