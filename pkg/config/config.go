package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "GIFTCART"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv            = "GIFTCART_APP_ENV"
	EnvPort              = "GIFTCART_APP_PORT"
	EnvDBDSN             = "GIFTCART_DB_DSN"
	EnvDBHost            = "GIFTCART_DB_HOST"
	EnvDBUser            = "GIFTCART_DB_USER"
	EnvDBName            = "GIFTCART_DB_NAME"
	EnvRedisURL          = "GIFTCART_REDIS_URL"
	EnvJWTSecret         = "GIFTCART_JWT_SECRET"
	EnvJWTIssuer         = "GIFTCART_JWT_ISSUER"
	EnvBackendBaseURL    = "GIFTCART_BACKEND_BASE_URL"
	EnvCartStorage       = "GIFTCART_CART_STORAGE"
	EnvCartSyncDebounce  = "GIFTCART_CART_SYNC_DEBOUNCE"
	EnvDeliveryTimezone  = "GIFTCART_DELIVERY_TIMEZONE"
	EnvUseSQLite         = "GIFTCART_USE_SQLITE"
	EnvCartStorageQuota  = "GIFTCART_CART_STORAGE_QUOTA_BYTES"
	EnvCatalogCacheTTL   = "GIFTCART_CATALOG_CACHE_TTL"
	EnvBackendAPITimeout = "GIFTCART_BACKEND_TIMEOUT"
)

const (
	StorageRedis = "redis"
	StorageSQL   = "sql"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Backend      BackendConfig
	Cart         CartConfig
	Catalog      CatalogConfig
	Delivery     DeliveryConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.Cart.UsesSQL() || cfg.FeatureFlags.UseSQLite {
		if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
			return nil, err
		}
	}
	if err := cfg.Cart.validate(); err != nil {
		return nil, err
	}
	if !cfg.Cart.UsesSQL() && !cfg.Redis.Configured() {
		return nil, fmt.Errorf("%s or GIFTCART_REDIS_ADDR is required for redis cart storage", EnvRedisURL)
	}
	if _, err := cfg.Delivery.Location(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"GIFTCART_APP_ENV" required:"true"`
	Port         string `envconfig:"GIFTCART_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"GIFTCART_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"GIFTCART_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"GIFTCART_LOG_WARN_STACK" default:"false"`

	// CORSOrigins is a comma separated list of storefront origins.
	CORSOrigins []string `envconfig:"GIFTCART_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"GIFTCART_DB_DSN"`
	Driver string `envconfig:"GIFTCART_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"GIFTCART_DB_HOST"`
	LegacyPort     int    `envconfig:"GIFTCART_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"GIFTCART_DB_USER"`
	LegacyPassword string `envconfig:"GIFTCART_DB_PASSWORD"`
	LegacyName     string `envconfig:"GIFTCART_DB_NAME"`
	LegacySSLMode  string `envconfig:"GIFTCART_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"GIFTCART_SQLITE_PATH" default:"giftcart.db"`

	MaxOpenConns    int           `envconfig:"GIFTCART_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"GIFTCART_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"GIFTCART_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"GIFTCART_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"GIFTCART_REDIS_URL"`
	Address      string        `envconfig:"GIFTCART_REDIS_ADDR"`
	Password     string        `envconfig:"GIFTCART_REDIS_PASSWORD"`
	DB           int           `envconfig:"GIFTCART_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"GIFTCART_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"GIFTCART_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"GIFTCART_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"GIFTCART_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"GIFTCART_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Configured reports whether a redis endpoint was provided.
func (r RedisConfig) Configured() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type JWTConfig struct {
	Secret string `envconfig:"GIFTCART_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"GIFTCART_JWT_ISSUER" required:"true"`
	// ExpirationMinutes applies to tokens minted by the service itself (dev tooling, tests).
	ExpirationMinutes int `envconfig:"GIFTCART_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"GIFTCART_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"GIFTCART_AUTO_MIGRATE" default:"false"`
}

// BackendConfig points at the commerce backend that owns products and orders.
type BackendConfig struct {
	BaseURL string        `envconfig:"GIFTCART_BACKEND_BASE_URL" required:"true"`
	APIKey  string        `envconfig:"GIFTCART_BACKEND_API_KEY"`
	Timeout time.Duration `envconfig:"GIFTCART_BACKEND_TIMEOUT" default:"10s"`
}

type CartConfig struct {
	Storage           string        `envconfig:"GIFTCART_CART_STORAGE" default:"redis"`
	StorageQuotaBytes int           `envconfig:"GIFTCART_CART_STORAGE_QUOTA_BYTES" default:"5242880"`
	SnapshotTTL       time.Duration `envconfig:"GIFTCART_CART_SNAPSHOT_TTL" default:"720h"`
	SyncDebounce      time.Duration `envconfig:"GIFTCART_CART_SYNC_DEBOUNCE" default:"300ms"`
	SyncTimeout       time.Duration `envconfig:"GIFTCART_CART_SYNC_TIMEOUT" default:"10s"`

	SessionIdleTimeout    time.Duration `envconfig:"GIFTCART_CART_SESSION_IDLE_TIMEOUT" default:"30m"`
	MaintenanceInterval   time.Duration `envconfig:"GIFTCART_CART_MAINTENANCE_INTERVAL" default:"5m"`
	SnapshotPurgeInterval time.Duration `envconfig:"GIFTCART_CART_SNAPSHOT_PURGE_INTERVAL" default:"1h"`
}

// UsesSQL reports whether cart snapshots are persisted through the database.
func (c CartConfig) UsesSQL() bool {
	return strings.EqualFold(strings.TrimSpace(c.Storage), StorageSQL)
}

func (c CartConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Storage)) {
	case StorageRedis, StorageSQL:
	default:
		return fmt.Errorf("%s must be %q or %q, got %q", EnvCartStorage, StorageRedis, StorageSQL, c.Storage)
	}
	if c.SyncDebounce < 0 {
		return fmt.Errorf("%s must not be negative", EnvCartSyncDebounce)
	}
	return nil
}

type CatalogConfig struct {
	CacheTTL time.Duration `envconfig:"GIFTCART_CATALOG_CACHE_TTL" default:"10m"`
}

type DeliveryConfig struct {
	Timezone string `envconfig:"GIFTCART_DELIVERY_TIMEZONE" default:"America/Sao_Paulo"`
}

// Location resolves the configured delivery timezone.
func (d DeliveryConfig) Location() (*time.Location, error) {
	name := strings.TrimSpace(d.Timezone)
	if name == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("loading %s %q: %w", EnvDeliveryTimezone, name, err)
	}
	return loc, nil
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if useSQLite {
		if db.DSN == "" {
			db.DSN = db.SQLitePath
		}
		db.Driver = "sqlite"
		return nil
	}
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
