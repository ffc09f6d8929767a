package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App         AppConfig
	DB          DBConfig
	Redis       RedisConfig
	Locks       LockConfig
	Permissions PermissionsConfig
	Numbering   NumberingConfig
	Scheduler   SchedulerConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	c.DB.Driver = strings.ToLower(strings.TrimSpace(c.DB.Driver))
	switch c.DB.Driver {
	case DBDriverSQLite, DBDriverPostgres:
	default:
		return fmt.Errorf("%s must be one of %s, %s", EnvDBDriver, DBDriverSQLite, DBDriverPostgres)
	}
	if c.DB.DSN == "" {
		return fmt.Errorf("%s is required", EnvDBDSN)
	}

	c.Locks.Backend = strings.ToLower(strings.TrimSpace(c.Locks.Backend))
	switch c.Locks.Backend {
	case LockBackendLocal:
	case LockBackendRedis:
		if !c.Redis.Enabled() {
			return fmt.Errorf("%s=%s requires %s", EnvLockBackend, LockBackendRedis, EnvRedisURL)
		}
	default:
		return fmt.Errorf("%s must be one of %s, %s", EnvLockBackend, LockBackendLocal, LockBackendRedis)
	}
	return nil
}

type AppConfig struct {
	Env          string `envconfig:"TRADELEDGER_APP_ENV" default:"dev"`
	Port         string `envconfig:"TRADELEDGER_APP_PORT" default:"8765"`
	LogLevel     string `envconfig:"TRADELEDGER_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TRADELEDGER_LOG_WARN_STACK" default:"false"`

	// CORSOrigins lists the UI shells allowed to call the API.
	CORSOrigins []string `envconfig:"TRADELEDGER_CORS_ORIGINS" default:"http://localhost:3000,http://localhost:5173"`

	// Audit runs scan every document; zero disables the limit.
	AuditRatePerMinute float64 `envconfig:"TRADELEDGER_AUDIT_RATE_PER_MINUTE" default:"6"`
	AuditRateBurst     int     `envconfig:"TRADELEDGER_AUDIT_RATE_BURST" default:"2"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	Driver      string `envconfig:"TRADELEDGER_DB_DRIVER" default:"sqlite"`
	DSN         string `envconfig:"TRADELEDGER_DB_DSN" default:"file:tradeledger.db?_foreign_keys=on&_busy_timeout=5000"`
	AutoMigrate bool   `envconfig:"TRADELEDGER_DB_AUTO_MIGRATE" default:"true"`

	MaxOpenConns    int           `envconfig:"TRADELEDGER_DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"TRADELEDGER_DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"TRADELEDGER_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TRADELEDGER_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the embedded single-file store is configured.
func (d DBConfig) IsSQLite() bool {
	return d.Driver == DBDriverSQLite
}

type RedisConfig struct {
	URL          string        `envconfig:"TRADELEDGER_REDIS_URL"`
	Password     string        `envconfig:"TRADELEDGER_REDIS_PASSWORD"`
	DB           int           `envconfig:"TRADELEDGER_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TRADELEDGER_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TRADELEDGER_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TRADELEDGER_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TRADELEDGER_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TRADELEDGER_REDIS_WRITE_TIMEOUT" default:"5s"`

	IdempotencyTTL time.Duration `envconfig:"TRADELEDGER_IDEMPOTENCY_TTL" default:"24h"`
}

// Enabled reports whether a Redis endpoint was configured. Redis is optional
// for the desktop build and only backs distributed locks and idempotency.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != ""
}

type LockConfig struct {
	Backend       string        `envconfig:"TRADELEDGER_LOCK_BACKEND" default:"local"`
	TTL           time.Duration `envconfig:"TRADELEDGER_LOCK_TTL" default:"30s"`
	RetryInterval time.Duration `envconfig:"TRADELEDGER_LOCK_RETRY_INTERVAL" default:"25ms"`
	WaitTimeout   time.Duration `envconfig:"TRADELEDGER_LOCK_WAIT_TIMEOUT" default:"10s"`
}

// PermissionsConfig maps actor roles to "|"-separated permission grants,
// for example "clerk:inventory.read|invoices.read".
type PermissionsConfig struct {
	Grants      map[string]string `envconfig:"TRADELEDGER_ROLE_GRANTS"`
	DefaultRole string            `envconfig:"TRADELEDGER_DEFAULT_ROLE" default:"owner"`
}

// RoleGrants expands the configured grant strings.
func (p PermissionsConfig) RoleGrants() map[string][]string {
	out := make(map[string][]string, len(p.Grants))
	for role, raw := range p.Grants {
		role = strings.ToLower(strings.TrimSpace(role))
		if role == "" {
			continue
		}
		for _, grant := range strings.Split(raw, "|") {
			if grant = strings.TrimSpace(grant); grant != "" {
				out[role] = append(out[role], grant)
			}
		}
	}
	return out
}

type NumberingConfig struct {
	CustomerInvoicePrefix string `envconfig:"TRADELEDGER_CUSTOMER_INVOICE_PREFIX" default:"INV-"`
	VendorInvoicePrefix   string `envconfig:"TRADELEDGER_VENDOR_INVOICE_PREFIX" default:"PUR-"`
	CommissionSheetPrefix string `envconfig:"TRADELEDGER_COMMISSION_SHEET_PREFIX" default:"ATC-"`
}

// SchedulerConfig drives the periodic drift audit run by the API process.
type SchedulerConfig struct {
	AuditEnabled  bool          `envconfig:"TRADELEDGER_AUDIT_ENABLED" default:"true"`
	AuditInterval time.Duration `envconfig:"TRADELEDGER_AUDIT_INTERVAL" default:"6h"`
	AuditAutoFix  bool          `envconfig:"TRADELEDGER_AUDIT_AUTOFIX" default:"false"`
}
