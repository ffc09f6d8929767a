package config

const EnvPrefix = "TRADELEDGER"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	DBDriverSQLite   = "sqlite"
	DBDriverPostgres = "postgres"

	LockBackendLocal = "local"
	LockBackendRedis = "redis"
)

const (
	EnvAppEnv         = "TRADELEDGER_APP_ENV"
	EnvPort           = "TRADELEDGER_APP_PORT"
	EnvLogLevel       = "TRADELEDGER_LOG_LEVEL"
	EnvDBDriver       = "TRADELEDGER_DB_DRIVER"
	EnvDBDSN          = "TRADELEDGER_DB_DSN"
	EnvDBAutoMigrate  = "TRADELEDGER_DB_AUTO_MIGRATE"
	EnvRedisURL       = "TRADELEDGER_REDIS_URL"
	EnvLockBackend    = "TRADELEDGER_LOCK_BACKEND"
	EnvLockTTL        = "TRADELEDGER_LOCK_TTL"
	EnvRoleGrants     = "TRADELEDGER_ROLE_GRANTS"
	EnvDefaultRole    = "TRADELEDGER_DEFAULT_ROLE"
	EnvSheetPrefix    = "TRADELEDGER_COMMISSION_SHEET_PREFIX"
	EnvInvoicePrefix  = "TRADELEDGER_CUSTOMER_INVOICE_PREFIX"
	EnvPurchasePrefix = "TRADELEDGER_VENDOR_INVOICE_PREFIX"
	EnvCORSOrigins    = "TRADELEDGER_CORS_ORIGINS"
	EnvAuditInterval  = "TRADELEDGER_AUDIT_INTERVAL"
	EnvAuditAutoFix   = "TRADELEDGER_AUDIT_AUTOFIX"
)
