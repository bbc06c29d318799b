package config

import (
	"time"

	"github.com/joho/godotenv"

	pkgconfig "github.com/Checker-Finance/private-otc/pkg/config"
)

// Config holds the runtime configuration of the negotiator.
// Everything comes from the environment (or a .env file) with defaults
// suitable for a local stack.
type Config struct {
	ServiceName string // e.g. "otc-negotiator"
	Env         string // "dev", "uat", "prod"
	LogLevel    string
	Port        int

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	HTTPBodyLimit    int

	// Empty DatabaseURL runs on the in-memory store.
	DatabaseURL         string
	PGMaxConns          int
	PGMinConns          int
	PGMaxConnLifetime   time.Duration
	PGMaxConnIdleTime   time.Duration
	PGHealthCheckPeriod time.Duration

	// Empty RedisAddr keeps the used-signature ledger in the primary store.
	RedisAddr       string
	RedisDB         int
	RedisPass       string
	SigLedgerPrefix string

	// Empty NATSURL disables JetStream event publishing.
	NATSURL       string
	SubjectPrefix string
	StreamName    string

	// Empty RabbitMQURL disables the fill/cancel queues.
	RabbitMQURL string

	SettlementURL       string
	SettlementAPIKey    string
	SettlementTimeout   time.Duration
	SettlementRetries   int
	SettlementRateLimit int
	SettlementBurst     int

	WhitelistEnabled    bool
	MaxRequestHorizon   time.Duration
	// ExpirySweepInterval enables the background sweep when positive.
	// Expiry is always evaluated on read regardless.
	ExpirySweepInterval time.Duration
	DefaultChain        string
	ExplorerNetwork     string // "" for mainnet, e.g. "devnet"

	// AdminKeys are static "<adminId>:<apiKey>" credentials. When empty the
	// keys are resolved from AWS Secrets Manager.
	AdminKeys   []string
	AWSRegion   string
	CacheTTL    time.Duration
	CleanupFreq time.Duration
}

// Load loads configuration from environment variables and .env file if present.
func Load() *Config {
	// load .env silently (no error if missing)
	_ = godotenv.Load()

	return &Config{
		ServiceName: pkgconfig.GetEnv("SERVICE_NAME", "otc-negotiator"),
		Env:         pkgconfig.GetEnv("ENV", "dev"),
		LogLevel:    pkgconfig.GetEnv("LOG_LEVEL", "info"),
		Port:        pkgconfig.GetEnvInt("PORT", 9020),

		HTTPReadTimeout:  pkgconfig.GetEnvDuration("HTTP_READ_TIMEOUT", 10*time.Second),
		HTTPWriteTimeout: pkgconfig.GetEnvDuration("HTTP_WRITE_TIMEOUT", 30*time.Second),
		HTTPIdleTimeout:  pkgconfig.GetEnvDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
		HTTPBodyLimit:    pkgconfig.GetEnvInt("HTTP_BODY_LIMIT", 1*1024*1024),

		DatabaseURL:         pkgconfig.GetEnv("DATABASE_URL", ""),
		PGMaxConns:          pkgconfig.GetEnvInt("PG_MAX_CONNS", 10),
		PGMinConns:          pkgconfig.GetEnvInt("PG_MIN_CONNS", 2),
		PGMaxConnLifetime:   pkgconfig.GetEnvDuration("PG_MAX_CONN_LIFETIME", 30*time.Minute),
		PGMaxConnIdleTime:   pkgconfig.GetEnvDuration("PG_MAX_CONN_IDLE_TIME", 5*time.Minute),
		PGHealthCheckPeriod: pkgconfig.GetEnvDuration("PG_HEALTH_CHECK_PERIOD", 1*time.Minute),

		RedisAddr:       pkgconfig.GetEnv("REDIS_ADDR", ""),
		RedisDB:         pkgconfig.GetEnvInt("REDIS_DB", 0),
		RedisPass:       pkgconfig.GetEnv("REDIS_PASS", ""),
		SigLedgerPrefix: pkgconfig.GetEnv("SIG_LEDGER_PREFIX", "otc:sig:"),

		NATSURL:       pkgconfig.GetEnv("NATS_URL", ""),
		SubjectPrefix: pkgconfig.GetEnv("NATS_SUBJECT_PREFIX", "evt.otc"),
		StreamName:    pkgconfig.GetEnv("NATS_STREAM", "OTC_EVENTS"),

		RabbitMQURL: pkgconfig.GetEnv("RABBITMQ_URL", ""),

		SettlementURL:       pkgconfig.GetEnv("SETTLEMENT_URL", "http://localhost:8090"),
		SettlementAPIKey:    pkgconfig.GetEnv("SETTLEMENT_API_KEY", ""),
		SettlementTimeout:   pkgconfig.GetEnvDuration("SETTLEMENT_TIMEOUT", 15*time.Second),
		SettlementRetries:   pkgconfig.GetEnvInt("SETTLEMENT_RETRIES", 2),
		SettlementRateLimit: pkgconfig.GetEnvInt("SETTLEMENT_RPS", 20),
		SettlementBurst:     pkgconfig.GetEnvInt("SETTLEMENT_BURST", 40),

		WhitelistEnabled:    pkgconfig.GetEnvBool("WHITELIST_ENABLED", true),
		MaxRequestHorizon:   pkgconfig.GetEnvDuration("MAX_REQUEST_HORIZON", 24*time.Hour),
		ExpirySweepInterval: pkgconfig.GetEnvDuration("EXPIRY_SWEEP_INTERVAL", 0),
		DefaultChain:        pkgconfig.GetEnv("DEFAULT_CHAIN", "solana"),
		ExplorerNetwork:     pkgconfig.GetEnv("EXPLORER_NETWORK", ""),

		AdminKeys:   pkgconfig.GetEnvList("ADMIN_KEYS", nil),
		AWSRegion:   pkgconfig.GetEnv("AWS_REGION", "us-east-2"),
		CacheTTL:    pkgconfig.GetEnvDuration("CACHE_TTL", 1*time.Hour),
		CleanupFreq: pkgconfig.GetEnvDuration("CACHE_CLEANUP_FREQ", 10*time.Minute),
	}
}
