package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	// Clear any env vars that would override defaults
	envVars := []string{
		"SERVICE_NAME", "ENV", "LOG_LEVEL", "PORT",
		"DATABASE_URL", "PG_MAX_CONNS", "REDIS_ADDR", "SIG_LEDGER_PREFIX",
		"NATS_URL", "NATS_SUBJECT_PREFIX", "NATS_STREAM", "RABBITMQ_URL",
		"SETTLEMENT_URL", "SETTLEMENT_TIMEOUT", "WHITELIST_ENABLED",
		"MAX_REQUEST_HORIZON", "EXPIRY_SWEEP_INTERVAL", "DEFAULT_CHAIN", "ADMIN_KEYS",
	}
	for _, key := range envVars {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.ServiceName != "otc-negotiator" {
		t.Errorf("expected ServiceName=otc-negotiator, got %s", cfg.ServiceName)
	}
	if cfg.Env != "dev" {
		t.Errorf("expected Env=dev, got %s", cfg.Env)
	}
	if cfg.Port != 9020 {
		t.Errorf("expected Port=9020, got %d", cfg.Port)
	}
	if cfg.DatabaseURL != "" || cfg.RedisAddr != "" || cfg.NATSURL != "" || cfg.RabbitMQURL != "" {
		t.Errorf("expected optional infrastructure to default off, got %+v", cfg)
	}
	if cfg.SubjectPrefix != "evt.otc" {
		t.Errorf("expected SubjectPrefix=evt.otc, got %s", cfg.SubjectPrefix)
	}
	if cfg.StreamName != "OTC_EVENTS" {
		t.Errorf("expected StreamName=OTC_EVENTS, got %s", cfg.StreamName)
	}
	if cfg.SigLedgerPrefix != "otc:sig:" {
		t.Errorf("expected SigLedgerPrefix=otc:sig:, got %s", cfg.SigLedgerPrefix)
	}
	if cfg.SettlementTimeout != 15*time.Second {
		t.Errorf("expected SettlementTimeout=15s, got %v", cfg.SettlementTimeout)
	}
	if !cfg.WhitelistEnabled {
		t.Error("expected WhitelistEnabled=true")
	}
	if cfg.MaxRequestHorizon != 24*time.Hour {
		t.Errorf("expected MaxRequestHorizon=24h, got %v", cfg.MaxRequestHorizon)
	}
	if cfg.ExpirySweepInterval != 0 {
		t.Errorf("expected ExpirySweepInterval=0 (disabled), got %v", cfg.ExpirySweepInterval)
	}
	if cfg.DefaultChain != "solana" {
		t.Errorf("expected DefaultChain=solana, got %s", cfg.DefaultChain)
	}
	if len(cfg.AdminKeys) != 0 {
		t.Errorf("expected no AdminKeys, got %v", cfg.AdminKeys)
	}
	if cfg.PGMaxConns != 10 {
		t.Errorf("expected PGMaxConns=10, got %d", cfg.PGMaxConns)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ENV", "prod")
	t.Setenv("PORT", "8080")
	t.Setenv("DATABASE_URL", "postgres://otc:otc@db/otc")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("SIG_LEDGER_PREFIX", "desk:sig:")
	t.Setenv("NATS_URL", "nats://nats:4222")
	t.Setenv("SETTLEMENT_TIMEOUT", "5s")
	t.Setenv("SETTLEMENT_RETRIES", "0")
	t.Setenv("WHITELIST_ENABLED", "false")
	t.Setenv("MAX_REQUEST_HORIZON", "2h")
	t.Setenv("EXPIRY_SWEEP_INTERVAL", "30s")
	t.Setenv("DEFAULT_CHAIN", "evm")
	t.Setenv("EXPLORER_NETWORK", "devnet")
	t.Setenv("ADMIN_KEYS", "ops:k1, risk:k2 ,")

	cfg := Load()

	if cfg.Env != "prod" {
		t.Errorf("expected Env=prod, got %s", cfg.Env)
	}
	if cfg.Port != 8080 {
		t.Errorf("expected Port=8080, got %d", cfg.Port)
	}
	if cfg.DatabaseURL != "postgres://otc:otc@db/otc" {
		t.Errorf("unexpected DatabaseURL %s", cfg.DatabaseURL)
	}
	if cfg.RedisAddr != "redis:6379" || cfg.RedisDB != 3 {
		t.Errorf("unexpected redis settings %s/%d", cfg.RedisAddr, cfg.RedisDB)
	}
	if cfg.SigLedgerPrefix != "desk:sig:" {
		t.Errorf("expected SigLedgerPrefix=desk:sig:, got %s", cfg.SigLedgerPrefix)
	}
	if cfg.NATSURL != "nats://nats:4222" {
		t.Errorf("expected NATSURL=nats://nats:4222, got %s", cfg.NATSURL)
	}
	if cfg.SettlementTimeout != 5*time.Second {
		t.Errorf("expected SettlementTimeout=5s, got %v", cfg.SettlementTimeout)
	}
	if cfg.SettlementRetries != 0 {
		t.Errorf("expected SettlementRetries=0, got %d", cfg.SettlementRetries)
	}
	if cfg.WhitelistEnabled {
		t.Error("expected WhitelistEnabled=false")
	}
	if cfg.MaxRequestHorizon != 2*time.Hour {
		t.Errorf("expected MaxRequestHorizon=2h, got %v", cfg.MaxRequestHorizon)
	}
	if cfg.ExpirySweepInterval != 30*time.Second {
		t.Errorf("expected ExpirySweepInterval=30s, got %v", cfg.ExpirySweepInterval)
	}
	if cfg.DefaultChain != "evm" || cfg.ExplorerNetwork != "devnet" {
		t.Errorf("unexpected chain settings %s/%s", cfg.DefaultChain, cfg.ExplorerNetwork)
	}
	if len(cfg.AdminKeys) != 2 || cfg.AdminKeys[0] != "ops:k1" || cfg.AdminKeys[1] != "risk:k2" {
		t.Errorf("unexpected AdminKeys %v", cfg.AdminKeys)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("PORT", "not-a-number")
	t.Setenv("SETTLEMENT_TIMEOUT", "soon")
	t.Setenv("WHITELIST_ENABLED", "maybe")

	cfg := Load()

	if cfg.Port != 9020 {
		t.Errorf("expected Port fallback 9020, got %d", cfg.Port)
	}
	if cfg.SettlementTimeout != 15*time.Second {
		t.Errorf("expected SettlementTimeout fallback 15s, got %v", cfg.SettlementTimeout)
	}
	if !cfg.WhitelistEnabled {
		t.Error("expected WhitelistEnabled fallback true")
	}
}
