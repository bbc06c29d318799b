package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Checker-Finance/private-otc/internal/adminauth"
	"github.com/Checker-Finance/private-otc/internal/api"
	"github.com/Checker-Finance/private-otc/internal/config"
	"github.com/Checker-Finance/private-otc/internal/jobs"
	"github.com/Checker-Finance/private-otc/internal/messaging"
	"github.com/Checker-Finance/private-otc/internal/negotiation"
	"github.com/Checker-Finance/private-otc/internal/publisher"
	"github.com/Checker-Finance/private-otc/internal/rabbitmq"
	"github.com/Checker-Finance/private-otc/internal/rate"
	"github.com/Checker-Finance/private-otc/internal/settlement"
	"github.com/Checker-Finance/private-otc/internal/sigauth"
	"github.com/Checker-Finance/private-otc/internal/store"
	"github.com/Checker-Finance/private-otc/pkg/chain"
	"github.com/Checker-Finance/private-otc/pkg/eventbus"
	"github.com/Checker-Finance/private-otc/pkg/logger"
	"github.com/Checker-Finance/private-otc/pkg/secrets"
	"github.com/Checker-Finance/private-otc/pkg/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Load configuration ---
	cfg := config.Load()

	logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	defer logger.Sync()
	logg := logger.S()
	logg.Infof("starting [%s]...", cfg.ServiceName)

	var checks []api.HealthCheck

	// --- Store (Postgres, or in-memory for local runs) ---
	var st store.Store
	if cfg.DatabaseURL != "" {
		logg.Info("connection to DSN: ", utils.MaskDSN(cfg.DatabaseURL))
		pg, err := store.NewPostgres(ctx, cfg.DatabaseURL, store.PGPoolConfig{
			MaxConns:          int32(cfg.PGMaxConns),
			MinConns:          int32(cfg.PGMinConns),
			MaxConnLifetime:   cfg.PGMaxConnLifetime,
			MaxConnIdleTime:   cfg.PGMaxConnIdleTime,
			HealthCheckPeriod: cfg.PGHealthCheckPeriod,
		}, logger.Named("store"))
		if err != nil {
			logg.Fatalw("failed to init postgres store", "error", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			logg.Fatalw("failed to apply schema", "error", err)
		}
		st = pg
	} else {
		logg.Warn("DATABASE_URL not configured; using in-memory store")
		st = store.NewMemory()
	}
	checks = append(checks, api.HealthCheck{Name: "store", Check: st.HealthCheck})

	// --- Used-signature ledger (Redis, optional) ---
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		var err error
		rdb, err = store.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		if err != nil {
			logg.Fatalw("failed to connect to redis", "error", err)
		}
		ledger := store.NewRedisLedger(rdb, cfg.SigLedgerPrefix, logger.Named("sig-ledger"))
		st = store.WithLedger(st, ledger)
		checks = append(checks, api.HealthCheck{Name: "redis", Check: ledger.HealthCheck})
	}

	auth := sigauth.NewService(logger.Named("sigauth"), st)

	// --- Admin credentials (static table or AWS Secrets Manager) ---
	admins, stopCleaner := newAdminAuthenticator(ctx, cfg, logg.Desugar())
	defer close(stopCleaner)

	// --- Settlement collaborator ---
	settle := settlement.NewClient(logger.Named("settlement"), settlement.Config{
		BaseURL:  cfg.SettlementURL,
		APIKey:   cfg.SettlementAPIKey,
		Timeout:  cfg.SettlementTimeout,
		RetryMax: cfg.SettlementRetries,
		RateLimit: rate.Config{
			RequestsPerSecond: cfg.SettlementRateLimit,
			Burst:             cfg.SettlementBurst,
		},
	}, &http.Client{Timeout: cfg.SettlementTimeout})
	checks = append(checks, api.HealthCheck{Name: "settlement", Check: settle.HealthCheck})

	// --- Event fan-out ---
	bus := eventbus.New(logger.Named("eventbus"))

	var nc *nats.Conn
	if cfg.NATSURL != "" {
		var err error
		nc, err = nats.Connect(cfg.NATSURL, nats.Name(cfg.ServiceName))
		if err != nil {
			logg.Fatalw("failed to connect to NATS", "error", err)
		}
		pub, err := publisher.New(nc, cfg.SubjectPrefix, cfg.ServiceName, logger.Named("publisher"))
		if err != nil {
			logg.Fatalw("failed to init publisher", "error", err)
		}
		if err := pub.EnsureStream(cfg.StreamName); err != nil {
			logg.Warnw("failed to ensure JetStream stream", "stream", cfg.StreamName, "error", err)
		}
		pub.Attach(bus)
		checks = append(checks, api.HealthCheck{Name: "nats", Check: pub.HealthCheck})
	}

	var mq *rabbitmq.Publisher
	if cfg.RabbitMQURL != "" {
		var err error
		mq, err = rabbitmq.NewPublisher(cfg.RabbitMQURL, logger.Named("rabbitmq"))
		if err != nil {
			logg.Fatalw("failed to init rabbitmq publisher", "error", err)
		}
		mq.Attach(bus)
	}

	// --- Core services ---
	defaultChain, err := chain.Parse(cfg.DefaultChain)
	if err != nil {
		logg.Fatalw("invalid DEFAULT_CHAIN", "error", err)
	}

	whitelist := messaging.NewWhitelist(logger.Named("whitelist"), st, admins, auth)
	negotiator := negotiation.NewService(logger.Named("negotiation"), negotiation.Config{
		MaxRequestHorizon: cfg.MaxRequestHorizon,
		SettlementTimeout: cfg.SettlementTimeout,
		WhitelistEnabled:  cfg.WhitelistEnabled,
		DefaultChain:      defaultChain,
		ExplorerNetwork:   cfg.ExplorerNetwork,
	}, st, auth, settle, whitelist, bus)
	messenger := messaging.NewService(logger.Named("messaging"), negotiator, st, auth)

	// --- Expiry sweeper (opt-in; reads expire rows lazily either way) ---
	var sweeper *jobs.ExpirySweeper
	if cfg.ExpirySweepInterval > 0 {
		sweeper = jobs.NewExpirySweeper(logger.Named("jobs"), st, cfg.ExpirySweepInterval)
		go sweeper.Start(ctx)
	}

	// --- Fiber HTTP Server ---
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
		BodyLimit:    cfg.HTTPBodyLimit,
	})
	handler := api.NewHandler(logger.Named("api"), negotiator, messenger, whitelist)
	api.RegisterRoutes(app, handler, checks...)

	go func() {
		logg.Infof("HTTP API listening on :%d", cfg.Port)
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logg.Fatalw("fiber.listen_failed", "error", err)
		}
	}()

	logg.Infow("["+cfg.ServiceName+"] running",
		"env", cfg.Env,
		"whitelist_enabled", cfg.WhitelistEnabled,
		"default_chain", defaultChain.String(),
		"nats", cfg.NATSURL != "",
		"rabbitmq", cfg.RabbitMQURL != "",
		"redis_ledger", rdb != nil)

	<-ctx.Done()
	logg.Infof("shutting down [%s]...", cfg.ServiceName)

	if sweeper != nil {
		sweeper.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logg.Warnw("fiber.shutdown_failed", "error", err)
	}
	bus.Wait()
	if mq != nil {
		if err := mq.Close(); err != nil {
			logg.Warnw("rabbitmq.close_failed", "error", err)
		}
	}
	if nc != nil {
		if err := nc.Drain(); err != nil {
			logg.Warnw("nats.drain_failed", "error", err)
		}
	}
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			logg.Warnw("redis.close_failed", "error", err)
		}
	}
	if err := st.Close(); err != nil {
		logg.Warnw("store.close_failed", "error", err)
	}
}

// newAdminAuthenticator prefers the static ADMIN_KEYS table and falls back
// to AWS Secrets Manager. The returned channel stops the cache cleaner.
func newAdminAuthenticator(ctx context.Context, cfg *config.Config, log *zap.Logger) (adminauth.Authenticator, chan struct{}) {
	stopCleaner := make(chan struct{})
	if len(cfg.AdminKeys) > 0 {
		static, err := adminauth.NewStatic(cfg.AdminKeys)
		if err != nil {
			log.Fatal("invalid ADMIN_KEYS", zap.Error(err))
		}
		log.Info("admin credentials loaded from environment", zap.Int("count", len(cfg.AdminKeys)))
		return static, stopCleaner
	}

	awsProvider, err := secrets.NewAWSProvider(ctx, cfg.AWSRegion)
	if err != nil {
		log.Fatal("failed to create AWS Secrets Manager provider", zap.Error(err))
	}
	cache := secrets.NewCache[string](cfg.CacheTTL)
	go cache.StartCleaner(cfg.CleanupFreq, stopCleaner)
	return adminauth.NewSecretsAuthenticator(log.Named("adminauth"), cfg.Env, awsProvider, cache), stopCleaner
}
