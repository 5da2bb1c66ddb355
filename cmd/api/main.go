package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"finguard-ledger/config"
	httpHandler "finguard-ledger/internal/adapter/http/handler"
	"finguard-ledger/internal/adapter/http/middleware"
	memStorage "finguard-ledger/internal/adapter/storage/memory"
	pgStorage "finguard-ledger/internal/adapter/storage/postgres"
	redisStorage "finguard-ledger/internal/adapter/storage/redis"
	"finguard-ledger/internal/core/ports"
	"finguard-ledger/internal/service"
	"finguard-ledger/pkg/clock"
	"finguard-ledger/pkg/logger"
	"finguard-ledger/pkg/retry"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// storage bundles the repositories of one storage driver.
type storage struct {
	accounts     ports.AccountRepository
	transactions ports.TransactionRepository
	ledger       ports.LedgerStore
	rollbacks    ports.RollbackRepository
	backups      ports.BackupRepository
	audit        ports.AuditRepository
	outbox       ports.OutboxRepository
	fraudFlags   ports.FraudFlagRepository
	idempRepo    ports.IdempotencyRepository
	transactor   ports.DBTransactor
	health       ports.HealthChecker
	close        func()
}

func main() {
	cfg, err := config.Load(os.Getenv("FGL_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)
	if cfg.JWT.Secret == "" {
		log.Fatal().Msg("jwt.secret must be set")
	}
	gin.SetMode(cfg.Server.Mode)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Str("storage", cfg.Storage.Driver).
		Str("locks", cfg.Lock.Backend).
		Msg("Starting FinGuard ledger")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := clock.Real{}

	store, err := openStorage(ctx, cfg, clk, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer store.close()

	healthCheckers := []ports.HealthChecker{store.health}

	// Redis serves locks and rate limits, and fronts idempotency lookups
	// whenever it is connected.
	var rdb goredis.UniversalClient
	if cfg.Lock.Backend == "redis" || cfg.RateLimit.Enabled {
		rdb, err = redisStorage.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()
		healthCheckers = append(healthCheckers, redisStorage.NewHealthCheck(rdb))
		log.Info().Msg("Redis connected")
	}

	var locks ports.LockManager
	if cfg.Lock.Backend == "redis" {
		locks = redisStorage.NewLockManager(rdb, cfg.Lock, logger.Component(log, "locks"))
	} else {
		locks = memStorage.NewLockManager(time.Duration(cfg.Lock.Tries) * cfg.Lock.RetryDelay)
	}

	var idempCache ports.IdempotencyCache
	if rdb != nil {
		idempCache = redisStorage.NewIdempotencyCache(rdb)
	} else {
		idempCache = memStorage.NewIdempotencyCache(clk)
	}

	largeAmount, _ := cfg.Fraud.LargeAmountDecimal()
	tolerance, _ := cfg.Fraud.ToleranceDecimal()

	// Services
	auditSvc := service.NewAuditService(store.audit, clk, retry.Policy{
		Attempts: cfg.Audit.AppendAttempts,
		Base:     cfg.Audit.AppendBackoff,
	}, logger.Component(log, "audit"))
	ledgerSvc := service.NewLedgerService(store.ledger, store.transactor, clk, logger.Component(log, "ledger"))
	fraudSink := service.NewFraudSink(store.fraudFlags, clk, logger.Component(log, "fraud"))
	validator := service.NewValidationEngine(ledgerSvc, fraudSink, service.ValidationPolicy{
		Nonblocking: cfg.Fraud.Nonblocking,
		LargeAmount: largeAmount,
		Tolerance:   tolerance,
	}, logger.Component(log, "validation"))
	transferSvc := service.NewTransferService(service.TransferDeps{
		Accounts:     store.accounts,
		Transactions: store.transactions,
		Ledger:       ledgerSvc,
		Validator:    validator,
		Outbox:       store.outbox,
		IdempRepo:    store.idempRepo,
		IdempCache:   idempCache,
		Locks:        locks,
		Transactor:   store.transactor,
		Clock:        clk,
	}, retry.Policy{Attempts: cfg.Ledger.AppendAttempts, Base: cfg.Ledger.AppendBackoff}, logger.Component(log, "transfer"))
	rollbackSvc := service.NewRollbackService(store.transactions, store.rollbacks, transferSvc, locks, auditSvc, clk, cfg.Rollback.Window, logger.Component(log, "rollback"))
	backupSvc := service.NewBackupService(store.accounts, store.backups, transferSvc, locks, store.transactor, auditSvc, clk, cfg.Backup.ReconcileOnRestore, logger.Component(log, "backup"))
	sweepSvc := service.NewSweepService(store.transactions, ledgerSvc, rollbackSvc, auditSvc, locks, store.transactor, clk, cfg.Rollback.Window, cfg.Sweep.BatchSize, logger.Component(log, "sweep"))
	reportingSvc := service.NewReportingService(store.transactions, store.accounts, ledgerSvc, rollbackSvc)
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer, clk)

	genesis, err := ledgerSvc.EnsureGenesis(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise ledger")
	}
	log.Info().Str("genesis_hash", genesis.Hash).Msg("Ledger ready")

	// Background workers
	var workers sync.WaitGroup
	if cfg.Sweep.Enabled {
		scheduler := service.NewSweepScheduler(sweepSvc, locks, auditSvc, cfg.Sweep.Interval, cfg.Sweep.HoursThreshold, cfg.Sweep.ActorID, logger.Component(log, "scheduler"))
		workers.Add(1)
		go func() {
			defer workers.Done()
			scheduler.Run(ctx)
		}()
	}
	if cfg.Mirror.Enabled {
		publisher := service.NewHTTPMirrorPublisher(cfg.Mirror.URL, cfg.Mirror.Secret,
			service.NewHMACSignatureService(), &http.Client{Timeout: cfg.Mirror.Timeout}, clk)
		dispatcher := service.NewMirrorDispatcher(store.outbox, publisher, service.MirrorDispatcherConfig{
			PollInterval: cfg.Mirror.PollInterval,
			BatchSize:    cfg.Mirror.BatchSize,
			MaxAttempts:  cfg.Mirror.MaxAttempts,
			Timeout:      cfg.Mirror.Timeout,
		}, logger.Component(log, "mirror"))
		workers.Add(1)
		go func() {
			defer workers.Done()
			dispatcher.Run(ctx)
		}()
	}

	if specBytes, err := os.ReadFile(cfg.Server.OpenAPIPath); err == nil {
		httpHandler.SetSwaggerSpec(specBytes)
		log.Info().Msg("OpenAPI spec loaded for Swagger UI at /swagger")
	} else {
		log.Warn().Err(err).Msg("OpenAPI spec not found, Swagger UI will be unavailable")
	}

	deps := httpHandler.RouterDeps{
		TransferSvc:    transferSvc,
		RollbackSvc:    rollbackSvc,
		BackupSvc:      backupSvc,
		AuditSvc:       auditSvc,
		SweepSvc:       sweepSvc,
		LedgerSvc:      ledgerSvc,
		ReportingSvc:   reportingSvc,
		TokenSvc:       tokenSvc,
		HealthCheckers: healthCheckers,
		MaxBodySize:    cfg.Server.MaxBodySize,
		SweepHours:     cfg.Sweep.HoursThreshold,
		Logger:         log,
	}
	if cfg.RateLimit.Enabled {
		deps.RateLimiter = redisStorage.NewRateLimitStore(rdb, clk)
		deps.RateLimitRules = map[string]middleware.RateLimitRule{
			middleware.GroupTransfers: {Limit: cfg.RateLimit.TransferLimit, Window: cfg.RateLimit.TransferWindow},
			middleware.GroupAdmin:     {Limit: cfg.RateLimit.AdminLimit, Window: cfg.RateLimit.AdminWindow},
		}
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpHandler.SetupRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	workers.Wait()
	fraudSink.Wait()

	if n, err := auditSvc.FlushBacklog(shutdownCtx); err != nil {
		log.Error().Err(err).Int("flushed", n).Msg("Audit backlog not fully flushed")
	}

	log.Info().Msg("Server exited")
}

func openStorage(ctx context.Context, cfg *config.Config, clk clock.Clock, log zerolog.Logger) (*storage, error) {
	if cfg.Storage.Driver == "memory" {
		log.Warn().Msg("Using in-memory storage; data is lost on exit")
		s := memStorage.NewStore(clk)
		return &storage{
			accounts:     memStorage.NewAccountRepo(s),
			transactions: memStorage.NewTransactionRepo(s),
			ledger:       memStorage.NewLedgerRepo(s),
			rollbacks:    memStorage.NewRollbackRepo(s),
			backups:      memStorage.NewBackupRepo(s),
			audit:        memStorage.NewAuditRepo(s),
			outbox:       memStorage.NewOutboxRepo(s),
			fraudFlags:   memStorage.NewFraudFlagRepo(s),
			idempRepo:    memStorage.NewIdempotencyRepo(s),
			transactor:   memStorage.NewTransactor(s),
			health:       memStorage.NewHealthCheck(),
			close:        func() {},
		}, nil
	}

	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	log.Info().Msg("PostgreSQL connected")
	return &storage{
		accounts:     pgStorage.NewAccountRepo(pool),
		transactions: pgStorage.NewTransactionRepo(pool),
		ledger:       pgStorage.NewLedgerRepo(pool),
		rollbacks:    pgStorage.NewRollbackRepo(pool),
		backups:      pgStorage.NewBackupRepo(pool),
		audit:        pgStorage.NewAuditRepo(pool),
		outbox:       pgStorage.NewOutboxRepo(pool),
		fraudFlags:   pgStorage.NewFraudFlagRepo(pool),
		idempRepo:    pgStorage.NewIdempotencyRepo(pool),
		transactor:   pgStorage.NewTransactor(pool),
		health:       pgStorage.NewHealthCheck(pool),
		close:        pool.Close,
	}, nil
}
