package handler

import (
	"finguard-ledger/internal/adapter/http/middleware"
	"finguard-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	TransferSvc    ports.TransferService
	RollbackSvc    ports.RollbackService
	BackupSvc      ports.BackupService
	AuditSvc       ports.AuditService
	SweepSvc       ports.SweepService
	LedgerSvc      ports.LedgerService
	ReportingSvc   ports.ReportingService
	TokenSvc       ports.TokenService
	RateLimiter    middleware.Limiter // nil = rate limiting disabled
	RateLimitRules map[string]middleware.RateLimitRule
	HealthCheckers []ports.HealthChecker
	MaxBodySize    int64
	SweepHours     int
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	maxBody := deps.MaxBodySize
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	r.Use(middleware.MaxBodySize(maxBody))

	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	swagger := r.Group("/swagger")
	{
		swagger.GET("", SwaggerUI)
		swagger.GET("/spec", SwaggerSpec)
	}

	rules := middleware.DefaultRateLimitRules()
	for group, rule := range deps.RateLimitRules {
		rules[group] = rule
	}

	// Rate limiter middleware for a group, or a noop when disabled.
	rl := func(group string) gin.HandlerFunc {
		rule, ok := rules[group]
		if deps.RateLimiter == nil || !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimiter, group, rule, deps.Logger)
	}

	v1 := r.Group("/api/v1", middleware.JWTAuth(deps.TokenSvc, deps.Logger))

	txHandler := NewTransactionHandler(deps.TransferSvc, deps.ReportingSvc)
	v1.POST("/transfers", rl(middleware.GroupTransfers), txHandler.CreateTransfer)

	transactions := v1.Group("/transactions", rl(middleware.GroupReads))
	{
		transactions.GET("/:id/status", txHandler.GetStatus)
		transactions.GET("/:id/verify", txHandler.Verify)
	}

	me := v1.Group("/accounts/me", rl(middleware.GroupReads))
	{
		me.GET("/balance", txHandler.MyBalance)
		me.GET("/transactions", txHandler.MyHistory)
	}

	adminHandler := NewAdminHandler(AdminServices{
		Transfers: deps.TransferSvc,
		Rollbacks: deps.RollbackSvc,
		Backups:   deps.BackupSvc,
		Audit:     deps.AuditSvc,
		Sweep:     deps.SweepSvc,
		Ledger:    deps.LedgerSvc,
		Reporting: deps.ReportingSvc,
	}, deps.SweepHours)

	admin := v1.Group("/admin", middleware.RequireRole(ports.RoleAdmin), rl(middleware.GroupAdmin))
	{
		admin.POST("/accounts", adminHandler.OpenAccount)
		admin.POST("/deposits", adminHandler.Deposit)
		admin.POST("/withdrawals", adminHandler.Withdraw)
		admin.POST("/rollbacks", adminHandler.Rollback)
		admin.POST("/backups", adminHandler.Backup)
		admin.POST("/restores", adminHandler.Restore)
		admin.POST("/sweeps", adminHandler.Sweep)
		admin.GET("/audit", adminHandler.ListAudit)
		admin.GET("/ledger/validate", adminHandler.ValidateLedger)
		admin.GET("/ledger/stats", adminHandler.LedgerStats)
		admin.GET("/transactions/failed", adminHandler.FailedTransactions)
	}

	return r
}
