package handler

import (
	"context"
	"strings"

	"finguard-ledger/internal/adapter/http/dto"
	"finguard-ledger/internal/core/domain"
	"finguard-ledger/internal/core/ports"
	"finguard-ledger/pkg/apperror"
	"finguard-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AdminServices groups the services behind the admin endpoints.
type AdminServices struct {
	Transfers ports.TransferService
	Rollbacks ports.RollbackService
	Backups   ports.BackupService
	Audit     ports.AuditService
	Sweep     ports.SweepService
	Ledger    ports.LedgerService
	Reporting ports.ReportingService
}

// AdminHandler serves the integrity operations reserved for admins.
type AdminHandler struct {
	svc                   AdminServices
	defaultHoursThreshold int
}

// NewAdminHandler creates a new AdminHandler. Manual sweeps without an
// explicit threshold use defaultHours.
func NewAdminHandler(svc AdminServices, defaultHours int) *AdminHandler {
	return &AdminHandler{svc: svc, defaultHoursThreshold: defaultHours}
}

func (h *AdminHandler) actor(c *gin.Context) (string, bool) {
	uid, ok := currentUser(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
	}
	return uid, ok
}

// Rollback handles POST /api/v1/admin/rollbacks.
func (h *AdminHandler) Rollback(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var req dto.RollbackRequest
	if !bindJSON(c, &req) {
		return
	}
	dto.SanitizeStruct(&req)

	result, err := h.svc.Rollbacks.Rollback(c.Request.Context(), uuid.MustParse(req.TransactionID), req.Reason, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Backup handles POST /api/v1/admin/backups.
func (h *AdminHandler) Backup(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var req dto.BackupRequest
	if !bindJSON(c, &req) {
		return
	}
	dto.SanitizeStruct(&req)

	backup, err := h.svc.Backups.BackupBalance(c.Request.Context(), req.UserID, req.OperationType, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, toBackupResponse(backup))
}

// Restore handles POST /api/v1/admin/restores.
func (h *AdminHandler) Restore(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var req dto.RestoreRequest
	if !bindJSON(c, &req) {
		return
	}
	dto.SanitizeStruct(&req)

	result, err := h.svc.Backups.RestoreBalance(c.Request.Context(), uuid.MustParse(req.BackupID), req.Reason, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// Sweep handles POST /api/v1/admin/sweeps. An empty body runs with the
// configured threshold.
func (h *AdminHandler) Sweep(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var req dto.SweepRequest
	if c.Request.ContentLength != 0 {
		if !bindJSON(c, &req) {
			return
		}
	}
	hours := req.HoursThreshold
	if hours == 0 {
		hours = h.defaultHoursThreshold
	}

	result, err := h.svc.Sweep.AutoRollbackStale(c.Request.Context(), hours, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// ListAudit handles GET /api/v1/admin/audit?limit&operation_type.
func (h *AdminHandler) ListAudit(c *gin.Context) {
	limit, err := queryInt(c, "limit", 100)
	if err != nil {
		response.Error(c, err)
		return
	}

	var op *domain.AuditOperation
	if raw := strings.TrimSpace(c.Query("operation_type")); raw != "" {
		parsed := domain.AuditOperation(strings.ToUpper(raw))
		if !parsed.Valid() {
			response.Error(c, apperror.Validation("unknown operation_type"))
			return
		}
		op = &parsed
	}

	entries, err := h.svc.Audit.List(c.Request.Context(), limit, op)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.List(c, entries, len(entries), limit, 0)
}

// ValidateLedger handles GET /api/v1/admin/ledger/validate.
func (h *AdminHandler) ValidateLedger(c *gin.Context) {
	report, err := h.svc.Ledger.Validate(c.Request.Context())
	if err != nil {
		response.Error(c, apperror.InternalError(err))
		return
	}
	response.OK(c, report)
}

// LedgerStats handles GET /api/v1/admin/ledger/stats.
func (h *AdminHandler) LedgerStats(c *gin.Context) {
	stats, err := h.svc.Ledger.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, apperror.InternalError(err))
		return
	}
	response.OK(c, stats)
}

// FailedTransactions handles GET /api/v1/admin/transactions/failed.
func (h *AdminHandler) FailedTransactions(c *gin.Context) {
	limit, err := queryInt(c, "limit", 50)
	if err != nil {
		response.Error(c, err)
		return
	}

	txns, err := h.svc.Reporting.FailedTransactions(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	out := make([]dto.TransactionResponse, 0, len(txns))
	for i := range txns {
		out = append(out, toTransactionResponse(&txns[i]))
	}
	response.List(c, out, len(out), limit, 0)
}

// OpenAccount handles POST /api/v1/admin/accounts.
func (h *AdminHandler) OpenAccount(c *gin.Context) {
	var req dto.AccountRequest
	if !bindJSON(c, &req) {
		return
	}
	dto.SanitizeStruct(&req)

	acc, err := h.svc.Transfers.OpenAccount(c.Request.Context(), req.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.AccountResponse{
		UserID:  acc.UserID,
		Balance: acc.Balance.StringFixed(domain.MoneyScale),
	})
}

// Deposit handles POST /api/v1/admin/deposits.
func (h *AdminHandler) Deposit(c *gin.Context) {
	h.moveFunds(c, h.svc.Transfers.Deposit)
}

// Withdraw handles POST /api/v1/admin/withdrawals.
func (h *AdminHandler) Withdraw(c *gin.Context) {
	h.moveFunds(c, h.svc.Transfers.Withdraw)
}

type fundsFunc func(ctx context.Context, userID string, amount decimal.Decimal, note string) (*domain.Transaction, error)

func (h *AdminHandler) moveFunds(c *gin.Context, move fundsFunc) {
	var req dto.FundsRequest
	if !bindJSON(c, &req) {
		return
	}
	dto.SanitizeStruct(&req)

	amount, err := parseAmount(req.Amount)
	if err != nil {
		response.Error(c, err)
		return
	}

	txn, err := move(c.Request.Context(), req.UserID, amount, req.Note)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, toTransactionResponse(txn))
}
