package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"finguard-ledger/internal/adapter/http/dto"
	"finguard-ledger/internal/adapter/http/middleware"
	"finguard-ledger/internal/core/domain"
	"finguard-ledger/internal/core/ports"
	"finguard-ledger/pkg/apperror"
	"finguard-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const timeLayout = time.RFC3339Nano

func toTransactionResponse(tx *domain.Transaction) dto.TransactionResponse {
	resp := dto.TransactionResponse{
		ID:               tx.ID.String(),
		SenderID:         tx.SenderID,
		ReceiverID:       tx.ReceiverID,
		Amount:           tx.Amount.StringFixed(domain.MoneyScale),
		Type:             string(tx.Type),
		Status:           string(tx.Status),
		PaymentMethod:    tx.PaymentMethod,
		Note:             tx.Note,
		Location:         tx.Location,
		Timestamp:        tx.Timestamp.Format(timeLayout),
		ReconcilePending: tx.ReconcilePending,
	}
	if tx.OriginalTransactionID != nil {
		s := tx.OriginalTransactionID.String()
		resp.OriginalTransactionID = &s
	}
	return resp
}

func toHistoryResponse(item ports.TransactionHistoryItem) dto.HistoryItemResponse {
	resp := dto.HistoryItemResponse{TransactionResponse: toTransactionResponse(&item.Transaction)}
	if item.RolledBackAt != nil {
		s := item.RolledBackAt.Format(timeLayout)
		resp.RolledBackAt = &s
	}
	resp.RollbackReason = item.RollbackReason
	if item.CompensatingID != nil {
		s := item.CompensatingID.String()
		resp.CompensatingTransactionID = &s
	}
	return resp
}

func toBalanceResponse(v *ports.BalanceView) dto.BalanceResponse {
	return dto.BalanceResponse{
		UserID:        v.UserID,
		Balance:       v.Stored.StringFixed(domain.MoneyScale),
		LedgerBalance: v.Ledger.StringFixed(domain.MoneyScale),
		Consistent:    v.Consistent,
	}
}

func toBackupResponse(b *domain.BalanceBackup) dto.BackupResponse {
	return dto.BackupResponse{
		BackupID:        b.ID.String(),
		UserID:          b.UserID,
		BalanceSnapshot: b.BalanceSnapshot.StringFixed(domain.MoneyScale),
		OperationType:   b.OperationType,
		ActorID:         b.ActorID,
		CreatedAt:       b.CreatedAt.Format(timeLayout),
	}
}

// currentUser returns the authenticated subject set by JWTAuth.
func currentUser(c *gin.Context) (string, bool) {
	uid := c.GetString(middleware.CtxUserID)
	return uid, uid != ""
}

func isAdmin(c *gin.Context) bool {
	return c.GetString(middleware.CtxRole) == ports.RoleAdmin
}

func parseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, apperror.ErrInvalidAmount()
	}
	return amount, nil
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperror.Validation("invalid " + name)
	}
	return id, nil
}

// queryInt reads a non-negative integer query parameter, returning def when
// it is absent.
func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperror.Validation("invalid " + name)
	}
	return n, nil
}

// bindJSON decodes the body into req and writes the error response itself
// when it cannot. Bodies cut off by MaxBodySize surface as VAL_002.
func bindJSON(c *gin.Context, req any) bool {
	err := c.ShouldBindJSON(req)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		response.Error(c, apperror.ErrPayloadTooLarge(tooLarge.Limit))
		return false
	}
	response.Error(c, apperror.Validation(err.Error()))
	return false
}
