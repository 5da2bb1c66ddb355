package handler

import (
	"finguard-ledger/internal/adapter/http/dto"
	"finguard-ledger/internal/core/domain"
	"finguard-ledger/internal/core/ports"
	"finguard-ledger/pkg/apperror"
	"finguard-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey makes a transfer safe to retry.
const HeaderIdempotencyKey = "Idempotency-Key"

// TransactionHandler serves user-facing transfer and query endpoints.
type TransactionHandler struct {
	transfers ports.TransferService
	reporting ports.ReportingService
}

// NewTransactionHandler creates a new TransactionHandler.
func NewTransactionHandler(transfers ports.TransferService, reporting ports.ReportingService) *TransactionHandler {
	return &TransactionHandler{transfers: transfers, reporting: reporting}
}

// CreateTransfer handles POST /api/v1/transfers. The sender is the token
// subject.
func (h *TransactionHandler) CreateTransfer(c *gin.Context) {
	sender, ok := currentUser(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.TransferRequest
	if !bindJSON(c, &req) {
		return
	}
	dto.SanitizeStruct(&req)

	idemKey := c.GetHeader(HeaderIdempotencyKey)
	if len(idemKey) > 128 {
		response.Error(c, apperror.Validation("Idempotency-Key exceeds 128 characters"))
		return
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		response.Error(c, err)
		return
	}

	txn, err := h.transfers.ProcessTransfer(c.Request.Context(), ports.TransferRequest{
		SenderID:       sender,
		ReceiverID:     req.ReceiverID,
		Amount:         amount,
		PaymentMethod:  req.PaymentMethod,
		Note:           req.Note,
		Location:       req.Location,
		Type:           domain.TransactionType(req.Type),
		IdempotencyKey: idemKey,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toTransactionResponse(txn))
}

// GetStatus handles GET /api/v1/transactions/:id/status. Users only see
// transactions they are a party of.
func (h *TransactionHandler) GetStatus(c *gin.Context) {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	view, err := h.reporting.GetTransactionStatus(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !h.visible(c, view.Transaction.SenderID, view.Transaction.ReceiverID) {
		response.Error(c, apperror.ErrNotFound("transaction"))
		return
	}

	response.OK(c, dto.TransactionStatusResponse{
		Transaction: toTransactionResponse(view.Transaction),
		Eligibility: dto.EligibilityResponse{
			Status:      string(view.Eligibility.Status),
			CanRollback: view.Eligibility.CanRollback,
			Reason:      view.Eligibility.Reason,
		},
	})
}

// Verify handles GET /api/v1/transactions/:id/verify.
func (h *TransactionHandler) Verify(c *gin.Context) {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	if !isAdmin(c) {
		view, err := h.reporting.GetTransactionStatus(c.Request.Context(), id)
		if err != nil {
			response.Error(c, err)
			return
		}
		if !h.visible(c, view.Transaction.SenderID, view.Transaction.ReceiverID) {
			response.Error(c, apperror.ErrNotFound("transaction"))
			return
		}
	}

	v, err := h.reporting.VerifyTransaction(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.VerificationResponse{
		TransactionID: v.TransactionID.String(),
		Verified:      v.Verified,
		Entries:       v.Entries,
	})
}

// MyBalance handles GET /api/v1/accounts/me/balance.
func (h *TransactionHandler) MyBalance(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	view, err := h.reporting.GetBalance(c.Request.Context(), uid)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, toBalanceResponse(view))
}

// MyHistory handles GET /api/v1/accounts/me/transactions?limit&offset.
func (h *TransactionHandler) MyHistory(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	limit, err := queryInt(c, "limit", 10)
	if err != nil {
		response.Error(c, err)
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		response.Error(c, err)
		return
	}

	items, err := h.reporting.TransactionHistory(c.Request.Context(), uid, limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}

	out := make([]dto.HistoryItemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toHistoryResponse(item))
	}
	response.List(c, out, len(out), limit, offset)
}

func (h *TransactionHandler) visible(c *gin.Context, sender, receiver string) bool {
	if isAdmin(c) {
		return true
	}
	uid, _ := currentUser(c)
	return uid != "" && (uid == sender || uid == receiver)
}
