package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"finguard-ledger/internal/adapter/http/middleware"
	redisStore "finguard-ledger/internal/adapter/storage/redis"
	"finguard-ledger/internal/core/domain"
	"finguard-ledger/internal/core/ports"
	"finguard-ledger/internal/core/ports/mocks"
	"finguard-ledger/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const (
	userToken  = "user-token"
	adminToken = "admin-token"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type apiMocks struct {
	transfers *mocks.MockTransferService
	rollbacks *mocks.MockRollbackService
	backups   *mocks.MockBackupService
	audit     *mocks.MockAuditService
	sweep     *mocks.MockSweepService
	ledger    *mocks.MockLedgerService
	reporting *mocks.MockReportingService
}

func newTestRouter(t *testing.T, limiter middleware.Limiter) (*gin.Engine, *apiMocks) {
	ctrl := gomock.NewController(t)
	m := &apiMocks{
		transfers: mocks.NewMockTransferService(ctrl),
		rollbacks: mocks.NewMockRollbackService(ctrl),
		backups:   mocks.NewMockBackupService(ctrl),
		audit:     mocks.NewMockAuditService(ctrl),
		sweep:     mocks.NewMockSweepService(ctrl),
		ledger:    mocks.NewMockLedgerService(ctrl),
		reporting: mocks.NewMockReportingService(ctrl),
	}

	tokens := mocks.NewMockTokenService(ctrl)
	tokens.EXPECT().Validate(userToken).Return(&ports.TokenClaims{UserID: "alice", Role: ports.RoleUser}, nil).AnyTimes()
	tokens.EXPECT().Validate(adminToken).Return(&ports.TokenClaims{UserID: "root", Role: ports.RoleAdmin}, nil).AnyTimes()
	tokens.EXPECT().Validate(gomock.Any()).Return(nil, apperror.ErrInvalidToken()).AnyTimes()

	r := SetupRouter(RouterDeps{
		TransferSvc:  m.transfers,
		RollbackSvc:  m.rollbacks,
		BackupSvc:    m.backups,
		AuditSvc:     m.audit,
		SweepSvc:     m.sweep,
		LedgerSvc:    m.ledger,
		ReportingSvc: m.reporting,
		TokenSvc:     tokens,
		RateLimiter:  limiter,
		SweepHours:   24,
		Logger:       zerolog.Nop(),
	})
	return r, m
}

func call(r *gin.Engine, method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func dataOf(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	data, ok := decode(t, w)["data"].(map[string]any)
	require.True(t, ok, "response has no data object: %s", w.Body.String())
	return data
}

func sampleTx(sender, receiver string) *domain.Transaction {
	return &domain.Transaction{
		ID:         uuid.New(),
		SenderID:   sender,
		ReceiverID: receiver,
		Amount:     decimal.RequireFromString("25.5"),
		Type:       domain.TransactionTypeTransfer,
		Status:     domain.TransactionStatusCommitted,
		Timestamp:  time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC),
	}
}

// --- Transfers ---

func TestCreateTransfer_Success(t *testing.T) {
	r, m := newTestRouter(t, nil)
	txn := sampleTx("alice", "bob")

	m.transfers.EXPECT().ProcessTransfer(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req ports.TransferRequest) (*domain.Transaction, error) {
			assert.Equal(t, "alice", req.SenderID)
			assert.Equal(t, "bob", req.ReceiverID)
			assert.True(t, req.Amount.Equal(decimal.RequireFromString("25.50")))
			assert.Equal(t, "k-1", req.IdempotencyKey)
			assert.Equal(t, "lunch", req.Note)
			assert.Equal(t, domain.TransactionTypeTransfer, req.Type)
			return txn, nil
		})

	w := call(r, http.MethodPost, "/api/v1/transfers", userToken,
		map[string]string{"receiver_id": "bob", "amount": "25.50", "note": "lunch", "type": "TRANSFER"},
		HeaderIdempotencyKey, "k-1")

	assert.Equal(t, http.StatusCreated, w.Code)
	data := dataOf(t, w)
	assert.Equal(t, txn.ID.String(), data["id"])
	assert.Equal(t, "25.50", data["amount"])
	assert.Equal(t, "committed", data["status"])
	assert.NotEmpty(t, decode(t, w)["request_id"])
}

func TestCreateTransfer_Validation(t *testing.T) {
	tests := []struct {
		name string
		body map[string]string
	}{
		{"missing receiver", map[string]string{"amount": "10"}},
		{"missing amount", map[string]string{"receiver_id": "bob"}},
		{"non numeric amount", map[string]string{"receiver_id": "bob", "amount": "ten"}},
		{"unsafe receiver", map[string]string{"receiver_id": "bob;drop", "amount": "10"}},
		{"refund type", map[string]string{"receiver_id": "bob", "amount": "10", "type": "REFUND"}},
		{"adjustment type", map[string]string{"receiver_id": "bob", "amount": "10", "type": "ADJUSTMENT"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newTestRouter(t, nil)
			w := call(r, http.MethodPost, "/api/v1/transfers", userToken, tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "VAL_001", decode(t, w)["error_code"])
		})
	}
}

func TestCreateTransfer_ServiceErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"insufficient funds", apperror.ErrInsufficientFunds(), http.StatusUnprocessableEntity, "TRX_004"},
		{"unknown recipient", apperror.ErrRecipientNotFound(), http.StatusNotFound, "TRX_003"},
		{"negative amount", apperror.ErrInvalidAmount(), http.StatusBadRequest, "TRX_001"},
		{"lock timeout", apperror.ErrLockTimeout(assert.AnError), http.StatusServiceUnavailable, "SYS_002"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, m := newTestRouter(t, nil)
			m.transfers.EXPECT().ProcessTransfer(gomock.Any(), gomock.Any()).Return(nil, tt.err)

			w := call(r, http.MethodPost, "/api/v1/transfers", userToken,
				map[string]string{"receiver_id": "bob", "amount": "-5"})

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantErr, decode(t, w)["error_code"])
		})
	}
}

func TestAuth_RequiredAndRoleGated(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	w := call(r, http.MethodPost, "/api/v1/transfers", "", map[string]string{"receiver_id": "bob", "amount": "1"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = call(r, http.MethodGet, "/api/v1/accounts/me/balance", "forged", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = call(r, http.MethodPost, "/api/v1/admin/rollbacks", userToken, map[string]string{"transaction_id": uuid.NewString()})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "AUTH_002", decode(t, w)["error_code"])
}

// --- Queries ---

func TestGetStatus(t *testing.T) {
	t.Run("party sees status", func(t *testing.T) {
		r, m := newTestRouter(t, nil)
		txn := sampleTx("bob", "alice")
		m.reporting.EXPECT().GetTransactionStatus(gomock.Any(), txn.ID).Return(&ports.TransactionStatusView{
			Transaction: txn,
			Eligibility: domain.Eligibility{Status: domain.EligibilityEligible, CanRollback: true, Reason: "Transaction can be rolled back"},
		}, nil)

		w := call(r, http.MethodGet, "/api/v1/transactions/"+txn.ID.String()+"/status", userToken, nil)

		assert.Equal(t, http.StatusOK, w.Code)
		data := dataOf(t, w)
		elig := data["rollback_eligibility"].(map[string]any)
		assert.Equal(t, "ELIGIBLE", elig["status"])
		assert.Equal(t, true, elig["can_rollback"])
	})

	t.Run("outsider gets not found", func(t *testing.T) {
		r, m := newTestRouter(t, nil)
		txn := sampleTx("bob", "carol")
		m.reporting.EXPECT().GetTransactionStatus(gomock.Any(), txn.ID).Return(&ports.TransactionStatusView{Transaction: txn}, nil)

		w := call(r, http.MethodGet, "/api/v1/transactions/"+txn.ID.String()+"/status", userToken, nil)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "RBK_001", decode(t, w)["error_code"])
	})

	t.Run("admin sees any", func(t *testing.T) {
		r, m := newTestRouter(t, nil)
		txn := sampleTx("bob", "carol")
		m.reporting.EXPECT().GetTransactionStatus(gomock.Any(), txn.ID).Return(&ports.TransactionStatusView{Transaction: txn}, nil)

		w := call(r, http.MethodGet, "/api/v1/transactions/"+txn.ID.String()+"/status", adminToken, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("malformed id", func(t *testing.T) {
		r, _ := newTestRouter(t, nil)
		w := call(r, http.MethodGet, "/api/v1/transactions/not-a-uuid/status", userToken, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestVerify_Admin(t *testing.T) {
	r, m := newTestRouter(t, nil)
	id := uuid.New()
	m.reporting.EXPECT().VerifyTransaction(gomock.Any(), id).Return(&ports.TransactionVerification{
		TransactionID: id,
		Verified:      false,
		Entries:       []domain.LedgerEntry{},
	}, nil)

	w := call(r, http.MethodGet, "/api/v1/transactions/"+id.String()+"/verify", adminToken, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	data := dataOf(t, w)
	assert.Equal(t, id.String(), data["transaction_id"])
	assert.Equal(t, false, data["verified"])
}

func TestMyBalance(t *testing.T) {
	r, m := newTestRouter(t, nil)
	m.reporting.EXPECT().GetBalance(gomock.Any(), "alice").Return(&ports.BalanceView{
		UserID:     "alice",
		Stored:     decimal.RequireFromString("70"),
		Ledger:     decimal.RequireFromString("70"),
		Consistent: true,
	}, nil)

	w := call(r, http.MethodGet, "/api/v1/accounts/me/balance", userToken, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	data := dataOf(t, w)
	assert.Equal(t, "70.00", data["balance"])
	assert.Equal(t, "70.00", data["ledger_balance"])
	assert.Equal(t, true, data["consistent"])
}

func TestMyHistory(t *testing.T) {
	r, m := newTestRouter(t, nil)
	rolledAt := time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)
	reason := "chargeback"
	compID := uuid.New()
	txn := sampleTx("alice", "bob")
	txn.Status = domain.TransactionStatusRolledBack

	m.reporting.EXPECT().TransactionHistory(gomock.Any(), "alice", 5, 10).Return([]ports.TransactionHistoryItem{
		{Transaction: *txn, RolledBackAt: &rolledAt, RollbackReason: &reason, CompensatingID: &compID},
	}, nil)

	w := call(r, http.MethodGet, "/api/v1/accounts/me/transactions?limit=5&offset=10", userToken, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	data := dataOf(t, w)
	assert.Equal(t, float64(1), data["count"])
	assert.Equal(t, float64(5), data["limit"])
	item := data["items"].([]any)[0].(map[string]any)
	assert.Equal(t, "rolled_back", item["status"])
	assert.Equal(t, "chargeback", item["rollback_reason"])
	assert.Equal(t, compID.String(), item["compensating_transaction_id"])
}

func TestMyHistory_BadPaging(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	w := call(r, http.MethodGet, "/api/v1/accounts/me/transactions?limit=-1", userToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// --- Admin ---

func TestAdminRollback(t *testing.T) {
	r, m := newTestRouter(t, nil)
	txID := uuid.New()
	compID := uuid.New()
	m.rollbacks.EXPECT().Rollback(gomock.Any(), txID, "chargeback", "root").Return(&ports.RollbackResult{
		Success:                   true,
		Message:                   "Transaction rolled back",
		CompensatingTransactionID: compID,
	}, nil)

	w := call(r, http.MethodPost, "/api/v1/admin/rollbacks", adminToken,
		map[string]string{"transaction_id": txID.String(), "reason": "chargeback"})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, compID.String(), dataOf(t, w)["compensating_transaction_id"])
}

func TestAdminRollback_Errors(t *testing.T) {
	r, m := newTestRouter(t, nil)

	w := call(r, http.MethodPost, "/api/v1/admin/rollbacks", adminToken, map[string]string{"transaction_id": "nope"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	m.rollbacks.EXPECT().Rollback(gomock.Any(), gomock.Any(), "", "root").Return(nil, apperror.ErrWindowExpired())
	w = call(r, http.MethodPost, "/api/v1/admin/rollbacks", adminToken, map[string]string{"transaction_id": uuid.NewString()})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "RBK_003", decode(t, w)["error_code"])
}

func TestAdminBackupAndRestore(t *testing.T) {
	r, m := newTestRouter(t, nil)
	backup := &domain.BalanceBackup{
		ID:              uuid.New(),
		UserID:          "alice",
		BalanceSnapshot: decimal.RequireFromString("100"),
		OperationType:   "manual",
		ActorID:         "root",
		CreatedAt:       time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	}
	m.backups.EXPECT().BackupBalance(gomock.Any(), "alice", "manual", "root").Return(backup, nil)

	w := call(r, http.MethodPost, "/api/v1/admin/backups", adminToken,
		map[string]string{"user_id": "alice", "operation_type": "manual"})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "100.00", dataOf(t, w)["balance_snapshot"])

	adjID := uuid.New()
	m.backups.EXPECT().RestoreBalance(gomock.Any(), backup.ID, "", "root").Return(&ports.RestoreResult{
		Success:      true,
		UserID:       "alice",
		Balance:      decimal.RequireFromString("100"),
		AdjustmentID: &adjID,
	}, nil)

	w = call(r, http.MethodPost, "/api/v1/admin/restores", adminToken, map[string]string{"backup_id": backup.ID.String()})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, adjID.String(), dataOf(t, w)["adjustment_transaction_id"])
}

func TestAdminSweep(t *testing.T) {
	r, m := newTestRouter(t, nil)

	m.sweep.EXPECT().AutoRollbackStale(gomock.Any(), 24, "root").Return(&ports.SweepResult{Message: "ok"}, nil)
	w := call(r, http.MethodPost, "/api/v1/admin/sweeps", adminToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	m.sweep.EXPECT().AutoRollbackStale(gomock.Any(), 6, "root").Return(&ports.SweepResult{RolledBackCount: 2}, nil)
	w = call(r, http.MethodPost, "/api/v1/admin/sweeps", adminToken, map[string]int{"hours_threshold": 6})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), dataOf(t, w)["rolled_back_count"])

	w = call(r, http.MethodPost, "/api/v1/admin/sweeps", adminToken, map[string]int{"hours_threshold": 99999})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminListAudit(t *testing.T) {
	r, m := newTestRouter(t, nil)
	rollbackOp := domain.AuditOperationRollback

	m.audit.EXPECT().List(gomock.Any(), 20, &rollbackOp).Return([]domain.AuditEntry{
		{ID: uuid.New(), OperationType: domain.AuditOperationRollback, EntityID: "tx", ActorID: "root", Success: true},
	}, nil)

	w := call(r, http.MethodGet, "/api/v1/admin/audit?limit=20&operation_type=rollback", adminToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), dataOf(t, w)["count"])

	w = call(r, http.MethodGet, "/api/v1/admin/audit?operation_type=DELETE", adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminLedger(t *testing.T) {
	r, m := newTestRouter(t, nil)

	m.ledger.EXPECT().Validate(gomock.Any()).Return(&domain.ChainReport{
		Valid:  false,
		Errors: []string{"entry 2 has invalid hash"},
	}, nil)
	w := call(r, http.MethodGet, "/api/v1/admin/ledger/validate", adminToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	data := dataOf(t, w)
	assert.Equal(t, false, data["valid"])
	assert.Equal(t, []any{"entry 2 has invalid hash"}, data["errors"])

	m.ledger.EXPECT().Stats(gomock.Any()).Return(nil, assert.AnError)
	w = call(r, http.MethodGet, "/api/v1/admin/ledger/stats", adminToken, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "SYS_001", decode(t, w)["error_code"])
}

func TestAdminFunds(t *testing.T) {
	r, m := newTestRouter(t, nil)
	dep := sampleTx(domain.SystemAccountID, "alice")
	dep.Type = domain.TransactionTypeDeposit

	m.transfers.EXPECT().Deposit(gomock.Any(), "alice", gomock.Any(), "seed").
		DoAndReturn(func(_ context.Context, _ string, amount decimal.Decimal, _ string) (*domain.Transaction, error) {
			assert.True(t, amount.Equal(decimal.RequireFromString("100")))
			return dep, nil
		})
	w := call(r, http.MethodPost, "/api/v1/admin/deposits", adminToken,
		map[string]string{"user_id": "alice", "amount": "100", "note": "seed"})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "DEPOSIT", dataOf(t, w)["type"])

	m.transfers.EXPECT().Withdraw(gomock.Any(), "alice", gomock.Any(), "").Return(nil, apperror.ErrInsufficientFunds())
	w = call(r, http.MethodPost, "/api/v1/admin/withdrawals", adminToken,
		map[string]string{"user_id": "alice", "amount": "1000"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	m.transfers.EXPECT().OpenAccount(gomock.Any(), "dave").Return(&domain.Account{UserID: "dave", Balance: decimal.Zero}, nil)
	w = call(r, http.MethodPost, "/api/v1/admin/accounts", adminToken, map[string]string{"user_id": "dave"})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "0.00", dataOf(t, w)["balance"])
}

func TestAdminFailedTransactions(t *testing.T) {
	r, m := newTestRouter(t, nil)
	pending := sampleTx("alice", "bob")
	pending.ReconcilePending = true
	m.reporting.EXPECT().FailedTransactions(gomock.Any(), 50).Return([]domain.Transaction{*pending}, nil)

	w := call(r, http.MethodGet, "/api/v1/admin/transactions/failed", adminToken, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	item := dataOf(t, w)["items"].([]any)[0].(map[string]any)
	assert.Equal(t, true, item["reconcile_pending"])
}

// --- Rate limiting ---

type denyAll struct{}

func (denyAll) Allow(context.Context, string, int64, time.Duration) (*redisStore.RateLimitResult, error) {
	return &redisStore.RateLimitResult{Allowed: false, Limit: 1, ResetAt: time.Now().Add(time.Minute).Unix()}, nil
}

func TestRouter_RateLimited(t *testing.T) {
	r, _ := newTestRouter(t, denyAll{})

	w := call(r, http.MethodPost, "/api/v1/transfers", userToken, map[string]string{"receiver_id": "bob", "amount": "1"})

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "RATE_001", decode(t, w)["error_code"])
}

// --- Health & docs ---

type stubChecker struct {
	name string
	err  error
}

func (s stubChecker) Ping(context.Context) error { return s.err }
func (s stubChecker) Name() string               { return s.name }

func TestHealthCheck(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)

	HealthCheck(stubChecker{name: "memory"})(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode(t, w)["status"])
}

func TestHealthCheck_Degraded(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)

	HealthCheck(stubChecker{name: "postgresql"}, stubChecker{name: "redis", err: assert.AnError})(c)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "degraded", resp["status"])
	deps := resp["dependencies"].(map[string]any)
	redisDep := deps["redis"].(map[string]any)
	assert.Equal(t, "unhealthy", redisDep["status"])
	assert.Equal(t, assert.AnError.Error(), redisDep["error"])
	assert.Contains(t, redisDep, "latency_ms")
	assert.Equal(t, "healthy", deps["postgresql"].(map[string]any)["status"])
}

func TestSwaggerUI(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/swagger", nil)

	SwaggerUI(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "/swagger/spec")
}

func TestSwaggerSpec(t *testing.T) {
	SetSwaggerSpec([]byte("openapi: '3.0.3'\ninfo:\n  title: Test"))
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/swagger/spec", nil)
	SwaggerSpec(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "openapi")

	SetSwaggerSpec(nil)
	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/swagger/spec", nil)
	SwaggerSpec(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBindJSON_OversizedBody(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body := `{"receiver_id":"bob","amount":"` + strings.Repeat("9", 256) + `"}`
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/transfers", io.NopCloser(strings.NewReader(body)))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Request.Body = http.MaxBytesReader(w, c.Request.Body, 64)

	var req map[string]any
	assert.False(t, bindJSON(c, &req))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "VAL_002", decode(t, w)["error_code"])
}

func TestBindJSON_Malformed(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/transfers", strings.NewReader(`{"amount":`))
	c.Request.Header.Set("Content-Type", "application/json")

	var req map[string]any
	assert.False(t, bindJSON(c, &req))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VAL_001", decode(t, w)["error_code"])
}
