package dto

// TransferRequest is the request body for a user transfer. The sender is
// the authenticated user.
type TransferRequest struct {
	ReceiverID    string `json:"receiver_id" binding:"required,max=64,safe_id"`
	Amount        string `json:"amount" binding:"required,money"`
	PaymentMethod string `json:"payment_method,omitempty" binding:"max=50"`
	Note          string `json:"note,omitempty" binding:"max=255"`
	Location      string `json:"location,omitempty" binding:"max=255"`
	// Type defaults to TRANSFER; refunds and adjustments are system-issued.
	Type string `json:"type,omitempty" binding:"omitempty,oneof=TRANSFER"`
}

// AccountRequest is the request body for opening an account.
type AccountRequest struct {
	UserID string `json:"user_id" binding:"required,max=64,safe_id"`
}

// FundsRequest is the request body for admin deposits and withdrawals.
type FundsRequest struct {
	UserID string `json:"user_id" binding:"required,max=64,safe_id"`
	Amount string `json:"amount" binding:"required,money"`
	Note   string `json:"note,omitempty" binding:"max=255"`
}

// RollbackRequest is the request body for a manual rollback.
type RollbackRequest struct {
	TransactionID string `json:"transaction_id" binding:"required,uuid"`
	Reason        string `json:"reason,omitempty" binding:"max=500"`
}

// BackupRequest is the request body for a balance backup.
type BackupRequest struct {
	UserID        string `json:"user_id" binding:"required,max=64,safe_id"`
	OperationType string `json:"operation_type,omitempty" binding:"max=100"`
}

// RestoreRequest is the request body for a balance restore.
type RestoreRequest struct {
	BackupID string `json:"backup_id" binding:"required,uuid"`
	Reason   string `json:"reason,omitempty" binding:"max=500"`
}

// SweepRequest is the request body for a manual sweep. Zero hours means
// the default threshold.
type SweepRequest struct {
	HoursThreshold int `json:"hours_threshold,omitempty" binding:"omitempty,min=1,max=8760"`
}

// TransactionResponse is the response body for a transaction.
type TransactionResponse struct {
	ID                    string  `json:"id"`
	SenderID              string  `json:"sender_id"`
	ReceiverID            string  `json:"receiver_id"`
	Amount                string  `json:"amount"`
	Type                  string  `json:"type"`
	Status                string  `json:"status"`
	PaymentMethod         string  `json:"payment_method,omitempty"`
	Note                  string  `json:"note,omitempty"`
	Location              string  `json:"location,omitempty"`
	Timestamp             string  `json:"timestamp"`
	ReconcilePending      bool    `json:"reconcile_pending"`
	OriginalTransactionID *string `json:"original_transaction_id,omitempty"`
}

// TransactionStatusResponse is the response for a status query.
type TransactionStatusResponse struct {
	Transaction TransactionResponse `json:"transaction"`
	Eligibility EligibilityResponse `json:"rollback_eligibility"`
}

// EligibilityResponse reports rollback eligibility.
type EligibilityResponse struct {
	Status      string `json:"status"`
	CanRollback bool   `json:"can_rollback"`
	Reason      string `json:"reason"`
}

// HistoryItemResponse is one row of a transaction history.
type HistoryItemResponse struct {
	TransactionResponse
	RolledBackAt              *string `json:"rolled_back_at,omitempty"`
	RollbackReason            *string `json:"rollback_reason,omitempty"`
	CompensatingTransactionID *string `json:"compensating_transaction_id,omitempty"`
}

// BalanceResponse compares the stored and ledger-derived balance.
type BalanceResponse struct {
	UserID        string `json:"user_id"`
	Balance       string `json:"balance"`
	LedgerBalance string `json:"ledger_balance"`
	Consistent    bool   `json:"consistent"`
}

// BackupResponse is the response body for a backup.
type BackupResponse struct {
	BackupID        string `json:"backup_id"`
	UserID          string `json:"user_id"`
	BalanceSnapshot string `json:"balance_snapshot"`
	OperationType   string `json:"operation_type"`
	ActorID         string `json:"actor_id"`
	CreatedAt       string `json:"created_at"`
}

// VerificationResponse reports the ledger entries of one transaction.
type VerificationResponse struct {
	TransactionID string      `json:"transaction_id"`
	Verified      bool        `json:"verified"`
	Entries       interface{} `json:"entries"`
}

// AccountResponse is the response body for an opened account.
type AccountResponse struct {
	UserID  string `json:"user_id"`
	Balance string `json:"balance"`
}
