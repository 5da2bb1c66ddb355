package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an AppError with the same code, so
// errors.Is(err, apperror.ErrInsufficientFunds()) works through wrapping.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// CodeOf returns the AppError code carried by err, or "" if none.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// ---- Transfer validation & consistency (TRX) ----

func ErrInvalidAmount() *AppError {
	return New("TRX_001", "Invalid amount", http.StatusBadRequest)
}

func ErrSelfTransfer() *AppError {
	return New("TRX_002", "Cannot send money to yourself", http.StatusBadRequest)
}

func ErrRecipientNotFound() *AppError {
	return New("TRX_003", "Recipient not found", http.StatusNotFound)
}

func ErrInsufficientFunds() *AppError {
	return New("TRX_004", "Insufficient balance", http.StatusUnprocessableEntity)
}

func ErrFraudSuspected() *AppError {
	return New("TRX_005", "Transfer held for fraud review", http.StatusUnprocessableEntity)
}

func ErrAccountExists() *AppError {
	return New("TRX_006", "Account already exists", http.StatusConflict)
}

// ---- Rollback (RBK) ----

func ErrNotFound(entity string) *AppError {
	return New("RBK_001", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

func ErrAlreadyRolledBack() *AppError {
	return New("RBK_002", "Transaction has already been rolled back", http.StatusConflict)
}

func ErrWindowExpired() *AppError {
	return New("RBK_003", "Rollback window has expired", http.StatusConflict)
}

func ErrConcurrentRollback() *AppError {
	return New("RBK_004", "Rollback already in progress for this transaction", http.StatusConflict)
}

func ErrNotReversible() *AppError {
	return New("RBK_005", "Refunds and adjustments cannot be rolled back", http.StatusConflict)
}

// ---- Authentication (AUTH) ----

func ErrInvalidToken() *AppError {
	return New("AUTH_001", "Invalid or expired token", http.StatusUnauthorized)
}

func ErrForbidden() *AppError {
	return New("AUTH_002", "Insufficient privileges", http.StatusForbidden)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

func ErrLockTimeout(err error) *AppError {
	return Wrap("SYS_002", "Lock acquisition timeout", http.StatusServiceUnavailable, err)
}

func ErrPersistenceFailure(err error) *AppError {
	return Wrap("SYS_003", "Persistence failure", http.StatusInternalServerError, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns a request validation error.
func Validation(message string) *AppError {
	return New("VAL_001", message, http.StatusBadRequest)
}

func ErrPayloadTooLarge(limit int64) *AppError {
	return New("VAL_002", fmt.Sprintf("Request body exceeds %d bytes", limit), http.StatusRequestEntityTooLarge)
}
