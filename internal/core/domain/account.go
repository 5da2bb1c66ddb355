package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account holds the stored balance of a user.
type Account struct {
	UserID    string          `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// IsSystemAccount reports whether userID is the system pseudo-account.
func IsSystemAccount(userID string) bool {
	return userID == SystemAccountID
}

// CanCover reports whether the account may pay amount out of balance.
func CanCover(userID string, balance, amount decimal.Decimal) bool {
	if IsSystemAccount(userID) {
		return true
	}
	return balance.GreaterThanOrEqual(amount)
}
