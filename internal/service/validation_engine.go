package service

import (
	"context"
	"fmt"

	"finguard-ledger/internal/core/domain"
	"finguard-ledger/internal/core/ports"
	"finguard-ledger/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var roundAmountUnit = decimal.NewFromInt(1000)

// ValidationEngine implements ports.ValidationService.
type ValidationEngine struct {
	ledger      ports.LedgerService
	sink        ports.FraudSink
	nonblocking bool
	largeAmount decimal.Decimal
	tolerance   decimal.Decimal
	log         zerolog.Logger
}

// ValidationPolicy tunes the fraud heuristics.
type ValidationPolicy struct {
	// Nonblocking lets flagged transfers settle. When false a flag fails
	// the transfer with FraudSuspected.
	Nonblocking bool
	LargeAmount decimal.Decimal
	Tolerance   decimal.Decimal
}

// NewValidationEngine creates a new ValidationEngine.
func NewValidationEngine(ledger ports.LedgerService, sink ports.FraudSink, policy ValidationPolicy, log zerolog.Logger) *ValidationEngine {
	return &ValidationEngine{
		ledger:      ledger,
		sink:        sink,
		nonblocking: policy.Nonblocking,
		largeAmount: policy.LargeAmount,
		tolerance:   policy.Tolerance,
		log:         log,
	}
}

// PreCheck runs the fraud heuristics against one party. The SYSTEM account
// is never flagged.
func (v *ValidationEngine) PreCheck(ctx context.Context, userID string, storedBalance, amount decimal.Decimal) error {
	if domain.IsSystemAccount(userID) {
		return nil
	}

	var reasons []string

	ledgerBalance, err := v.ledger.GetBalance(ctx, userID)
	if err != nil {
		// A missing ledger figure is not a fraud signal.
		v.log.Warn().Err(err).Str("user_id", userID).Msg("ledger balance unavailable for pre-check")
	} else if ledgerBalance.Sub(storedBalance).Abs().GreaterThan(v.tolerance) {
		reasons = append(reasons, fmt.Sprintf("balance mismatch: stored %s, ledger %s",
			storedBalance.StringFixed(domain.MoneyScale), ledgerBalance.StringFixed(domain.MoneyScale)))
	}

	if amount.GreaterThanOrEqual(v.largeAmount) {
		reasons = append(reasons, fmt.Sprintf("large amount: %s", amount.StringFixed(domain.MoneyScale)))
	}
	if amount.GreaterThanOrEqual(roundAmountUnit) && amount.Mod(roundAmountUnit).IsZero() {
		reasons = append(reasons, fmt.Sprintf("round amount: %s", amount.StringFixed(domain.MoneyScale)))
	}

	if len(reasons) == 0 {
		return nil
	}
	for _, reason := range reasons {
		v.sink.RecordFlag(ctx, userID, reason)
	}
	v.log.Warn().
		Str("user_id", userID).
		Strs("reasons", reasons).
		Bool("nonblocking", v.nonblocking).
		Msg("fraud heuristics fired")

	if v.nonblocking {
		return nil
	}
	return apperror.ErrFraudSuspected()
}

// PostCheck confirms after == before + delta.
func (v *ValidationEngine) PostCheck(userID string, before, delta, after decimal.Decimal) error {
	expected := before.Add(delta)
	if !expected.Equal(after) {
		return fmt.Errorf("balance of %s is %s, expected %s", userID,
			after.StringFixed(domain.MoneyScale), expected.StringFixed(domain.MoneyScale))
	}
	return nil
}
