// Package normalizer reconciles extracted transaction candidates into
// final signed amounts and income/expense types.
package normalizer

import (
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kieranpgray/coinbag/internal/domain/statements"
)

// Transaction is a normalized candidate ready for deduplication
type Transaction struct {
	Date        time.Time
	Description string
	Amount      decimal.Decimal // signed: positive = inflow
	Type        statements.TransactionType
	Category    *string
	Reference   *string
}

// Result carries the normalized rows plus the diagnostics absorbed along
// the way
type Result struct {
	Transactions []Transaction
	Corrections  int // AMOUNT_CORRECTION events
	Dropped      int // zero-amount lines
}

// Normalizer applies sign/type reconciliation and description cleanup
type Normalizer struct {
	sanitizer *DescriptionSanitizer
	logger    *slog.Logger
}

// New creates a normalizer
func New(logger *slog.Logger) *Normalizer {
	return &Normalizer{
		sanitizer: NewDescriptionSanitizer(),
		logger:    logger,
	}
}

// Normalize resolves each candidate's final type and signed amount.
//
// An explicit credit/debit hint outranks the raw sign: statement layouts
// frequently print credits without a leading sign, so when hint and sign
// disagree the amount is flipped to match the hint and an AMOUNT_CORRECTION
// diagnostic is recorded. Without a hint the raw sign decides. Zero-amount
// candidates are headers or running totals, not transactions, and are
// dropped.
func (n *Normalizer) Normalize(candidates []statements.Candidate) Result {
	result := Result{
		Transactions: make([]Transaction, 0, len(candidates)),
	}

	for _, c := range candidates {
		if c.RawAmount.IsZero() {
			result.Dropped++
			continue
		}

		amount, corrected := resolveAmount(c.RawAmount, c.TypeHint)
		if corrected {
			result.Corrections++
			n.logger.Warn("AMOUNT_CORRECTION: type hint overrode amount sign",
				"description", c.Description,
				"raw_amount", c.RawAmount.String(),
				"hint", string(c.TypeHint),
				"corrected_amount", amount.String(),
			)
		}

		txType := statements.TypeExpense
		if amount.IsPositive() {
			txType = statements.TypeIncome
		}

		cleaned, category := n.sanitizer.Sanitize(c.Description)

		result.Transactions = append(result.Transactions, Transaction{
			Date:        c.Date,
			Description: cleaned,
			Amount:      amount,
			Type:        txType,
			Category:    category,
			Reference:   ExtractReference(c.Description),
		})
	}

	return result
}

// resolveAmount returns the final signed amount and whether the hint had to
// override the raw sign.
func resolveAmount(raw decimal.Decimal, hint statements.TypeHint) (decimal.Decimal, bool) {
	switch hint {
	case statements.HintCredit:
		if raw.IsNegative() {
			return raw.Neg(), true
		}
		return raw, false
	case statements.HintDebit:
		if raw.IsPositive() {
			return raw.Neg(), true
		}
		return raw, false
	default:
		return raw, false
	}
}
