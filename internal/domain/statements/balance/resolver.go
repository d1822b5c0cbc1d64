// Package balance resolves the closing balance printed on a statement and
// applies it to the account, guarded so an older statement never clobbers a
// newer balance.
package balance

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kieranpgray/coinbag/internal/domain/statements/parser"
	"github.com/kieranpgray/coinbag/internal/domain/statements/repository"
)

// Resolution is a closing balance with the date it is valid as of
type Resolution struct {
	Amount decimal.Decimal
	AsOf   time.Time
}

// Resolver extracts and applies statement closing balances
type Resolver struct {
	accounts repository.AccountRepository
	logger   *slog.Logger
}

// New creates a balance resolver
func New(accounts repository.AccountRepository, logger *slog.Logger) *Resolver {
	return &Resolver{accounts: accounts, logger: logger}
}

var (
	closingLineRe = regexp.MustCompile(`(?i)(closing|ending|final|new)\s+balance`)
	amountRe      = regexp.MustCompile(`[+-]?[$€£]?\d{1,3}(?:,\d{3})*\.\d{2}`)
	dateTokenRe   = regexp.MustCompile(`\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4}|\d{4}[/\-]\d{2}[/\-]\d{2}|` +
		`(?i:\d{1,2}\s+(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\.?(?:[,\s]+\d{2,4})?)`)
	overdrawnRe = regexp.MustCompile(`(?i)\b(DR|OD|overdrawn)\b`)
)

// Resolve finds the closing balance. The extractor's balance text is tried
// first; when absent the raw statement text is scanned for a closing-balance
// line. The as-of date comes from the balance line itself when printed,
// otherwise from the latest transaction date. Returns false when no balance
// can be resolved; an unresolvable balance is not an import failure.
func (r *Resolver) Resolve(balanceText, rawText string, latestTxDate time.Time) (Resolution, bool) {
	line := strings.TrimSpace(balanceText)
	if line == "" {
		line = findClosingLine(rawText)
	}
	if line == "" {
		return Resolution{}, false
	}

	// The balance is the last amount on the line; earlier amounts are
	// usually the opening balance or totals.
	amounts := amountRe.FindAllString(line, -1)
	if len(amounts) == 0 {
		return Resolution{}, false
	}
	amount, ok := parseBalanceAmount(amounts[len(amounts)-1])
	if !ok {
		return Resolution{}, false
	}
	if amount.IsPositive() && overdrawnRe.MatchString(line) {
		amount = amount.Neg()
	}

	asOf := latestTxDate
	if token := dateTokenRe.FindString(line); token != "" {
		if d, ok := parser.ParseDate(strings.TrimSpace(token)); ok {
			asOf = d
		}
	}
	if asOf.IsZero() {
		return Resolution{}, false
	}

	return Resolution{Amount: amount, AsOf: asOf}, true
}

// Apply writes the resolved balance to the account. The repository guards
// recency in SQL, so a balance older than the stored as-of date is reported
// as skipped rather than applied.
func (r *Resolver) Apply(ctx context.Context, accountID uuid.UUID, res Resolution) (bool, error) {
	applied, err := r.accounts.ApplyBalance(ctx, accountID, res.Amount, res.AsOf)
	if err != nil {
		return false, fmt.Errorf("failed to apply balance: %w", err)
	}

	if applied {
		r.logger.Info("account balance updated",
			"account_id", accountID,
			"balance", res.Amount.String(),
			"as_of", res.AsOf.Format("2006-01-02"),
		)
	} else {
		r.logger.Info("stale balance skipped",
			"account_id", accountID,
			"as_of", res.AsOf.Format("2006-01-02"),
		)
	}
	return applied, nil
}

// ShouldApply reports whether a balance as of newAsOf beats the currently
// stored as-of date. Equal dates apply: a re-import of the same statement
// refreshes the same balance.
func ShouldApply(newAsOf time.Time, current *time.Time) bool {
	if current == nil {
		return true
	}
	return !newAsOf.Before(*current)
}

func findClosingLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if closingLineRe.MatchString(line) && amountRe.MatchString(line) {
			return strings.TrimSpace(line)
		}
	}
	return ""
}

var balanceCleanRe = regexp.MustCompile(`[$€£,]`)

func parseBalanceAmount(s string) (decimal.Decimal, bool) {
	s = balanceCleanRe.ReplaceAllString(s, "")
	s = strings.TrimPrefix(s, "+")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}
