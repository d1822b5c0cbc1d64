// Package dedup rejects transactions that already exist for an account, so
// re-uploading an identical or overlapping statement never creates
// duplicate rows.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kieranpgray/coinbag/internal/domain/statements/normalizer"
	"github.com/kieranpgray/coinbag/internal/domain/statements/repository"
)

// Candidate is a normalized transaction with its stable fingerprint
type Candidate struct {
	normalizer.Transaction
	Fingerprint string
}

// FingerprintStore is the subset of the import repository dedup needs.
type FingerprintStore interface {
	ExistingFingerprints(ctx context.Context, accountID uuid.UUID, fingerprints []string) (map[string]bool, error)
}

// Engine filters out transactions whose fingerprint already exists
type Engine struct {
	store  FingerprintStore
	logger *slog.Logger
}

// New creates a deduplication engine
func New(store FingerprintStore, logger *slog.Logger) *Engine {
	return &Engine{store: store, logger: logger}
}

var _ FingerprintStore = (repository.ImportRepository)(nil)

// Filter returns the candidates not already present for the account, plus
// the number skipped as duplicates. Duplicates are counted, not errors; the
// database unique constraint is the backstop if this check races with a
// concurrent import.
func (e *Engine) Filter(ctx context.Context, accountID uuid.UUID, txs []normalizer.Transaction) ([]Candidate, int, error) {
	if len(txs) == 0 {
		return nil, 0, nil
	}

	fingerprints := make([]string, len(txs))
	for i, tx := range txs {
		fingerprints[i] = Fingerprint(accountID, tx.Date, tx.Amount, tx.Description)
	}

	existing, err := e.store.ExistingFingerprints(ctx, accountID, fingerprints)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to check existing fingerprints: %w", err)
	}

	accepted := make([]Candidate, 0, len(txs))
	duplicates := 0
	seen := make(map[string]bool, len(txs))

	for i, tx := range txs {
		fp := fingerprints[i]
		if existing[fp] || seen[fp] {
			duplicates++
			continue
		}
		seen[fp] = true
		accepted = append(accepted, Candidate{Transaction: tx, Fingerprint: fp})
	}

	if duplicates > 0 {
		e.logger.Info("skipped duplicate transactions",
			"account_id", accountID,
			"duplicates", duplicates,
			"accepted", len(accepted),
		)
	}

	return accepted, duplicates, nil
}

// Fingerprint derives the stable dedup key for a transaction. The
// description is normalized (case, whitespace) so cosmetic differences
// between extractions of the same statement line hash identically.
func Fingerprint(accountID uuid.UUID, date time.Time, amount decimal.Decimal, description string) string {
	desc := strings.Join(strings.Fields(strings.ToLower(description)), " ")
	payload := fmt.Sprintf("%s|%s|%s|%s",
		accountID, date.Format("2006-01-02"), amount.StringFixed(2), desc)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
