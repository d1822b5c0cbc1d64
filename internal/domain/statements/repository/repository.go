// Package repository provides data access for statement imports.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kieranpgray/coinbag/internal/domain/statements"
)

// ImportStatus is the lifecycle state of a statement import. Transitions are
// monotonic: pending -> processing -> completed|failed.
type ImportStatus string

const (
	StatusPending    ImportStatus = "pending"
	StatusProcessing ImportStatus = "processing"
	StatusCompleted  ImportStatus = "completed"
	StatusFailed     ImportStatus = "failed"
)

// StatementImport tracks one uploaded statement file
type StatementImport struct {
	ID                   uuid.UUID    `db:"id"`
	UserID               uuid.UUID    `db:"user_id"`
	AccountID            uuid.UUID    `db:"account_id"`
	FilePath             string       `db:"file_path"`
	FileHash             string       `db:"file_hash"`
	Status               ImportStatus `db:"status"`
	TotalTransactions    int          `db:"total_transactions"`
	ImportedTransactions int          `db:"imported_transactions"`
	ErrorMessage         *string      `db:"error_message"`
	CreatedAt            time.Time    `db:"created_at"`
	UpdatedAt            time.Time    `db:"updated_at"`
}

// Transaction is one confirmed, deduplicated line item. Rows are immutable
// after insert; corrections require a new import.
type Transaction struct {
	ID                   uuid.UUID                  `db:"id"`
	UserID               uuid.UUID                  `db:"user_id"`
	AccountID            uuid.UUID                  `db:"account_id"`
	Date                 time.Time                  `db:"date"`
	Description          string                     `db:"description"`
	Amount               decimal.Decimal            `db:"amount"`
	Type                 statements.TransactionType `db:"type"`
	Category             *string                    `db:"category"`
	TransactionReference *string                    `db:"transaction_reference"`
	Fingerprint          string                     `db:"fingerprint"`
	StatementImportID    uuid.UUID                  `db:"statement_import_id"`
	CreatedAt            time.Time                  `db:"created_at"`
}

// Account carries the balance fields the pipeline may update
type Account struct {
	ID          uuid.UUID       `db:"id"`
	UserID      uuid.UUID       `db:"user_id"`
	Name        string          `db:"name"`
	Balance     decimal.Decimal `db:"balance"`
	BalanceAsOf *time.Time      `db:"balance_as_of"`
}

// OCRResult caches extracted text keyed by file content hash
type OCRResult struct {
	FileHash  string                      `db:"file_hash"`
	Text      string                      `db:"extracted_text"`
	Method    statements.ExtractionMethod `db:"method"`
	CreatedAt time.Time                   `db:"created_at"`
}

// ImportRepository defines data access operations for statement imports
type ImportRepository interface {
	CreateImport(ctx context.Context, imp *StatementImport) error
	GetImportByID(ctx context.Context, id uuid.UUID) (*StatementImport, error)

	// MarkProcessing moves a pending import to processing. Returns
	// statements.ErrInvalidTransition when the import is not pending, so a
	// terminal state can never regress.
	MarkProcessing(ctx context.Context, id uuid.UUID) error

	// CompleteImport inserts the accepted transactions and moves the import
	// to completed in a single database transaction. Rows that lose the
	// unique-fingerprint race are dropped silently; the returned count is
	// the number of rows actually inserted.
	CompleteImport(ctx context.Context, id uuid.UUID, total int, txs []*Transaction) (int, error)

	// FailImport moves a processing import to failed with a sanitized
	// diagnostic message.
	FailImport(ctx context.Context, id uuid.UUID, errorMessage string) error

	// ExistingFingerprints returns the fingerprint set already stored for an
	// account, across all prior imports.
	ExistingFingerprints(ctx context.Context, accountID uuid.UUID, fingerprints []string) (map[string]bool, error)
}

// AccountRepository reads and updates the target account's balance
type AccountRepository interface {
	GetAccount(ctx context.Context, id uuid.UUID) (*Account, error)

	// ApplyBalance sets the account balance and as-of date, guarded in SQL so
	// a statement older than the stored as-of date never overwrites it.
	// Returns true when the balance was applied.
	ApplyBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal, asOf time.Time) (bool, error)
}

// OCRCacheRepository is the content-hash keyed extraction cache
type OCRCacheRepository interface {
	GetByHash(ctx context.Context, fileHash string) (*OCRResult, error)
	Insert(ctx context.Context, result *OCRResult) error
}

// RateLimitRepository tracks per-user OCR usage in fixed hourly windows
type RateLimitRepository interface {
	// IncrementUsage bumps the user's counter for the window containing now
	// and returns the new count.
	IncrementUsage(ctx context.Context, userID uuid.UUID, windowStart time.Time) (int, error)
}
