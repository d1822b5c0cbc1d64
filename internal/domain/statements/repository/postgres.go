package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/kieranpgray/coinbag/internal/domain/statements"
)

// PgxPool is the subset of *pgxpool.Pool the repositories use. pgxmock
// satisfies it for SQL-level tests.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresRepository implements the statement-import repositories over pgx
type PostgresRepository struct {
	db PgxPool
}

// NewPostgresRepository creates a new postgres-backed repository
func NewPostgresRepository(db PgxPool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

var _ ImportRepository = (*PostgresRepository)(nil)
var _ AccountRepository = (*PostgresRepository)(nil)
var _ OCRCacheRepository = (*PostgresRepository)(nil)
var _ RateLimitRepository = (*PostgresRepository)(nil)

// CreateImport inserts a new statement import in pending state
func (r *PostgresRepository) CreateImport(ctx context.Context, imp *StatementImport) error {
	if imp.ID == uuid.Nil {
		imp.ID = uuid.New()
	}
	imp.Status = StatusPending

	query := `
		INSERT INTO statement_imports (id, user_id, account_id, file_path, file_hash, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		imp.ID, imp.UserID, imp.AccountID, imp.FilePath, imp.FileHash, imp.Status,
	).Scan(&imp.CreatedAt, &imp.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create statement import: %w", err)
	}
	return nil
}

// GetImportByID fetches a statement import
func (r *PostgresRepository) GetImportByID(ctx context.Context, id uuid.UUID) (*StatementImport, error) {
	query := `
		SELECT id, user_id, account_id, file_path, file_hash, status,
		       total_transactions, imported_transactions, error_message,
		       created_at, updated_at
		FROM statement_imports
		WHERE id = $1
	`
	var imp StatementImport
	err := r.db.QueryRow(ctx, query, id).Scan(
		&imp.ID, &imp.UserID, &imp.AccountID, &imp.FilePath, &imp.FileHash,
		&imp.Status, &imp.TotalTransactions, &imp.ImportedTransactions,
		&imp.ErrorMessage, &imp.CreatedAt, &imp.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("statement import %s not found: %w", id, pgx.ErrNoRows)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get statement import: %w", err)
	}
	return &imp, nil
}

// MarkProcessing transitions pending -> processing
func (r *PostgresRepository) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE statement_imports
		SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3
	`
	tag, err := r.db.Exec(ctx, query, StatusProcessing, id, StatusPending)
	if err != nil {
		return fmt.Errorf("failed to mark import processing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return statements.ErrInvalidTransition
	}
	return nil
}

// CompleteImport inserts accepted transactions and finalizes the import
// atomically. Partial writes are never observable: either the rows and the
// completed status commit together, or everything rolls back.
func (r *PostgresRepository) CompleteImport(ctx context.Context, id uuid.UUID, total int, txs []*Transaction) (int, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin import transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	inserted := 0
	insertQuery := `
		INSERT INTO transactions (
			id, user_id, account_id, date, description, amount, type,
			category, transaction_reference, fingerprint, statement_import_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT ON CONSTRAINT uq_transactions_fingerprint DO NOTHING
	`
	for _, t := range txs {
		if t.ID == uuid.Nil {
			t.ID = uuid.New()
		}
		tag, err := tx.Exec(ctx, insertQuery,
			t.ID, t.UserID, t.AccountID, t.Date, t.Description, t.Amount,
			t.Type, t.Category, t.TransactionReference, t.Fingerprint,
			t.StatementImportID,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert transaction: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}

	updateQuery := `
		UPDATE statement_imports
		SET status = $1, total_transactions = $2, imported_transactions = $3, updated_at = now()
		WHERE id = $4 AND status = $5
	`
	tag, err := tx.Exec(ctx, updateQuery, StatusCompleted, total, inserted, id, StatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("failed to finalize import: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return 0, statements.ErrInvalidTransition
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit import: %w", err)
	}
	return inserted, nil
}

// FailImport transitions processing -> failed with a diagnostic message
func (r *PostgresRepository) FailImport(ctx context.Context, id uuid.UUID, errorMessage string) error {
	query := `
		UPDATE statement_imports
		SET status = $1, error_message = $2, updated_at = now()
		WHERE id = $3 AND status = $4
	`
	tag, err := r.db.Exec(ctx, query, StatusFailed, errorMessage, id, StatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to mark import failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return statements.ErrInvalidTransition
	}
	return nil
}

// ExistingFingerprints returns which of the given fingerprints already exist
// for the account
func (r *PostgresRepository) ExistingFingerprints(ctx context.Context, accountID uuid.UUID, fingerprints []string) (map[string]bool, error) {
	existing := make(map[string]bool, len(fingerprints))
	if len(fingerprints) == 0 {
		return existing, nil
	}

	query := `
		SELECT fingerprint
		FROM transactions
		WHERE account_id = $1 AND fingerprint = ANY($2)
	`
	rows, err := r.db.Query(ctx, query, accountID, fingerprints)
	if err != nil {
		return nil, fmt.Errorf("failed to query existing fingerprints: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, fmt.Errorf("failed to scan fingerprint: %w", err)
		}
		existing[fp] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read fingerprints: %w", err)
	}
	return existing, nil
}

// GetAccount fetches an account with its balance fields
func (r *PostgresRepository) GetAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	query := `
		SELECT id, user_id, name, balance, balance_as_of
		FROM accounts
		WHERE id = $1
	`
	var a Account
	err := r.db.QueryRow(ctx, query, id).Scan(&a.ID, &a.UserID, &a.Name, &a.Balance, &a.BalanceAsOf)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("account %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &a, nil
}

// ApplyBalance updates the balance only when the statement date is at least
// as recent as the stored as-of date
func (r *PostgresRepository) ApplyBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal, asOf time.Time) (bool, error) {
	query := `
		UPDATE accounts
		SET balance = $1, balance_as_of = $2, updated_at = now()
		WHERE id = $3 AND (balance_as_of IS NULL OR balance_as_of <= $2)
	`
	tag, err := r.db.Exec(ctx, query, balance, asOf, id)
	if err != nil {
		return false, fmt.Errorf("failed to apply balance: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetByHash looks up a cached extraction by file content hash
func (r *PostgresRepository) GetByHash(ctx context.Context, fileHash string) (*OCRResult, error) {
	query := `
		SELECT file_hash, extracted_text, method, created_at
		FROM ocr_results
		WHERE file_hash = $1
	`
	var res OCRResult
	err := r.db.QueryRow(ctx, query, fileHash).Scan(&res.FileHash, &res.Text, &res.Method, &res.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cached extraction: %w", err)
	}
	return &res, nil
}

// Insert writes a cache entry; entries are insert-only and never mutated
func (r *PostgresRepository) Insert(ctx context.Context, result *OCRResult) error {
	query := `
		INSERT INTO ocr_results (file_hash, extracted_text, method)
		VALUES ($1, $2, $3)
		ON CONFLICT (file_hash) DO NOTHING
	`
	if _, err := r.db.Exec(ctx, query, result.FileHash, result.Text, result.Method); err != nil {
		return fmt.Errorf("failed to cache extraction: %w", err)
	}
	return nil
}

// IncrementUsage bumps the user's call counter for the given hourly window
func (r *PostgresRepository) IncrementUsage(ctx context.Context, userID uuid.UUID, windowStart time.Time) (int, error) {
	query := `
		INSERT INTO ocr_rate_limits (user_id, window_start, call_count)
		VALUES ($1, $2, 1)
		ON CONFLICT (user_id, window_start)
		DO UPDATE SET call_count = ocr_rate_limits.call_count + 1
		RETURNING call_count
	`
	var count int
	if err := r.db.QueryRow(ctx, query, userID, windowStart).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to increment ocr usage: %w", err)
	}
	return count, nil
}
