// Package service orchestrates the statement import pipeline: extraction,
// parsing, AI escalation, normalization, deduplication, balance resolution
// and atomic persistence, with the import record's status as the single
// source of truth for progress.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kieranpgray/coinbag/internal/domain/statements"
	"github.com/kieranpgray/coinbag/internal/domain/statements/ai"
	"github.com/kieranpgray/coinbag/internal/domain/statements/balance"
	"github.com/kieranpgray/coinbag/internal/domain/statements/dedup"
	"github.com/kieranpgray/coinbag/internal/domain/statements/extractor"
	"github.com/kieranpgray/coinbag/internal/domain/statements/normalizer"
	"github.com/kieranpgray/coinbag/internal/domain/statements/parser"
	"github.com/kieranpgray/coinbag/internal/domain/statements/repository"
	"github.com/kieranpgray/coinbag/internal/observability"
	"github.com/kieranpgray/coinbag/internal/resilience"
	"github.com/kieranpgray/coinbag/pkg/config"
	"github.com/kieranpgray/coinbag/pkg/storage"
)

// escalationLineRatio is the deterministic parser's plausibility bar: at
// least one candidate per this many non-blank lines, otherwise the document
// layout is unknown and extraction escalates to the AI path.
const escalationLineRatio = 40

// AIClient is the remote provider surface the pipeline needs
type AIClient interface {
	ExtractStructured(ctx context.Context, text string) (*statements.Extraction, error)
	ExtractText(ctx context.Context, pdfBytes []byte) (string, error)
}

// TextExtractor resolves raw text for a document
type TextExtractor interface {
	Extract(ctx context.Context, data []byte, fileHash string) (*extractor.Result, error)
}

// RateLimiter enforces the per-user AI quota
type RateLimiter interface {
	Allow(ctx context.Context, userID uuid.UUID) error
}

// Service runs statement imports end to end
type Service struct {
	imports repository.ImportRepository
	store   storage.Storage

	parser     *parser.Parser
	normalizer *normalizer.Normalizer
	dedup      *dedup.Engine
	balance    *balance.Resolver

	ai        AIClient
	limiter   RateLimiter
	breaker   *resilience.Breaker[any]
	retry     resilience.RetryPolicy
	transient func(error) bool

	// newExtractor builds the extractor around a per-import guarded OCR
	// client, so OCR fallback consumes the uploading user's quota.
	newExtractor func(ocr extractor.OCRClient) TextExtractor

	logger *slog.Logger
}

// New wires the pipeline from its repositories and the provider client
func New(
	imports repository.ImportRepository,
	accounts repository.AccountRepository,
	cache repository.OCRCacheRepository,
	usage repository.RateLimitRepository,
	store storage.Storage,
	aiClient AIClient,
	cfg config.ResilienceConfig,
	logger *slog.Logger,
) *Service {
	breaker := resilience.NewBreaker[any](resilience.BreakerSettings{
		Name:             "gemini",
		FailureThreshold: cfg.BreakerFailureThreshold,
		Cooldown:         time.Duration(cfg.BreakerCooldownSeconds) * time.Second,
		OnStateChange: func(state string) {
			observability.SetBreakerState("gemini", state)
		},
	}, logger)

	s := &Service{
		imports:    imports,
		store:      store,
		parser:     parser.New(),
		normalizer: normalizer.New(logger),
		dedup:      dedup.New(imports, logger),
		balance:    balance.New(accounts, logger),
		ai:         aiClient,
		limiter:    resilience.NewUserRateLimiter(usage, cfg.OCRCallsPerUserPerHour, logger),
		breaker:    breaker,
		retry:      resilience.DefaultRetryPolicy(cfg.RetryMaxAttempts),
		transient:  ai.IsTransient,
		logger:     logger,
	}
	s.newExtractor = func(ocr extractor.OCRClient) TextExtractor {
		return extractor.New(cache, ocr, logger)
	}
	return s
}

// CreateImport stores the uploaded file, hashes its content and records a
// pending import. Processing happens separately via Process.
func (s *Service) CreateImport(ctx context.Context, userID, accountID uuid.UUID, filename, contentType string, r io.Reader) (*repository.StatementImport, error) {
	hasher := sha256.New()
	info, err := s.store.Upload(ctx, userID, filename, contentType, io.TeeReader(r, hasher))
	if err != nil {
		return nil, fmt.Errorf("failed to store statement file: %w", err)
	}

	imp := &repository.StatementImport{
		ID:        uuid.New(),
		UserID:    userID,
		AccountID: accountID,
		FilePath:  info.Path,
		FileHash:  hex.EncodeToString(hasher.Sum(nil)),
		Status:    repository.StatusPending,
	}
	if err := s.imports.CreateImport(ctx, imp); err != nil {
		// No import record owns the blob; remove it rather than leak it.
		if derr := s.store.Delete(ctx, info.Path); derr != nil {
			s.logger.Warn("failed to remove orphaned statement file", "path", info.Path, "error", derr)
		}
		return nil, fmt.Errorf("failed to create import record: %w", err)
	}

	s.logger.Info("statement import created",
		"import_id", imp.ID,
		"user_id", userID,
		"account_id", accountID,
		"file", filename,
	)
	return imp, nil
}

// GetImport returns the import record for status polling
func (s *Service) GetImport(ctx context.Context, id uuid.UUID) (*repository.StatementImport, error) {
	return s.imports.GetImportByID(ctx, id)
}

// Process runs the pipeline for a pending import. Every outcome lands the
// record in a terminal state: completed with counts, or failed with a
// sanitized message. A second Process call for the same import is rejected
// by the pending->processing guard and does nothing.
func (s *Service) Process(ctx context.Context, importID uuid.UUID) error {
	imp, err := s.imports.GetImportByID(ctx, importID)
	if err != nil {
		return fmt.Errorf("failed to load import %s: %w", importID, err)
	}

	if err := s.imports.MarkProcessing(ctx, importID); err != nil {
		if errors.Is(err, statements.ErrInvalidTransition) {
			s.logger.Warn("import already claimed", "import_id", importID, "status", imp.Status)
			return nil
		}
		return fmt.Errorf("failed to claim import %s: %w", importID, err)
	}

	if err := s.run(ctx, imp); err != nil {
		s.fail(ctx, importID, err)
		return err
	}
	return nil
}

func (s *Service) run(ctx context.Context, imp *repository.StatementImport) error {
	data, err := s.readFile(ctx, imp.FilePath)
	if err != nil {
		return fmt.Errorf("%w: %v", statements.ErrExtractionFailed, err)
	}

	ext := s.newExtractor(&guardedOCR{svc: s, userID: imp.UserID})
	extracted, err := ext.Extract(ctx, data, imp.FileHash)
	if err != nil {
		return err
	}

	candidates := s.parser.Parse(extracted.Text)
	balanceText := ""

	if !s.plausibleYield(candidates, extracted.Text) {
		s.logger.Info("deterministic parse implausible, escalating to AI",
			"import_id", imp.ID,
			"candidates", len(candidates),
			"non_blank_lines", parser.NonBlankLines(extracted.Text),
		)
		extraction, err := s.structuredExtract(ctx, imp.UserID, extracted.Text)
		if err != nil {
			return err
		}
		candidates = extraction.Candidates
		balanceText = extraction.BalanceText
	}

	normalized := s.normalizer.Normalize(candidates)
	observability.AmountCorrections.Add(float64(normalized.Corrections))

	accepted, duplicates, err := s.dedup.Filter(ctx, imp.AccountID, normalized.Transactions)
	if err != nil {
		return fmt.Errorf("%w: %v", statements.ErrPersistence, err)
	}
	observability.DuplicatesSkipped.Add(float64(duplicates))

	rows := make([]*repository.Transaction, len(accepted))
	for i, c := range accepted {
		rows[i] = &repository.Transaction{
			ID:                   uuid.New(),
			UserID:               imp.UserID,
			AccountID:            imp.AccountID,
			Date:                 c.Date,
			Description:          c.Description,
			Amount:               c.Amount,
			Type:                 c.Type,
			Category:             c.Category,
			TransactionReference: c.Reference,
			Fingerprint:          c.Fingerprint,
			StatementImportID:    imp.ID,
		}
	}

	// Terminal writes must land even when the caller goes away mid-import.
	writeCtx := context.WithoutCancel(ctx)
	total := len(normalized.Transactions)
	inserted, err := s.imports.CompleteImport(writeCtx, imp.ID, total, rows)
	if err != nil {
		return fmt.Errorf("%w: %v", statements.ErrPersistence, err)
	}

	observability.ImportsTotal.WithLabelValues(string(repository.StatusCompleted)).Inc()
	observability.TransactionsImported.Add(float64(inserted))

	s.applyBalance(writeCtx, imp.AccountID, balanceText, extracted.Text, normalized.Transactions)

	s.logger.Info("statement import completed",
		"import_id", imp.ID,
		"total", total,
		"imported", inserted,
		"duplicates", duplicates,
		"dropped", normalized.Dropped,
		"method", string(extracted.Method),
	)
	return nil
}

// plausibleYield decides whether the deterministic parse can stand on its
// own: at least one candidate, and a candidate density matching a real
// statement rather than a few accidental matches in a dense document.
func (s *Service) plausibleYield(candidates []statements.Candidate, text string) bool {
	if len(candidates) < 1 {
		return false
	}
	return len(candidates)*escalationLineRatio >= parser.NonBlankLines(text)
}

// structuredExtract runs the AI extraction under the full guard chain:
// per-user quota first, then bounded retry with every attempt routed
// through the circuit breaker.
func (s *Service) structuredExtract(ctx context.Context, userID uuid.UUID, text string) (*statements.Extraction, error) {
	if err := s.limiter.Allow(ctx, userID); err != nil {
		observability.RateLimitRejections.Inc()
		return nil, err
	}

	start := time.Now()
	// Retry wraps the breaker, not the other way around: every attempt is
	// one breaker-counted provider call, and an open circuit stops the
	// retry loop on the spot.
	var extraction *statements.Extraction
	err := resilience.Retry(ctx, s.retry, s.logger, s.transient, func(ctx context.Context) error {
		result, err := s.breaker.Execute(ctx, func(ctx context.Context) (any, error) {
			return s.ai.ExtractStructured(ctx, text)
		})
		if err != nil {
			return err
		}
		extraction = result.(*statements.Extraction)
		return nil
	})
	observability.ProviderCallDuration.WithLabelValues("structured").Observe(time.Since(start).Seconds())

	if err != nil {
		observability.ProviderCalls.WithLabelValues("structured", "error").Inc()
		return nil, s.classifyProviderError(err)
	}

	observability.ProviderCalls.WithLabelValues("structured", "success").Inc()
	return extraction, nil
}

// classifyProviderError maps exhausted or rejected provider calls onto the
// pipeline's failure taxonomy, preserving sentinels that already carry one.
func (s *Service) classifyProviderError(err error) error {
	switch {
	case errors.Is(err, statements.ErrCircuitOpen),
		errors.Is(err, statements.ErrRateLimitExceeded),
		errors.Is(err, statements.ErrExtractionSchema):
		return err
	default:
		return fmt.Errorf("%w: %v", statements.ErrExtractionProvider, err)
	}
}

// applyBalance resolves and applies the statement closing balance. Failure
// here never fails the import; the transactions are already committed.
func (s *Service) applyBalance(ctx context.Context, accountID uuid.UUID, balanceText, rawText string, txs []normalizer.Transaction) {
	var latest time.Time
	for _, tx := range txs {
		if tx.Date.After(latest) {
			latest = tx.Date
		}
	}

	res, ok := s.balance.Resolve(balanceText, rawText, latest)
	if !ok {
		return
	}
	if _, err := s.balance.Apply(ctx, accountID, res); err != nil {
		s.logger.Warn("balance update failed after import", "account_id", accountID, "error", err)
	}
}

func (s *Service) fail(ctx context.Context, importID uuid.UUID, cause error) {
	writeCtx := context.WithoutCancel(ctx)
	msg := statements.SanitizeError(cause)

	if err := s.imports.FailImport(writeCtx, importID, msg); err != nil {
		s.logger.Error("failed to record import failure",
			"import_id", importID,
			"cause", cause,
			"error", err,
		)
		return
	}

	observability.ImportsTotal.WithLabelValues(string(repository.StatusFailed)).Inc()
	s.logger.Error("statement import failed", "import_id", importID, "error", cause, "message", msg)
}

func (s *Service) readFile(ctx context.Context, path string) ([]byte, error) {
	rc, err := s.store.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open statement file: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read statement file: %w", err)
	}
	return data, nil
}

// guardedOCR routes the extractor's OCR fallback through the same quota,
// breaker and retry chain as structured extraction.
type guardedOCR struct {
	svc    *Service
	userID uuid.UUID
}

func (g *guardedOCR) ExtractText(ctx context.Context, pdfBytes []byte) (string, error) {
	s := g.svc
	if err := s.limiter.Allow(ctx, g.userID); err != nil {
		observability.RateLimitRejections.Inc()
		return "", err
	}

	start := time.Now()
	var text string
	err := resilience.Retry(ctx, s.retry, s.logger, s.transient, func(ctx context.Context) error {
		result, err := s.breaker.Execute(ctx, func(ctx context.Context) (any, error) {
			return s.ai.ExtractText(ctx, pdfBytes)
		})
		if err != nil {
			return err
		}
		text = result.(string)
		return nil
	})
	observability.ProviderCallDuration.WithLabelValues("ocr").Observe(time.Since(start).Seconds())

	if err != nil {
		observability.ProviderCalls.WithLabelValues("ocr", "error").Inc()
		return "", s.classifyProviderError(err)
	}

	observability.ProviderCalls.WithLabelValues("ocr", "success").Inc()
	return text, nil
}
