// Package extractor turns a PDF byte stream into raw statement text. It
// prefers the document's embedded text layer and falls back to the remote
// OCR provider for image-based documents, consulting the content-hash cache
// before any remote call.
package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ledongthuc/pdf"

	"github.com/kieranpgray/coinbag/internal/domain/statements"
	"github.com/kieranpgray/coinbag/internal/domain/statements/repository"
	"github.com/kieranpgray/coinbag/internal/observability"
)

const (
	// minTextChars is the minimum amount of text-layer content a statement
	// PDF plausibly carries; below it the document is treated as scanned.
	minTextChars = 200

	// minCharsPerPage catches PDFs with a vestigial text layer (headers
	// only) over scanned page images.
	minCharsPerPage = 100
)

// OCRClient extracts text from a document via the remote AI provider.
type OCRClient interface {
	ExtractText(ctx context.Context, pdfBytes []byte) (string, error)
}

// Result is the outcome of text extraction
type Result struct {
	Text   string
	Method statements.ExtractionMethod
}

// Extractor resolves raw text for a statement document
type Extractor struct {
	cache  repository.OCRCacheRepository
	ocr    OCRClient
	logger *slog.Logger
}

// New creates a text extractor
func New(cache repository.OCRCacheRepository, ocr OCRClient, logger *slog.Logger) *Extractor {
	return &Extractor{cache: cache, ocr: ocr, logger: logger}
}

// Extract returns the raw text of the document. A cache hit for the file
// hash short-circuits extraction entirely and consumes no OCR quota.
func (e *Extractor) Extract(ctx context.Context, data []byte, fileHash string) (*Result, error) {
	if cached, err := e.cache.GetByHash(ctx, fileHash); err != nil {
		e.logger.Warn("ocr cache lookup failed", "error", err)
	} else if cached != nil {
		observability.ExtractionMethod.WithLabelValues(string(cached.Method), "hit").Inc()
		return &Result{Text: cached.Text, Method: cached.Method}, nil
	}

	text, localErr := extractTextLayer(data)
	if localErr == nil && usableTextLayer(text, data) {
		e.storeCache(ctx, fileHash, text, statements.MethodLocal)
		observability.ExtractionMethod.WithLabelValues(string(statements.MethodLocal), "miss").Inc()
		return &Result{Text: text, Method: statements.MethodLocal}, nil
	}

	if localErr != nil {
		e.logger.Warn("local text extraction failed, falling back to ocr", "error", localErr)
	} else {
		e.logger.Info("text layer too sparse, falling back to ocr", "chars", len(text))
	}

	ocrText, err := e.ocr.ExtractText(ctx, data)
	if err != nil {
		// Resilience-layer rejections keep their own identity; only a
		// genuine both-paths-failed outcome becomes ExtractionFailed.
		switch {
		case isResilienceReject(err):
			return nil, err
		default:
			return nil, fmt.Errorf("%w: %v", statements.ErrExtractionFailed, err)
		}
	}
	if len(ocrText) == 0 {
		return nil, statements.ErrExtractionFailed
	}

	e.storeCache(ctx, fileHash, ocrText, statements.MethodOCR)
	observability.ExtractionMethod.WithLabelValues(string(statements.MethodOCR), "miss").Inc()
	return &Result{Text: ocrText, Method: statements.MethodOCR}, nil
}

func (e *Extractor) storeCache(ctx context.Context, fileHash, text string, method statements.ExtractionMethod) {
	err := e.cache.Insert(ctx, &repository.OCRResult{
		FileHash: fileHash,
		Text:     text,
		Method:   method,
	})
	if err != nil {
		// Cache writes are best-effort; the extraction already succeeded.
		e.logger.Warn("failed to cache extraction", "error", err)
	}
}

func isResilienceReject(err error) bool {
	for _, sentinel := range []error{
		statements.ErrRateLimitExceeded,
		statements.ErrCircuitOpen,
		statements.ErrExtractionProvider,
		statements.ErrExtractionSchema,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// extractTextLayer reads the PDF's embedded text layer.
func extractTextLayer(data []byte) (text string, err error) {
	// The pdf library panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf text extraction panicked: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to read pdf text layer: %w", err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("failed to read pdf text layer: %w", err)
	}
	return buf.String(), nil
}

// usableTextLayer applies the scanned-document heuristics to locally
// extracted text.
func usableTextLayer(text string, data []byte) bool {
	if len(text) < minTextChars {
		return false
	}
	pages := pageCount(data)
	if pages > 0 && len(text)/pages < minCharsPerPage {
		return false
	}
	return true
}

func pageCount(data []byte) (pages int) {
	defer func() {
		if recover() != nil {
			pages = 0
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0
	}
	return reader.NumPage()
}
