package statements

import "errors"

// Pipeline failure taxonomy. Fatal errors surface as status=failed on the
// import record; everything else is absorbed and logged by the stage that
// observed it.
var (
	// ErrExtractionFailed means no usable text could be obtained from the
	// document by either the local text layer or OCR.
	ErrExtractionFailed = errors.New("extraction failed: no usable text in document")

	// ErrExtractionSchema means the AI provider answered, but the response
	// did not conform to the required schema.
	ErrExtractionSchema = errors.New("extraction failed: provider response did not match schema")

	// ErrExtractionProvider means the provider was unreachable or kept
	// erroring after retries were exhausted.
	ErrExtractionProvider = errors.New("extraction failed: provider unavailable")

	// ErrRateLimitExceeded is a fail-fast rejection before any provider call
	// when the per-user hourly quota is spent.
	ErrRateLimitExceeded = errors.New("ocr rate limit exceeded, try again later")

	// ErrCircuitOpen is a fail-fast rejection while the provider circuit
	// breaker is cooling down.
	ErrCircuitOpen = errors.New("ocr provider temporarily unavailable")

	// ErrPersistence means a database write failed.
	ErrPersistence = errors.New("failed to persist import results")

	// ErrInvalidTransition means a status update would have regressed a
	// terminal import state.
	ErrInvalidTransition = errors.New("invalid import status transition")
)

// sanitized messages keyed by sentinel. Raw provider payloads, SQL and
// secrets never reach the user-visible error_message column.
var sanitizedMessages = []struct {
	err error
	msg string
}{
	{ErrRateLimitExceeded, ErrRateLimitExceeded.Error()},
	{ErrCircuitOpen, ErrCircuitOpen.Error()},
	{ErrExtractionSchema, ErrExtractionSchema.Error()},
	{ErrExtractionProvider, ErrExtractionProvider.Error()},
	{ErrExtractionFailed, ErrExtractionFailed.Error()},
	{ErrPersistence, ErrPersistence.Error()},
}

// SanitizeError reduces any pipeline error to a stable, user-safe
// diagnostic suitable for the import record.
func SanitizeError(err error) string {
	for _, s := range sanitizedMessages {
		if errors.Is(err, s.err) {
			return s.msg
		}
	}
	return "statement processing failed"
}
