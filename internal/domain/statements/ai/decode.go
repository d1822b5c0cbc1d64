package ai

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kieranpgray/coinbag/internal/domain/statements"
)

// Wire schema for the structured extraction response. Fields are pointers
// where presence matters: a missing required field is a schema violation,
// not a zero value.
type rawExtraction struct {
	Transactions       []rawTransaction `json:"transactions"`
	ClosingBalanceText *string          `json:"closing_balance_text"`
	Confidence         *float64         `json:"confidence"`
}

type rawTransaction struct {
	Date            *string      `json:"date"`
	Description     *string      `json:"description"`
	Amount          *json.Number `json:"amount"`
	TransactionType *string      `json:"transaction_type"`
	Confidence      *float64     `json:"confidence"`
}

// decodeExtraction parses the model output strictly. Any malformed JSON or
// missing/invalid required field yields ErrExtractionSchema.
func decodeExtraction(raw string) (*statements.Extraction, error) {
	clean := cleanModelJSON(raw)

	dec := json.NewDecoder(strings.NewReader(clean))
	dec.UseNumber()

	var payload rawExtraction
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", statements.ErrExtractionSchema, err)
	}

	if payload.Transactions == nil {
		return nil, fmt.Errorf("%w: missing required field %q", statements.ErrExtractionSchema, "transactions")
	}

	overall := 0.0
	if payload.Confidence != nil {
		overall = clampConfidence(*payload.Confidence)
	}

	extraction := &statements.Extraction{
		Candidates: make([]statements.Candidate, 0, len(payload.Transactions)),
		Confidence: overall,
	}
	if payload.ClosingBalanceText != nil {
		extraction.BalanceText = strings.TrimSpace(*payload.ClosingBalanceText)
	}

	for i, tx := range payload.Transactions {
		candidate, err := decodeTransaction(tx, overall)
		if err != nil {
			return nil, fmt.Errorf("%w: transaction %d: %v", statements.ErrExtractionSchema, i, err)
		}
		extraction.Candidates = append(extraction.Candidates, candidate)
	}

	return extraction, nil
}

func decodeTransaction(tx rawTransaction, fallbackConfidence float64) (statements.Candidate, error) {
	var zero statements.Candidate

	if tx.Date == nil || strings.TrimSpace(*tx.Date) == "" {
		return zero, fmt.Errorf("missing required field %q", "date")
	}
	if tx.Description == nil || strings.TrimSpace(*tx.Description) == "" {
		return zero, fmt.Errorf("missing required field %q", "description")
	}
	if tx.Amount == nil {
		return zero, fmt.Errorf("missing required field %q", "amount")
	}
	if tx.TransactionType == nil {
		return zero, fmt.Errorf("missing required field %q", "transaction_type")
	}

	date, err := time.Parse("2006-01-02", strings.TrimSpace(*tx.Date))
	if err != nil {
		return zero, fmt.Errorf("invalid date %q", *tx.Date)
	}

	amount, err := decimal.NewFromString(tx.Amount.String())
	if err != nil {
		return zero, fmt.Errorf("invalid amount %q", tx.Amount.String())
	}

	var hint statements.TypeHint
	switch strings.ToLower(strings.TrimSpace(*tx.TransactionType)) {
	case "credit":
		hint = statements.HintCredit
	case "debit":
		hint = statements.HintDebit
	default:
		return zero, fmt.Errorf("invalid transaction_type %q", *tx.TransactionType)
	}

	confidence := fallbackConfidence
	if tx.Confidence != nil {
		confidence = clampConfidence(*tx.Confidence)
	}

	return statements.Candidate{
		Date:        date,
		Description: strings.TrimSpace(*tx.Description),
		RawAmount:   amount,
		TypeHint:    hint,
		Confidence:  confidence,
	}, nil
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// cleanModelJSON strips Markdown fences and surrounding junk when the model
// ignores the raw-JSON instruction.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		// Drop the first line (``` or ```json).
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}

	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	s = strings.TrimSpace(s)

	// Keep only the outermost object if junk remains around it.
	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}

	return s
}
