// Package statements defines the shared types of the statement-import
// pipeline: extraction candidates produced by the parsers, the transaction
// classification, and the error taxonomy the orchestrator reports through
// the import record.
package statements

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies a persisted transaction.
type TransactionType string

const (
	TypeIncome  TransactionType = "income"
	TypeExpense TransactionType = "expense"
)

// TypeHint is the explicit credit/debit marker carried by an extraction
// candidate. An empty hint means the source line carried no marker and the
// sign of the raw amount decides the type.
type TypeHint string

const (
	HintNone   TypeHint = ""
	HintCredit TypeHint = "credit"
	HintDebit  TypeHint = "debit"
)

// ExtractionMethod records how raw text was obtained from a document.
type ExtractionMethod string

const (
	MethodLocal ExtractionMethod = "local"
	MethodOCR   ExtractionMethod = "ocr"
)

// Candidate is one transaction-shaped row produced by the deterministic
// parser or the AI extractor, before normalization. Candidates live only for
// the duration of a single pipeline invocation.
type Candidate struct {
	Date        time.Time
	Description string
	RawAmount   decimal.Decimal
	TypeHint    TypeHint
	Confidence  float64
}

// Extraction is the full output of a structured extraction pass: candidate
// rows plus the raw closing-balance line when one was identified.
type Extraction struct {
	Candidates  []Candidate
	BalanceText string
	Confidence  float64
}
