package normalizer

import (
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kieranpgray/coinbag/internal/domain/statements"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func candidate(amount string, hint statements.TypeHint) statements.Candidate {
	return statements.Candidate{
		Date:        time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Description: "GROCERY STORE",
		RawAmount:   decimal.RequireFromString(amount),
		TypeHint:    hint,
		Confidence:  1.0,
	}
}

func TestNormalize_HintOverridesSign(t *testing.T) {
	n := New(testLogger())

	// A refund printed as -150.00 but marked as credit becomes +150.00.
	result := n.Normalize([]statements.Candidate{candidate("-150.00", statements.HintCredit)})

	require.Len(t, result.Transactions, 1)
	tx := result.Transactions[0]
	assert.Equal(t, "150", tx.Amount.String())
	assert.Equal(t, statements.TypeIncome, tx.Type)
	assert.Equal(t, 1, result.Corrections)
}

func TestNormalize_DebitHintFlipsUnsignedAmount(t *testing.T) {
	n := New(testLogger())

	result := n.Normalize([]statements.Candidate{candidate("85.50", statements.HintDebit)})

	require.Len(t, result.Transactions, 1)
	tx := result.Transactions[0]
	assert.Equal(t, "-85.5", tx.Amount.String())
	assert.Equal(t, statements.TypeExpense, tx.Type)
	assert.Equal(t, 1, result.Corrections)
}

func TestNormalize_AgreementIsNotACorrection(t *testing.T) {
	n := New(testLogger())

	result := n.Normalize([]statements.Candidate{
		candidate("-85.50", statements.HintDebit),
		candidate("150.00", statements.HintCredit),
	})

	require.Len(t, result.Transactions, 2)
	assert.Equal(t, 0, result.Corrections)
	assert.Equal(t, statements.TypeExpense, result.Transactions[0].Type)
	assert.Equal(t, statements.TypeIncome, result.Transactions[1].Type)
}

func TestNormalize_NoHintSignDecides(t *testing.T) {
	n := New(testLogger())

	result := n.Normalize([]statements.Candidate{
		candidate("-45.20", statements.HintNone),
		candidate("2500.00", statements.HintNone),
	})

	require.Len(t, result.Transactions, 2)
	assert.Equal(t, statements.TypeExpense, result.Transactions[0].Type)
	assert.Equal(t, statements.TypeIncome, result.Transactions[1].Type)
	assert.Equal(t, 0, result.Corrections)
}

func TestNormalize_ZeroAmountDropped(t *testing.T) {
	n := New(testLogger())

	result := n.Normalize([]statements.Candidate{
		candidate("0.00", statements.HintNone),
		candidate("-45.20", statements.HintNone),
	})

	require.Len(t, result.Transactions, 1)
	assert.Equal(t, 1, result.Dropped)
}

func TestNormalize_SignMatchesType(t *testing.T) {
	// Invariant: the stored sign and type always agree, whatever the hint.
	amounts := []string{"-100.00", "100.00", "-0.01", "0.01"}
	hints := []statements.TypeHint{statements.HintNone, statements.HintCredit, statements.HintDebit}

	n := New(testLogger())
	for _, a := range amounts {
		for _, h := range hints {
			result := n.Normalize([]statements.Candidate{candidate(a, h)})
			require.Len(t, result.Transactions, 1)
			tx := result.Transactions[0]
			if tx.Amount.IsPositive() {
				assert.Equal(t, statements.TypeIncome, tx.Type, "amount %s hint %q", a, h)
			} else {
				assert.Equal(t, statements.TypeExpense, tx.Type, "amount %s hint %q", a, h)
			}
		}
	}
}

func TestCleanDescription(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"card payment prefix", "CARD PAYMENT TO Tesco Stores 3297", "Tesco Stores 3297"},
		{"trailing reference", "AMAZON MARKETPLACE 00123456", "AMAZON MARKETPLACE"},
		{"trailing date fragment", "COSTA COFFEE 12/01", "COSTA COFFEE"},
		{"whitespace collapse", "  GROCERY   STORE  ", "GROCERY STORE"},
		{"plain description untouched", "Netflix", "Netflix"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanDescription(tt.raw))
		})
	}
}

func TestNormalize_KeepsTrailingReference(t *testing.T) {
	n := New(testLogger())
	c := candidate("-12.00", statements.HintNone)
	c.Description = "AMAZON MARKETPLACE 00123456"

	result := n.Normalize([]statements.Candidate{c})

	require.Len(t, result.Transactions, 1)
	tx := result.Transactions[0]
	assert.Equal(t, "AMAZON MARKETPLACE", tx.Description)
	require.NotNil(t, tx.Reference)
	assert.Equal(t, "00123456", *tx.Reference)
}

func TestExtractReference(t *testing.T) {
	ref := ExtractReference("COSTA COFFEE 00987654")
	require.NotNil(t, ref)
	assert.Equal(t, "00987654", *ref)

	assert.Nil(t, ExtractReference("COSTA COFFEE"))
	assert.Nil(t, ExtractReference("COSTA COFFEE 12/01"), "date fragments are not references")
}

func TestSanitize_CategoryHints(t *testing.T) {
	s := NewDescriptionSanitizer()

	tests := []struct {
		raw  string
		want string
	}{
		{"TESCO STORES 3297", "Groceries"},
		{"NETFLIX.COM", "Subscriptions"},
		{"SALARY ACME LTD", "Salary"},
		{"UBER *TRIP", "Transport"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			_, category := s.Sanitize(tt.raw)
			require.NotNil(t, category)
			assert.Equal(t, tt.want, *category)
		})
	}

	_, category := s.Sanitize("SOME UNKNOWN MERCHANT")
	assert.Nil(t, category)
}
