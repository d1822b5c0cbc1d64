// Package parser provides rule-based transaction extraction from raw
// statement text. It is deterministic and side-effect-free: a line either
// matches a known statement layout or it does not, and matches carry
// confidence 1.0.
package parser

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kieranpgray/coinbag/internal/domain/statements"
)

// transactionLineRe matches a line with: date ... description ... amount,
// with an optional CR/DR marker after the amount.
// Groups: (1) date, (2) description, (3) amount, (4) marker.
var transactionLineRe = regexp.MustCompile(
	`(?i)^\s*` +
		// Date group - various formats
		`(\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4}|\d{4}[/\-]\d{2}[/\-]\d{2}|` +
		`(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\.?\s+\d{1,2}(?:[,\s]+\d{2,4})?|` +
		`\d{1,2}\s+(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\.?(?:[,\s]+\d{2,4})?)` +
		// Separator + description (non-greedy)
		`\s+(.+?)\s+` +
		// Amount (possibly negative, with optional currency symbol)
		`([+-]?[$€£]?-?\d{1,3}(?:,\d{3})*\.\d{2})` +
		// Optional credit/debit marker
		`\s*(CR|DR)?\s*$`,
)

// dateFormats to try when parsing extracted dates.
var dateFormats = []string{
	"2006-01-02",
	"2006/01/02",
	"02/01/2006", // DD/MM/YYYY
	"2/1/2006",
	"02-01-2006",
	"02.01.2006",
	"02/01/06",
	"2/1/06",
	"Jan 02 2006",
	"Jan 2 2006",
	"02 Jan 2006",
	"2 Jan 2006",
	"Jan 02, 2006",
	"Jan 2, 2006",
	"02 Jan",
	"2 Jan",
}

// Parser extracts transaction candidates from statement text
type Parser struct{}

// New creates a deterministic parser
func New() *Parser {
	return &Parser{}
}

// Parse scans the text line by line and returns one candidate per line that
// matches a known statement layout. Lines that do not match are skipped; the
// caller decides whether the yield is plausible for the document size.
func (p *Parser) Parse(text string) []statements.Candidate {
	var candidates []statements.Candidate

	for _, line := range strings.Split(text, "\n") {
		m := transactionLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		date, ok := ParseDate(strings.TrimSpace(m[1]))
		if !ok {
			continue
		}

		amount, ok := parseAmount(strings.TrimSpace(m[3]))
		if !ok {
			continue
		}

		hint := statements.HintNone
		switch strings.ToUpper(m[4]) {
		case "CR":
			hint = statements.HintCredit
		case "DR":
			hint = statements.HintDebit
		}

		candidates = append(candidates, statements.Candidate{
			Date:        date,
			Description: strings.TrimSpace(m[2]),
			RawAmount:   amount,
			TypeHint:    hint,
			Confidence:  1.0,
		})
	}

	return candidates
}

// NonBlankLines counts the lines carrying any content, used by the
// orchestrator's plausibility check.
func NonBlankLines(text string) int {
	n := 0
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}

// ParseDate tries the known statement date formats. Day-month dates without
// a year resolve into the current year.
func ParseDate(s string) (time.Time, bool) {
	for _, layout := range dateFormats {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if t.Year() == 0 {
			t = t.AddDate(time.Now().Year(), 0, 0)
		}
		return t, true
	}
	return time.Time{}, false
}

var amountCleanRe = regexp.MustCompile(`[$€£,]`)

func parseAmount(s string) (decimal.Decimal, bool) {
	s = amountCleanRe.ReplaceAllString(s, "")
	s = strings.TrimPrefix(s, "+")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}
