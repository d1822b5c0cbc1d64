package normalizer

import (
	"regexp"
	"strings"
)

// categoryPattern maps a description pattern to a category hint
type categoryPattern struct {
	pattern  *regexp.Regexp
	category string
}

// DescriptionSanitizer cleans statement descriptions and attaches an
// optional category hint
type DescriptionSanitizer struct {
	patterns []categoryPattern
}

// NewDescriptionSanitizer creates a sanitizer with common statement patterns
func NewDescriptionSanitizer() *DescriptionSanitizer {
	return &DescriptionSanitizer{
		patterns: defaultCategoryPatterns(),
	}
}

// Sanitize cleans a raw description and returns it with a category hint
// when a known pattern matches
func (s *DescriptionSanitizer) Sanitize(raw string) (string, *string) {
	cleaned := CleanDescription(raw)

	for _, p := range s.patterns {
		if p.pattern.MatchString(cleaned) {
			category := p.category
			return cleaned, &category
		}
	}

	return cleaned, nil
}

// ExtractReference pulls the trailing reference number off a raw
// description, the same token CleanDescription strips.
func ExtractReference(raw string) *string {
	m := refTrailRe.FindString(strings.TrimSpace(raw))
	if m == "" {
		return nil
	}
	ref := strings.TrimSpace(m)
	return &ref
}

var (
	refTrailRe   = regexp.MustCompile(`\s+\d{6,}$`)
	dateTrailRe  = regexp.MustCompile(`\s+\d{1,2}/\d{1,2}/?$`)
	multiSpaceRe = regexp.MustCompile(`\s+`)
)

// descriptionPrefixes are transaction-channel markers banks prepend to the
// merchant text.
var descriptionPrefixes = []string{
	"CARD PAYMENT TO ",
	"DIRECT DEBIT TO ",
	"DIRECT DEBIT ",
	"STANDING ORDER TO ",
	"STANDING ORDER ",
	"BANK TRANSFER TO ",
	"BANK TRANSFER FROM ",
	"PURCHASE ",
	"PAYMENT ",
	"POS ",
	"VISA ",
	"MASTERCARD ",
	"MAESTRO ",
}

// CleanDescription removes channel prefixes, trailing reference numbers and
// noise whitespace from a statement description
func CleanDescription(raw string) string {
	result := strings.TrimSpace(raw)

	upper := strings.ToUpper(result)
	for _, prefix := range descriptionPrefixes {
		if strings.HasPrefix(upper, prefix) {
			result = result[len(prefix):]
			break
		}
	}

	// Remove terminal/reference numbers at the end (e.g., "00123456")
	result = refTrailRe.ReplaceAllString(result, "")

	// Remove date fragments at the end (e.g., "12/01")
	result = dateTrailRe.ReplaceAllString(result, "")

	// Collapse multiple spaces
	result = multiSpaceRe.ReplaceAllString(result, " ")

	return strings.TrimSpace(result)
}

// defaultCategoryPatterns covers the merchants and channels that show up on
// most statements; everything else stays uncategorized.
func defaultCategoryPatterns() []categoryPattern {
	return []categoryPattern{
		{regexp.MustCompile(`(?i)GROCERY|SUPERMARKET|TESCO|SAINSBURY|LIDL|ALDI|WAITROSE|MORRISONS`), "Groceries"},
		{regexp.MustCompile(`(?i)UBER\s*EATS|DELIVEROO|JUST\s*EAT|GLOVO`), "Food Delivery"},
		{regexp.MustCompile(`(?i)STARBUCKS|COSTA|CAFFE|COFFEE`), "Coffee"},
		{regexp.MustCompile(`(?i)MC\s*DONALDS|MCDONALD|BURGER\s*KING|KFC|PIZZA`), "Fast Food"},
		{regexp.MustCompile(`(?i)\bUBER\b|\bBOLT\b|TAXI`), "Transport"},
		{regexp.MustCompile(`(?i)RAIL|TRAINLINE|TFL|TRANSIT|METRO`), "Transport"},
		{regexp.MustCompile(`(?i)NETFLIX|SPOTIFY|DISNEY|PRIME\s*VIDEO|YOUTUBE`), "Subscriptions"},
		{regexp.MustCompile(`(?i)AMAZON|EBAY|ETSY`), "Shopping"},
		{regexp.MustCompile(`(?i)SALARY|PAYROLL|WAGES`), "Salary"},
		{regexp.MustCompile(`(?i)ELECTRIC|GAS\s|ENERGY|WATER|COUNCIL\s*TAX`), "Utilities"},
		{regexp.MustCompile(`(?i)RENT\b|MORTGAGE`), "Housing"},
		{regexp.MustCompile(`(?i)PHARMACY|BOOTS|DOCTOR|DENTAL`), "Health"},
		{regexp.MustCompile(`(?i)INTEREST\s*(PAID|EARNED)`), "Interest"},
		{regexp.MustCompile(`(?i)ATM|CASH\s*WITHDRAWAL`), "Cash"},
	}
}
