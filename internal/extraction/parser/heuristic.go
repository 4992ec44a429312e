package parser

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/invoiceflow/invoiceflow-backend/internal/extraction/domain"
)

// Sanity ceilings for heuristic assignments. A value beyond these almost
// always means the row split mis-aligned, not a real price or quantity.
const (
	maxUnitPrice = 99999.99
	maxLineTotal = 99999.99
	maxQuantity  = 9999.0
)

// barcodeDigits is the minimum digit-run length treated as a barcode/EAN
// rather than a price or quantity.
const barcodeDigits = 10

// totalsKeywords reject summary rows that slip inside the table region
var totalsKeywords = []string{
	"TOTAL",
	"SUBTOTAL",
	"SUB-TOTAL",
	"IVA",
	"TAXA",
	"DESCONTO",
}

// heuristicParseLine extracts a line item from a table row without a row
// pattern. Trailing columns are the most reliably numeric on Portuguese
// invoices, so numbers are assigned right to left: total, unit price,
// quantity.
func heuristicParseLine(line string) *domain.LineItem {
	tokens := strings.Fields(line)

	// Filter out barcodes before counting numbers
	filtered := tokens[:0:0]
	for _, token := range tokens {
		if digits := digitsOnly(token); len(digits) >= barcodeDigits {
			continue
		}
		filtered = append(filtered, token)
	}

	var numbers []float64
	for _, token := range filtered {
		if hasLetter(token) {
			continue
		}
		if value, ok := parseAmount(token); ok {
			numbers = append(numbers, value)
		}
	}
	if len(numbers) < 2 {
		return nil
	}

	description := descriptionBeforeDigits(strings.Join(filtered, " "))
	if len([]rune(description)) < 3 {
		return nil
	}
	if isTotalsRow(description) {
		return nil
	}

	item := &domain.LineItem{RawDescription: description}

	total := numbers[len(numbers)-1]
	unitPrice := numbers[len(numbers)-2]
	item.LineTotal = &total
	item.UnitPrice = &unitPrice
	if len(numbers) >= 3 {
		quantity := numbers[len(numbers)-3]
		item.Quantity = &quantity
	}

	return item
}

// withinSanityCeiling rejects items whose assigned values are implausible
func withinSanityCeiling(item *domain.LineItem) bool {
	if item.UnitPrice != nil && *item.UnitPrice > maxUnitPrice {
		return false
	}
	if item.LineTotal != nil && *item.LineTotal > maxLineTotal {
		return false
	}
	if item.Quantity != nil && *item.Quantity > maxQuantity {
		return false
	}
	return true
}

// descriptionBeforeDigits returns the text preceding the first digit run
func descriptionBeforeDigits(line string) string {
	for i, r := range line {
		if unicode.IsDigit(r) {
			return strings.TrimSpace(line[:i])
		}
	}
	return strings.TrimSpace(line)
}

func isTotalsRow(description string) bool {
	upper := strings.ToUpper(description)
	for _, kw := range totalsKeywords {
		if strings.Contains(upper, kw) {
			return true
		}
	}
	return false
}

func hasLetter(token string) bool {
	for _, r := range token {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

// parseAmount parses Portuguese and international number formats:
// "1.234,56", "1 234,56", "1,234.56", "1234.56", "12,5".
func parseAmount(token string) (float64, bool) {
	s := strings.TrimSpace(token)
	s = strings.Trim(s, "€$%")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" || !hasDigit(s) {
		return 0, false
	}

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		// The rightmost separator is the decimal one
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = replaceDecimalComma(s)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		s = replaceDecimalComma(s)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	value, _ := d.Float64()
	return value, true
}

// parseAmountPtr is parseAmount for optional fields
func parseAmountPtr(token string) *float64 {
	value, ok := parseAmount(token)
	if !ok {
		return nil
	}
	return &value
}

// replaceDecimalComma turns the last comma into a dot and drops any others
func replaceDecimalComma(s string) string {
	last := strings.LastIndex(s, ",")
	if last < 0 {
		return s
	}
	head := strings.ReplaceAll(s[:last], ",", "")
	return head + "." + s[last+1:]
}

func hasDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
