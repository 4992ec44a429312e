package validation

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/invoiceflow/invoiceflow-backend/internal/extraction/domain"
)

// Per-line thresholds
const (
	minDescriptionLen = 3
	priceWarnCeiling  = 100000.0
	quantityWarnLimit = 10000.0
	lineTolerance     = 0.02

	// Ratio band treated as an undeclared discount rather than a broken row
	discountBandLow  = 0.70
	discountBandHigh = 0.95
)

// phoneShaped matches strings that are only digits and phone punctuation;
// OCR sometimes promotes a contact line into the table.
var phoneShaped = regexp.MustCompile(`^\+?[0-9][0-9 ()./-]{6,}$`)

// garbageDescriptions is a blocklist of boilerplate the OCR layer tends to
// misread as products.
var garbageDescriptions = []string{
	"OBRIGADO PELA",
	"PROCESSADO POR",
	"CONTRIBUINTE",
	"MULTIBANCO",
	"TRANSPORTE",
	"CONTINUA",
	"PÁGINA",
	"PAGINA",
	"IBAN",
	"WWW.",
}

// ValidateLine checks one line item for internal consistency. idx is the
// zero-based position used in messages.
func (e *Engine) ValidateLine(item domain.LineItem, idx int) domain.ValidationResult {
	result := domain.NewValidationResult()
	prefix := fmt.Sprintf("line %d", idx+1)

	description := strings.TrimSpace(item.Description())
	switch {
	case description == "":
		result.AddError(prefix + ": empty description")
	case len([]rune(description)) < minDescriptionLen:
		result.AddError(prefix + ": description too short")
	case phoneShaped.MatchString(description):
		result.AddError(prefix + ": description looks like a phone number")
	case isGarbageDescription(description):
		result.AddError(prefix + ": description matches garbage-text blocklist")
	}

	switch {
	case item.UnitPrice == nil:
		result.AddError(prefix + ": missing unit price")
	case *item.UnitPrice <= 0:
		result.AddError(prefix + ": unit price must be positive")
	case *item.UnitPrice > priceWarnCeiling:
		result.AddWarning(prefix + ": unit price suspiciously high")
	}

	switch {
	case item.Quantity == nil:
		result.AddError(prefix + ": missing quantity")
	case *item.Quantity <= 0:
		result.AddError(prefix + ": quantity must be positive")
	case *item.Quantity > quantityWarnLimit:
		result.AddWarning(prefix + ": quantity suspiciously high")
	}

	e.checkLineArithmetic(&result, item, prefix)

	return result
}

// checkLineArithmetic verifies quantity*unit_price against the line total,
// accounting for declared and undeclared discounts.
func (e *Engine) checkLineArithmetic(result *domain.ValidationResult, item domain.LineItem, prefix string) {
	if item.Quantity == nil || item.UnitPrice == nil || item.LineTotal == nil {
		return
	}

	expected := *item.Quantity * *item.UnitPrice
	if math.Abs(expected-*item.LineTotal) <= lineTolerance {
		return
	}

	// Declared discount: re-derive the expected final price
	if item.DiscountPct != nil && item.UnitPriceOriginal != nil {
		discounted := *item.UnitPriceOriginal * (1 - *item.DiscountPct/100)
		if math.Abs(discounted**item.Quantity-*item.LineTotal) <= lineTolerance {
			return
		}
		result.AddWarning(prefix + ": declared discount does not reconcile with line total")
		return
	}

	// Undeclared discount band: the total is a plausible fraction of the
	// gross amount, so warn instead of rejecting.
	if expected > 0 {
		ratio := *item.LineTotal / expected
		if ratio >= discountBandLow && ratio <= discountBandHigh {
			result.AddWarning(fmt.Sprintf("%s: line total implies an undeclared discount (ratio %.2f)", prefix, ratio))
			return
		}
	}

	result.AddError(fmt.Sprintf("%s: quantity*unit_price %.2f disagrees with line total %.2f", prefix, expected, *item.LineTotal))
}

func isGarbageDescription(description string) bool {
	upper := strings.ToUpper(description)
	for _, garbage := range garbageDescriptions {
		if strings.Contains(upper, garbage) {
			return true
		}
	}
	return false
}
