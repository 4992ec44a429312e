package validation

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/invoiceflow/invoiceflow-backend/internal/extraction/domain"
)

// Document-level thresholds
const (
	subtotalAbsTolerance  = 2.00
	subtotalPctTolerance  = 0.01
	subtotalSoftThreshold = 0.05
	grandTotalTolerance   = 0.02
	taxRateTolerance      = 0.02
)

// validTaxRates are the jurisdiction's IVA rates as fractions
var validTaxRates = []float64{0, 0.06, 0.13, 0.23}

// ValidateDocument checks whole-document arithmetic. Checks involving a
// field that was not extracted are skipped; missing fields are judged by
// the line-level and structural checks instead.
func (e *Engine) ValidateDocument(doc *domain.ParsedDocument) domain.ValidationResult {
	result := domain.NewValidationResult()

	if len(doc.LineItems) == 0 {
		result.AddError("no line items extracted")
		return result
	}

	e.checkSubtotal(&result, doc)
	e.checkGrandTotal(&result, doc)
	e.checkLargestLine(&result, doc)
	e.checkTaxRate(&result, doc)

	if doc.Header.GrandTotal != nil && *doc.Header.GrandTotal <= 0 {
		result.AddError("grand total must be positive")
	}

	return result
}

// checkSubtotal compares the sum of line totals against the header
// subtotal, within max(2.00, 1% of subtotal).
func (e *Engine) checkSubtotal(result *domain.ValidationResult, doc *domain.ParsedDocument) {
	if doc.Header.Subtotal == nil {
		return
	}

	sum := decimal.Zero
	counted := 0
	for _, item := range doc.LineItems {
		if item.LineTotal == nil {
			continue
		}
		sum = sum.Add(decimal.NewFromFloat(*item.LineTotal))
		counted++
	}
	if counted == 0 {
		return
	}

	subtotal := decimal.NewFromFloat(*doc.Header.Subtotal)
	diff, _ := sum.Sub(subtotal).Abs().Float64()

	tolerance := math.Max(subtotalAbsTolerance, *doc.Header.Subtotal*subtotalPctTolerance)
	switch {
	case diff > tolerance:
		result.AddError(fmt.Sprintf("line totals sum %.2f disagrees with subtotal %.2f", sumFloat(sum), *doc.Header.Subtotal))
	case diff > subtotalSoftThreshold:
		result.AddWarning(fmt.Sprintf("line totals sum differs from subtotal by %.2f", diff))
	}
}

// checkGrandTotal verifies subtotal + tax_amount == grand_total within 0.02
func (e *Engine) checkGrandTotal(result *domain.ValidationResult, doc *domain.ParsedDocument) {
	if doc.Header.Subtotal == nil || doc.Header.TaxAmount == nil || doc.Header.GrandTotal == nil {
		return
	}

	expected := decimal.NewFromFloat(*doc.Header.Subtotal).Add(decimal.NewFromFloat(*doc.Header.TaxAmount))
	diff, _ := expected.Sub(decimal.NewFromFloat(*doc.Header.GrandTotal)).Abs().Float64()
	if diff > grandTotalTolerance {
		result.AddError(fmt.Sprintf("subtotal %.2f + tax %.2f disagrees with grand total %.2f",
			*doc.Header.Subtotal, *doc.Header.TaxAmount, *doc.Header.GrandTotal))
	}
}

// checkLargestLine requires the grand total to cover at least the largest
// single line's gross amount.
func (e *Engine) checkLargestLine(result *domain.ValidationResult, doc *domain.ParsedDocument) {
	if doc.Header.GrandTotal == nil {
		return
	}

	largest := 0.0
	for _, item := range doc.LineItems {
		if item.Quantity == nil || item.UnitPrice == nil {
			continue
		}
		if gross := *item.Quantity * *item.UnitPrice; gross > largest {
			largest = gross
		}
	}

	if largest > 0 && *doc.Header.GrandTotal < largest-grandTotalTolerance {
		result.AddError(fmt.Sprintf("grand total %.2f is below the largest line amount %.2f", *doc.Header.GrandTotal, largest))
	}
}

// checkTaxRate accepts only effective tax rates near a valid IVA rate
func (e *Engine) checkTaxRate(result *domain.ValidationResult, doc *domain.ParsedDocument) {
	if doc.Header.Subtotal == nil || doc.Header.TaxAmount == nil || *doc.Header.Subtotal <= 0 {
		return
	}

	effective := *doc.Header.TaxAmount / *doc.Header.Subtotal
	for _, rate := range validTaxRates {
		if math.Abs(effective-rate) <= taxRateTolerance {
			return
		}
	}
	result.AddWarning(fmt.Sprintf("effective tax rate %.1f%% matches no valid IVA rate", effective*100))
}

func sumFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
