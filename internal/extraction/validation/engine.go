// Package validation rejects implausible extractions before they reach the
// rest of the system. Validation is pure: the same document always yields
// the same verdict.
package validation

import "github.com/invoiceflow/invoiceflow-backend/internal/extraction/domain"

// Engine validates parsed documents. With lenient enabled, validation is
// downgraded to "at least one line item extracted" for environments that
// need looser acceptance.
type Engine struct {
	lenient bool
}

// NewEngine creates a validation engine
func NewEngine(lenient bool) *Engine {
	return &Engine{lenient: lenient}
}

// Validate runs every line validation plus the document validation.
// The document is valid when no hard errors were found.
func (e *Engine) Validate(doc *domain.ParsedDocument) domain.ValidationResult {
	if e.lenient {
		return e.validateLenient(doc)
	}

	result := domain.NewValidationResult()
	for i, item := range doc.LineItems {
		result.Merge(e.ValidateLine(item, i))
	}
	result.Merge(e.ValidateDocument(doc))
	return result
}

// validateLenient only requires that something was extracted at all
func (e *Engine) validateLenient(doc *domain.ParsedDocument) domain.ValidationResult {
	result := domain.NewValidationResult()
	if len(doc.LineItems) == 0 {
		result.AddError("no line items extracted")
	}
	return result
}

// HasLineItems is the lenient acceptance check applied to every raw AI
// response regardless of mode.
func HasLineItems(doc *domain.ParsedDocument) bool {
	return doc != nil && len(doc.LineItems) > 0
}
