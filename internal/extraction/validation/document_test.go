package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/invoiceflow/invoiceflow-backend/internal/extraction/domain"
)

func validDocument() *domain.ParsedDocument {
	return &domain.ParsedDocument{
		Header: domain.Header{
			Subtotal:   f(100.00),
			TaxAmount:  f(23.00),
			GrandTotal: f(123.00),
		},
		LineItems: []domain.LineItem{
			{RawDescription: "Arroz Agulha", Quantity: f(10), UnitPrice: f(6.00), LineTotal: f(60.00)},
			{RawDescription: "Azeite Virgem", Quantity: f(8), UnitPrice: f(5.00), LineTotal: f(40.00)},
		},
	}
}

func TestValidateDocumentValid(t *testing.T) {
	result := NewEngine(false).ValidateDocument(validDocument())

	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
}

func TestValidateDocumentNoLineItems(t *testing.T) {
	doc := &domain.ParsedDocument{Header: domain.Header{GrandTotal: f(10)}}
	result := NewEngine(false).ValidateDocument(doc)

	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors[0], "no line items")
}

func TestValidateDocumentGrandTotalMismatch(t *testing.T) {
	// subtotal 100.00 + tax 23.00 = 123.00; a stated 122.00 is off by a
	// full unit, far beyond the 0.02 tolerance.
	doc := validDocument()
	doc.Header.GrandTotal = f(122.00)

	result := NewEngine(false).ValidateDocument(doc)
	assert.False(t, result.Valid)
}

func TestValidateDocumentGrandTotalWithinTolerance(t *testing.T) {
	doc := validDocument()
	doc.Header.GrandTotal = f(123.01)

	result := NewEngine(false).ValidateDocument(doc)
	assert.True(t, result.Valid)
}

func TestValidateDocumentSubtotalTolerance(t *testing.T) {
	e := NewEngine(false)

	// Lines sum to 100.00; subtotal 101.50 is within max(2.00, 1%)
	within := validDocument()
	within.Header.Subtotal = f(101.50)
	within.Header.GrandTotal = f(124.50)
	result := e.ValidateDocument(within)
	assert.True(t, result.Valid)
	assert.NotEmpty(t, result.Warnings)

	// Subtotal 105.00 is outside the tolerance: hard error
	outside := validDocument()
	outside.Header.Subtotal = f(105.00)
	outside.Header.GrandTotal = f(128.00)
	assert.False(t, e.ValidateDocument(outside).Valid)
}

func TestValidateDocumentLargestLineCeiling(t *testing.T) {
	doc := validDocument()
	// Grand total far below the largest single line's gross amount
	doc.Header.Subtotal = nil
	doc.Header.TaxAmount = nil
	doc.Header.GrandTotal = f(5.00)

	result := NewEngine(false).ValidateDocument(doc)
	assert.False(t, result.Valid)
}

func TestValidateDocumentTaxRateWarning(t *testing.T) {
	doc := validDocument()
	// 16% matches no Portuguese IVA rate
	doc.Header.TaxAmount = f(16.00)
	doc.Header.GrandTotal = f(116.00)

	result := NewEngine(false).ValidateDocument(doc)
	assert.True(t, result.Valid)
	assert.NotEmpty(t, result.Warnings)
}

func TestValidateDocumentSkipsMissingFields(t *testing.T) {
	doc := &domain.ParsedDocument{
		LineItems: []domain.LineItem{
			{RawDescription: "Arroz Agulha", Quantity: f(2), UnitPrice: f(1.99), LineTotal: f(3.98)},
		},
	}

	result := NewEngine(false).ValidateDocument(doc)
	assert.True(t, result.Valid)
}

func TestValidateIdempotent(t *testing.T) {
	e := NewEngine(false)
	doc := validDocument()

	first := e.Validate(doc)
	second := e.Validate(doc)

	assert.True(t, first.Valid)
	assert.Equal(t, first, second)
}

func TestValidateLenientMode(t *testing.T) {
	lenient := NewEngine(true)

	// A document whose arithmetic is broken still passes with one line item
	doc := validDocument()
	doc.Header.GrandTotal = f(999.99)
	assert.True(t, lenient.Validate(doc).Valid)

	empty := &domain.ParsedDocument{}
	assert.False(t, lenient.Validate(empty).Valid)
}

func TestHasLineItems(t *testing.T) {
	assert.False(t, HasLineItems(nil))
	assert.False(t, HasLineItems(&domain.ParsedDocument{}))
	assert.True(t, HasLineItems(validDocument()))
}
