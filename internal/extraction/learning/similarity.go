package learning

import (
	"math"

	"github.com/invoiceflow/invoiceflow-backend/internal/extraction/domain"
)

// maxLineCountDiff is how far apart two extractions' line counts can be and
// still count as matching.
const maxLineCountDiff = 2

// grandTotalTolerance for considering two extracted totals equal
const grandTotalTolerance = 0.01

// Similarity compares two extraction results on the fields present in both
// and returns matches/comparable in [0,1]. The line-item count is always
// comparable, so two results are never entirely incomparable unless one is
// nil.
func Similarity(a, b *domain.ParsedDocument) float64 {
	if a == nil || b == nil {
		return 0
	}

	comparable := 0
	matches := 0

	if a.Header.TaxID != "" && b.Header.TaxID != "" {
		comparable++
		if a.Header.TaxID == b.Header.TaxID {
			matches++
		}
	}

	if a.Header.DocNumber != "" && b.Header.DocNumber != "" {
		comparable++
		if a.Header.DocNumber == b.Header.DocNumber {
			matches++
		}
	}

	if a.Header.GrandTotal != nil && b.Header.GrandTotal != nil {
		comparable++
		if math.Abs(*a.Header.GrandTotal-*b.Header.GrandTotal) <= grandTotalTolerance {
			matches++
		}
	}

	comparable++
	diff := len(a.LineItems) - len(b.LineItems)
	if diff < 0 {
		diff = -diff
	}
	if diff <= maxLineCountDiff {
		matches++
	}

	return float64(matches) / float64(comparable)
}
