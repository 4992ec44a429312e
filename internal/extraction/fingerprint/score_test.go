package fingerprint

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invoiceflow/invoiceflow-backend/internal/extraction/domain"
)

func fullMatchFingerprint() domain.Fingerprint {
	return domain.Fingerprint{
		RequiredKeywords: []string{"MERCADO CENTRAL", "FATURA", "123456789"},
		OptionalKeywords: []string{"IVA", "TOTAL"},
		Structure: domain.StructureMarkers{
			TableStartMarker: "DESCRIÇÃO",
			TableColumns:     4,
			ColumnOrder:      []string{domain.ColDescricao, domain.ColQtd, domain.ColPrecoUnit, domain.ColTotal},
		},
		Layout: domain.LayoutHints{
			Multipage:     false,
			FooterPattern: "Processado por programa certificado",
			NIFPosition:   domain.NIFPositionHeader,
			DateFormat:    "dd/mm/yyyy",
		},
	}
}

func fullMatchText() string {
	return `MERCADO CENTRAL LDA
NIF: 123456789
FATURA N. FT2024/001
Data: 15/01/2024

DESCRIÇÃO          QTD    PREÇO UNIT    TOTAL
Arroz Agulha       2      1,99          3,98
Azeite Virgem      1      5,49          5,49

TOTAL IVA          0,50
TOTAL              9,47

Processado por programa certificado n 123/AT
`
}

func TestScoreFullMatch(t *testing.T) {
	// All required keywords, table marker, correct column order, and every
	// layout hint present: the score must land in the high bucket.
	result := Score(fullMatchText(), fullMatchFingerprint())

	assert.GreaterOrEqual(t, result.Score, ScoreHighBucket)
	assert.Equal(t, domain.BucketHigh, result.Bucket)
	assert.Equal(t, 40.0, result.Breakdown.Keywords)
	assert.Equal(t, 35.0, result.Breakdown.Structure)
	assert.Equal(t, 25.0, result.Breakdown.Layout)
}

func TestScoreDeterministic(t *testing.T) {
	text := fullMatchText()
	fp := fullMatchFingerprint()

	first := Score(text, fp)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Score(text, fp))
	}
}

func TestScoreMonotonicCoverage(t *testing.T) {
	fp := fullMatchFingerprint()

	// Strip the text of structure and layout signals one group at a time;
	// each poorer text must never outscore a richer one.
	rich := fullMatchText()
	noFooter := strings.Replace(rich, "Processado por programa certificado n 123/AT", "", 1)
	noColumns := strings.Replace(noFooter, "DESCRIÇÃO          QTD    PREÇO UNIT    TOTAL", "", 1)
	oneKeyword := "FATURA de outra loja qualquer"

	sRich := Score(rich, fp).Score
	sNoFooter := Score(noFooter, fp).Score
	sNoColumns := Score(noColumns, fp).Score
	sOne := Score(oneKeyword, fp).Score

	assert.GreaterOrEqual(t, sRich, sNoFooter)
	assert.GreaterOrEqual(t, sNoFooter, sNoColumns)
	assert.GreaterOrEqual(t, sNoColumns, sOne)
}

func TestScoreNIFPositionHeader(t *testing.T) {
	fp := domain.Fingerprint{
		RequiredKeywords: []string{"LOJA"},
		Layout: domain.LayoutHints{
			NIFPosition: domain.NIFPositionHeader,
		},
	}

	padding := strings.Repeat("x", 1980)

	// Tax id within the first 10% of a 2,000-char document
	early := "LOJA NIF 123456789 " + padding
	require.Greater(t, len(early), 1900)

	// Same id only near the end of the document
	late := "LOJA " + padding + " NIF 123456789"

	earlyLayout := Score(early, fp).Breakdown.Layout
	lateLayout := Score(late, fp).Breakdown.Layout

	// Both get the multipage-agreement points; only the early one gets the
	// NIF position points on top.
	assert.Equal(t, earlyLayout, lateLayout+nifPositionPoints)
}

func TestScoreColumnOrderOutOfOrder(t *testing.T) {
	fp := domain.Fingerprint{
		Structure: domain.StructureMarkers{
			ColumnOrder: []string{domain.ColQtd, domain.ColDescricao, domain.ColTotal},
		},
	}

	ordered := "QTD DESCRIÇÃO TOTAL"
	scrambled := "TOTAL DESCRIÇÃO QTD"

	sOrdered := Score(ordered, fp).Breakdown.Structure
	sScrambled := Score(scrambled, fp).Breakdown.Structure

	assert.Greater(t, sOrdered, sScrambled)
}

func TestScoreEmptyFingerprint(t *testing.T) {
	result := Score(fullMatchText(), domain.Fingerprint{})

	// Only the multipage agreement can fire on an empty fingerprint
	assert.LessOrEqual(t, result.Score, multipagePoints)
	assert.Equal(t, domain.BucketLow, result.Bucket)
}

func TestScoreBuckets(t *testing.T) {
	tests := []struct {
		score  float64
		bucket domain.ConfidenceBucket
	}{
		{100, domain.BucketHigh},
		{90, domain.BucketHigh},
		{89.9, domain.BucketMedium},
		{50, domain.BucketMedium},
		{49.9, domain.BucketLow},
		{0, domain.BucketLow},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.bucket, bucketFor(tt.score), "score %.1f", tt.score)
	}
}

func TestScoreKeywordRatio(t *testing.T) {
	fp := domain.Fingerprint{
		RequiredKeywords: []string{"ALPHA", "BETA", "GAMMA"},
	}

	text := "alpha and beta are here, gamma is not... wait"
	// All three match case-insensitively
	assert.Equal(t, 30.0, Score(text, fp).Breakdown.Keywords)

	partial := "only alpha here"
	assert.InDelta(t, 10.0, Score(partial, fp).Breakdown.Keywords, 0.001)
}
