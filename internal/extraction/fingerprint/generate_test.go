package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invoiceflow/invoiceflow-backend/internal/extraction/domain"
)

func sampleDoc() *domain.ParsedDocument {
	return &domain.ParsedDocument{
		Header: domain.Header{
			SupplierName: "Mercado Central Lda",
			TaxID:        "123456789",
		},
		LineItems: []domain.LineItem{
			{LineNo: 1, RawDescription: "Arroz Agulha"},
		},
	}
}

func TestGenerateRequiredKeywords(t *testing.T) {
	fp := Generate(fullMatchText(), sampleDoc())

	assert.Contains(t, fp.RequiredKeywords, "Mercado Central Lda")
	assert.Contains(t, fp.RequiredKeywords, "Mercado")
	assert.Contains(t, fp.RequiredKeywords, "Central")
	assert.Contains(t, fp.RequiredKeywords, "123456789")
}

func TestGenerateSkipsShortNameTokens(t *testing.T) {
	doc := &domain.ParsedDocument{
		Header: domain.Header{SupplierName: "Casa do Povo de Abrantes"},
	}
	fp := Generate("CASA DO POVO DE ABRANTES", doc)

	assert.NotContains(t, fp.RequiredKeywords, "do")
	assert.NotContains(t, fp.RequiredKeywords, "de")
	assert.Contains(t, fp.RequiredKeywords, "Casa")
	assert.Contains(t, fp.RequiredKeywords, "Povo")
}

func TestGenerateTaxIDFallsBackToText(t *testing.T) {
	doc := sampleDoc()
	doc.Header.TaxID = ""

	fp := Generate(fullMatchText(), doc)
	assert.Contains(t, fp.RequiredKeywords, "123456789")
}

func TestGenerateStructure(t *testing.T) {
	fp := Generate(fullMatchText(), sampleDoc())

	assert.Equal(t, "DESCRIÇÃO", fp.Structure.TableStartMarker)
	require.NotEmpty(t, fp.Structure.ColumnOrder)
	assert.Equal(t, len(fp.Structure.ColumnOrder), fp.Structure.TableColumns)

	// Column order follows first occurrence in the text
	assert.Equal(t, domain.ColDescricao, fp.Structure.ColumnOrder[0])
}

func TestGenerateLayout(t *testing.T) {
	fp := Generate(fullMatchText(), sampleDoc())

	assert.False(t, fp.Layout.Multipage)
	assert.Equal(t, domain.NIFPositionHeader, fp.Layout.NIFPosition)
	assert.Equal(t, "dd/mm/yyyy", fp.Layout.DateFormat)
	assert.Equal(t, "Processado por programa certificado", fp.Layout.FooterPattern)
}

func TestGenerateDocTypePhrasePrecedence(t *testing.T) {
	text := "FATURA SIMPLIFICADA\nLoja Qualquer\n"
	fp := Generate(text, sampleDoc())

	assert.Contains(t, fp.OptionalKeywords, "FATURA SIMPLIFICADA")
	assert.NotContains(t, fp.OptionalKeywords, "FATURA")
}

func TestGenerateDedupesKeywords(t *testing.T) {
	doc := &domain.ParsedDocument{
		Header: domain.Header{SupplierName: "Arroz Arroz Arroz"},
	}
	fp := Generate("ARROZ", doc)

	seen := map[string]int{}
	for _, kw := range fp.RequiredKeywords {
		seen[kw]++
	}
	// Full name plus one deduped token
	assert.Equal(t, 1, seen["Arroz"])
	assert.Equal(t, 1, seen["Arroz Arroz Arroz"])
}

func TestGenerateScoreRoundTrip(t *testing.T) {
	// A fingerprint generated from a document must score that same document
	// into the high bucket: learning writes exactly what scoring reads.
	text := fullMatchText()
	fp := Generate(text, sampleDoc())

	result := Score(text, fp)
	assert.GreaterOrEqual(t, result.Score, ScoreHighBucket)
}
