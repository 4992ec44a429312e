package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invoiceflow/invoiceflow-backend/internal/extraction/domain"
	"github.com/invoiceflow/invoiceflow-backend/pkg/errors"
)

func strPtr(s string) *string { return &s }

func sampleSupplier(id string) *domain.Supplier {
	return &domain.Supplier{
		ID:             id,
		Name:           "Mercado Central Lda",
		NormalizedName: "mercado central lda",
		TaxID:          strPtr("501234567"),
	}
}

func sampleStoredTemplate(id, supplierID string, confidence float64) *domain.Template {
	return &domain.Template{
		ID:              id,
		SupplierID:      supplierID,
		FormatID:        "fmt-" + id,
		HeaderConfig:    domain.HeaderConfig{domain.FieldTaxID: `NIF\s*([0-9]{9})`},
		TableConfig:     domain.TableConfig{StartMarker: "DESCRIÇÃO"},
		Fingerprint:     domain.Fingerprint{RequiredKeywords: []string{"Mercado"}},
		ConfidenceScore: confidence,
		IsActive:        true,
	}
}

func TestMemorySuppliers(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()

	require.NoError(t, mem.Create(ctx, sampleSupplier("sup-1")))

	t.Run("lookup by tax id", func(t *testing.T) {
		got, err := mem.GetByTaxID(ctx, "501234567")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "sup-1", got.ID)
	})

	t.Run("lookup by normalized name", func(t *testing.T) {
		got, err := mem.GetByNormalizedName(ctx, "mercado central lda")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "sup-1", got.ID)
	})

	t.Run("absence is nil without error", func(t *testing.T) {
		got, err := mem.GetByTaxID(ctx, "999999999")
		require.NoError(t, err)
		assert.Nil(t, got)

		got, err = mem.GetByNormalizedName(ctx, "nada")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("duplicate id conflicts", func(t *testing.T) {
		err := mem.Create(ctx, sampleSupplier("sup-1"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrConflict))
	})
}

func TestMemoryTemplates(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()

	require.NoError(t, mem.CreateTemplate(ctx, sampleStoredTemplate("tpl-low", "sup-1", 40)))
	require.NoError(t, mem.CreateTemplate(ctx, sampleStoredTemplate("tpl-high", "sup-1", 90)))
	require.NoError(t, mem.CreateTemplate(ctx, sampleStoredTemplate("tpl-other", "sup-2", 70)))

	inactive := sampleStoredTemplate("tpl-off", "sup-1", 99)
	inactive.IsActive = false
	require.NoError(t, mem.CreateTemplate(ctx, inactive))

	t.Run("by supplier ordered by confidence", func(t *testing.T) {
		templates, err := mem.GetTemplatesBySupplier(ctx, "sup-1")
		require.NoError(t, err)
		require.Len(t, templates, 2)
		assert.Equal(t, "tpl-high", templates[0].ID)
		assert.Equal(t, "tpl-low", templates[1].ID)
	})

	t.Run("get by id", func(t *testing.T) {
		tpl, err := mem.GetTemplate(ctx, "tpl-high")
		require.NoError(t, err)
		assert.Equal(t, 90.0, tpl.ConfidenceScore)
	})

	t.Run("missing template is not found", func(t *testing.T) {
		_, err := mem.GetTemplate(ctx, "tpl-missing")
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrNotFound))
	})

	t.Run("update overwrites", func(t *testing.T) {
		tpl, err := mem.GetTemplate(ctx, "tpl-low")
		require.NoError(t, err)
		tpl.ConfidenceScore = 55
		require.NoError(t, mem.UpdateTemplate(ctx, tpl))

		got, err := mem.GetTemplate(ctx, "tpl-low")
		require.NoError(t, err)
		assert.Equal(t, 55.0, got.ConfidenceScore)
	})

	t.Run("update of missing template is not found", func(t *testing.T) {
		err := mem.UpdateTemplate(ctx, sampleStoredTemplate("tpl-missing", "sup-1", 10))
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrNotFound))
	})
}

func TestMemoryReturnsClones(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()

	require.NoError(t, mem.CreateTemplate(ctx, sampleStoredTemplate("tpl-1", "sup-1", 60)))

	first, err := mem.GetTemplate(ctx, "tpl-1")
	require.NoError(t, err)

	// Mutating the returned copy must not leak into the store
	first.ConfidenceScore = 1
	first.HeaderConfig[domain.FieldDocNumber] = "FATURA"
	first.Fingerprint.RequiredKeywords[0] = "mutated"

	second, err := mem.GetTemplate(ctx, "tpl-1")
	require.NoError(t, err)
	assert.Equal(t, 60.0, second.ConfidenceScore)
	assert.NotContains(t, second.HeaderConfig, domain.FieldDocNumber)
	assert.Equal(t, "Mercado", second.Fingerprint.RequiredKeywords[0])
}
