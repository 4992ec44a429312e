package matcher

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invoiceflow/invoiceflow-backend/internal/extraction/domain"
	"github.com/invoiceflow/invoiceflow-backend/internal/extraction/store"
	"github.com/invoiceflow/invoiceflow-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New("test", "test")
}

func TestExtractTaxID(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		want   string
		wantOK bool
	}{
		{
			name:   "nif label",
			text:   "MERCADO CENTRAL\nNIF: 501234567\nFatura",
			want:   "501234567",
			wantOK: true,
		},
		{
			name:   "nipc label",
			text:   "NIPC 509876543 Lda",
			want:   "509876543",
			wantOK: true,
		},
		{
			name:   "contribuinte label",
			text:   "Contribuinte Nº 123456789",
			want:   "123456789",
			wantOK: true,
		},
		{
			name:   "vat with country prefix",
			text:   "VAT No: PT 501234567",
			want:   "501234567",
			wantOK: true,
		},
		{
			name:   "bare nine digits are ignored",
			text:   "telefone 219876543 sem qualquer etiqueta fiscal",
			wantOK: false,
		},
		{
			name:   "label outside search region",
			text:   strings.Repeat("x", 1000) + "\nNIF: 501234567",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractTaxID(tt.text)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestExtractSupplierName(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		want   string
		wantOK bool
	}{
		{
			name:   "first plausible line",
			text:   "Mercado Central Lda\nRua das Flores 1\n",
			want:   "Mercado Central Lda",
			wantOK: true,
		},
		{
			name:   "skips document type lines",
			text:   "FATURA\nORIGINAL\nMercado Central Lda\n",
			want:   "Mercado Central Lda",
			wantOK: true,
		},
		{
			name:   "skips short lines",
			text:   "ab\nMercado Central\n",
			want:   "Mercado Central",
			wantOK: true,
		},
		{
			name:   "requires letters",
			text:   "12345 678\n99 99 99\n",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractSupplierName(tt.text)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Mercado Central, Lda.", "mercado central lda"},
		{"PADARIA SÃO JOÃO", "padaria sao joao"},
		{"  Café & Restauração -- Unipessoal  ", "cafe restauracao unipessoal"},
		{"A-B-C 123", "a b c 123"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeName(tt.in), "input %q", tt.in)
	}
}

func TestFindSupplierByTaxIDThenName(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	m := New(mem, mem, testLogger())

	taxID := "501234567"
	created := &domain.Supplier{
		ID:             "sup-1",
		Name:           "Mercado Central Lda",
		NormalizedName: NormalizeName("Mercado Central Lda"),
		TaxID:          &taxID,
	}
	require.NoError(t, mem.Create(ctx, created))

	byTax, err := m.FindSupplier(ctx, "501234567", "")
	require.NoError(t, err)
	require.NotNil(t, byTax)
	assert.Equal(t, "sup-1", byTax.ID)

	byName, err := m.FindSupplier(ctx, "", "MERCADO CENTRAL, LDA")
	require.NoError(t, err)
	require.NotNil(t, byName)
	assert.Equal(t, "sup-1", byName.ID)

	missing, err := m.FindSupplier(ctx, "999999999", "Outra Loja")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestFindOrCreateSupplier(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	m := New(mem, mem, testLogger())

	// A tax id alone is not enough to create a record
	anon, err := m.FindOrCreateSupplier(ctx, "501234567", "")
	require.NoError(t, err)
	assert.Nil(t, anon)

	created, err := m.FindOrCreateSupplier(ctx, "501234567", "Mercado Central Lda")
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, "Mercado Central Lda", created.Name)
	require.NotNil(t, created.TaxID)
	assert.Equal(t, "501234567", *created.TaxID)

	// Second sight resolves to the same record
	again, err := m.FindOrCreateSupplier(ctx, "501234567", "Mercado Central Lda")
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, created.ID, again.ID)
}

func TestIdentify(t *testing.T) {
	text := "Mercado Central Lda\nNIF: 501234567\nFATURA N 1\n"
	taxID, name := New(store.NewMemory(), store.NewMemory(), testLogger()).Identify(text)

	assert.Equal(t, "501234567", taxID)
	assert.Equal(t, "Mercado Central Lda", name)
}
