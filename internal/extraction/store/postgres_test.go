package store_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invoiceflow/invoiceflow-backend/internal/extraction/domain"
	"github.com/invoiceflow/invoiceflow-backend/internal/extraction/store"
	"github.com/invoiceflow/invoiceflow-backend/pkg/errors"
	"github.com/invoiceflow/invoiceflow-backend/pkg/testutil"
)

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestPostgresGetByTaxID(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	pg := store.NewPostgres(mockDB.DB)

	now := time.Now()

	t.Run("found", func(t *testing.T) {
		rows := testutil.MockRows("id", "name", "normalized_name", "tax_id", "created_at", "updated_at").
			AddRow("sup-1", "Mercado Central Lda", "mercado central lda", "501234567", now, now)
		mockDB.ExpectQuery("SELECT id, name, normalized_name, tax_id, created_at, updated_at").
			WithArgs("501234567").
			WillReturnRows(rows)

		supplier, err := pg.GetByTaxID(context.Background(), "501234567")
		require.NoError(t, err)
		require.NotNil(t, supplier)
		assert.Equal(t, "sup-1", supplier.ID)
		require.NotNil(t, supplier.TaxID)
		assert.Equal(t, "501234567", *supplier.TaxID)
	})

	t.Run("absent is nil without error", func(t *testing.T) {
		mockDB.ExpectQuery("SELECT id, name, normalized_name, tax_id, created_at, updated_at").
			WithArgs("999999999").
			WillReturnRows(testutil.MockRows("id", "name", "normalized_name", "tax_id", "created_at", "updated_at"))

		supplier, err := pg.GetByTaxID(context.Background(), "999999999")
		require.NoError(t, err)
		assert.Nil(t, supplier)
	})

	mockDB.ExpectationsWereMet(t)
}

func TestPostgresGetByNormalizedName(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	pg := store.NewPostgres(mockDB.DB)

	now := time.Now()
	rows := testutil.MockRows("id", "name", "normalized_name", "tax_id", "created_at", "updated_at").
		AddRow("sup-1", "Mercado Central Lda", "mercado central lda", nil, now, now)
	mockDB.ExpectQuery("SELECT id, name, normalized_name, tax_id, created_at, updated_at").
		WithArgs("mercado central lda").
		WillReturnRows(rows)

	supplier, err := pg.GetByNormalizedName(context.Background(), "mercado central lda")
	require.NoError(t, err)
	require.NotNil(t, supplier)
	assert.Nil(t, supplier.TaxID)

	mockDB.ExpectationsWereMet(t)
}

func TestPostgresCreateSupplier(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	pg := store.NewPostgres(mockDB.DB)

	now := time.Now()
	supplier := &domain.Supplier{
		ID:             "sup-1",
		Name:           "Mercado Central Lda",
		NormalizedName: "mercado central lda",
		TaxID:          testutil.PtrString("501234567"),
	}

	mockDB.ExpectQuery("INSERT INTO suppliers").
		WithArgs("sup-1", "Mercado Central Lda", "mercado central lda", "501234567").
		WillReturnRows(testutil.MockRows("created_at", "updated_at").AddRow(now, now))

	require.NoError(t, pg.Create(context.Background(), supplier))
	assert.Equal(t, now, supplier.CreatedAt)

	mockDB.ExpectationsWereMet(t)
}

func TestPostgresGetTemplatesBySupplier(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	pg := store.NewPostgres(mockDB.DB)

	now := time.Now()
	headerConfig := mustJSON(t, domain.HeaderConfig{domain.FieldTaxID: `NIF\s*([0-9]{9})`})
	tableConfig := mustJSON(t, domain.TableConfig{StartMarker: "DESCRIÇÃO"})
	fingerprint := mustJSON(t, domain.Fingerprint{RequiredKeywords: []string{"Mercado"}})

	rows := testutil.MockRows("id", "supplier_id", "format_id", "header_config", "table_config",
		"fingerprint_config", "confidence_score", "times_used", "times_successful", "is_active",
		"created_at", "updated_at").
		AddRow("tpl-1", "sup-1", "fmt-a1b2c3d4", headerConfig, tableConfig, fingerprint,
			90.0, 10, 9, true, now, now)

	mockDB.ExpectQuery("SELECT id, supplier_id, format_id, header_config, table_config,").
		WithArgs("sup-1").
		WillReturnRows(rows)

	templates, err := pg.GetTemplatesBySupplier(context.Background(), "sup-1")
	require.NoError(t, err)
	require.Len(t, templates, 1)

	tpl := templates[0]
	assert.Equal(t, "tpl-1", tpl.ID)
	assert.Equal(t, 90.0, tpl.ConfidenceScore)
	assert.Equal(t, "DESCRIÇÃO", tpl.TableConfig.StartMarker)
	assert.Equal(t, []string{"Mercado"}, tpl.Fingerprint.RequiredKeywords)
	assert.Contains(t, tpl.HeaderConfig, domain.FieldTaxID)

	mockDB.ExpectationsWereMet(t)
}

func TestPostgresGetTemplateNotFound(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	pg := store.NewPostgres(mockDB.DB)

	mockDB.ExpectQuery("SELECT id, supplier_id, format_id, header_config, table_config,").
		WithArgs("tpl-missing").
		WillReturnRows(testutil.MockRows("id", "supplier_id", "format_id", "header_config", "table_config",
			"fingerprint_config", "confidence_score", "times_used", "times_successful", "is_active",
			"created_at", "updated_at"))

	_, err := pg.GetTemplate(context.Background(), "tpl-missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	mockDB.ExpectationsWereMet(t)
}

func TestPostgresCreateTemplate(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	pg := store.NewPostgres(mockDB.DB)

	now := time.Now()
	tpl := &domain.Template{
		ID:              "tpl-1",
		SupplierID:      "sup-1",
		FormatID:        "fmt-a1b2c3d4",
		HeaderConfig:    domain.HeaderConfig{domain.FieldTaxID: `NIF\s*([0-9]{9})`},
		TableConfig:     domain.TableConfig{StartMarker: "DESCRIÇÃO"},
		ConfidenceScore: 50,
		IsActive:        true,
	}

	mockDB.ExpectQuery("INSERT INTO templates").
		WithArgs("tpl-1", "sup-1", "fmt-a1b2c3d4",
			testutil.AnyJSON{}, testutil.AnyJSON{}, testutil.AnyJSON{},
			50.0, 0, 0, true).
		WillReturnRows(testutil.MockRows("created_at", "updated_at").AddRow(now, now))

	require.NoError(t, pg.CreateTemplate(context.Background(), tpl))
	assert.Equal(t, now, tpl.UpdatedAt)

	mockDB.ExpectationsWereMet(t)
}

func TestPostgresUpdateTemplate(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	pg := store.NewPostgres(mockDB.DB)

	tpl := &domain.Template{
		ID:              "tpl-1",
		SupplierID:      "sup-1",
		ConfidenceScore: 55,
		TimesUsed:       4,
		TimesSuccessful: 3,
		IsActive:        true,
	}

	t.Run("updates one row", func(t *testing.T) {
		mockDB.ExpectExec("UPDATE templates SET").
			WithArgs("tpl-1", testutil.AnyJSON{}, testutil.AnyJSON{}, testutil.AnyJSON{},
				55.0, 4, 3, true).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, pg.UpdateTemplate(context.Background(), tpl))
	})

	t.Run("missing template is not found", func(t *testing.T) {
		mockDB.ExpectExec("UPDATE templates SET").
			WithArgs("tpl-1", testutil.AnyJSON{}, testutil.AnyJSON{}, testutil.AnyJSON{},
				55.0, 4, 3, true).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := pg.UpdateTemplate(context.Background(), tpl)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrNotFound))
	})

	mockDB.ExpectationsWereMet(t)
}
