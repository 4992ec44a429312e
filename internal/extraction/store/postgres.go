package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/invoiceflow/invoiceflow-backend/internal/extraction/domain"
	"github.com/invoiceflow/invoiceflow-backend/pkg/database"
	"github.com/invoiceflow/invoiceflow-backend/pkg/errors"
)

// Postgres persists suppliers and templates in PostgreSQL. Template
// configuration blobs live in JSONB columns; updates are whole-row
// overwrites (last-writer-wins, per the package concurrency policy).
type Postgres struct {
	db *database.DB
}

// NewPostgres creates a Postgres-backed store
func NewPostgres(db *database.DB) *Postgres {
	return &Postgres{db: db}
}

// templateRow is the flat database shape of a template
type templateRow struct {
	ID              string  `db:"id"`
	SupplierID      string  `db:"supplier_id"`
	FormatID        string  `db:"format_id"`
	HeaderConfig    []byte  `db:"header_config"`
	TableConfig     []byte  `db:"table_config"`
	Fingerprint     []byte  `db:"fingerprint_config"`
	ConfidenceScore float64 `db:"confidence_score"`
	TimesUsed       int     `db:"times_used"`
	TimesSuccessful int     `db:"times_successful"`
	IsActive        bool    `db:"is_active"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

// GetByTaxID looks up a supplier by tax id
func (s *Postgres) GetByTaxID(ctx context.Context, taxID string) (*domain.Supplier, error) {
	var supplier domain.Supplier
	query := `SELECT id, name, normalized_name, tax_id, created_at, updated_at
		FROM suppliers WHERE tax_id = $1`

	err := s.db.GetContext(ctx, &supplier, query, taxID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get supplier by tax id: %w", err)
	}
	return &supplier, nil
}

// GetByNormalizedName looks up a supplier by normalized name
func (s *Postgres) GetByNormalizedName(ctx context.Context, normalizedName string) (*domain.Supplier, error) {
	var supplier domain.Supplier
	query := `SELECT id, name, normalized_name, tax_id, created_at, updated_at
		FROM suppliers WHERE normalized_name = $1`

	err := s.db.GetContext(ctx, &supplier, query, normalizedName)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get supplier by name: %w", err)
	}
	return &supplier, nil
}

// Create stores a new supplier
func (s *Postgres) Create(ctx context.Context, supplier *domain.Supplier) error {
	query := `INSERT INTO suppliers (id, name, normalized_name, tax_id)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`

	err := s.db.QueryRowxContext(ctx, query,
		supplier.ID, supplier.Name, supplier.NormalizedName, supplier.TaxID,
	).Scan(&supplier.CreatedAt, &supplier.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create supplier: %w", err)
	}
	return nil
}

// GetTemplatesBySupplier returns the supplier's active templates ordered by
// descending confidence score.
func (s *Postgres) GetTemplatesBySupplier(ctx context.Context, supplierID string) ([]*domain.Template, error) {
	query := `SELECT id, supplier_id, format_id, header_config, table_config,
			fingerprint_config, confidence_score, times_used, times_successful, is_active,
			created_at, updated_at
		FROM templates
		WHERE supplier_id = $1 AND is_active = true
		ORDER BY confidence_score DESC`

	var rows []templateRow
	if err := s.db.SelectContext(ctx, &rows, query, supplierID); err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}

	templates := make([]*domain.Template, 0, len(rows))
	for _, row := range rows {
		tpl, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		templates = append(templates, tpl)
	}
	return templates, nil
}

// GetTemplate fetches one template by id
func (s *Postgres) GetTemplate(ctx context.Context, id string) (*domain.Template, error) {
	query := `SELECT id, supplier_id, format_id, header_config, table_config,
			fingerprint_config, confidence_score, times_used, times_successful, is_active,
			created_at, updated_at
		FROM templates WHERE id = $1`

	var row templateRow
	err := s.db.GetContext(ctx, &row, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("template")
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return row.toDomain()
}

// CreateTemplate stores a new template
func (s *Postgres) CreateTemplate(ctx context.Context, template *domain.Template) error {
	headerConfig, tableConfig, fingerprint, err := marshalConfigs(template)
	if err != nil {
		return err
	}

	query := `INSERT INTO templates
			(id, supplier_id, format_id, header_config, table_config,
			fingerprint_config, confidence_score, times_used, times_successful, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`

	err = s.db.QueryRowxContext(ctx, query,
		template.ID, template.SupplierID, template.FormatID,
		headerConfig, tableConfig, fingerprint,
		template.ConfidenceScore, template.TimesUsed, template.TimesSuccessful, template.IsActive,
	).Scan(&template.CreatedAt, &template.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create template: %w", err)
	}
	return nil
}

// UpdateTemplate overwrites an existing template (last-writer-wins)
func (s *Postgres) UpdateTemplate(ctx context.Context, template *domain.Template) error {
	headerConfig, tableConfig, fingerprint, err := marshalConfigs(template)
	if err != nil {
		return err
	}

	query := `UPDATE templates SET
			header_config = $2, table_config = $3, fingerprint_config = $4,
			confidence_score = $5, times_used = $6, times_successful = $7,
			is_active = $8, updated_at = NOW()
		WHERE id = $1`

	result, err := s.db.ExecContext(ctx, query,
		template.ID, headerConfig, tableConfig, fingerprint,
		template.ConfidenceScore, template.TimesUsed, template.TimesSuccessful, template.IsActive,
	)
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	if affected == 0 {
		return errors.NotFound("template")
	}
	return nil
}

func marshalConfigs(template *domain.Template) (headerConfig, tableConfig, fingerprint []byte, err error) {
	if headerConfig, err = json.Marshal(template.HeaderConfig); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal header config: %w", err)
	}
	if tableConfig, err = json.Marshal(template.TableConfig); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal table config: %w", err)
	}
	if fingerprint, err = json.Marshal(template.Fingerprint); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal fingerprint: %w", err)
	}
	return headerConfig, tableConfig, fingerprint, nil
}

func (r templateRow) toDomain() (*domain.Template, error) {
	tpl := &domain.Template{
		ID:              r.ID,
		SupplierID:      r.SupplierID,
		FormatID:        r.FormatID,
		ConfidenceScore: r.ConfidenceScore,
		TimesUsed:       r.TimesUsed,
		TimesSuccessful: r.TimesSuccessful,
		IsActive:        r.IsActive,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}

	if len(r.HeaderConfig) > 0 {
		if err := json.Unmarshal(r.HeaderConfig, &tpl.HeaderConfig); err != nil {
			return nil, fmt.Errorf("unmarshal header config: %w", err)
		}
	}
	if len(r.TableConfig) > 0 {
		if err := json.Unmarshal(r.TableConfig, &tpl.TableConfig); err != nil {
			return nil, fmt.Errorf("unmarshal table config: %w", err)
		}
	}
	if len(r.Fingerprint) > 0 {
		if err := json.Unmarshal(r.Fingerprint, &tpl.Fingerprint); err != nil {
			return nil, fmt.Errorf("unmarshal fingerprint: %w", err)
		}
	}
	return tpl, nil
}
