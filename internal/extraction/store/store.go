// Package store holds the supplier/template persistence contracts.
//
// Template reads (scoring) and writes (learning) for the same template are
// not atomic across concurrent documents; the policy is last-writer-wins.
// Templates self-heal over many documents, so a lost merge is acceptable.
// No lock is ever held across an external provider call.
package store

import (
	"context"

	"github.com/invoiceflow/invoiceflow-backend/internal/extraction/domain"
)

// SupplierStore is the keyed CRUD contract for supplier identity records.
// Lookups return (nil, nil) when no record matches.
type SupplierStore interface {
	GetByTaxID(ctx context.Context, taxID string) (*domain.Supplier, error)
	GetByNormalizedName(ctx context.Context, normalizedName string) (*domain.Supplier, error)
	Create(ctx context.Context, supplier *domain.Supplier) error
}

// TemplateStore is the keyed CRUD contract for learned templates.
type TemplateStore interface {
	// GetTemplatesBySupplier returns the supplier's active templates
	// ordered by descending confidence score.
	GetTemplatesBySupplier(ctx context.Context, supplierID string) ([]*domain.Template, error)
	GetTemplate(ctx context.Context, id string) (*domain.Template, error)
	CreateTemplate(ctx context.Context, template *domain.Template) error
	UpdateTemplate(ctx context.Context, template *domain.Template) error
}
