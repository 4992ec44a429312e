package store

import (
	"context"
	"sort"
	"sync"

	"github.com/invoiceflow/invoiceflow-backend/internal/extraction/domain"
	"github.com/invoiceflow/invoiceflow-backend/pkg/errors"
)

// Memory is an in-process store satisfying both contracts. It backs tests
// and single-node deployments that do not need durable templates.
type Memory struct {
	mu        sync.RWMutex
	suppliers map[string]*domain.Supplier
	templates map[string]*domain.Template
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		suppliers: make(map[string]*domain.Supplier),
		templates: make(map[string]*domain.Template),
	}
}

// GetByTaxID looks up a supplier by tax id
func (s *Memory) GetByTaxID(ctx context.Context, taxID string) (*domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, supplier := range s.suppliers {
		if supplier.TaxID != nil && *supplier.TaxID == taxID {
			return cloneSupplier(supplier), nil
		}
	}
	return nil, nil
}

// GetByNormalizedName looks up a supplier by normalized name
func (s *Memory) GetByNormalizedName(ctx context.Context, normalizedName string) (*domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, supplier := range s.suppliers {
		if supplier.NormalizedName == normalizedName {
			return cloneSupplier(supplier), nil
		}
	}
	return nil, nil
}

// Create stores a new supplier
func (s *Memory) Create(ctx context.Context, supplier *domain.Supplier) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.suppliers[supplier.ID]; exists {
		return errors.Conflict("supplier already exists")
	}
	s.suppliers[supplier.ID] = cloneSupplier(supplier)
	return nil
}

// GetTemplatesBySupplier returns active templates ordered by confidence desc
func (s *Memory) GetTemplatesBySupplier(ctx context.Context, supplierID string) ([]*domain.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var templates []*domain.Template
	for _, tpl := range s.templates {
		if tpl.SupplierID == supplierID && tpl.IsActive {
			templates = append(templates, cloneTemplate(tpl))
		}
	}

	sort.SliceStable(templates, func(i, j int) bool {
		return templates[i].ConfidenceScore > templates[j].ConfidenceScore
	})
	return templates, nil
}

// GetTemplate fetches one template by id
func (s *Memory) GetTemplate(ctx context.Context, id string) (*domain.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tpl, ok := s.templates[id]
	if !ok {
		return nil, errors.NotFound("template")
	}
	return cloneTemplate(tpl), nil
}

// CreateTemplate stores a new template
func (s *Memory) CreateTemplate(ctx context.Context, template *domain.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.templates[template.ID]; exists {
		return errors.Conflict("template already exists")
	}
	s.templates[template.ID] = cloneTemplate(template)
	return nil
}

// UpdateTemplate overwrites an existing template (last-writer-wins)
func (s *Memory) UpdateTemplate(ctx context.Context, template *domain.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.templates[template.ID]; !exists {
		return errors.NotFound("template")
	}
	s.templates[template.ID] = cloneTemplate(template)
	return nil
}

func cloneSupplier(in *domain.Supplier) *domain.Supplier {
	out := *in
	if in.TaxID != nil {
		taxID := *in.TaxID
		out.TaxID = &taxID
	}
	return &out
}

func cloneTemplate(in *domain.Template) *domain.Template {
	out := *in

	if in.HeaderConfig != nil {
		out.HeaderConfig = make(domain.HeaderConfig, len(in.HeaderConfig))
		for k, v := range in.HeaderConfig {
			out.HeaderConfig[k] = v
		}
	}
	out.TableConfig.Columns = append([]domain.Column(nil), in.TableConfig.Columns...)
	out.Fingerprint.RequiredKeywords = append([]string(nil), in.Fingerprint.RequiredKeywords...)
	out.Fingerprint.OptionalKeywords = append([]string(nil), in.Fingerprint.OptionalKeywords...)
	out.Fingerprint.Structure.ColumnOrder = append([]string(nil), in.Fingerprint.Structure.ColumnOrder...)

	return &out
}
