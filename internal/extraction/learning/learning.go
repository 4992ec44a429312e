// Package learning refines templates from successful extractions, spins off
// layout variants when a supplier's invoices diverge, and keeps per-template
// track records that feed back into routing confidence.
package learning

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/invoiceflow/invoiceflow-backend/internal/extraction/domain"
	"github.com/invoiceflow/invoiceflow-backend/internal/extraction/fingerprint"
	"github.com/invoiceflow/invoiceflow-backend/internal/extraction/parser"
	"github.com/invoiceflow/invoiceflow-backend/internal/extraction/store"
	"github.com/invoiceflow/invoiceflow-backend/pkg/logger"
)

const (
	requiredKeywordCap = 8
	optionalKeywordCap = 10

	refineConfidenceStep = 5
	refineConfidenceCap  = 95

	// variantConfidence is the starting confidence for a freshly learned
	// template; it has no track record yet.
	variantConfidence = 50

	// matchThreshold is the minimum similarity for an AI result to be
	// considered "the same document" as a template's parse of it.
	matchThreshold = 0.75
)

// Learner mutates supplier templates in response to extraction outcomes
type Learner struct {
	templates store.TemplateStore
	parser    *parser.Parser
	log       *logger.Logger
}

func New(templates store.TemplateStore, p *parser.Parser, log *logger.Logger) *Learner {
	return &Learner{
		templates: templates,
		parser:    p,
		log:       log.WithComponent("learning"),
	}
}

// Refine merges a fresh extraction into an existing template. Keywords the
// document confirms are kept, stale ones age out, and missing parse configs
// are backfilled from the document text. The refinement is persisted.
func (l *Learner) Refine(ctx context.Context, tpl *domain.Template, doc *domain.ParsedDocument, text string) error {
	fresh := fingerprint.Generate(text, doc)

	tpl.Fingerprint.RequiredKeywords = mergeRequired(tpl.Fingerprint.RequiredKeywords, fresh.RequiredKeywords)
	tpl.Fingerprint.OptionalKeywords = mergeCapped(tpl.Fingerprint.OptionalKeywords, fresh.OptionalKeywords, optionalKeywordCap)
	tpl.Fingerprint.Structure = fresh.Structure
	tpl.Fingerprint.Layout = mergeLayout(tpl.Fingerprint.Layout, fresh.Layout)

	if len(tpl.HeaderConfig) == 0 {
		tpl.HeaderConfig = DeriveHeaderConfig(text)
	}
	if tpl.TableConfig.IsEmpty() {
		tpl.TableConfig = DeriveTableConfig(text, tpl.Fingerprint)
	}

	tpl.ConfidenceScore += refineConfidenceStep
	if tpl.ConfidenceScore > refineConfidenceCap {
		tpl.ConfidenceScore = refineConfidenceCap
	}
	tpl.UpdatedAt = time.Now()

	if err := l.templates.UpdateTemplate(ctx, tpl); err != nil {
		return fmt.Errorf("persisting refined template %s: %w", tpl.ID, err)
	}

	l.log.Info().
		Str("template_id", tpl.ID).
		Float64("confidence", tpl.ConfidenceScore).
		Msg("Template refined")
	return nil
}

// CreateVariant learns a brand-new template for a supplier from a verified
// extraction. Used both on cold start and when an existing template's layout
// no longer matches what the supplier sends.
func (l *Learner) CreateVariant(ctx context.Context, supplier *domain.Supplier, doc *domain.ParsedDocument, text string) (*domain.Template, error) {
	fp := fingerprint.Generate(text, doc)

	now := time.Now()
	tpl := &domain.Template{
		ID:              uuid.New().String(),
		SupplierID:      supplier.ID,
		FormatID:        "fmt-" + uuid.New().String()[:8],
		HeaderConfig:    DeriveHeaderConfig(text),
		TableConfig:     DeriveTableConfig(text, fp),
		Fingerprint:     fp,
		ConfidenceScore: variantConfidence,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := l.templates.CreateTemplate(ctx, tpl); err != nil {
		return nil, fmt.Errorf("persisting template variant for supplier %s: %w", supplier.ID, err)
	}

	l.log.Info().
		Str("supplier_id", supplier.ID).
		Str("template_id", tpl.ID).
		Str("format_id", tpl.FormatID).
		Msg("Template variant created")
	return tpl, nil
}

// UpdateStats records one use of a template and recomputes its confidence
// from the success ratio. Reads the latest persisted copy so concurrent
// documents do not clobber each other's counts more than last-writer-wins
// already allows.
func (l *Learner) UpdateStats(ctx context.Context, templateID string, success bool) error {
	tpl, err := l.templates.GetTemplate(ctx, templateID)
	if err != nil {
		return err
	}

	tpl.TimesUsed++
	if success {
		tpl.TimesSuccessful++
	}
	tpl.ConfidenceScore = 100 * float64(tpl.TimesSuccessful) / float64(tpl.TimesUsed)
	tpl.UpdatedAt = time.Now()

	return l.templates.UpdateTemplate(ctx, tpl)
}

// MatchTemplate parses the text with each candidate template and reports the
// first one whose parse agrees with the AI result above matchThreshold.
// Candidates come pre-sorted by confidence, so the first hit is the best bet.
func (l *Learner) MatchTemplate(doc *domain.ParsedDocument, text string, candidates []*domain.Template) (*domain.Template, float64) {
	for _, tpl := range candidates {
		if !tpl.HasParseConfig() {
			continue
		}
		parsed, err := l.parser.Parse(text, tpl)
		if err != nil {
			continue
		}
		if sim := Similarity(doc, parsed); sim >= matchThreshold {
			return tpl, sim
		}
	}
	return nil, 0
}

// mergeRequired keeps the keywords both fingerprints agree on, then fills
// with the fresh document's keywords up to the cap. Confirmed keywords never
// age out; stale ones the new document lacks do. A document that yields no
// keywords at all keeps the old set: refinement must never leave a template
// unable to match anything.
func mergeRequired(old, fresh []string) []string {
	freshSet := make(map[string]bool, len(fresh))
	for _, kw := range fresh {
		freshSet[strings.ToUpper(kw)] = true
	}

	var merged []string
	for _, kw := range old {
		if freshSet[strings.ToUpper(kw)] {
			merged = append(merged, kw)
		}
	}
	merged = append(merged, fresh...)
	merged = dedupe(merged)
	if len(merged) == 0 {
		return old
	}
	if len(merged) > requiredKeywordCap {
		merged = merged[:requiredKeywordCap]
	}
	return merged
}

func mergeCapped(old, fresh []string, limit int) []string {
	merged := dedupe(append(append([]string{}, old...), fresh...))
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

// mergeLayout takes the fresh document's observations, keeping old hints only
// where the fresh scan has no value at all. HasLogo always follows the fresh
// scan; a supplier can drop the logo from its layout.
func mergeLayout(old, fresh domain.LayoutHints) domain.LayoutHints {
	merged := fresh
	if merged.FooterPattern == "" {
		merged.FooterPattern = old.FooterPattern
	}
	if merged.NIFPosition == "" {
		merged.NIFPosition = old.NIFPosition
	}
	if merged.DateFormat == "" {
		merged.DateFormat = old.DateFormat
	}
	return merged
}

func dedupe(keywords []string) []string {
	seen := make(map[string]bool, len(keywords))
	var out []string
	for _, kw := range keywords {
		key := strings.ToUpper(strings.TrimSpace(kw))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, kw)
	}
	return out
}

// standardHeaderPatterns are the label conventions Portuguese invoices use
// for each header field. A derived config only keeps the patterns that
// actually match the source document.
var standardHeaderPatterns = map[string]string{
	domain.FieldTaxID:      `(?i)(?:NIF|NIPC|N\.?º?\s*CONTRIBUINTE|CONTRIBUINTE)[\s.:ºo]*\s*(?:PT\s*)?([0-9]{9})`,
	domain.FieldDocNumber:  `(?i)(?:FATURA|FACTURA|FATURA-RECIBO|FT|DOCUMENTO)\s*(?:N\.?[ºo]?|#|:)?\s*([A-Z0-9][A-Z0-9/.\- ]{2,24}[A-Z0-9])`,
	domain.FieldDocDate:    `(?i)DATA(?:\s+DE\s+EMISS[ÃA]O)?[\s.:]*([0-9]{2}[/.-][0-9]{2}[/.-][0-9]{4}|[0-9]{4}-[0-9]{2}-[0-9]{2})`,
	domain.FieldSubtotal:   `(?i)(?:SUBTOTAL|SUB-TOTAL|TOTAL\s+L[ÍI]QUIDO|MERCADORIA)[\s.:]*€?\s*([0-9][0-9.,]*)`,
	domain.FieldTaxAmount:  `(?i)(?:TOTAL\s+)?(?:DE\s+)?IVA[\s.:]*€?\s*([0-9][0-9.,]*)`,
	domain.FieldGrandTotal: `(?i)TOTAL(?:\s+A\s+PAGAR|\s+GERAL|\s+DO\s+DOCUMENTO)?[\s.:]*€?\s*([0-9][0-9.,]*)`,
}

// DeriveHeaderConfig builds a header config from the standard label patterns,
// keeping only the ones the document actually exhibits
func DeriveHeaderConfig(text string) domain.HeaderConfig {
	cfg := make(domain.HeaderConfig)
	for field, pattern := range standardHeaderPatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			continue
		}
		if re.MatchString(text) {
			cfg[field] = pattern
		}
	}
	return cfg
}

// DeriveTableConfig builds a marker-based table config from a fingerprint's
// structure observations. No row pattern is derived; the parser falls back
// to heuristic row splitting until a pattern is learned by hand or upstream.
func DeriveTableConfig(text string, fp domain.Fingerprint) domain.TableConfig {
	cfg := domain.TableConfig{
		StartMarker: fp.Structure.TableStartMarker,
	}
	if cfg.StartMarker == "" || !strings.Contains(strings.ToUpper(text), strings.ToUpper(cfg.StartMarker)) {
		return domain.TableConfig{}
	}
	if strings.Contains(strings.ToUpper(text), "TOTAL") {
		cfg.EndMarker = "TOTAL"
	}
	for i, name := range fp.Structure.ColumnOrder {
		cfg.Columns = append(cfg.Columns, domain.Column{Name: name, Index: i + 1})
	}
	return cfg
}
