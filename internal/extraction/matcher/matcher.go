package matcher

import (
	"context"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/invoiceflow/invoiceflow-backend/internal/extraction/domain"
	"github.com/invoiceflow/invoiceflow-backend/internal/extraction/store"
	"github.com/invoiceflow/invoiceflow-backend/pkg/logger"
)

// taxIDPatterns are tried in order; each anchors a nine-digit number to an
// explicit fiscal label. There is deliberately no bare nine-digit fallback:
// a missing supplier match is preferable to a wrong one (the buyer's NIF
// usually appears further down the page).
var taxIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)NIPC[\s.:ºo°]*([0-9]{9})`),
	regexp.MustCompile(`(?i)NIF[\s.:ºo°]*([0-9]{9})`),
	regexp.MustCompile(`(?i)CONTRIBUINTE(?:\s+N\.?[ºo°]?)?[\s.:]*([0-9]{9})`),
	regexp.MustCompile(`(?i)N[ÚU]MERO\s+FISCAL[\s.:]*([0-9]{9})`),
	regexp.MustCompile(`(?i)VAT(?:\s+N[Oo]\.?)?[\s.:]*(?:PT\s?)?([0-9]{9})`),
	regexp.MustCompile(`\bPT\s?([0-9]{9})\b`),
}

// taxIDSearchRatio restricts the tax-id search to the top of the document,
// where the supplier's own NIF lives.
const taxIDSearchRatio = 0.4

// supplierNameWindow is how much of the document head is scanned for a name
const supplierNameWindow = 500

// hasLetters requires three consecutive letters for a line to qualify as a name
var hasLetters = regexp.MustCompile(`[A-Za-zÀ-ÿ]{3}`)

// nameExclusions filter out document-type lines that precede the actual
// supplier name on many layouts.
var nameExclusions = []string{
	"FATURA",
	"FACTURA",
	"RECIBO",
	"NOTA DE CRÉDITO",
	"NOTA DE CREDITO",
	"ORÇAMENTO",
	"ORCAMENTO",
	"GUIA DE REMESSA",
	"ORIGINAL",
	"DUPLICADO",
	"TRIPLICADO",
	"DOCUMENTO",
	"CÓPIA",
	"COPIA",
	"PÁGINA",
	"PAGINA",
}

// ExtractTaxID finds the supplier's tax id in the first 40% of the text.
// The first labelled pattern that matches wins.
func ExtractTaxID(text string) (string, bool) {
	limit := int(float64(len(text)) * taxIDSearchRatio)
	if limit > len(text) {
		limit = len(text)
	}
	region := text[:limit]

	for _, pattern := range taxIDPatterns {
		if m := pattern.FindStringSubmatch(region); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// ExtractSupplierName scans the head of the document line by line and
// returns the first line that looks like a business name.
func ExtractSupplierName(text string) (string, bool) {
	window := text
	if len(window) > supplierNameWindow {
		window = window[:supplierNameWindow]
	}

	for _, line := range strings.Split(window, "\n") {
		line = strings.TrimSpace(line)
		length := len([]rune(line))
		if length < 3 || length > 100 {
			continue
		}
		if !hasLetters.MatchString(line) {
			continue
		}
		if isExcludedName(line) {
			continue
		}
		return line, true
	}
	return "", false
}

func isExcludedName(line string) bool {
	upper := strings.ToUpper(line)
	for _, word := range nameExclusions {
		if strings.Contains(upper, word) {
			return true
		}
	}
	return false
}

// normalizer strips diacritics after NFD decomposition
var normalizer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeName canonicalizes a supplier name for lookup: lowercase,
// diacritics stripped, non-alphanumerics collapsed to single spaces.
func NormalizeName(name string) string {
	lowered := strings.ToLower(name)
	stripped, _, err := transform.String(normalizer, lowered)
	if err != nil {
		stripped = lowered
	}

	var b strings.Builder
	b.Grow(len(stripped))
	for _, r := range stripped {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Matcher resolves the probable supplier of a document and its candidate
// templates.
type Matcher struct {
	suppliers store.SupplierStore
	templates store.TemplateStore
	log       *logger.Logger
}

// New creates a matcher backed by the given stores
func New(suppliers store.SupplierStore, templates store.TemplateStore, log *logger.Logger) *Matcher {
	return &Matcher{
		suppliers: suppliers,
		templates: templates,
		log:       log.WithComponent("matcher"),
	}
}

// Identify extracts the supplier's tax id and name from raw text
func (m *Matcher) Identify(text string) (taxID, name string) {
	taxID, _ = ExtractTaxID(text)
	name, _ = ExtractSupplierName(text)
	return taxID, name
}

// FindSupplier looks up a supplier by tax id or normalized name.
// Returns nil when neither key matches.
func (m *Matcher) FindSupplier(ctx context.Context, taxID, name string) (*domain.Supplier, error) {
	if taxID != "" {
		supplier, err := m.suppliers.GetByTaxID(ctx, taxID)
		if err != nil {
			return nil, err
		}
		if supplier != nil {
			return supplier, nil
		}
	}

	if name != "" {
		supplier, err := m.suppliers.GetByNormalizedName(ctx, NormalizeName(name))
		if err != nil {
			return nil, err
		}
		if supplier != nil {
			return supplier, nil
		}
	}

	return nil, nil
}

// FindTemplates returns all active templates for the supplier matching the
// given keys, ordered by descending confidence score.
func (m *Matcher) FindTemplates(ctx context.Context, taxID, name string) (*domain.Supplier, []*domain.Template, error) {
	supplier, err := m.FindSupplier(ctx, taxID, name)
	if err != nil || supplier == nil {
		return nil, nil, err
	}

	templates, err := m.templates.GetTemplatesBySupplier(ctx, supplier.ID)
	if err != nil {
		return supplier, nil, err
	}
	return supplier, templates, nil
}

// FindOrCreateSupplier returns the matching supplier, creating one when the
// document carries at least a name. A tax id alone is not enough to create
// a supplier record.
func (m *Matcher) FindOrCreateSupplier(ctx context.Context, taxID, name string) (*domain.Supplier, error) {
	supplier, err := m.FindSupplier(ctx, taxID, name)
	if err != nil || supplier != nil {
		return supplier, err
	}

	if name == "" {
		return nil, nil
	}

	now := time.Now().UTC()
	supplier = &domain.Supplier{
		ID:             uuid.New().String(),
		Name:           name,
		NormalizedName: NormalizeName(name),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if taxID != "" {
		supplier.TaxID = &taxID
	}

	if err := m.suppliers.Create(ctx, supplier); err != nil {
		return nil, err
	}

	m.log.Info().
		Str("supplier_id", supplier.ID).
		Str("tax_id", taxID).
		Msg("created supplier on first sight")

	return supplier, nil
}
