package domain

import "time"

// Method documents which strategy produced a structured document
type Method string

const (
	MethodTemplate     Method = "template"
	MethodAI           Method = "ai"
	MethodAIMultimodal Method = "ai-multimodal"
)

// ConfidenceBucket classifies a fingerprint match score
type ConfidenceBucket string

const (
	BucketHigh   ConfidenceBucket = "high"
	BucketMedium ConfidenceBucket = "medium"
	BucketLow    ConfidenceBucket = "low"
)

// NIF position hints within a document
const (
	NIFPositionHeader = "header"
	NIFPositionFooter = "footer"
)

// Column vocabulary for table configurations and fingerprints.
// Fingerprint column orders only ever contain these names.
const (
	ColDescricao = "descricao"
	ColQtd       = "qtd"
	ColUnidade   = "unidade"
	ColPrecoUnit = "preco_unit"
	ColTotal     = "total"
	ColIVA       = "iva"
	ColRef       = "ref"
)

// Supplier is the identity record a template belongs to.
// Created lazily the first time a document from that supplier is understood.
type Supplier struct {
	ID             string    `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	NormalizedName string    `db:"normalized_name" json:"normalized_name"`
	TaxID          *string   `db:"tax_id" json:"tax_id,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// HeaderConfig maps header field names to extraction regex patterns.
// Patterns are written so the last non-empty capture group is the value.
type HeaderConfig map[string]string

// Header field names used in HeaderConfig and ParsedDocument
const (
	FieldSupplierName = "supplier_name"
	FieldTaxID        = "tax_id"
	FieldDocNumber    = "doc_number"
	FieldDocDate      = "doc_date"
	FieldSubtotal     = "subtotal"
	FieldTaxAmount    = "tax_amount"
	FieldGrandTotal   = "grand_total"
)

// Column maps a named column to a capture group index in the row pattern
type Column struct {
	Name  string `json:"name"`
	Index int    `json:"index"`
}

// TableConfig describes how to locate and split the line-item table
type TableConfig struct {
	StartMarker string   `json:"start_marker"`
	EndMarker   string   `json:"end_marker,omitempty"`
	RowPattern  string   `json:"row_pattern,omitempty"`
	Columns     []Column `json:"columns,omitempty"`
}

// IsEmpty reports whether the table configuration cannot produce a parse
func (c TableConfig) IsEmpty() bool {
	return c.StartMarker == "" && c.RowPattern == "" && len(c.Columns) == 0
}

// StructureMarkers describe the table layout expected by a fingerprint
type StructureMarkers struct {
	TableStartMarker string   `json:"table_start_marker"`
	TableColumns     int      `json:"table_columns"`
	ColumnOrder      []string `json:"column_order"`
}

// LayoutHints capture coarse physical-layout features of an invoice format
type LayoutHints struct {
	Multipage     bool   `json:"multipage"`
	HasLogo       bool   `json:"has_logo"`
	FooterPattern string `json:"footer_pattern,omitempty"`
	NIFPosition   string `json:"nif_position"`
	DateFormat    string `json:"date_format"`
}

// Fingerprint is a compact signature used to recognize a previously-seen
// invoice layout without a full AI extraction.
type Fingerprint struct {
	RequiredKeywords []string         `json:"required_keywords"`
	OptionalKeywords []string         `json:"optional_keywords"`
	Structure        StructureMarkers `json:"structure_markers"`
	Layout           LayoutHints      `json:"layout_hints"`
}

// IsEmpty reports whether the fingerprint carries nothing to match against
func (f Fingerprint) IsEmpty() bool {
	return len(f.RequiredKeywords) == 0 && len(f.OptionalKeywords) == 0 &&
		f.Structure.TableStartMarker == ""
}

// Template is a learned, reusable extraction recipe tied to one supplier and
// one physical layout variant. Never hard-deleted, only deactivated.
type Template struct {
	ID              string       `db:"id" json:"id"`
	SupplierID      string       `db:"supplier_id" json:"supplier_id"`
	FormatID        string       `db:"format_id" json:"format_id"`
	HeaderConfig    HeaderConfig `db:"-" json:"header_config"`
	TableConfig     TableConfig  `db:"-" json:"table_config"`
	Fingerprint     Fingerprint  `db:"-" json:"fingerprint_config"`
	ConfidenceScore float64      `db:"confidence_score" json:"confidence_score"`
	TimesUsed       int          `db:"times_used" json:"times_used"`
	TimesSuccessful int          `db:"times_successful" json:"times_successful"`
	IsActive        bool         `db:"is_active" json:"is_active"`
	CreatedAt       time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time    `db:"updated_at" json:"updated_at"`
}

// HasParseConfig reports whether the template can actually produce a parse.
// A template with fingerprint keywords but no configs should not win a
// tier decision on fingerprint score alone.
func (t *Template) HasParseConfig() bool {
	return len(t.HeaderConfig) > 0 && !t.TableConfig.IsEmpty()
}

// Header holds the extracted header fields of a document.
// Absence (empty string / nil) means "not extracted"; the validation engine
// decides which absences are fatal.
type Header struct {
	SupplierName string   `json:"supplier_name,omitempty"`
	TaxID        string   `json:"tax_id,omitempty"`
	DocNumber    string   `json:"doc_number,omitempty"`
	DocDate      string   `json:"doc_date,omitempty"`
	Subtotal     *float64 `json:"subtotal,omitempty"`
	TaxAmount    *float64 `json:"tax_amount,omitempty"`
	GrandTotal   *float64 `json:"grand_total,omitempty"`
	DiscountPct  *float64 `json:"discount_pct,omitempty"`
	DiscountAmt  *float64 `json:"discount_amount,omitempty"`
}

// LineItem is one product/service row extracted from the itemized table
type LineItem struct {
	LineNo            int      `json:"line_no"`
	RawDescription    string   `json:"raw_description"`
	CleanDescription  string   `json:"clean_description,omitempty"`
	Quantity          *float64 `json:"quantity,omitempty"`
	Unit              string   `json:"unit,omitempty"`
	UnitPrice         *float64 `json:"unit_price,omitempty"`
	UnitPriceOriginal *float64 `json:"unit_price_original,omitempty"`
	DiscountPct       *float64 `json:"discount_pct,omitempty"`
	LineTotal         *float64 `json:"line_total,omitempty"`
	TaxPct            *float64 `json:"tax_pct,omitempty"`
	TaxAmount         *float64 `json:"tax_amount,omitempty"`
	Ref               string   `json:"ref,omitempty"`
	PackageInfo       string   `json:"package_info,omitempty"`
}

// Description returns the cleaned description when available
func (li *LineItem) Description() string {
	if li.CleanDescription != "" {
		return li.CleanDescription
	}
	return li.RawDescription
}

// ParsedDocument is the transient structured form of one invoice
type ParsedDocument struct {
	Header    Header     `json:"header"`
	LineItems []LineItem `json:"line_items"`
}

// MatchBreakdown details the per-band contributions of a fingerprint score
type MatchBreakdown struct {
	Keywords  float64 `json:"keywords"`
	Structure float64 `json:"structure"`
	Layout    float64 `json:"layout"`
}

// FingerprintMatchResult is the outcome of scoring a text against a
// fingerprint. Pure value; fully deterministic for the same inputs.
type FingerprintMatchResult struct {
	Score     float64          `json:"score"`
	Breakdown MatchBreakdown   `json:"breakdown"`
	Bucket    ConfidenceBucket `json:"confidence_bucket"`
}

// ValidationResult collects errors (reject) and warnings (accept-with-caveat)
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// AddError records a hard error and marks the result invalid
func (r *ValidationResult) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Valid = false
}

// AddWarning records a soft finding that does not reject the document
func (r *ValidationResult) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// Merge folds another result into this one
func (r *ValidationResult) Merge(other ValidationResult) {
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
	if !other.Valid {
		r.Valid = false
	}
}

// NewValidationResult returns a result that is valid until an error is added
func NewValidationResult() ValidationResult {
	return ValidationResult{Valid: true}
}

// Outcome is the envelope handed to the downstream consumer
type Outcome struct {
	Document      *ParsedDocument `json:"document"`
	Method        Method          `json:"method_used"`
	SupplierID    *string         `json:"supplier_id,omitempty"`
	TemplateID    *string         `json:"template_id,omitempty"`
	TemplateScore *float64        `json:"template_score,omitempty"`
	// RequiresReview is set when the text came from the lower-confidence
	// local OCR fallback rather than the primary provider.
	RequiresReview bool `json:"requires_review"`
}
