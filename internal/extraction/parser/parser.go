// Package parser applies a learned template to raw OCR text. Header
// extraction is a small declarative grammar (field name, regex pattern,
// post-processor) so it stays testable independent of any specific
// supplier's layout.
package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/invoiceflow/invoiceflow-backend/internal/extraction/domain"
	"github.com/invoiceflow/invoiceflow-backend/pkg/logger"
)

// Parser turns (text, template) into a structured document
type Parser struct {
	log *logger.Logger
}

// New creates a template parser
func New(log *logger.Logger) *Parser {
	return &Parser{log: log.WithComponent("parser")}
}

// postProcessor normalizes a raw capture into its field value
type postProcessor func(string) string

// headerGrammar maps known header fields to their post-processors. Fields
// not listed are kept as trimmed text.
var headerGrammar = map[string]postProcessor{
	domain.FieldTaxID:      digitsOnly,
	domain.FieldSubtotal:   normalizeAmountText,
	domain.FieldTaxAmount:  normalizeAmountText,
	domain.FieldGrandTotal: normalizeAmountText,
}

// Parse applies the template's header and table configuration to the text.
// It fails only when the template has nothing to parse with; sparse output
// is left for the validation engine to judge.
func (p *Parser) Parse(text string, tpl *domain.Template) (*domain.ParsedDocument, error) {
	if len(tpl.HeaderConfig) == 0 && tpl.TableConfig.IsEmpty() {
		return nil, fmt.Errorf("template %s has no parse configuration", tpl.ID)
	}

	doc := &domain.ParsedDocument{}
	p.extractHeader(text, tpl.HeaderConfig, doc)
	doc.LineItems = p.extractTable(text, tpl.TableConfig)

	return doc, nil
}

// extractHeader runs each configured pattern and keeps the last non-empty
// capture group. Patterns are written so earlier groups are label
// alternatives and the final group is the value.
func (p *Parser) extractHeader(text string, cfg domain.HeaderConfig, doc *domain.ParsedDocument) {
	for field, pattern := range cfg {
		re, err := regexp.Compile(pattern)
		if err != nil {
			p.log.Warn().Err(err).Str("field", field).Msg("invalid header pattern, skipping")
			continue
		}

		groups := re.FindStringSubmatch(text)
		if groups == nil {
			continue
		}

		value := lastNonEmptyGroup(groups)
		if value == "" {
			continue
		}
		if process, ok := headerGrammar[field]; ok {
			value = process(value)
		} else {
			value = strings.TrimSpace(value)
		}

		p.assignHeaderField(doc, field, value)
	}
}

func (p *Parser) assignHeaderField(doc *domain.ParsedDocument, field, value string) {
	switch field {
	case domain.FieldSupplierName:
		doc.Header.SupplierName = value
	case domain.FieldTaxID:
		doc.Header.TaxID = value
	case domain.FieldDocNumber:
		doc.Header.DocNumber = value
	case domain.FieldDocDate:
		doc.Header.DocDate = value
	case domain.FieldSubtotal:
		doc.Header.Subtotal = parseAmountPtr(value)
	case domain.FieldTaxAmount:
		doc.Header.TaxAmount = parseAmountPtr(value)
	case domain.FieldGrandTotal:
		doc.Header.GrandTotal = parseAmountPtr(value)
	default:
		p.log.Debug().Str("field", field).Msg("unknown header field in template config")
	}
}

// extractTable scans lines, toggling "in table" on the start marker and off
// on the end marker. Each in-table line first tries the strict row pattern,
// then the heuristic fallback.
func (p *Parser) extractTable(text string, cfg domain.TableConfig) []domain.LineItem {
	if cfg.StartMarker == "" {
		return nil
	}

	var rowPattern *regexp.Regexp
	if cfg.RowPattern != "" {
		re, err := regexp.Compile(cfg.RowPattern)
		if err != nil {
			p.log.Warn().Err(err).Msg("invalid row pattern, falling back to heuristic rows")
		} else {
			rowPattern = re
		}
	}

	startMarker := strings.ToUpper(cfg.StartMarker)
	endMarker := strings.ToUpper(cfg.EndMarker)

	var items []domain.LineItem
	inTable := false

	for _, line := range strings.Split(text, "\n") {
		upper := strings.ToUpper(line)

		if !inTable {
			if strings.Contains(upper, startMarker) {
				inTable = true
			}
			continue
		}
		if endMarker != "" && strings.Contains(upper, endMarker) {
			break
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		var item *domain.LineItem
		if rowPattern != nil {
			item = p.parseStrictRow(line, rowPattern, cfg.Columns)
		}
		if item == nil {
			item = heuristicParseLine(line)
		}
		if item == nil {
			continue
		}
		if !withinSanityCeiling(item) {
			p.log.Debug().Str("line", line).Msg("line rejected by sanity ceiling")
			continue
		}

		item.LineNo = len(items) + 1
		items = append(items, *item)
	}

	return items
}

// parseStrictRow maps the row pattern's capture groups through the
// configured column list.
func (p *Parser) parseStrictRow(line string, re *regexp.Regexp, columns []domain.Column) *domain.LineItem {
	groups := re.FindStringSubmatch(line)
	if groups == nil {
		return nil
	}

	item := &domain.LineItem{}
	assigned := false
	for _, col := range columns {
		if col.Index <= 0 || col.Index >= len(groups) {
			continue
		}
		value := strings.TrimSpace(groups[col.Index])
		if value == "" {
			continue
		}
		assigned = true

		switch col.Name {
		case domain.ColDescricao:
			item.RawDescription = value
		case domain.ColQtd:
			item.Quantity = parseAmountPtr(value)
		case domain.ColUnidade:
			item.Unit = value
		case domain.ColPrecoUnit:
			item.UnitPrice = parseAmountPtr(value)
		case domain.ColTotal:
			item.LineTotal = parseAmountPtr(value)
		case domain.ColIVA:
			item.TaxPct = parseAmountPtr(digitsAndSeparators(value))
		case domain.ColRef:
			item.Ref = value
		}
	}

	if !assigned || item.RawDescription == "" {
		return nil
	}
	return item
}

func lastNonEmptyGroup(groups []string) string {
	for i := len(groups) - 1; i >= 1; i-- {
		if strings.TrimSpace(groups[i]) != "" {
			return strings.TrimSpace(groups[i])
		}
	}
	return ""
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func digitsAndSeparators(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == ',' || r == '.' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func normalizeAmountText(s string) string {
	return strings.TrimSpace(s)
}
