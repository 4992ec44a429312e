package fingerprint

import (
	"sort"
	"strings"

	"github.com/invoiceflow/invoiceflow-backend/internal/extraction/domain"
	"github.com/invoiceflow/invoiceflow-backend/internal/extraction/matcher"
)

// Generate derives a fingerprint from a document whose extraction succeeded.
// This is the learning inverse of Score: every hint it records is one Score
// knows how to check on the next document.
func Generate(text string, doc *domain.ParsedDocument) domain.Fingerprint {
	upper := strings.ToUpper(text)

	fp := domain.Fingerprint{
		RequiredKeywords: requiredKeywords(text, doc),
		OptionalKeywords: optionalKeywords(text, upper),
		Structure:        structureMarkers(upper),
		Layout:           layoutHints(text),
	}
	return fp
}

// requiredKeywords collects the strings every future document from this
// supplier is expected to contain verbatim: the supplier's full name, its
// first significant name tokens, and the tax id.
func requiredKeywords(text string, doc *domain.ParsedDocument) []string {
	var keywords []string

	if name := strings.TrimSpace(doc.Header.SupplierName); name != "" {
		keywords = append(keywords, name)

		significant := 0
		for _, token := range strings.Fields(name) {
			if len([]rune(token)) <= 2 {
				continue
			}
			keywords = append(keywords, token)
			significant++
			if significant == 3 {
				break
			}
		}
	}

	taxID := strings.TrimSpace(doc.Header.TaxID)
	if taxID == "" {
		if extracted, ok := matcher.ExtractTaxID(text); ok {
			taxID = extracted
		}
	}
	if taxID != "" {
		keywords = append(keywords, taxID)
	}

	return dedupeKeywords(keywords)
}

// optionalKeywords collects bonus signals: the document-type phrase, a
// postal-code+locality snippet, and any known table-header words present.
func optionalKeywords(text, upper string) []string {
	var keywords []string

	for _, phrase := range docTypePhrases {
		if strings.Contains(upper, phrase) {
			keywords = append(keywords, phrase)
			break
		}
	}

	if snippet := postalCodeSnippet.FindString(text); snippet != "" {
		keywords = append(keywords, strings.TrimSpace(snippet))
	}

	for _, word := range tableHeaderWords {
		if strings.Contains(upper, word) {
			keywords = append(keywords, word)
		}
	}

	return dedupeKeywords(keywords)
}

func structureMarkers(upper string) domain.StructureMarkers {
	marker := tableMarkerCandidates[0]
	for _, candidate := range tableMarkerCandidates {
		if strings.Contains(upper, candidate) {
			marker = candidate
			break
		}
	}

	order := detectColumnOrder(upper)

	return domain.StructureMarkers{
		TableStartMarker: marker,
		TableColumns:     len(order),
		ColumnOrder:      order,
	}
}

// detectColumnOrder resolves each vocabulary column through the alias table
// and sorts the found ones by first occurrence.
func detectColumnOrder(upper string) []string {
	type hit struct {
		col string
		pos int
	}
	var hits []hit
	for _, col := range columnVocabulary {
		if pos, ok := findColumn(upper, col); ok {
			hits = append(hits, hit{col: col, pos: pos})
		}
	}
	if len(hits) == 0 {
		return []string{domain.ColDescricao, domain.ColQtd, domain.ColPrecoUnit}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })

	order := make([]string, len(hits))
	for i, h := range hits {
		order[i] = h.col
	}
	return order
}

func layoutHints(text string) domain.LayoutHints {
	hints := domain.LayoutHints{
		Multipage:   predictMultipage(text),
		NIFPosition: detectNIFPosition(text),
		DateFormat:  detectDateFormat(text),
	}

	for _, candidate := range footerCandidates {
		if strings.Contains(strings.ToUpper(text), strings.ToUpper(candidate)) {
			hints.FooterPattern = candidate
			break
		}
	}

	return hints
}

func detectNIFPosition(text string) string {
	positions := nifRunPositions(text)
	if len(positions) == 0 {
		return domain.NIFPositionHeader
	}
	if positions[0] < len(text)/5 {
		return domain.NIFPositionHeader
	}
	if positions[len(positions)-1] >= len(text)*4/5 {
		return domain.NIFPositionFooter
	}
	return domain.NIFPositionHeader
}

func detectDateFormat(text string) string {
	for _, name := range dateFormatOrder {
		if dateFormats[name].MatchString(text) {
			return name
		}
	}
	return dateFormatOrder[0]
}

// dedupeKeywords removes case-insensitive duplicates preserving first-seen order
func dedupeKeywords(keywords []string) []string {
	seen := make(map[string]struct{}, len(keywords))
	out := keywords[:0]
	for _, kw := range keywords {
		key := strings.ToUpper(strings.TrimSpace(kw))
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, kw)
	}
	return out
}
