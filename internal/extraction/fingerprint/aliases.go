package fingerprint

import (
	"regexp"
	"strings"

	"github.com/invoiceflow/invoiceflow-backend/internal/extraction/domain"
)

// columnVocabulary is the fixed set of column names a fingerprint may carry,
// in canonical order.
var columnVocabulary = []string{
	domain.ColDescricao,
	domain.ColQtd,
	domain.ColUnidade,
	domain.ColPrecoUnit,
	domain.ColTotal,
	domain.ColIVA,
	domain.ColRef,
}

// columnAliases resolves a canonical column name to the header spellings
// suppliers actually print. Matching is done against uppercased text.
var columnAliases = map[string][]string{
	domain.ColDescricao: {"DESCRIÇÃO", "DESCRICAO", "DESIGNAÇÃO", "DESIGNACAO", "ARTIGO", "PRODUTO"},
	domain.ColQtd:       {"QTD", "QUANT", "QUANTIDADE"},
	domain.ColUnidade:   {"UNID", "UNIDADE"},
	domain.ColPrecoUnit: {"PREÇO UNIT", "PRECO UNIT", "P. UNIT", "P.UNIT", "PR.UNIT", "PREÇO", "PRECO", "VALOR UNIT"},
	domain.ColTotal:     {"TOTAL", "IMPORTÂNCIA", "IMPORTANCIA", "VALOR"},
	domain.ColIVA:       {"IVA", "TAXA"},
	domain.ColRef:       {"REF.", "REF", "CÓDIGO", "CODIGO", "COD."},
}

// tableMarkerCandidates are tried in order when deriving a fingerprint from a
// fresh document; the first one present in the text becomes the table start
// marker, defaulting to the first candidate when none is found.
var tableMarkerCandidates = []string{
	"DESCRIÇÃO",
	"DESCRICAO",
	"DESIGNAÇÃO",
	"ARTIGO",
	"QTD",
}

// docTypePhrases are checked in order; the first phrase present in the text
// becomes an optional keyword. Order matters: "FATURA SIMPLIFICADA" must be
// tried before the bare "FATURA".
var docTypePhrases = []string{
	"FATURA SIMPLIFICADA",
	"FATURA-RECIBO",
	"NOTA DE CRÉDITO",
	"NOTA DE CREDITO",
	"RECIBO",
	"FATURA",
	"FACTURA",
}

// tableHeaderWords feed the optional-keywords band when present in the text
var tableHeaderWords = []string{
	"DESCRIÇÃO",
	"DESIGNAÇÃO",
	"ARTIGO",
	"QUANTIDADE",
	"QTD",
	"PREÇO",
	"UNIT",
	"IVA",
	"TOTAL",
}

// footerCandidates are the boilerplate lines Portuguese invoicing software
// prints at the bottom of a page.
var footerCandidates = []string{
	"Processado por programa certificado",
	"Processado por computador",
	"IVA incluído",
}

// dateFormats maps a named date format to its detection regex. detection
// order is fixed so Generate is deterministic.
var dateFormatOrder = []string{"dd/mm/yyyy", "yyyy-mm-dd", "dd-mm-yyyy", "dd.mm.yyyy"}

var dateFormats = map[string]*regexp.Regexp{
	"dd/mm/yyyy": regexp.MustCompile(`\b\d{2}/\d{2}/\d{4}\b`),
	"yyyy-mm-dd": regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`),
	"dd-mm-yyyy": regexp.MustCompile(`\b\d{2}-\d{2}-\d{4}\b`),
	"dd.mm.yyyy": regexp.MustCompile(`\b\d{2}\.\d{2}\.\d{4}\b`),
}

// nineDigitRun matches an isolated run of exactly nine digits (a NIF/NIPC)
var nineDigitRun = regexp.MustCompile(`(?:^|[^0-9])([0-9]{9})(?:[^0-9]|$)`)

// postalCodeSnippet matches a Portuguese postal code plus locality
var postalCodeSnippet = regexp.MustCompile(`\b\d{4}-\d{3}\s+[A-ZÀ-Ü][A-Za-zÀ-ÿ' -]{2,40}`)

// multipageThreshold is the text length above which a document is predicted
// to span more than one page.
const multipageThreshold = 5000

// findColumn returns the earliest first-occurrence position of any alias of
// the given canonical column in the uppercased text.
func findColumn(upperText, column string) (int, bool) {
	best := -1
	for _, alias := range columnAliases[column] {
		if pos := strings.Index(upperText, alias); pos >= 0 {
			if best < 0 || pos < best {
				best = pos
			}
		}
	}
	return best, best >= 0
}

// nifRunPositions returns the start offsets of all nine-digit runs in text
func nifRunPositions(text string) []int {
	matches := nineDigitRun.FindAllStringSubmatchIndex(text, -1)
	positions := make([]int, 0, len(matches))
	for _, m := range matches {
		positions = append(positions, m[2])
	}
	return positions
}

// predictMultipage applies the same length heuristic used at both scoring
// and generation time.
func predictMultipage(text string) bool {
	return len(text) > multipageThreshold
}
