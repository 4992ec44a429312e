// Package provider holds the clients for the external OCR and AI extraction
// services, plus the retry chain that walks fallback strategies in order.
package provider

import (
	"context"

	"github.com/invoiceflow/invoiceflow-backend/internal/extraction/domain"
)

// OCR text source names, carried on results so callers can flag
// lower-confidence fallbacks for review.
const (
	SourcePrimary = "primary"
	SourceLocal   = "local-tesseract"
)

// OCRResult is the raw text a provider read out of a document
type OCRResult struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

// OCRClient turns a document file into plain text
type OCRClient interface {
	ExtractText(ctx context.Context, data []byte, filename string) (*OCRResult, error)
}

// AIClient performs full structured extraction via an AI model. File-based
// extraction sends the original document (multimodal); text-based extraction
// sends OCR output only.
type AIClient interface {
	ExtractFromFile(ctx context.Context, data []byte, filename, model string) (*domain.ParsedDocument, error)
	ExtractFromText(ctx context.Context, text, model string) (*domain.ParsedDocument, error)
}
