package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/invoiceflow/invoiceflow-backend/internal/extraction/domain"
	"github.com/invoiceflow/invoiceflow-backend/pkg/logger"
)

// HTTPAIClient calls the AI extraction service. The service response is
// validated against the document schema before being accepted; a model that
// hallucinates a malformed payload counts as a failed attempt.
type HTTPAIClient struct {
	baseURL    string
	httpClient *http.Client
	schema     map[string]any
	log        *logger.Logger
}

func NewHTTPAIClient(baseURL string, timeout time.Duration, log *logger.Logger) *HTTPAIClient {
	return &HTTPAIClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		schema: buildDocumentSchema(),
		log:    log.WithComponent("ai-client"),
	}
}

type textExtractionRequest struct {
	Text   string         `json:"text"`
	Model  string         `json:"model"`
	Schema map[string]any `json:"schema"`
}

// ExtractFromFile sends the original document bytes for multimodal
// extraction by the named model.
func (c *HTTPAIClient) ExtractFromFile(ctx context.Context, data []byte, filename, model string) (*domain.ParsedDocument, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("ai: create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("ai: write file data: %w", err)
	}
	if err := writer.WriteField("model", model); err != nil {
		return nil, fmt.Errorf("ai: write model field: %w", err)
	}
	schemaJSON, err := json.Marshal(c.schema)
	if err != nil {
		return nil, fmt.Errorf("ai: marshal schema: %w", err)
	}
	if err := writer.WriteField("schema", string(schemaJSON)); err != nil {
		return nil, fmt.Errorf("ai: write schema field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("ai: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/extract/file", body)
	if err != nil {
		return nil, fmt.Errorf("ai: create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return c.do(req, model)
}

// ExtractFromText sends OCR text for text-only extraction by the named model
func (c *HTTPAIClient) ExtractFromText(ctx context.Context, text, model string) (*domain.ParsedDocument, error) {
	payload, err := json.Marshal(textExtractionRequest{
		Text:   text,
		Model:  model,
		Schema: c.schema,
	})
	if err != nil {
		return nil, fmt.Errorf("ai: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/extract/text", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("ai: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, model)
}

func (c *HTTPAIClient) do(req *http.Request, model string) (*domain.ParsedDocument, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ai: service request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ai: read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ai: service returned %d: %s", resp.StatusCode, string(respBody))
	}

	if err := validateAgainstSchema(c.schema, respBody); err != nil {
		return nil, fmt.Errorf("ai: model %s: %w", model, err)
	}

	var doc domain.ParsedDocument
	if err := json.Unmarshal(respBody, &doc); err != nil {
		return nil, fmt.Errorf("ai: parse response: %w", err)
	}

	c.log.Debug().
		Str("model", model).
		Int("line_items", len(doc.LineItems)).
		Dur("elapsed", time.Since(start)).
		Msg("AI extraction response accepted")

	return &doc, nil
}
