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
)

// HTTPOCRClient calls the dedicated OCR service over HTTP. This is the
// primary text source; the local tesseract client is the fallback.
type HTTPOCRClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPOCRClient(baseURL string, timeout time.Duration) *HTTPOCRClient {
	return &HTTPOCRClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type ocrServiceResponse struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Pages      int     `json:"pages"`
}

func (c *HTTPOCRClient) ExtractText(ctx context.Context, data []byte, filename string) (*OCRResult, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("ocr: create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("ocr: write file data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("ocr: close multipart writer: %w", err)
	}

	url := c.baseURL + "/api/v1/ocr"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("ocr: create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ocr: service request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ocr: read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ocr: service returned %d: %s", resp.StatusCode, string(respBody))
	}

	var svcResp ocrServiceResponse
	if err := json.Unmarshal(respBody, &svcResp); err != nil {
		return nil, fmt.Errorf("ocr: parse response: %w", err)
	}

	return &OCRResult{
		Text:       svcResp.Text,
		Confidence: svcResp.Confidence,
		Source:     SourcePrimary,
	}, nil
}
