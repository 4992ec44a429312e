package provider

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/invoiceflow/invoiceflow-backend/pkg/logger"
)

// localOCRConfidence is reported for tesseract output. The binary gives no
// cheap per-document confidence, and downstream only needs to know this text
// came from the lower-quality fallback.
const localOCRConfidence = 0.5

// Runner lets tests stub the external tesseract invocation
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb
	err := cmd.Run()
	return out.Bytes(), errb.Bytes(), err
}

// LocalOCRClient shells out to a local tesseract binary. Used when the
// primary OCR service is down or returns unusable text.
type LocalOCRClient struct {
	bin    string
	lang   string
	runner Runner
	log    *logger.Logger
}

func NewLocalOCRClient(bin, lang string, log *logger.Logger) *LocalOCRClient {
	if bin == "" {
		bin = "tesseract"
	}
	if lang == "" {
		lang = "por"
	}
	return &LocalOCRClient{
		bin:    bin,
		lang:   lang,
		runner: execRunner{},
		log:    log.WithComponent("ocr-local"),
	}
}

// WithRunner replaces the command runner, for tests
func (c *LocalOCRClient) WithRunner(r Runner) *LocalOCRClient {
	c.runner = r
	return c
}

func (c *LocalOCRClient) ExtractText(ctx context.Context, data []byte, filename string) (*OCRResult, error) {
	tmpDir, err := os.MkdirTemp("", "invoiceflow-ocr-*")
	if err != nil {
		return nil, fmt.Errorf("local ocr: temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	path := filepath.Join(tmpDir, filepath.Base(filename))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, fmt.Errorf("local ocr: write temp file: %w", err)
	}

	// tesseract <file> stdout -l <lang>
	stdout, stderr, err := c.runner.Run(ctx, c.bin, path, "stdout", "-l", c.lang)
	if err != nil {
		c.log.Warn().
			Err(err).
			Str("stderr", string(stderr)).
			Msg("Tesseract invocation failed")
		return nil, fmt.Errorf("local ocr: tesseract: %w", err)
	}

	return &OCRResult{
		Text:       string(stdout),
		Confidence: localOCRConfidence,
		Source:     SourceLocal,
	}, nil
}
