package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPOCRExtractText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/ocr", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "fatura.pdf", header.Filename)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text": "NIF 501234567", "confidence": 0.93, "pages": 1}`))
	}))
	defer srv.Close()

	client := NewHTTPOCRClient(srv.URL, 5*time.Second)
	result, err := client.ExtractText(context.Background(), []byte("%PDF-1.4"), "fatura.pdf")
	require.NoError(t, err)

	assert.Equal(t, "NIF 501234567", result.Text)
	assert.Equal(t, 0.93, result.Confidence)
	assert.Equal(t, SourcePrimary, result.Source)
}

func TestHTTPOCRNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "engine crashed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewHTTPOCRClient(srv.URL, 5*time.Second)
	_, err := client.ExtractText(context.Background(), []byte("data"), "fatura.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

type stubRunner struct {
	stdout []byte
	err    error

	gotName string
	gotArgs []string
}

func (r *stubRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	r.gotName = name
	r.gotArgs = args
	return r.stdout, nil, r.err
}

func TestLocalOCRExtractText(t *testing.T) {
	runner := &stubRunner{stdout: []byte("FATURA FT2024/17\nNIF 501234567\n")}
	client := NewLocalOCRClient("tesseract", "por", testLog()).WithRunner(runner)

	result, err := client.ExtractText(context.Background(), []byte("imagedata"), "fatura.png")
	require.NoError(t, err)

	assert.Equal(t, "FATURA FT2024/17\nNIF 501234567\n", result.Text)
	assert.Equal(t, localOCRConfidence, result.Confidence)
	assert.Equal(t, SourceLocal, result.Source)

	assert.Equal(t, "tesseract", runner.gotName)
	require.Len(t, runner.gotArgs, 4)
	assert.Equal(t, "stdout", runner.gotArgs[1])
	assert.Equal(t, []string{"-l", "por"}, runner.gotArgs[2:])

	// The temp file handed to tesseract is cleaned up afterwards
	_, statErr := os.Stat(runner.gotArgs[0])
	assert.True(t, os.IsNotExist(statErr))
}

func TestLocalOCRDefaults(t *testing.T) {
	runner := &stubRunner{stdout: []byte("texto")}
	client := NewLocalOCRClient("", "", testLog()).WithRunner(runner)

	_, err := client.ExtractText(context.Background(), []byte("imagedata"), "fatura.png")
	require.NoError(t, err)
	assert.Equal(t, "tesseract", runner.gotName)
	assert.Equal(t, []string{"-l", "por"}, runner.gotArgs[2:])
}

func TestLocalOCRRunnerFailure(t *testing.T) {
	runner := &stubRunner{err: errors.New("exit status 1")}
	client := NewLocalOCRClient("tesseract", "por", testLog()).WithRunner(runner)

	_, err := client.ExtractText(context.Background(), []byte("imagedata"), "fatura.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tesseract")
}
