package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/invoiceflow/invoiceflow-backend/internal/extraction/domain"
	"github.com/invoiceflow/invoiceflow-backend/internal/extraction/router"
	"github.com/invoiceflow/invoiceflow-backend/internal/extraction/store"
	"github.com/invoiceflow/invoiceflow-backend/pkg/httputil"
	"github.com/invoiceflow/invoiceflow-backend/pkg/logger"
	"github.com/invoiceflow/invoiceflow-backend/pkg/messaging"
)

const maxUploadSize = 20 << 20 // 20MB

// Handler handles HTTP requests for invoice extraction
type Handler struct {
	router    *router.Router
	templates store.TemplateStore
	log       *logger.Logger
}

// NewHandler creates a new extraction handler
func NewHandler(rt *router.Router, templates store.TemplateStore, log *logger.Logger) *Handler {
	return &Handler{
		router:    rt,
		templates: templates,
		log:       log,
	}
}

// Routes returns the extraction route tree
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/documents", h.Extract)
	r.Get("/suppliers/{supplierID}/templates", h.ListTemplates)
	return r
}

// extractTextRequest is the JSON body accepted when no file is uploaded.
// SupplierTaxID is an optional caller hint that skips supplier identification.
type extractTextRequest struct {
	Text          string `json:"text" validate:"required,min=1"`
	SupplierTaxID string `json:"supplier_tax_id,omitempty" validate:"omitempty,nif"`
}

// extractionResponse is the envelope returned for an understood document
type extractionResponse struct {
	DocumentID string          `json:"document_id"`
	Outcome    *domain.Outcome `json:"outcome"`
}

// Extract handles POST /documents.
// Accepts either a multipart form with a "file" part (and optional "text"
// field with pre-extracted OCR text) or a JSON body {"text": "..."}.
func (h *Handler) Extract(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	req := router.Request{
		DocumentID: uuid.New().String(),
	}

	if isMultipart(r) {
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			httputil.JSON(w, http.StatusBadRequest, map[string]string{
				"error": "File too large or invalid multipart form",
			})
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			httputil.JSON(w, http.StatusBadRequest, map[string]string{
				"error": "Missing file in request",
			})
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			httputil.JSON(w, http.StatusInternalServerError, map[string]string{
				"error": "Failed to read uploaded file",
			})
			return
		}

		req.FileName = header.Filename
		req.FileData = data
		req.Text = r.FormValue("text")
	} else {
		var body extractTextRequest
		if err := httputil.DecodeJSON(r, &body); err != nil {
			httputil.Error(w, err)
			return
		}
		if err := httputil.Validate(body); err != nil {
			httputil.Error(w, err)
			return
		}
		req.Text = body.Text
		req.SupplierTaxID = body.SupplierTaxID
	}

	requestID := httputil.GetRequestID(r.Context())
	log := h.log.WithRequestID(requestID).WithDocumentID(req.DocumentID)

	// Events published while processing carry the request id as correlation
	ctx := messaging.WithCorrelationID(r.Context(), requestID)

	outcome, err := h.router.Process(ctx, req)
	if err != nil {
		var terminal *domain.TerminalError
		if errors.As(err, &terminal) {
			log.Error().Err(err).Str("stage", string(terminal.Stage)).Msg("Extraction terminal failure")
			httputil.JSON(w, http.StatusUnprocessableEntity, map[string]string{
				"error": "Document could not be extracted",
				"stage": string(terminal.Stage),
			})
			return
		}
		log.Error().Err(err).Msg("Extraction failed")
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, extractionResponse{
		DocumentID: req.DocumentID,
		Outcome:    outcome,
	})
}

// ListTemplates handles GET /suppliers/{supplierID}/templates
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	supplierID := chi.URLParam(r, "supplierID")
	if supplierID == "" {
		httputil.JSON(w, http.StatusBadRequest, map[string]string{
			"error": "Missing supplierID parameter",
		})
		return
	}

	templates, err := h.templates.GetTemplatesBySupplier(r.Context(), supplierID)
	if err != nil {
		h.log.Error().Err(err).Str("supplier_id", supplierID).Msg("Template listing failed")
		httputil.Error(w, err)
		return
	}
	if templates == nil {
		templates = []*domain.Template{}
	}

	httputil.JSON(w, http.StatusOK, templates)
}

func isMultipart(r *http.Request) bool {
	contentType := r.Header.Get("Content-Type")
	return len(contentType) >= 19 && contentType[:19] == "multipart/form-data"
}
