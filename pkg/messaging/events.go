package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	// Extraction events
	EventDocumentExtracted = "extraction.document.extracted"
	EventDocumentRejected  = "extraction.document.rejected"
	EventDocumentFailed    = "extraction.document.failed"

	// Template learning events
	EventTemplateCreated = "extraction.template.created"
	EventTemplateRefined = "extraction.template.refined"

	// Supplier events
	EventSupplierCreated = "extraction.supplier.created"
)

// Exchange names
const (
	ExchangeExtractionEvents = "extraction.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            GenerateEventID(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return uuid.New().String()
}

// DocumentExtractedEvent is published when a document was successfully understood
type DocumentExtractedEvent struct {
	DocumentID    string   `json:"document_id"`
	SupplierID    *string  `json:"supplier_id,omitempty"`
	Method        string   `json:"method"`
	TemplateID    *string  `json:"template_id,omitempty"`
	TemplateScore *float64 `json:"template_score,omitempty"`
	LineItems     int      `json:"line_items"`
	GrandTotal    *float64 `json:"grand_total,omitempty"`
	Review        bool     `json:"requires_review"`
}

// DocumentFailedEvent is published when every extraction strategy was exhausted
type DocumentFailedEvent struct {
	DocumentID string `json:"document_id"`
	Stage      string `json:"stage"`
	Reason     string `json:"reason"`
}

// TemplateCreatedEvent is published when a new template variant is learned
type TemplateCreatedEvent struct {
	TemplateID string `json:"template_id"`
	SupplierID string `json:"supplier_id"`
	FormatID   string `json:"format_id"`
}

// TemplateRefinedEvent is published when an existing template is refined
type TemplateRefinedEvent struct {
	TemplateID      string  `json:"template_id"`
	SupplierID      string  `json:"supplier_id"`
	ConfidenceScore float64 `json:"confidence_score"`
}
