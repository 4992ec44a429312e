// Package events publishes extraction lifecycle events to RabbitMQ for
// downstream consumers (bookkeeping, review queues, audit).
package events

import (
	"context"

	"github.com/invoiceflow/invoiceflow-backend/internal/extraction/domain"
	"github.com/invoiceflow/invoiceflow-backend/pkg/logger"
	"github.com/invoiceflow/invoiceflow-backend/pkg/messaging"
)

// ExtractionEventPublisher publishes extraction-related events. A nil
// publisher is safe to call; event publishing is best-effort and never
// blocks the extraction result.
type ExtractionEventPublisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewExtractionEventPublisher creates a new extraction event publisher
func NewExtractionEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*ExtractionEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeExtractionEvents, "extraction-service", log)
	if err != nil {
		return nil, err
	}

	return &ExtractionEventPublisher{
		publisher: publisher,
		logger:    log,
	}, nil
}

// PublishDocumentExtracted publishes the outcome of a successful extraction
func (p *ExtractionEventPublisher) PublishDocumentExtracted(ctx context.Context, documentID string, outcome *domain.Outcome) {
	if p == nil {
		return
	}

	data := messaging.DocumentExtractedEvent{
		DocumentID:    documentID,
		SupplierID:    outcome.SupplierID,
		Method:        string(outcome.Method),
		TemplateID:    outcome.TemplateID,
		TemplateScore: outcome.TemplateScore,
		Review:        outcome.RequiresReview,
	}
	if outcome.Document != nil {
		data.LineItems = len(outcome.Document.LineItems)
		data.GrandTotal = outcome.Document.Header.GrandTotal
	}

	if err := p.publisher.Publish(ctx, messaging.EventDocumentExtracted, data); err != nil {
		p.logger.Error().Err(err).Str("document_id", documentID).Msg("failed to publish document extracted event")
	}
}

// PublishDocumentFailed publishes a terminal extraction failure
func (p *ExtractionEventPublisher) PublishDocumentFailed(ctx context.Context, documentID string, stage domain.Stage, reason string) {
	if p == nil {
		return
	}

	data := messaging.DocumentFailedEvent{
		DocumentID: documentID,
		Stage:      string(stage),
		Reason:     reason,
	}

	if err := p.publisher.Publish(ctx, messaging.EventDocumentFailed, data); err != nil {
		p.logger.Error().Err(err).Str("document_id", documentID).Msg("failed to publish document failed event")
	}
}

// PublishTemplateCreated publishes a newly learned template variant
func (p *ExtractionEventPublisher) PublishTemplateCreated(ctx context.Context, tpl *domain.Template) {
	if p == nil {
		return
	}

	data := messaging.TemplateCreatedEvent{
		TemplateID: tpl.ID,
		SupplierID: tpl.SupplierID,
		FormatID:   tpl.FormatID,
	}

	if err := p.publisher.Publish(ctx, messaging.EventTemplateCreated, data); err != nil {
		p.logger.Error().Err(err).Str("template_id", tpl.ID).Msg("failed to publish template created event")
	}
}

// PublishTemplateRefined publishes a refinement of an existing template
func (p *ExtractionEventPublisher) PublishTemplateRefined(ctx context.Context, tpl *domain.Template) {
	if p == nil {
		return
	}

	data := messaging.TemplateRefinedEvent{
		TemplateID:      tpl.ID,
		SupplierID:      tpl.SupplierID,
		ConfidenceScore: tpl.ConfidenceScore,
	}

	if err := p.publisher.Publish(ctx, messaging.EventTemplateRefined, data); err != nil {
		p.logger.Error().Err(err).Str("template_id", tpl.ID).Msg("failed to publish template refined event")
	}
}
