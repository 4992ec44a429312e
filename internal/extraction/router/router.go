// Package router orchestrates one document's journey through the extraction
// pipeline: multimodal AI first, then OCR recovery, supplier identification,
// template scoring, and a three-tier decision between learned templates and
// AI extraction. Learning runs after the answer is already decided.
package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/invoiceflow/invoiceflow-backend/internal/extraction/domain"
	"github.com/invoiceflow/invoiceflow-backend/internal/extraction/events"
	"github.com/invoiceflow/invoiceflow-backend/internal/extraction/fingerprint"
	"github.com/invoiceflow/invoiceflow-backend/internal/extraction/learning"
	"github.com/invoiceflow/invoiceflow-backend/internal/extraction/matcher"
	"github.com/invoiceflow/invoiceflow-backend/internal/extraction/parser"
	"github.com/invoiceflow/invoiceflow-backend/internal/extraction/provider"
	"github.com/invoiceflow/invoiceflow-backend/internal/extraction/validation"
	"github.com/invoiceflow/invoiceflow-backend/pkg/config"
	"github.com/invoiceflow/invoiceflow-backend/pkg/logger"
)

const (
	// emptyConfigPenalty halves the fingerprint score of templates that
	// cannot actually produce a parse.
	emptyConfigPenalty = 0.5

	// Similarity bands for the medium tier: at or above refineSimilarity
	// the template is refined; between the two it is merely marked
	// unsuccessful; below variantSimilarity the layout has diverged enough
	// to spin off a new variant.
	refineSimilarity  = 0.5
	variantSimilarity = 0.25

	// learnTimeout bounds the detached async learning pass
	learnTimeout = 2 * time.Minute
)

// Request is one document to extract. At least one of FileData and Text
// must be present. SupplierTaxID, when set, overrides the tax id found in
// the text.
type Request struct {
	DocumentID    string
	FileName      string
	FileData      []byte
	Text          string
	SupplierTaxID string
}

// Router is the extraction decision state machine
type Router struct {
	cfg       config.ExtractionConfig
	providers config.ProvidersConfig

	matcher    *matcher.Matcher
	parser     *parser.Parser
	validator  *validation.Engine
	learner    *learning.Learner
	primaryOCR provider.OCRClient
	localOCR   provider.OCRClient
	ai         provider.AIClient
	chain      *provider.Chain
	events     *events.ExtractionEventPublisher
	log        *logger.Logger

	learnWG sync.WaitGroup
}

// Params collects the router's collaborators
type Params struct {
	Config     config.ExtractionConfig
	Providers  config.ProvidersConfig
	Matcher    *matcher.Matcher
	Parser     *parser.Parser
	Validator  *validation.Engine
	Learner    *learning.Learner
	PrimaryOCR provider.OCRClient
	LocalOCR   provider.OCRClient
	AI         provider.AIClient
	Events     *events.ExtractionEventPublisher
	Logger     *logger.Logger
}

func New(p Params) *Router {
	return &Router{
		cfg:        p.Config,
		providers:  p.Providers,
		matcher:    p.Matcher,
		parser:     p.Parser,
		validator:  p.Validator,
		learner:    p.Learner,
		primaryOCR: p.PrimaryOCR,
		localOCR:   p.LocalOCR,
		ai:         p.AI,
		chain:      provider.NewChain(p.Providers.MaxAttempts, p.Providers.RetryBackoff, p.Logger),
		events:     p.Events,
		log:        p.Logger.WithComponent("router"),
	}
}

// Wait blocks until all in-flight async learning has finished. Called during
// graceful shutdown and by tests.
func (r *Router) Wait() {
	r.learnWG.Wait()
}

// Process runs one document through the pipeline and returns the outcome.
// Terminal errors carry the stage that exhausted its options; everything
// else has a defined next step inside.
func (r *Router) Process(ctx context.Context, req Request) (*domain.Outcome, error) {
	log := r.log.WithDocumentID(req.DocumentID)

	// Multimodal attempt: the preferred path. Skips all template logic for
	// this document but still feeds the template store asynchronously.
	if len(req.FileData) > 0 {
		doc, strategy, err := r.chain.Execute(ctx, r.multimodalStrategies(req))
		if err == nil {
			log.Info().Str("strategy", strategy).Msg("Multimodal extraction accepted")
			outcome := &domain.Outcome{
				Document: doc,
				Method:   domain.MethodAIMultimodal,
			}
			r.learnAsync(req, doc)
			r.events.PublishDocumentExtracted(ctx, req.DocumentID, outcome)
			return outcome, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn().Err(err).Msg("Multimodal extraction failed, recovering via OCR")
	}

	// OCR recovery
	text, review, err := r.recoverText(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.events.PublishDocumentFailed(ctx, req.DocumentID, domain.StageOCR, err.Error())
		return nil, domain.Terminal(domain.StageOCR, err)
	}

	// Supplier identify
	taxID, name := r.matcher.Identify(text)
	if req.SupplierTaxID != "" {
		taxID = req.SupplierTaxID
	}
	supplier, templates, err := r.matcher.FindTemplates(ctx, taxID, name)
	if err != nil {
		return nil, fmt.Errorf("looking up supplier templates: %w", err)
	}

	best, bestScore := r.scoreTemplates(text, templates)

	// Cold start: unknown supplier, no templates, or nothing fingerprinted
	if supplier == nil || best == nil {
		return r.extractColdStart(ctx, req, text, review, taxID, name, log)
	}

	log = log.WithSupplierID(supplier.ID)
	log.Info().
		Str("template_id", best.ID).
		Float64("score", bestScore).
		Msg("Best template scored")

	switch {
	case bestScore >= r.cfg.HighTier:
		return r.extractHighTier(ctx, req, text, review, supplier, best, bestScore, log)
	case bestScore >= r.cfg.MediumTier:
		return r.extractMediumTier(ctx, req, text, review, supplier, best, log)
	default:
		return r.extractLowTier(ctx, req, text, review, supplier, templates, log)
	}
}

// extractHighTier trusts the template outright. A failed parse or validation
// records a failure stat and falls through to the medium-tier AI path.
func (r *Router) extractHighTier(ctx context.Context, req Request, text string, review bool, supplier *domain.Supplier, best *domain.Template, score float64, log *logger.Logger) (*domain.Outcome, error) {
	doc, err := r.parser.Parse(text, best)
	if err == nil {
		result := r.validator.Validate(doc)
		if result.Valid {
			r.recordStats(ctx, best.ID, true, log)
			outcome := &domain.Outcome{
				Document:       doc,
				Method:         domain.MethodTemplate,
				SupplierID:     &supplier.ID,
				TemplateID:     &best.ID,
				TemplateScore:  &score,
				RequiresReview: review,
			}
			r.events.PublishDocumentExtracted(ctx, req.DocumentID, outcome)
			return outcome, nil
		}
		log.Warn().
			Strs("errors", result.Errors).
			Str("template_id", best.ID).
			Msg("Template parse rejected by validation, falling back to AI")
	} else {
		log.Warn().Err(err).Str("template_id", best.ID).Msg("Template parse failed, falling back to AI")
	}

	r.recordStats(ctx, best.ID, false, log)
	return r.extractMediumTier(ctx, req, text, review, supplier, best, log)
}

// extractMediumTier answers with AI and uses the template only for learning:
// refine it, mark it unsuccessful, or spin off a variant depending on how
// close its parse comes to the AI truth.
func (r *Router) extractMediumTier(ctx context.Context, req Request, text string, review bool, supplier *domain.Supplier, best *domain.Template, log *logger.Logger) (*domain.Outcome, error) {
	doc, err := r.aiFromText(ctx, req, text)
	if err != nil {
		return nil, r.aiFailure(ctx, req, err)
	}

	tplDoc, perr := r.parser.Parse(text, best)
	if perr != nil {
		r.recordStats(ctx, best.ID, false, log)
	} else {
		sim := learning.Similarity(doc, tplDoc)
		switch {
		case sim >= refineSimilarity:
			if rerr := r.learner.Refine(ctx, best, doc, text); rerr != nil {
				log.Warn().Err(rerr).Str("template_id", best.ID).Msg("Template refinement failed")
			} else {
				r.events.PublishTemplateRefined(ctx, best)
			}
		case sim >= variantSimilarity:
			r.recordStats(ctx, best.ID, false, log)
		default:
			if variant, verr := r.learner.CreateVariant(ctx, supplier, doc, text); verr != nil {
				log.Warn().Err(verr).Msg("Variant creation failed")
			} else {
				r.events.PublishTemplateCreated(ctx, variant)
			}
		}
	}

	outcome := &domain.Outcome{
		Document:       doc,
		Method:         domain.MethodAI,
		SupplierID:     &supplier.ID,
		RequiresReview: review,
	}
	r.events.PublishDocumentExtracted(ctx, req.DocumentID, outcome)
	return outcome, nil
}

// extractLowTier answers with AI, then checks whether the result matches an
// existing template despite the low fingerprint score. A match earns that
// template a success stat; no match learns a new variant.
func (r *Router) extractLowTier(ctx context.Context, req Request, text string, review bool, supplier *domain.Supplier, templates []*domain.Template, log *logger.Logger) (*domain.Outcome, error) {
	doc, err := r.aiFromText(ctx, req, text)
	if err != nil {
		return nil, r.aiFailure(ctx, req, err)
	}

	if tpl, sim := r.learner.MatchTemplate(doc, text, templates); tpl != nil {
		log.Info().
			Str("template_id", tpl.ID).
			Float64("similarity", sim).
			Msg("AI result matched an existing template despite low fingerprint score")
		r.recordStats(ctx, tpl.ID, true, log)
	} else if variant, verr := r.learner.CreateVariant(ctx, supplier, doc, text); verr != nil {
		log.Warn().Err(verr).Msg("Variant creation failed")
	} else {
		r.events.PublishTemplateCreated(ctx, variant)
	}

	outcome := &domain.Outcome{
		Document:       doc,
		Method:         domain.MethodAI,
		SupplierID:     &supplier.ID,
		RequiresReview: review,
	}
	r.events.PublishDocumentExtracted(ctx, req.DocumentID, outcome)
	return outcome, nil
}

// extractColdStart handles documents from suppliers we have never understood
// before: AI answers, and on success the supplier and a first template are
// created so the next document can go through the template path.
func (r *Router) extractColdStart(ctx context.Context, req Request, text string, review bool, taxID, name string, log *logger.Logger) (*domain.Outcome, error) {
	doc, err := r.aiFromText(ctx, req, text)
	if err != nil {
		return nil, r.aiFailure(ctx, req, err)
	}

	outcome := &domain.Outcome{
		Document:       doc,
		Method:         domain.MethodAI,
		RequiresReview: review,
	}

	if name == "" {
		name = doc.Header.SupplierName
	}
	if taxID == "" {
		taxID = doc.Header.TaxID
	}

	supplier, serr := r.matcher.FindOrCreateSupplier(ctx, taxID, name)
	if serr != nil {
		log.Warn().Err(serr).Msg("Supplier creation failed, returning result unlearned")
	} else if supplier != nil {
		outcome.SupplierID = &supplier.ID
		if variant, verr := r.learner.CreateVariant(ctx, supplier, doc, text); verr != nil {
			log.Warn().Err(verr).Msg("Cold-start template creation failed")
		} else {
			r.events.PublishTemplateCreated(ctx, variant)
		}
	}

	r.events.PublishDocumentExtracted(ctx, req.DocumentID, outcome)
	return outcome, nil
}

// recoverText obtains usable text: caller-provided text, then the primary
// OCR service, then local tesseract. The local fallback flags the document
// for review.
func (r *Router) recoverText(ctx context.Context, req Request) (string, bool, error) {
	if len(req.Text) >= r.cfg.MinTextLength {
		return req.Text, false, nil
	}
	if len(req.FileData) == 0 {
		return "", false, domain.ErrNoUsableText
	}

	res, err := r.primaryOCR.ExtractText(ctx, req.FileData, req.FileName)
	if err == nil && len(res.Text) >= r.cfg.MinTextLength {
		return res.Text, false, nil
	}
	if ctx.Err() != nil {
		return "", false, ctx.Err()
	}
	if err != nil {
		r.log.Warn().Err(err).Msg("Primary OCR failed, trying local fallback")
	} else {
		r.log.Warn().Int("length", len(res.Text)).Msg("Primary OCR text too short, trying local fallback")
	}

	res, err = r.localOCR.ExtractText(ctx, req.FileData, req.FileName)
	if err == nil && len(res.Text) >= r.cfg.MinTextLength {
		return res.Text, true, nil
	}
	if ctx.Err() != nil {
		return "", false, ctx.Err()
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", domain.ErrNoUsableText, err)
	}
	return "", false, domain.ErrNoUsableText
}

// scoreTemplates scores every fingerprinted candidate and returns the best.
// Templates without parse configs are penalized: a fingerprint match alone
// cannot produce a document.
func (r *Router) scoreTemplates(text string, templates []*domain.Template) (*domain.Template, float64) {
	var best *domain.Template
	var bestScore float64

	for _, tpl := range templates {
		if tpl.Fingerprint.IsEmpty() {
			continue
		}
		result := fingerprint.Score(text, tpl.Fingerprint)
		score := result.Score
		if !tpl.HasParseConfig() {
			score *= emptyConfigPenalty
		}
		if best == nil || score > bestScore {
			best, bestScore = tpl, score
		}
	}
	return best, bestScore
}

// multimodalStrategies sends the original file to the primary model, then
// the secondary. Each response must carry at least one line item.
func (r *Router) multimodalStrategies(req Request) []provider.Strategy {
	models := []string{r.providers.PrimaryModel, r.providers.SecondaryModel}

	var strategies []provider.Strategy
	for _, model := range models {
		model := model
		strategies = append(strategies, provider.Strategy{
			Name: "multimodal-" + model,
			Run: func(ctx context.Context) (*domain.ParsedDocument, error) {
				doc, err := r.ai.ExtractFromFile(ctx, req.FileData, req.FileName, model)
				if err != nil {
					return nil, err
				}
				if !validation.HasLineItems(doc) {
					return nil, errors.New("multimodal result has no line items")
				}
				return doc, nil
			},
		})
	}
	return strategies
}

// aiFromText runs the text-based retry ladder: primary model, secondary
// model, then both again against alternate text from local OCR when a source
// file is available.
func (r *Router) aiFromText(ctx context.Context, req Request, text string) (*domain.ParsedDocument, error) {
	models := []string{r.providers.PrimaryModel, r.providers.SecondaryModel}

	textStrategy := func(name string, model string, getText func(ctx context.Context) (string, error)) provider.Strategy {
		return provider.Strategy{
			Name: name,
			Run: func(ctx context.Context) (*domain.ParsedDocument, error) {
				input, err := getText(ctx)
				if err != nil {
					return nil, err
				}
				doc, err := r.ai.ExtractFromText(ctx, input, model)
				if err != nil {
					return nil, err
				}
				if !validation.HasLineItems(doc) {
					return nil, errors.New("result has no line items")
				}
				return doc, nil
			},
		}
	}

	fixed := func(ctx context.Context) (string, error) { return text, nil }

	var strategies []provider.Strategy
	for _, model := range models {
		strategies = append(strategies, textStrategy("ai-text-"+model, model, fixed))
	}

	if len(req.FileData) > 0 {
		// Alternate text from local OCR, fetched once and shared between
		// the remaining strategies.
		var altText string
		alternate := func(ctx context.Context) (string, error) {
			if altText != "" {
				return altText, nil
			}
			res, err := r.localOCR.ExtractText(ctx, req.FileData, req.FileName)
			if err != nil {
				return "", fmt.Errorf("alternate ocr: %w", err)
			}
			if len(res.Text) < r.cfg.MinTextLength {
				return "", errors.New("alternate ocr text too short")
			}
			altText = res.Text
			return altText, nil
		}
		for _, model := range models {
			strategies = append(strategies, textStrategy("ai-alt-text-"+model, model, alternate))
		}
	}

	doc, strategy, err := r.chain.Execute(ctx, strategies)
	if err != nil {
		return nil, err
	}
	r.log.Debug().Str("strategy", strategy).Msg("AI text extraction accepted")
	return doc, nil
}

// aiFailure converts an exhausted AI ladder into the right terminal error
// and publishes the failure. Context cancellation is passed through as-is.
func (r *Router) aiFailure(ctx context.Context, req Request, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	r.events.PublishDocumentFailed(ctx, req.DocumentID, domain.StageAI, err.Error())
	return domain.Terminal(domain.StageAI, err)
}

// recordStats updates a template's track record. Stat failures are logged
// and swallowed; they never change the extraction answer.
func (r *Router) recordStats(ctx context.Context, templateID string, success bool, log *logger.Logger) {
	if err := r.learner.UpdateStats(ctx, templateID, success); err != nil {
		log.Warn().Err(err).Str("template_id", templateID).Msg("Template stat update failed")
	}
}

// learnAsync feeds a successful multimodal extraction into the template
// store without blocking the caller. Runs on a detached context so request
// cancellation does not kill learning; Wait drains it on shutdown.
func (r *Router) learnAsync(req Request, doc *domain.ParsedDocument) {
	r.learnWG.Add(1)
	go func() {
		defer r.learnWG.Done()

		ctx, cancel := context.WithTimeout(context.Background(), learnTimeout)
		defer cancel()

		log := r.log.WithDocumentID(req.DocumentID)

		text := req.Text
		if len(text) < r.cfg.MinTextLength {
			res, err := r.primaryOCR.ExtractText(ctx, req.FileData, req.FileName)
			if err != nil {
				log.Warn().Err(err).Msg("Learning skipped, no OCR text available")
				return
			}
			text = res.Text
		}
		if len(text) < r.cfg.MinTextLength {
			log.Warn().Int("length", len(text)).Msg("Learning skipped, text too short")
			return
		}

		r.learnFromDocument(ctx, text, doc, log)
	}()
}

// learnFromDocument applies the learning step to a verified extraction:
// refine the matching template when one scores at least into the medium
// band, otherwise create a variant (or a whole new supplier).
func (r *Router) learnFromDocument(ctx context.Context, text string, doc *domain.ParsedDocument, log *logger.Logger) {
	taxID, name := r.matcher.Identify(text)
	if name == "" {
		name = doc.Header.SupplierName
	}
	if taxID == "" {
		taxID = doc.Header.TaxID
	}

	supplier, templates, err := r.matcher.FindTemplates(ctx, taxID, name)
	if err != nil {
		log.Warn().Err(err).Msg("Learning skipped, template lookup failed")
		return
	}
	if supplier == nil {
		supplier, err = r.matcher.FindOrCreateSupplier(ctx, taxID, name)
		if err != nil || supplier == nil {
			log.Warn().Err(err).Msg("Learning skipped, supplier unavailable")
			return
		}
	}

	best, score := r.scoreTemplates(text, templates)
	if best != nil && score >= r.cfg.MediumTier {
		if err := r.learner.Refine(ctx, best, doc, text); err != nil {
			log.Warn().Err(err).Str("template_id", best.ID).Msg("Async refinement failed")
			return
		}
		r.events.PublishTemplateRefined(ctx, best)
		return
	}

	variant, err := r.learner.CreateVariant(ctx, supplier, doc, text)
	if err != nil {
		log.Warn().Err(err).Msg("Async template creation failed")
		return
	}
	r.events.PublishTemplateCreated(ctx, variant)
}
