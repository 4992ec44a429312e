package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/invoiceflow/invoiceflow-backend/internal/extraction/domain"
	"github.com/invoiceflow/invoiceflow-backend/pkg/logger"
)

// Strategy is one way of obtaining a structured document. Strategies are
// tried in the order given; the first success wins.
type Strategy struct {
	Name string
	Run  func(ctx context.Context) (*domain.ParsedDocument, error)
}

// Chain walks a list of strategies with bounded per-strategy retries and
// exponential backoff between attempts.
type Chain struct {
	maxAttempts int
	backoff     time.Duration
	log         *logger.Logger
}

func NewChain(maxAttempts int, backoff time.Duration, log *logger.Logger) *Chain {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Chain{
		maxAttempts: maxAttempts,
		backoff:     backoff,
		log:         log.WithComponent("provider-chain"),
	}
}

// Execute runs the strategies in order and returns the first successful
// result along with the name of the strategy that produced it. When every
// strategy is exhausted the last error is wrapped in ErrExtractionExhausted.
func (c *Chain) Execute(ctx context.Context, strategies []Strategy) (*domain.ParsedDocument, string, error) {
	var lastErr error

	for _, s := range strategies {
		for attempt := 1; attempt <= c.maxAttempts; attempt++ {
			if err := ctx.Err(); err != nil {
				return nil, "", err
			}

			doc, err := s.Run(ctx)
			if err == nil {
				if attempt > 1 {
					c.log.Info().
						Str("strategy", s.Name).
						Int("attempt", attempt).
						Msg("Strategy succeeded after retry")
				}
				return doc, s.Name, nil
			}

			lastErr = err
			c.log.Warn().
				Err(err).
				Str("strategy", s.Name).
				Int("attempt", attempt).
				Int("max_attempts", c.maxAttempts).
				Msg("Extraction strategy attempt failed")

			if attempt < c.maxAttempts {
				if err := sleep(ctx, c.backoff*time.Duration(1<<(attempt-1))); err != nil {
					return nil, "", err
				}
			}
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no strategies configured")
	}
	return nil, "", fmt.Errorf("%w: %v", domain.ErrExtractionExhausted, lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
