package market

import (
	"context"
	"fmt"
	"math"
	"time"

	"paper-trading-go/internal/config"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// SecondaryClientInterface defines the contract of the unauthenticated
// fallback feed.
type SecondaryClientInterface interface {
	Quote(ctx context.Context, symbol string) (float64, error)
}

// SecondaryClient fetches quotes from an independent public data source.
// Transient failures are retried with exponential backoff.
type SecondaryClient struct {
	client *resty.Client
	cfg    config.Secondary
	logger *zap.Logger
	sleep  func(time.Duration)
}

var _ SecondaryClientInterface = (*SecondaryClient)(nil)

// NewSecondaryClient creates a new secondary feed client.
func NewSecondaryClient(cfg config.Secondary, logger *zap.Logger) *SecondaryClient {
	return &SecondaryClient{
		client: resty.New().SetBaseURL(cfg.BaseURL),
		cfg:    cfg,
		logger: logger,
		sleep:  time.Sleep,
	}
}

type secondaryQuoteResponse struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

// Quote fetches the latest price for a symbol, retrying up to the configured
// attempt count with backoff base*2^n capped at the configured maximum.
func (c *SecondaryClient) Quote(ctx context.Context, symbol string) (float64, error) {
	var lastErr error

	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := time.Duration(float64(c.cfg.BackoffBase)*math.Pow(2, float64(attempt-1))) * time.Second
			maxDelay := time.Duration(c.cfg.BackoffCap) * time.Second
			if delay > maxDelay {
				delay = maxDelay
			}
			c.logger.Warn("Secondary feed retry",
				zap.String("symbol", symbol),
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", delay),
			)
			c.sleep(delay)
		}

		var result secondaryQuoteResponse
		resp, err := c.client.R().
			SetContext(ctx).
			SetResult(&result).
			Get("/quote/" + symbol)
		if err != nil {
			lastErr = fmt.Errorf("secondary quote request failed: %w", err)
			continue
		}
		if resp.IsError() {
			lastErr = fmt.Errorf("secondary quote failed with status %s", resp.Status())
			continue
		}
		if result.Price <= 0 {
			lastErr = fmt.Errorf("secondary quote for %s returned non-positive price", symbol)
			continue
		}
		return result.Price, nil
	}

	return 0, fmt.Errorf("secondary feed exhausted after %d attempts: %w", c.cfg.MaxAttempts, lastErr)
}
