package market

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"paper-trading-go/internal/config"

	"go.uber.org/zap"
)

// ErrMarketDataUnavailable indicates every resolution tier was exhausted.
// Only reachable when the synthetic fallback is disabled or has no base price
// for the symbol.
var ErrMarketDataUnavailable = errors.New("no market data available")

// Provenance tags which fallback tier produced a price.
type Provenance string

const (
	ProvenanceCache     Provenance = "cache"
	ProvenancePrimary   Provenance = "primary"
	ProvenanceSecondary Provenance = "secondary"
	ProvenanceStale     Provenance = "stale"
	ProvenanceSynthetic Provenance = "synthetic"
)

// Quote is the result of a price resolution. Ephemeral; only ever cached,
// never persisted.
type Quote struct {
	Symbol     string
	Price      float64
	Timestamp  time.Time
	Provenance Provenance
}

// Resolver obtains the latest tradable price for a symbol from an ordered
// chain of sources: cache, primary feed, secondary feed, last known value,
// synthetic mock. Transient upstream failure degrades through the chain
// instead of surfacing to the caller.
type Resolver struct {
	cfg       config.Market
	primary   PrimaryClientInterface
	sessions  *SessionManager
	secondary SecondaryClientInterface
	cache     QuoteCache
	logger    *zap.Logger

	quoteAttempts  int
	rateRetryDelay time.Duration
	sleep          func(time.Duration)

	secondaryAllowed map[string]struct{}

	mu        sync.RWMutex
	lastKnown map[string]float64
}

// NewResolver creates a price resolver over the given tiers.
func NewResolver(
	cfg config.Market,
	primaryCfg config.Primary,
	secondaryCfg config.Secondary,
	primary PrimaryClientInterface,
	sessions *SessionManager,
	secondary SecondaryClientInterface,
	cache QuoteCache,
	logger *zap.Logger,
) *Resolver {
	allowed := make(map[string]struct{}, len(secondaryCfg.Symbols))
	for _, s := range secondaryCfg.Symbols {
		allowed[s] = struct{}{}
	}

	return &Resolver{
		cfg:              cfg,
		primary:          primary,
		sessions:         sessions,
		secondary:        secondary,
		cache:            cache,
		logger:           logger,
		quoteAttempts:    primaryCfg.QuoteAttempts,
		rateRetryDelay:   time.Duration(primaryCfg.RateRetryDelay) * time.Second,
		sleep:            time.Sleep,
		secondaryAllowed: allowed,
		lastKnown:        make(map[string]float64),
	}
}

// Resolve returns a usable quote for the symbol, degrading through the
// fallback chain. The error is ErrMarketDataUnavailable only when every tier
// including the synthetic mock is out of reach.
func (r *Resolver) Resolve(ctx context.Context, symbol string) (Quote, error) {
	if price, ok := r.cache.Get(symbol); ok {
		mtxResolutions.WithLabelValues(string(ProvenanceCache)).Inc()
		return r.quote(symbol, price, ProvenanceCache), nil
	}

	if price, err := r.resolvePrimary(ctx, symbol); err == nil {
		r.record(symbol, price)
		mtxResolutions.WithLabelValues(string(ProvenancePrimary)).Inc()
		return r.quote(symbol, price, ProvenancePrimary), nil
	} else {
		if errors.Is(err, ErrUpstreamAuth) {
			r.sessions.Invalidate()
		}
		r.logger.Warn("Primary feed resolution failed",
			zap.String("symbol", symbol), zap.Error(err))
	}

	if _, ok := r.secondaryAllowed[symbol]; ok {
		if price, err := r.secondary.Quote(ctx, symbol); err == nil {
			r.record(symbol, price)
			mtxResolutions.WithLabelValues(string(ProvenanceSecondary)).Inc()
			return r.quote(symbol, price, ProvenanceSecondary), nil
		} else {
			r.logger.Warn("Secondary feed resolution failed",
				zap.String("symbol", symbol), zap.Error(err))
		}
	}

	r.mu.RLock()
	price, ok := r.lastKnown[symbol]
	r.mu.RUnlock()
	if ok {
		mtxResolutions.WithLabelValues(string(ProvenanceStale)).Inc()
		return r.quote(symbol, price, ProvenanceStale), nil
	}

	if r.cfg.SyntheticEnabled {
		if base, ok := r.cfg.SyntheticBases[symbol]; ok {
			// Deterministic base perturbed by up to ±1%.
			price := base * (1 + (rand.Float64()*2-1)*0.01)
			r.logger.Warn("Using synthetic price",
				zap.String("symbol", symbol), zap.Float64("price", price))
			mtxResolutions.WithLabelValues(string(ProvenanceSynthetic)).Inc()
			return r.quote(symbol, price, ProvenanceSynthetic), nil
		}
	}

	mtxResolutionFailures.Inc()
	return Quote{}, fmt.Errorf("%w: %s", ErrMarketDataUnavailable, symbol)
}

// resolvePrimary tries every configured venue/token pair for the symbol, with
// a bounded number of attempts each. A provider-side rate error sleeps before
// the next attempt; an auth error aborts the whole tier.
func (r *Resolver) resolvePrimary(ctx context.Context, symbol string) (float64, error) {
	venues, ok := r.cfg.Venues[symbol]
	if !ok || len(venues) == 0 {
		return 0, fmt.Errorf("no venue mapping for symbol %s", symbol)
	}

	session, err := r.sessions.Get(ctx)
	if err != nil {
		return 0, err
	}

	var lastErr error
	for _, vt := range venues {
		for attempt := 0; attempt < r.quoteAttempts; attempt++ {
			price, err := r.primary.Quote(ctx, session, vt.Venue, symbol, vt.Token)
			if err == nil {
				return price, nil
			}
			lastErr = err

			if errors.Is(err, ErrUpstreamAuth) {
				return 0, err
			}
			if errors.Is(err, ErrRateLimited) {
				r.logger.Warn("Primary feed rate limited, backing off",
					zap.String("symbol", symbol),
					zap.String("venue", vt.Venue),
					zap.Int("attempt", attempt+1),
				)
				r.sleep(r.rateRetryDelay)
			}
		}
	}

	return 0, fmt.Errorf("all venue/token pairs exhausted for %s: %w", symbol, lastErr)
}

// record stores a freshly resolved price in the cache and last-known map.
func (r *Resolver) record(symbol string, price float64) {
	r.cache.SetWithTTL(symbol, price, r.cfg.CacheValidity())

	r.mu.Lock()
	r.lastKnown[symbol] = price
	r.mu.Unlock()
}

func (r *Resolver) quote(symbol string, price float64, provenance Provenance) Quote {
	return Quote{
		Symbol:     symbol,
		Price:      price,
		Timestamp:  time.Now().UTC(),
		Provenance: provenance,
	}
}
