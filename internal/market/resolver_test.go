package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"paper-trading-go/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockSecondaryClient is a mock implementation of SecondaryClientInterface.
type MockSecondaryClient struct {
	mock.Mock
}

func (m *MockSecondaryClient) Quote(ctx context.Context, symbol string) (float64, error) {
	args := m.Called(symbol)
	return args.Get(0).(float64), args.Error(1)
}

func resolverConfig() config.Market {
	return config.Market{
		CacheTTL: 300,
		Venues: map[string][]config.VenueToken{
			"NSEI":  {{Venue: "NSE", Token: "99926000"}},
			"BSESN": {{Venue: "BSE", Token: "1"}, {Venue: "BSE", Token: "99926009"}},
		},
		SyntheticEnabled: true,
		SyntheticBases:   map[string]float64{"NSEI": 25000, "BSESN": 80000},
	}
}

// setupResolver wires a resolver over mocked feed clients with sleeping
// stubbed out.
func setupResolver(t *testing.T, cfg config.Market) (*Resolver, *MockPrimaryClient, *MockSecondaryClient) {
	t.Helper()

	primary := new(MockPrimaryClient)
	secondary := new(MockSecondaryClient)

	r := NewResolver(
		cfg,
		config.Primary{QuoteAttempts: 3, RateRetryDelay: 2, SessionTTL: 60},
		config.Secondary{Symbols: []string{"BSESN"}, MaxAttempts: 3, BackoffBase: 2, BackoffCap: 10},
		primary,
		NewSessionManager(primary, time.Hour, zap.NewNop()),
		secondary,
		NewMemoryCache(),
		zap.NewNop(),
	)
	r.sleep = func(time.Duration) {}
	return r, primary, secondary
}

func activeSession() *Session {
	return &Session{Token: "tok-1", CreatedAt: time.Now()}
}

func TestResolve_CacheShortCircuitsFeeds(t *testing.T) {
	r, primary, _ := setupResolver(t, resolverConfig())
	r.cache.SetWithTTL("NSEI", 25100, 5*time.Minute)

	quote, err := r.Resolve(context.Background(), "NSEI")

	require.NoError(t, err)
	assert.Equal(t, 25100.0, quote.Price)
	assert.Equal(t, ProvenanceCache, quote.Provenance)
	// Neither Login nor Quote reached the primary feed.
	primary.AssertExpectations(t)
}

func TestResolve_PrimaryWritesThroughCache(t *testing.T) {
	r, primary, _ := setupResolver(t, resolverConfig())
	primary.On("Login").Return(activeSession(), nil).Once()
	primary.On("Quote", "NSE", "NSEI", "99926000").Return(25200.0, nil).Once()

	quote, err := r.Resolve(context.Background(), "NSEI")

	require.NoError(t, err)
	assert.Equal(t, ProvenancePrimary, quote.Provenance)
	assert.Equal(t, 25200.0, quote.Price)

	cached, ok := r.cache.Get("NSEI")
	assert.True(t, ok)
	assert.Equal(t, 25200.0, cached)
	primary.AssertExpectations(t)
}

func TestResolve_TriesVenueTokenPairsInOrder(t *testing.T) {
	r, primary, secondary := setupResolver(t, resolverConfig())
	primary.On("Login").Return(activeSession(), nil).Once()
	primary.On("Quote", "BSE", "BSESN", "1").Return(0.0, errors.New("no data")).Times(3)
	primary.On("Quote", "BSE", "BSESN", "99926009").Return(80250.0, nil).Once()

	quote, err := r.Resolve(context.Background(), "BSESN")

	require.NoError(t, err)
	assert.Equal(t, ProvenancePrimary, quote.Provenance)
	assert.Equal(t, 80250.0, quote.Price)
	primary.AssertExpectations(t)
	secondary.AssertExpectations(t)
}

func TestResolve_RateLimitedRetriesWithDelay(t *testing.T) {
	r, primary, _ := setupResolver(t, resolverConfig())
	var slept []time.Duration
	r.sleep = func(d time.Duration) { slept = append(slept, d) }

	primary.On("Login").Return(activeSession(), nil).Once()
	primary.On("Quote", "NSE", "NSEI", "99926000").Return(0.0, ErrRateLimited).Twice()
	primary.On("Quote", "NSE", "NSEI", "99926000").Return(25300.0, nil).Once()

	quote, err := r.Resolve(context.Background(), "NSEI")

	require.NoError(t, err)
	assert.Equal(t, 25300.0, quote.Price)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, slept)
	primary.AssertExpectations(t)
}

func TestResolve_SecondaryFallbackForWhitelistedSymbol(t *testing.T) {
	r, primary, secondary := setupResolver(t, resolverConfig())
	primary.On("Login").Return(activeSession(), nil).Once()
	primary.On("Quote", "BSE", "BSESN", "1").Return(0.0, errors.New("no data")).Times(3)
	primary.On("Quote", "BSE", "BSESN", "99926009").Return(0.0, errors.New("no data")).Times(3)
	secondary.On("Quote", "BSESN").Return(80500.0, nil).Once()

	quote, err := r.Resolve(context.Background(), "BSESN")

	require.NoError(t, err)
	assert.Equal(t, ProvenanceSecondary, quote.Provenance)
	assert.Equal(t, 80500.0, quote.Price)

	cached, ok := r.cache.Get("BSESN")
	assert.True(t, ok)
	assert.Equal(t, 80500.0, cached)
	secondary.AssertExpectations(t)
}

func TestResolve_SecondaryNotUsedForUnlistedSymbol(t *testing.T) {
	r, primary, secondary := setupResolver(t, resolverConfig())
	primary.On("Login").Return(activeSession(), nil).Once()
	primary.On("Quote", "NSE", "NSEI", "99926000").Return(0.0, errors.New("no data")).Times(3)

	quote, err := r.Resolve(context.Background(), "NSEI")

	// NSEI is not whitelisted for the secondary feed; it falls through to
	// the synthetic tier instead.
	require.NoError(t, err)
	assert.Equal(t, ProvenanceSynthetic, quote.Provenance)
	secondary.AssertNotCalled(t, "Quote", "NSEI")
}

func TestResolve_LastKnownValueWhenFeedsFail(t *testing.T) {
	r, primary, _ := setupResolver(t, resolverConfig())
	primary.On("Login").Return(activeSession(), nil)
	primary.On("Quote", "NSE", "NSEI", "99926000").Return(25400.0, nil).Once()
	primary.On("Quote", "NSE", "NSEI", "99926000").Return(0.0, errors.New("feed down"))

	_, err := r.Resolve(context.Background(), "NSEI")
	require.NoError(t, err)

	// Expire the cache entry so the next resolve hits the feeds again.
	r.cache.(*MemoryCache).now = func() time.Time { return time.Now().Add(10 * time.Minute) }

	quote, err := r.Resolve(context.Background(), "NSEI")
	require.NoError(t, err)
	assert.Equal(t, ProvenanceStale, quote.Provenance)
	assert.Equal(t, 25400.0, quote.Price)
}

func TestResolve_SyntheticWhenNothingElse(t *testing.T) {
	r, primary, _ := setupResolver(t, resolverConfig())
	primary.On("Login").Return(activeSession(), nil).Once()
	primary.On("Quote", "NSE", "NSEI", "99926000").Return(0.0, errors.New("feed down")).Times(3)

	quote, err := r.Resolve(context.Background(), "NSEI")

	require.NoError(t, err)
	assert.Equal(t, ProvenanceSynthetic, quote.Provenance)
	assert.InDelta(t, 25000.0, quote.Price, 25000.0*0.01)
}

func TestResolve_UnavailableWhenSyntheticDisabled(t *testing.T) {
	cfg := resolverConfig()
	cfg.SyntheticEnabled = false
	r, primary, _ := setupResolver(t, cfg)
	primary.On("Login").Return(activeSession(), nil).Once()
	primary.On("Quote", "NSE", "NSEI", "99926000").Return(0.0, errors.New("feed down")).Times(3)

	_, err := r.Resolve(context.Background(), "NSEI")

	assert.ErrorIs(t, err, ErrMarketDataUnavailable)
}

func TestResolve_AuthErrorInvalidatesSession(t *testing.T) {
	r, primary, _ := setupResolver(t, resolverConfig())
	primary.On("Login").Return(activeSession(), nil).Twice()
	primary.On("Quote", "NSE", "NSEI", "99926000").Return(0.0, ErrUpstreamAuth).Once()
	primary.On("Quote", "NSE", "NSEI", "99926000").Return(25500.0, nil).Once()

	// First resolve hits the auth error and falls through to synthetic.
	quote, err := r.Resolve(context.Background(), "NSEI")
	require.NoError(t, err)
	assert.Equal(t, ProvenanceSynthetic, quote.Provenance)

	// The session was invalidated, so the next resolve logs in again.
	quote, err = r.Resolve(context.Background(), "NSEI")
	require.NoError(t, err)
	assert.Equal(t, ProvenancePrimary, quote.Provenance)
	assert.Equal(t, 25500.0, quote.Price)
	primary.AssertExpectations(t)
}
