package market

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"paper-trading-go/internal/config"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	// ErrUpstreamAuth indicates a login failure or an expired session token.
	// The session is invalidated and recreated on the next resolve.
	ErrUpstreamAuth = errors.New("primary feed authentication failed")

	// ErrRateLimited indicates the provider rejected the call for exceeding
	// its access rate. Distinct from our own limiter, which blocks instead.
	ErrRateLimited = errors.New("primary feed rate limit exceeded")
)

// Session is an authenticated handle to the primary feed. It is reused across
// quote calls while within its validity window.
type Session struct {
	Token     string
	CreatedAt time.Time
	LastUsed  time.Time
}

// PrimaryClientInterface defines the contract of the primary quote feed.
type PrimaryClientInterface interface {
	Login(ctx context.Context) (*Session, error)
	Quote(ctx context.Context, session *Session, venue, symbol, token string) (float64, error)
}

// PrimaryClient is a client for the session-based primary market data API.
// All calls, including login, go through a shared token-bucket limiter.
type PrimaryClient struct {
	client  *resty.Client
	cfg     config.Primary
	logger  *zap.Logger
	limiter *rate.Limiter
}

// ensure PrimaryClient implements the interface
var _ PrimaryClientInterface = (*PrimaryClient)(nil)

// NewPrimaryClient creates a new primary feed client.
func NewPrimaryClient(cfg config.Primary, logger *zap.Logger) *PrimaryClient {
	client := resty.New().SetBaseURL(cfg.BaseURL)

	// rate.Limit is requests per second.
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)

	return &PrimaryClient{
		client:  client,
		cfg:     cfg,
		logger:  logger,
		limiter: limiter,
	}
}

type apiEnvelope struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		SessionToken string  `json:"session_token"`
		LTP          float64 `json:"ltp"`
	} `json:"data"`
}

// Login authenticates against the primary feed and returns a fresh session.
func (c *PrimaryClient) Login(ctx context.Context) (*Session, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	var envelope apiEnvelope
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("X-API-KEY", c.cfg.ApiKey).
		SetBody(map[string]string{
			"client_code": c.cfg.ClientCode,
			"password":    c.cfg.Password,
			"totp":        totpNow(c.cfg.TotpSecret, time.Now()),
		}).
		SetResult(&envelope).
		Post("/auth/login")
	if err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}

	if resp.IsError() || !envelope.Status || envelope.Data.SessionToken == "" {
		c.logger.Error("Primary feed login rejected",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("message", envelope.Message),
		)
		return nil, fmt.Errorf("%w: %s", ErrUpstreamAuth, envelope.Message)
	}

	now := time.Now()
	c.logger.Info("Created new primary feed session")
	return &Session{Token: envelope.Data.SessionToken, CreatedAt: now, LastUsed: now}, nil
}

// Quote fetches the last traded price for an instrument token on a venue.
func (c *PrimaryClient) Quote(ctx context.Context, session *Session, venue, symbol, token string) (float64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	var envelope apiEnvelope
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("X-API-KEY", c.cfg.ApiKey).
		SetAuthToken(session.Token).
		SetBody(map[string]string{
			"exchange":      venue,
			"tradingsymbol": symbol,
			"symboltoken":   token,
		}).
		SetResult(&envelope).
		Post("/quote/ltp")
	if err != nil {
		return 0, fmt.Errorf("quote request failed: %w", err)
	}

	switch {
	case resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden:
		return 0, fmt.Errorf("%w: status %d", ErrUpstreamAuth, resp.StatusCode())
	case resp.StatusCode() == http.StatusTooManyRequests:
		return 0, ErrRateLimited
	case resp.IsError():
		return 0, fmt.Errorf("quote request failed with status %s: %s", resp.Status(), resp.String())
	case !envelope.Status:
		if strings.Contains(strings.ToLower(envelope.Message), "exceeding access rate") {
			return 0, ErrRateLimited
		}
		return 0, fmt.Errorf("quote rejected for %s (%s/%s): %s", symbol, venue, token, envelope.Message)
	}

	if envelope.Data.LTP <= 0 {
		return 0, fmt.Errorf("quote for %s returned non-positive price %f", symbol, envelope.Data.LTP)
	}
	return envelope.Data.LTP, nil
}

// totpNow computes the RFC 6238 code for the shared secret at the given time,
// using a 30 second step and 6 digits.
func totpNow(secret string, now time.Time) string {
	key, err := base32.StdEncoding.WithPadding(base32.NoPadding).
		DecodeString(strings.ToUpper(strings.TrimSpace(secret)))
	if err != nil {
		return ""
	}

	counter := uint64(now.Unix() / 30)
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(sha1.New, key)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	code := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	return fmt.Sprintf("%06d", code%1000000)
}
