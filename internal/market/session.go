package market

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// SessionManager hands out a valid primary feed session, reusing one handle
// within its validity window and recreating it on expiry or invalidation.
// The mutex makes session creation single-writer: concurrent resolvers either
// wait for the in-flight login or reuse the session it produced.
type SessionManager struct {
	client   PrimaryClientInterface
	validity time.Duration
	logger   *zap.Logger

	mu      chanMutex
	current *Session
}

// chanMutex is a mutex that can be acquired with a context, so a blocked
// caller still honors cancellation while another caller is logging in.
type chanMutex chan struct{}

func (m chanMutex) lock(ctx context.Context) error {
	select {
	case m <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m chanMutex) unlock() { <-m }

// NewSessionManager creates a session manager over the given client.
func NewSessionManager(client PrimaryClientInterface, validity time.Duration, logger *zap.Logger) *SessionManager {
	return &SessionManager{
		client:   client,
		validity: validity,
		logger:   logger,
		mu:       make(chanMutex, 1),
	}
}

// Get returns a session valid for use now, creating one if needed.
func (s *SessionManager) Get(ctx context.Context) (*Session, error) {
	if err := s.mu.lock(ctx); err != nil {
		return nil, err
	}
	defer s.mu.unlock()

	now := time.Now()
	if s.current != nil && now.Sub(s.current.CreatedAt) < s.validity {
		s.current.LastUsed = now
		return s.current, nil
	}

	if s.current != nil {
		s.logger.Info("Primary feed session expired, recreating",
			zap.Time("created_at", s.current.CreatedAt))
	}

	session, err := s.client.Login(ctx)
	if err != nil {
		return nil, err
	}

	s.current = session
	return session, nil
}

// Invalidate discards the current session so the next Get performs a fresh
// login. Called after an upstream authentication error.
func (s *SessionManager) Invalidate() {
	if err := s.mu.lock(context.Background()); err != nil {
		return
	}
	defer s.mu.unlock()

	if s.current != nil {
		s.logger.Warn("Invalidating primary feed session")
		s.current = nil
	}
}
