package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/verisafe/core"
	"github.com/layer-3/verisafe/ports"
)

// SessionService issues and checks the bearer tokens handed out when a wallet
// connects over HTTP.
type SessionService struct {
	tokenizer ports.Tokenizer
	store     ports.Store
	ttl       time.Duration
	now       func() time.Time
}

func NewSessionService(tokenizer ports.Tokenizer, store ports.Store, ttl time.Duration) *SessionService {
	return &SessionService{
		tokenizer: tokenizer,
		store:     store,
		ttl:       ttl,
		now:       time.Now,
	}
}

// Issue creates a session for a connected wallet account.
func (s *SessionService) Issue(address string, chainID uint64) (string, *core.Session, error) {
	now := s.now()
	session := &core.Session{
		ID:        uuid.New().String(),
		Address:   address,
		ChainID:   chainID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}

	token, err := s.tokenizer.SessionToToken(session)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create session token: %w", err)
	}
	return token, session, nil
}

// Validate parses token and rejects expired or revoked sessions.
func (s *SessionService) Validate(ctx context.Context, token string) (*core.Session, error) {
	session, err := s.tokenizer.TokenToSession(token)
	if err != nil {
		return nil, fmt.Errorf("invalid session token: %w", err)
	}

	if s.now().After(session.ExpiresAt) {
		return nil, core.ErrTokenExpired
	}

	invalidated, err := s.store.IsTokenInvalidated(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check token invalidation: %w", err)
	}
	if invalidated {
		return nil, core.ErrTokenInvalidated
	}

	return session, nil
}

// Revoke invalidates the session until it would have expired anyway.
func (s *SessionService) Revoke(ctx context.Context, session *core.Session) error {
	remaining := session.ExpiresAt.Sub(s.now())
	if remaining <= 0 {
		// Clocks drift; keep a record for a while even for expired sessions.
		remaining = time.Hour
	}

	if err := s.store.InvalidateToken(ctx, session.ID, remaining); err != nil {
		return fmt.Errorf("failed to invalidate session: %w", err)
	}
	return nil
}
