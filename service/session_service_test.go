package service

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"

	"github.com/layer-3/verisafe/adapters/store"
	"github.com/layer-3/verisafe/adapters/tokenizer"
	"github.com/layer-3/verisafe/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSessionService(t *testing.T) *SessionService {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return NewSessionService(tokenizer.NewJWTTokenizer(key), store.NewMemoryStore(), time.Hour)
}

func TestSessionService_IssueValidateRevoke(t *testing.T) {
	ctx := context.Background()
	s := newSessionService(t)

	token, issued, err := s.Issue("0x00000000000000000000000000000000000A11CE", core.SepoliaChainID)
	require.NoError(t, err)

	session, err := s.Validate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, issued.ID, session.ID)
	assert.Equal(t, core.SepoliaChainID, session.ChainID)

	require.NoError(t, s.Revoke(ctx, session))
	_, err = s.Validate(ctx, token)
	assert.ErrorIs(t, err, core.ErrTokenInvalidated)
}

func TestSessionService_Expired(t *testing.T) {
	s := newSessionService(t)
	token, _, err := s.Issue("0x00000000000000000000000000000000000A11CE", core.SepoliaChainID)
	require.NoError(t, err)

	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = s.Validate(context.Background(), token)
	assert.ErrorIs(t, err, core.ErrTokenExpired)
}

func TestSessionService_Garbage(t *testing.T) {
	_, err := newSessionService(t).Validate(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, core.ErrInvalidToken)
}
