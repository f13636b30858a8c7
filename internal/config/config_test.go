package config

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/hex"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/verisafe/adapters/chain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, chain.DefaultAddress, cfg.ContractAddress())
	assert.Equal(t, 30*time.Second, cfg.SDKInitTimeout)
	assert.Equal(t, uint64(3), cfg.RelayerRetries)
	assert.Equal(t, time.Second, cfg.RelayerRetryDelay)
	assert.Equal(t, 1, cfg.DecryptionDays)
	assert.Equal(t, 2*time.Second, cfg.ResultReadDelay)
	assert.Equal(t, ":9000", cfg.HTTPAddr)
	assert.Equal(t, time.Hour, cfg.SessionTTL)
	assert.False(t, cfg.AutoApprove)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("VERISAFE_HTTP_ADDR", ":8080")
	t.Setenv("VERISAFE_RELAYER_RETRIES", "5")
	t.Setenv("VERISAFE_RESULT_READ_DELAY", "500ms")
	t.Setenv("VERISAFE_KEYSTORE", "/tmp/keystore")
	t.Setenv("VERISAFE_ACCOUNT", "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, uint64(5), cfg.RelayerRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.ResultReadDelay)
	assert.Equal(t, "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23", cfg.AccountAddress().Hex())
}

func TestLoad_KeystoreWithoutAccount(t *testing.T) {
	t.Setenv("VERISAFE_KEYSTORE", "/tmp/keystore")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, common.Address{}, cfg.AccountAddress())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"contract", "VERISAFE_CONTRACT", "not-an-address"},
		{"account", "VERISAFE_ACCOUNT", "0x1234"},
		{"decryption days", "VERISAFE_DECRYPTION_DAYS", "0"},
		{"session ttl", "VERISAFE_SESSION_TTL", "-1s"},
		{"malformed duration", "VERISAFE_WATCH_INTERVAL", "soon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestSigningKey(t *testing.T) {
	cfg := &Config{}
	generated, err := cfg.SigningKey()
	require.NoError(t, err)
	assert.Equal(t, elliptic.P256(), generated.Curve)

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	cfg.SessionKey = hex.EncodeToString(der)
	loaded, err := cfg.SigningKey()
	require.NoError(t, err)
	assert.True(t, key.Equal(loaded))

	cfg.SessionKey = "zz"
	_, err = cfg.SigningKey()
	assert.Error(t, err)
}
