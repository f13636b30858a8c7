// Package config loads VeriSafe settings from VERISAFE_* environment variables.
package config

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kelseyhightower/envconfig"
)

const Prefix = "VERISAFE"

// Config contains all configuration parameters for the application.
// A keystore passphrase left empty is prompted for at runtime.
type Config struct {
	RPCURL     string `envconfig:"RPC_URL" default:"https://eth-sepolia.public.blastapi.io"`
	Contract   string `envconfig:"CONTRACT" default:"0xc26042fd8F8fbE521814fE98C27B66003FD0553f"`
	ChainsFile string `envconfig:"CHAINS_FILE"`

	// Wallet sources, tried in this order: keystore, private key, wallet RPC.
	WalletRPC   string `envconfig:"WALLET_RPC"`
	Keystore    string `envconfig:"KEYSTORE"`
	Account     string `envconfig:"ACCOUNT"`
	Passphrase  string `envconfig:"PASSPHRASE"`
	PrivateKey  string `envconfig:"PRIVATE_KEY"`
	AutoApprove bool   `envconfig:"AUTO_APPROVE" default:"false"`

	SDKURL            string        `envconfig:"SDK_URL" default:"http://127.0.0.1:8787"`
	SDKInitTimeout    time.Duration `envconfig:"SDK_INIT_TIMEOUT" default:"30s"`
	RelayerRetries    uint64        `envconfig:"RELAYER_RETRIES" default:"3"`
	RelayerRetryDelay time.Duration `envconfig:"RELAYER_RETRY_DELAY" default:"1s"`

	DecryptionDays  int           `envconfig:"DECRYPTION_DAYS" default:"1"`
	ResultReadDelay time.Duration `envconfig:"RESULT_READ_DELAY" default:"2s"`
	WatchInterval   time.Duration `envconfig:"WATCH_INTERVAL" default:"2s"`
	ReceiptPoll     time.Duration `envconfig:"RECEIPT_POLL_INTERVAL" default:"2s"`

	StateFile string `envconfig:"STATE_FILE" default:"verisafe.db"`
	RedisURL  string `envconfig:"REDIS_URL"`

	HTTPAddr   string        `envconfig:"HTTP_ADDR" default:":9000"`
	SessionTTL time.Duration `envconfig:"SESSION_TTL" default:"1h"`
	// SessionKey is a hex encoded DER (SEC 1) P-256 key. Empty generates one per run.
	SessionKey string `envconfig:"SESSION_KEY"`

	Artifacts string `envconfig:"ARTIFACTS" default:"artifacts"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process(Prefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if !common.IsHexAddress(c.Contract) {
		return fmt.Errorf("invalid %s_CONTRACT address %q", Prefix, c.Contract)
	}
	if c.Account != "" && !common.IsHexAddress(c.Account) {
		return fmt.Errorf("invalid %s_ACCOUNT address %q", Prefix, c.Account)
	}
	if c.DecryptionDays < 1 {
		return fmt.Errorf("%s_DECRYPTION_DAYS must be at least 1", Prefix)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("%s_SESSION_TTL must be positive", Prefix)
	}
	return nil
}

func (c *Config) ContractAddress() common.Address {
	return common.HexToAddress(c.Contract)
}

// AccountAddress is the keystore account to unlock. Zero selects the first key file.
func (c *Config) AccountAddress() common.Address {
	return common.HexToAddress(c.Account)
}

// SigningKey returns the session token signing key.
func (c *Config) SigningKey() (*ecdsa.PrivateKey, error) {
	if c.SessionKey == "" {
		return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	}
	der, err := hex.DecodeString(strings.TrimPrefix(c.SessionKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid %s_SESSION_KEY: %w", Prefix, err)
	}
	key, err := x509.ParseECPrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("invalid %s_SESSION_KEY: %w", Prefix, err)
	}
	if key.Curve != elliptic.P256() {
		return nil, fmt.Errorf("%s_SESSION_KEY must be a P-256 key", Prefix)
	}
	return key, nil
}
