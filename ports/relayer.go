package ports

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/layer-3/verisafe/core"
)

// RelayerSDK is the external encryption/decryption SDK.
type RelayerSDK interface {
	// Init loads the SDK runtime. It is safe to call more than once.
	Init(ctx context.Context) error
	CreateInstance(ctx context.Context, network core.NetworkConfig) (FHEInstance, error)
}

// FHEInstance is an SDK instance bound to one network configuration.
type FHEInstance interface {
	CreateEncryptedInput(contract, user common.Address) EncryptedInputBuilder
	GenerateKeypair(ctx context.Context) (core.Keypair, error)

	// CreateEIP712 builds the typed-data authorization granting publicKey the right to
	// decrypt handles of the given contracts for durationDays starting at startTimestamp.
	CreateEIP712(ctx context.Context, publicKey string, contracts []common.Address, startTimestamp int64, durationDays int) (apitypes.TypedData, error)

	// UserDecrypt returns the plaintexts keyed by handle hex.
	UserDecrypt(ctx context.Context, req UserDecryptRequest) (map[string]any, error)
}

// EncryptedInputBuilder accumulates values to encrypt for one (contract, user) pair.
type EncryptedInputBuilder interface {
	Add32(v uint32) EncryptedInputBuilder
	Encrypt(ctx context.Context) (core.EncryptedInput, error)
}

// UserDecryptRequest carries everything userDecrypt needs.
type UserDecryptRequest struct {
	Pairs          []core.HandleContractPair
	Keypair        core.Keypair
	Signature      []byte
	Contracts      []common.Address
	User           common.Address
	StartTimestamp int64
	DurationDays   int
}
