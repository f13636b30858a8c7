package ports

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/layer-3/verisafe/core"
)

// VeriSafe is the age verification contract as seen by one connected account.
type VeriSafe interface {
	Address() common.Address

	// EstimateVerifyAge estimates gas for verifyAge(handle, proof).
	EstimateVerifyAge(ctx context.Context, handle core.Handle, proof []byte) (uint64, error)

	// SubmitVerifyAge sends the state-changing verifyAge transaction.
	SubmitVerifyAge(ctx context.Context, handle core.Handle, proof []byte, gasLimit uint64) (common.Hash, error)

	// WaitMined blocks until the transaction is included.
	WaitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error)

	// SimulateVerifyAge runs verifyAge as a call and returns the result handle.
	SimulateVerifyAge(ctx context.Context, handle core.Handle, proof []byte) (core.Handle, error)

	// LastVerificationResult reads the stored result handle through the view method.
	LastVerificationResult(ctx context.Context) (core.Handle, error)
}

// ContractBinder binds the contract to a provider and account.
type ContractBinder interface {
	Bind(provider Provider, account common.Address) (VeriSafe, error)
}
