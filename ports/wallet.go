package ports

import (
	"context"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/layer-3/verisafe/core"
)

// Provider is a wallet provider with EIP-1193 semantics. Requests that need the
// user's consent may fail with a core.ProviderError carrying CodeUserRejected.
type Provider interface {
	// Name identifies the wallet, e.g. "keystore" or "rpc".
	Name() string

	// RequestAccounts asks the user to authorize account access (eth_requestAccounts).
	RequestAccounts(ctx context.Context) ([]common.Address, error)

	// Accounts lists authorized accounts without prompting (eth_accounts).
	Accounts(ctx context.Context) ([]common.Address, error)

	ChainID(ctx context.Context) (uint64, error)

	// SwitchChain fails with CodeUnrecognizedChain when the wallet does not know the chain.
	SwitchChain(ctx context.Context, chainID uint64) error
	AddChain(ctx context.Context, params core.ChainParams) error

	// SignTypedData signs EIP-712 typed data (eth_signTypedData_v4).
	SignTypedData(ctx context.Context, account common.Address, data apitypes.TypedData) ([]byte, error)

	// SendTransaction signs and broadcasts a transaction (eth_sendTransaction).
	SendTransaction(ctx context.Context, tx core.TxRequest) (common.Hash, error)

	Call(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)

	// TransactionReceipt returns ethereum.NotFound while the transaction is pending.
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)

	// Subscribe registers fn for provider events. The returned func removes it.
	Subscribe(fn func(core.ProviderEvent)) (unsubscribe func())
}

// ProviderDiscovery locates a wallet provider, returning core.ErrNoWallet when none is present.
type ProviderDiscovery interface {
	Discover(ctx context.Context) (Provider, error)
}
