package core

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// EIP-1193 provider error codes.
const (
	CodeUserRejected      = 4001
	CodeUnauthorized      = 4100
	CodeUnsupportedMethod = 4200
	CodeDisconnected      = 4900
	CodeChainDisconnected = 4901
	CodeUnrecognizedChain = 4902
)

// ProviderError is an error returned by a wallet provider request.
type ProviderError struct {
	Code    int
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

// Is lets errors.Is(err, ErrUserRejected) match a 4001 response.
func (e *ProviderError) Is(target error) bool {
	return target == ErrUserRejected && e.Code == CodeUserRejected
}

// NewProviderError builds a ProviderError with the given code.
func NewProviderError(code int, msg string) *ProviderError {
	return &ProviderError{Code: code, Message: msg}
}

// IsUserRejection reports whether err is the user declining a wallet prompt.
func IsUserRejection(err error) bool {
	return errors.Is(err, ErrUserRejected)
}

// IsUnrecognizedChain reports whether the wallet does not know the requested chain.
func IsUnrecognizedChain(err error) bool {
	var perr *ProviderError
	return errors.As(err, &perr) && perr.Code == CodeUnrecognizedChain
}

// NativeCurrency describes the gas token of a chain.
type NativeCurrency struct {
	Name     string `json:"name" yaml:"name"`
	Symbol   string `json:"symbol" yaml:"symbol"`
	Decimals int    `json:"decimals" yaml:"decimals"`
}

// ChainParams is the chain definition passed to wallet_addEthereumChain.
type ChainParams struct {
	ChainID           uint64         `json:"chainId" yaml:"chain_id"`
	ChainName         string         `json:"chainName" yaml:"name"`
	NativeCurrency    NativeCurrency `json:"nativeCurrency" yaml:"native_currency"`
	RPCURLs           []string       `json:"rpcUrls" yaml:"rpc_urls"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls,omitempty" yaml:"block_explorer_urls"`
}

// SepoliaChainID is the chain the VeriSafe contract lives on.
const SepoliaChainID uint64 = 11155111

// SepoliaChain returns the definition used when the wallet does not know Sepolia yet.
func SepoliaChain(rpcURL string) ChainParams {
	return ChainParams{
		ChainID:   SepoliaChainID,
		ChainName: "Sepolia",
		NativeCurrency: NativeCurrency{
			Name:     "ETH",
			Symbol:   "ETH",
			Decimals: 18,
		},
		RPCURLs:           []string{rpcURL},
		BlockExplorerURLs: []string{"https://sepolia.etherscan.io"},
	}
}

// EventKind names a provider event.
type EventKind string

const (
	EventAccountsChanged EventKind = "accountsChanged"
	EventChainChanged    EventKind = "chainChanged"
	EventDisconnect      EventKind = "disconnect"
)

// ProviderEvent is emitted by a wallet provider to its subscribers.
type ProviderEvent struct {
	Kind     EventKind
	Accounts []common.Address // accountsChanged
	ChainID  uint64           // chainChanged
	Err      error            // disconnect
}

// TxRequest is the eth_sendTransaction payload. Zero values are filled in by the wallet.
type TxRequest struct {
	From  common.Address
	To    *common.Address
	Data  []byte
	Gas   uint64
	Value *big.Int
}
