// Package chain is the VeriSafe contract client and deployer.
package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/layer-3/verisafe/core"
	"github.com/layer-3/verisafe/ports"
)

// VeriSafeABI is the interface of the deployed VeriSafe contract.
const VeriSafeABI = `[
	{
		"type": "function",
		"name": "verifyAge",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "inputEuint32", "type": "bytes32", "internalType": "externalEuint32"},
			{"name": "inputProof", "type": "bytes", "internalType": "bytes"}
		],
		"outputs": [{"name": "", "type": "bytes32", "internalType": "ebool"}]
	},
	{
		"type": "function",
		"name": "getLastVerificationResult",
		"stateMutability": "view",
		"inputs": [],
		"outputs": [{"name": "", "type": "bytes32", "internalType": "ebool"}]
	}
]`

const (
	MethodVerifyAge     = "verifyAge"
	MethodLastResult    = "getLastVerificationResult"
	defaultPollInterval = time.Second
)

// DefaultAddress is the Sepolia deployment.
var DefaultAddress = common.HexToAddress("0xc26042fd8F8fbE521814fE98C27B66003FD0553f")

// ParsedABI returns the parsed VeriSafe ABI.
func ParsedABI() abi.ABI { return parsedABI }

var parsedABI = mustParseABI()

func mustParseABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(VeriSafeABI))
	if err != nil {
		panic(fmt.Sprintf("invalid VeriSafe ABI: %v", err))
	}
	return parsed
}

// VeriSafe calls the contract through the user's wallet provider.
type VeriSafe struct {
	address  common.Address
	from     common.Address
	provider ports.Provider
	poll     time.Duration
}

func NewVeriSafe(address common.Address, provider ports.Provider, from common.Address) *VeriSafe {
	return &VeriSafe{address: address, from: from, provider: provider, poll: defaultPollInterval}
}

func (v *VeriSafe) Address() common.Address { return v.address }

// PackVerifyAge encodes verifyAge(handle, proof) calldata.
func PackVerifyAge(handle core.Handle, proof []byte) ([]byte, error) {
	data, err := parsedABI.Pack(MethodVerifyAge, [32]byte(handle), proof)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", MethodVerifyAge, err)
	}
	return data, nil
}

// UnpackHandle decodes a bytes32 return value of method.
func UnpackHandle(method string, out []byte) (core.Handle, error) {
	if len(out) == 0 {
		return core.ZeroHandle, fmt.Errorf("%s returned no data", method)
	}
	vals, err := parsedABI.Unpack(method, out)
	if err != nil {
		return core.ZeroHandle, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	raw, ok := vals[0].([32]byte)
	if !ok {
		return core.ZeroHandle, fmt.Errorf("%s returned %T, want bytes32", method, vals[0])
	}
	return core.Handle(raw), nil
}

func (v *VeriSafe) callMsg(data []byte) ethereum.CallMsg {
	return ethereum.CallMsg{From: v.from, To: &v.address, Data: data}
}

func (v *VeriSafe) EstimateVerifyAge(ctx context.Context, handle core.Handle, proof []byte) (uint64, error) {
	data, err := PackVerifyAge(handle, proof)
	if err != nil {
		return 0, err
	}
	return v.provider.EstimateGas(ctx, v.callMsg(data))
}

func (v *VeriSafe) SubmitVerifyAge(ctx context.Context, handle core.Handle, proof []byte, gasLimit uint64) (common.Hash, error) {
	data, err := PackVerifyAge(handle, proof)
	if err != nil {
		return common.Hash{}, err
	}
	return v.provider.SendTransaction(ctx, core.TxRequest{
		From: v.from,
		To:   &v.address,
		Data: data,
		Gas:  gasLimit,
	})
}

// WaitMined polls for the receipt until it appears or ctx ends.
func (v *VeriSafe) WaitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(v.poll)
	defer ticker.Stop()

	for {
		receipt, err := v.provider.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("failed to get receipt for %s: %w", txHash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// SimulateVerifyAge executes verifyAge as eth_call from the user. The returned
// handle is the one the mined transaction produced for the same input.
func (v *VeriSafe) SimulateVerifyAge(ctx context.Context, handle core.Handle, proof []byte) (core.Handle, error) {
	data, err := PackVerifyAge(handle, proof)
	if err != nil {
		return core.ZeroHandle, err
	}
	out, err := v.provider.Call(ctx, v.callMsg(data))
	if err != nil {
		return core.ZeroHandle, fmt.Errorf("%s call failed: %w", MethodVerifyAge, err)
	}
	return UnpackHandle(MethodVerifyAge, out)
}

func (v *VeriSafe) LastVerificationResult(ctx context.Context) (core.Handle, error) {
	data, err := parsedABI.Pack(MethodLastResult)
	if err != nil {
		return core.ZeroHandle, fmt.Errorf("failed to pack %s: %w", MethodLastResult, err)
	}
	out, err := v.provider.Call(ctx, v.callMsg(data))
	if err != nil {
		return core.ZeroHandle, fmt.Errorf("%s call failed: %w", MethodLastResult, err)
	}
	return UnpackHandle(MethodLastResult, out)
}

// Binder binds the contract at Address for each connected account.
type Binder struct {
	Address      common.Address
	PollInterval time.Duration
}

func (b Binder) Bind(provider ports.Provider, account common.Address) (ports.VeriSafe, error) {
	if provider == nil {
		return nil, core.ErrNotConnected
	}
	if b.Address == (common.Address{}) {
		return nil, fmt.Errorf("contract address is not configured")
	}
	v := NewVeriSafe(b.Address, provider, account)
	if b.PollInterval > 0 {
		v.poll = b.PollInterval
	}
	return v, nil
}
