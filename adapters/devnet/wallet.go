package devnet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/layer-3/verisafe/adapters/wallet"
	"github.com/layer-3/verisafe/core"
	"github.com/layer-3/verisafe/internal/eth"
)

const (
	verifyAgeGas = 145_000
	gasPrice     = 1_500_000_000
)

// Options shape how the devnet wallet and chain behave.
type Options struct {
	// ChainID is the chain the wallet starts on. Zero means Sepolia.
	ChainID uint64
	// UnknownChain makes the wallet start without Sepolia in its chain list.
	UnknownChain bool

	RejectAccounts    bool
	RejectSwitch      bool
	RejectSignature   bool
	RejectTransaction bool

	// StaleReads makes getLastVerificationResult return the value from before
	// the latest transaction.
	StaleReads bool
	// EstimateError fails gas estimation with this error.
	EstimateError error
	// Revert mines verifyAge with a failed status.
	Revert bool
	// PendingPolls is how many receipt polls report the transaction as pending.
	PendingPolls int
}

// Wallet is a wallet provider connected to an in-memory chain hosting VeriSafe.
type Wallet struct {
	wallet.Emitter

	key      *ecdsa.PrivateKey
	address  common.Address
	contract *contract
	requests atomic.Int64

	mu         sync.Mutex
	opts       Options
	authorized bool
	chainID    uint64
	known      map[uint64]bool
	nonce      uint64
	block      uint64
	receipts   map[common.Hash]*types.Receipt
	polls      map[common.Hash]int
}

// NewWallet creates a wallet for key. A nil key generates one.
func NewWallet(cop *Coprocessor, contractAddress common.Address, key *ecdsa.PrivateKey, opts Options) (*Wallet, error) {
	if key == nil {
		var err error
		if key, err = crypto.GenerateKey(); err != nil {
			return nil, fmt.Errorf("failed to generate devnet key: %w", err)
		}
	}

	chainID := opts.ChainID
	if chainID == 0 {
		chainID = core.SepoliaChainID
	}
	known := map[uint64]bool{chainID: true}
	if !opts.UnknownChain {
		known[core.SepoliaChainID] = true
	}

	return &Wallet{
		key:      key,
		address:  crypto.PubkeyToAddress(key.PublicKey),
		contract: &contract{address: contractAddress, cop: cop},
		opts:     opts,
		chainID:  chainID,
		known:    known,
		receipts: make(map[common.Hash]*types.Receipt),
		polls:    make(map[common.Hash]int),
	}, nil
}

func (w *Wallet) Name() string { return "devnet" }

// Address is the wallet's only account.
func (w *Wallet) Address() common.Address { return w.address }

// Requests counts every provider call made so far.
func (w *Wallet) Requests() int64 { return w.requests.Load() }

// Configure replaces the behaviour switches.
func (w *Wallet) Configure(opts Options) {
	w.mu.Lock()
	w.opts = opts
	w.mu.Unlock()
}

func (w *Wallet) options() Options {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.opts
}

func rejected() error {
	return core.NewProviderError(core.CodeUserRejected, "User rejected the request.")
}

func (w *Wallet) RequestAccounts(context.Context) ([]common.Address, error) {
	w.requests.Add(1)
	if w.options().RejectAccounts {
		return nil, rejected()
	}
	w.mu.Lock()
	w.authorized = true
	w.mu.Unlock()
	return []common.Address{w.address}, nil
}

func (w *Wallet) Accounts(context.Context) ([]common.Address, error) {
	w.requests.Add(1)
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.authorized {
		return []common.Address{}, nil
	}
	return []common.Address{w.address}, nil
}

func (w *Wallet) ChainID(context.Context) (uint64, error) {
	w.requests.Add(1)
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.chainID, nil
}

func (w *Wallet) SwitchChain(_ context.Context, chainID uint64) error {
	w.requests.Add(1)
	w.mu.Lock()
	if w.opts.RejectSwitch {
		w.mu.Unlock()
		return rejected()
	}
	if !w.known[chainID] {
		w.mu.Unlock()
		return core.NewProviderError(core.CodeUnrecognizedChain, fmt.Sprintf("Unrecognized chain ID %#x.", chainID))
	}
	changed := w.chainID != chainID
	w.chainID = chainID
	w.mu.Unlock()

	if changed {
		w.Emit(core.ProviderEvent{Kind: core.EventChainChanged, ChainID: chainID})
	}
	return nil
}

func (w *Wallet) AddChain(_ context.Context, params core.ChainParams) error {
	w.requests.Add(1)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.opts.RejectSwitch {
		return rejected()
	}
	w.known[params.ChainID] = true
	return nil
}

func (w *Wallet) requireAccount(account common.Address) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.authorized || account != w.address {
		return core.NewProviderError(core.CodeUnauthorized, fmt.Sprintf("account %s is not authorized", account.Hex()))
	}
	return nil
}

func (w *Wallet) SignTypedData(_ context.Context, account common.Address, data apitypes.TypedData) ([]byte, error) {
	w.requests.Add(1)
	if err := w.requireAccount(account); err != nil {
		return nil, err
	}
	if w.options().RejectSignature {
		return nil, rejected()
	}
	return eth.SignTypedData(w.key, data)
}

func (w *Wallet) onContract(to *common.Address) error {
	if to == nil || *to != w.contract.address {
		return fmt.Errorf("no contract deployed at %v", to)
	}
	return nil
}

func (w *Wallet) SendTransaction(_ context.Context, req core.TxRequest) (common.Hash, error) {
	w.requests.Add(1)
	if err := w.requireAccount(req.From); err != nil {
		return common.Hash{}, err
	}
	if err := w.onContract(req.To); err != nil {
		return common.Hash{}, err
	}
	if len(req.Data) < 4 {
		return common.Hash{}, fmt.Errorf("calldata too short")
	}
	args, err := decodeVerifyArgs(req.Data)
	if err != nil {
		return common.Hash{}, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.opts.RejectTransaction {
		return common.Hash{}, rejected()
	}

	tx, err := types.SignNewTx(w.key, types.LatestSignerForChainID(new(big.Int).SetUint64(w.chainID)), &types.DynamicFeeTx{
		ChainID:   new(big.Int).SetUint64(w.chainID),
		Nonce:     w.nonce,
		GasTipCap: big.NewInt(gasPrice),
		GasFeeCap: big.NewInt(gasPrice),
		Gas:       req.Gas,
		To:        req.To,
		Value:     new(big.Int),
		Data:      req.Data,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}
	w.nonce++
	w.block++

	status := types.ReceiptStatusSuccessful
	if w.opts.Revert {
		status = types.ReceiptStatusFailed
	} else if _, err := w.contract.execute(req.From, args); err != nil {
		status = types.ReceiptStatusFailed
	}

	w.receipts[tx.Hash()] = &types.Receipt{
		Type:              types.DynamicFeeTxType,
		Status:            status,
		TxHash:            tx.Hash(),
		GasUsed:           verifyAgeGas,
		EffectiveGasPrice: big.NewInt(gasPrice),
		BlockNumber:       new(big.Int).SetUint64(w.block),
	}
	return tx.Hash(), nil
}

func (w *Wallet) Call(_ context.Context, msg ethereum.CallMsg) ([]byte, error) {
	w.requests.Add(1)
	if err := w.onContract(msg.To); err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.contract.call(msg.From, msg.Data, w.opts.StaleReads)
}

func (w *Wallet) EstimateGas(_ context.Context, msg ethereum.CallMsg) (uint64, error) {
	w.requests.Add(1)
	if err := w.onContract(msg.To); err != nil {
		return 0, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.opts.EstimateError != nil {
		return 0, w.opts.EstimateError
	}
	if _, err := w.contract.call(msg.From, msg.Data, false); err != nil {
		return 0, err
	}
	return verifyAgeGas, nil
}

func (w *Wallet) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	w.requests.Add(1)
	w.mu.Lock()
	defer w.mu.Unlock()

	r, ok := w.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	if w.polls[hash] < w.opts.PendingPolls {
		w.polls[hash]++
		return nil, ethereum.NotFound
	}
	return r, nil
}

// RevokeAccounts simulates the user disconnecting the site in the wallet.
func (w *Wallet) RevokeAccounts() {
	w.mu.Lock()
	w.authorized = false
	w.mu.Unlock()
	w.Emit(core.ProviderEvent{Kind: core.EventAccountsChanged, Accounts: []common.Address{}})
}

// ForgetAccounts revokes access without an accountsChanged event, like a wallet
// whose event never reaches the page.
func (w *Wallet) ForgetAccounts() {
	w.mu.Lock()
	w.authorized = false
	w.mu.Unlock()
}

// ChangeChain simulates the user switching networks in the wallet.
func (w *Wallet) ChangeChain(chainID uint64) {
	w.mu.Lock()
	w.chainID = chainID
	w.known[chainID] = true
	w.mu.Unlock()
	w.Emit(core.ProviderEvent{Kind: core.EventChainChanged, ChainID: chainID})
}

// Disconnect simulates the wallet losing its connection.
func (w *Wallet) Disconnect() {
	w.Emit(core.ProviderEvent{Kind: core.EventDisconnect, Err: core.NewProviderError(core.CodeDisconnected, "devnet disconnected")})
}
