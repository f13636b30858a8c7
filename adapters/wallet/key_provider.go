package wallet

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/layer-3/verisafe/core"
	"github.com/layer-3/verisafe/internal/eth"
	"go.uber.org/zap"
)

// Backend is the part of ethclient.Client the key provider forwards to.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	Close()
}

// Dialer connects to a chain RPC endpoint.
type Dialer func(ctx context.Context, url string) (Backend, error)

func dialEthclient(ctx context.Context, url string) (Backend, error) {
	c, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// KeyProvider is a wallet backed by private keys held in process, e.g. loaded from
// a keystore. It keeps the request/approve semantics of a browser wallet.
type KeyProvider struct {
	Emitter

	name     string
	keys     map[common.Address]*ecdsa.PrivateKey
	order    []common.Address
	chains   *ChainRegistry
	approver Approver
	dial     Dialer
	logger   *zap.Logger

	mu         sync.Mutex
	authorized bool
	chainID    uint64
	backend    Backend
}

// KeyOption configures a KeyProvider.
type KeyOption func(*KeyProvider)

func WithApprover(a Approver) KeyOption {
	return func(p *KeyProvider) { p.approver = a }
}

func WithDialer(d Dialer) KeyOption {
	return func(p *KeyProvider) { p.dial = d }
}

func WithLogger(l *zap.Logger) KeyOption {
	return func(p *KeyProvider) { p.logger = l }
}

// NewKeyProvider creates a wallet for keys, initially pointed at chainID.
func NewKeyProvider(name string, keys []*ecdsa.PrivateKey, chains *ChainRegistry, chainID uint64, opts ...KeyOption) (*KeyProvider, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("%s wallet has no keys", name)
	}

	p := &KeyProvider{
		name:     name,
		keys:     make(map[common.Address]*ecdsa.PrivateKey, len(keys)),
		chains:   chains,
		approver: AutoApprove{},
		dial:     dialEthclient,
		logger:   zap.NewNop(),
		chainID:  chainID,
	}
	for _, k := range keys {
		addr := crypto.PubkeyToAddress(k.PublicKey)
		if _, dup := p.keys[addr]; dup {
			continue
		}
		p.keys[addr] = k
		p.order = append(p.order, addr)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *KeyProvider) Name() string { return p.name }

func (p *KeyProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	p.mu.Lock()
	authorized := p.authorized
	p.mu.Unlock()
	if authorized {
		return p.accounts(), nil
	}

	if err := p.approver.Approve(ctx, Request{
		Method: "eth_requestAccounts",
		Detail: fmt.Sprintf("Connect %s to this application", p.order[0].Hex()),
	}); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.authorized = true
	p.mu.Unlock()
	return p.accounts(), nil
}

func (p *KeyProvider) Accounts(context.Context) ([]common.Address, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.authorized {
		return []common.Address{}, nil
	}
	return append([]common.Address(nil), p.order...), nil
}

func (p *KeyProvider) accounts() []common.Address {
	return append([]common.Address(nil), p.order...)
}

// Revoke withdraws account access, as a user would from the wallet UI.
func (p *KeyProvider) Revoke() {
	p.mu.Lock()
	p.authorized = false
	p.mu.Unlock()
	p.Emit(core.ProviderEvent{Kind: core.EventAccountsChanged, Accounts: []common.Address{}})
}

func (p *KeyProvider) ChainID(context.Context) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.chainID, nil
}

func (p *KeyProvider) SwitchChain(ctx context.Context, chainID uint64) error {
	p.mu.Lock()
	current := p.chainID
	p.mu.Unlock()
	if current == chainID {
		return nil
	}

	params, ok := p.chains.Get(chainID)
	if !ok {
		return core.NewProviderError(core.CodeUnrecognizedChain,
			fmt.Sprintf("Unrecognized chain ID %#x. Try adding the chain using wallet_addEthereumChain first.", chainID))
	}
	if err := p.approver.Approve(ctx, Request{
		Method: "wallet_switchEthereumChain",
		Detail: fmt.Sprintf("Switch to %s (%d)", params.ChainName, chainID),
	}); err != nil {
		return err
	}

	backend, err := p.dial(ctx, params.RPCURLs[0])
	if err != nil {
		return fmt.Errorf("failed to reach %s: %w", params.ChainName, err)
	}
	remote, err := backend.ChainID(ctx)
	if err != nil {
		backend.Close()
		return fmt.Errorf("failed to query chain id of %s: %w", params.ChainName, err)
	}
	if remote.Uint64() != chainID {
		backend.Close()
		return fmt.Errorf("rpc %s serves chain %d, not %d", params.RPCURLs[0], remote.Uint64(), chainID)
	}

	p.mu.Lock()
	old := p.backend
	p.backend = backend
	p.chainID = chainID
	p.mu.Unlock()
	if old != nil {
		old.Close()
	}

	p.logger.Info("Switched chain", zap.Uint64("chain_id", chainID), zap.String("name", params.ChainName))
	p.Emit(core.ProviderEvent{Kind: core.EventChainChanged, ChainID: chainID})
	return nil
}

func (p *KeyProvider) AddChain(ctx context.Context, params core.ChainParams) error {
	if err := p.approver.Approve(ctx, Request{
		Method: "wallet_addEthereumChain",
		Detail: fmt.Sprintf("Add %s (%d) via %v", params.ChainName, params.ChainID, params.RPCURLs),
	}); err != nil {
		return err
	}
	return p.chains.Add(params)
}

func (p *KeyProvider) key(account common.Address) (*ecdsa.PrivateKey, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	k, ok := p.keys[account]
	if !ok || !p.authorized {
		return nil, core.NewProviderError(core.CodeUnauthorized,
			fmt.Sprintf("account %s has not been authorized", account.Hex()))
	}
	return k, nil
}

func (p *KeyProvider) SignTypedData(ctx context.Context, account common.Address, data apitypes.TypedData) ([]byte, error) {
	k, err := p.key(account)
	if err != nil {
		return nil, err
	}

	detail, err := json.MarshalIndent(data.Message, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to render typed data: %w", err)
	}
	if err := p.approver.Approve(ctx, Request{
		Method: "eth_signTypedData_v4",
		Detail: fmt.Sprintf("%s for %s\n%s", data.PrimaryType, data.Domain.Name, detail),
	}); err != nil {
		return nil, err
	}
	return eth.SignTypedData(k, data)
}

func (p *KeyProvider) SendTransaction(ctx context.Context, req core.TxRequest) (common.Hash, error) {
	k, err := p.key(req.From)
	if err != nil {
		return common.Hash{}, err
	}
	backend, chainID, err := p.currentBackend(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	nonce, err := backend.PendingNonceAt(ctx, req.From)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}
	tip, err := backend.SuggestGasTipCap(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to suggest gas tip: %w", err)
	}
	head, err := backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get latest header: %w", err)
	}
	if head.BaseFee == nil {
		return common.Hash{}, fmt.Errorf("chain %d does not support EIP-1559 transactions", chainID)
	}
	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))

	gas := req.Gas
	if gas == 0 {
		gas, err = backend.EstimateGas(ctx, ethereum.CallMsg{From: req.From, To: req.To, Data: req.Data, Value: req.Value})
		if err != nil {
			return common.Hash{}, fmt.Errorf("failed to estimate gas: %w", err)
		}
	}
	value := req.Value
	if value == nil {
		value = new(big.Int)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   new(big.Int).SetUint64(chainID),
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        req.To,
		Value:     value,
		Data:      req.Data,
	})

	maxFee := new(big.Int).Mul(feeCap, new(big.Int).SetUint64(gas))
	to := "contract creation"
	if req.To != nil {
		to = req.To.Hex()
	}
	if err := p.approver.Approve(ctx, Request{
		Method: "eth_sendTransaction",
		Detail: fmt.Sprintf("To %s, gas %d, max fee %s ETH", to, gas, eth.FormatEther(maxFee)),
	}); err != nil {
		return common.Hash{}, err
	}

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(tx.ChainId()), k)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}
	if err := backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	p.logger.Debug("Transaction sent", zap.String("hash", signed.Hash().Hex()), zap.Uint64("nonce", nonce))
	return signed.Hash(), nil
}

func (p *KeyProvider) Call(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	backend, _, err := p.currentBackend(ctx)
	if err != nil {
		return nil, err
	}
	return backend.CallContract(ctx, msg, nil)
}

func (p *KeyProvider) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	backend, _, err := p.currentBackend(ctx)
	if err != nil {
		return 0, err
	}
	return backend.EstimateGas(ctx, msg)
}

func (p *KeyProvider) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	backend, _, err := p.currentBackend(ctx)
	if err != nil {
		return nil, err
	}
	return backend.TransactionReceipt(ctx, hash)
}

// currentBackend dials the selected chain on first use.
func (p *KeyProvider) currentBackend(ctx context.Context) (Backend, uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.backend != nil {
		return p.backend, p.chainID, nil
	}
	params, ok := p.chains.Get(p.chainID)
	if !ok {
		return nil, 0, core.NewProviderError(core.CodeChainDisconnected,
			fmt.Sprintf("no rpc configured for chain %d", p.chainID))
	}
	backend, err := p.dial(ctx, params.RPCURLs[0])
	if err != nil {
		return nil, 0, fmt.Errorf("failed to reach %s: %w", params.ChainName, err)
	}
	p.backend = backend
	return backend, p.chainID, nil
}

// Close drops the RPC connection and tells subscribers the wallet went away.
func (p *KeyProvider) Close() {
	p.mu.Lock()
	backend := p.backend
	p.backend = nil
	p.mu.Unlock()

	if backend != nil {
		backend.Close()
	}
	p.Emit(core.ProviderEvent{Kind: core.EventDisconnect, Err: core.NewProviderError(core.CodeDisconnected, "wallet closed")})
}
