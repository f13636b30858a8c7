package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/layer-3/verisafe/core"
	"go.uber.org/zap"
)

const codeMethodNotFound = -32601

// RPCProvider talks to a JSON-RPC endpoint that speaks the EIP-1193 wallet
// methods, such as a node with unlocked accounts or a wallet bridge.
type RPCProvider struct {
	Emitter

	rpc    *rpc.Client
	eth    *ethclient.Client
	url    string
	poll   time.Duration
	logger *zap.Logger

	wg       sync.WaitGroup
	mu       sync.Mutex
	stop     context.CancelFunc
	accounts []common.Address
	chainID  uint64
}

// DialRPC connects to url. Events are derived by polling every poll interval
// while at least one subscriber is registered.
func DialRPC(ctx context.Context, url string, poll time.Duration, logger *zap.Logger) (*RPCProvider, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial wallet rpc %s: %w", url, err)
	}
	return NewRPCProvider(c, url, poll, logger), nil
}

func NewRPCProvider(c *rpc.Client, url string, poll time.Duration, logger *zap.Logger) *RPCProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RPCProvider{
		rpc:    c,
		eth:    ethclient.NewClient(c),
		url:    url,
		poll:   poll,
		logger: logger,
	}
}

func (p *RPCProvider) Name() string { return "rpc" }

// providerError converts JSON-RPC error objects into core.ProviderError so callers
// can match EIP-1193 codes.
func providerError(err error) error {
	if err == nil {
		return nil
	}
	var rerr rpc.Error
	if errors.As(err, &rerr) {
		return core.NewProviderError(rerr.ErrorCode(), rerr.Error())
	}
	return err
}

func isMethodNotFound(err error) bool {
	var perr *core.ProviderError
	return errors.As(err, &perr) && perr.Code == codeMethodNotFound
}

func (p *RPCProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	err := providerError(p.rpc.CallContext(ctx, &accounts, "eth_requestAccounts"))
	if isMethodNotFound(err) {
		// Plain nodes have no consent step.
		return p.Accounts(ctx)
	}
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

func (p *RPCProvider) Accounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := p.rpc.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, providerError(err)
	}
	if accounts == nil {
		accounts = []common.Address{}
	}
	return accounts, nil
}

func (p *RPCProvider) ChainID(ctx context.Context) (uint64, error) {
	id, err := p.eth.ChainID(ctx)
	if err != nil {
		return 0, providerError(err)
	}
	return id.Uint64(), nil
}

func (p *RPCProvider) SwitchChain(ctx context.Context, chainID uint64) error {
	arg := map[string]string{"chainId": hexutil.EncodeUint64(chainID)}
	return providerError(p.rpc.CallContext(ctx, nil, "wallet_switchEthereumChain", arg))
}

type addChainArgs struct {
	ChainID           string              `json:"chainId"`
	ChainName         string              `json:"chainName"`
	NativeCurrency    core.NativeCurrency `json:"nativeCurrency"`
	RPCURLs           []string            `json:"rpcUrls"`
	BlockExplorerURLs []string            `json:"blockExplorerUrls,omitempty"`
}

func (p *RPCProvider) AddChain(ctx context.Context, params core.ChainParams) error {
	arg := addChainArgs{
		ChainID:           hexutil.EncodeUint64(params.ChainID),
		ChainName:         params.ChainName,
		NativeCurrency:    params.NativeCurrency,
		RPCURLs:           params.RPCURLs,
		BlockExplorerURLs: params.BlockExplorerURLs,
	}
	return providerError(p.rpc.CallContext(ctx, nil, "wallet_addEthereumChain", arg))
}

func (p *RPCProvider) SignTypedData(ctx context.Context, account common.Address, data apitypes.TypedData) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode typed data: %w", err)
	}
	var sig hexutil.Bytes
	if err := p.rpc.CallContext(ctx, &sig, "eth_signTypedData_v4", account, string(payload)); err != nil {
		return nil, providerError(err)
	}
	return sig, nil
}

type sendTxArgs struct {
	From  common.Address  `json:"from"`
	To    *common.Address `json:"to,omitempty"`
	Data  hexutil.Bytes   `json:"data,omitempty"`
	Gas   *hexutil.Uint64 `json:"gas,omitempty"`
	Value *hexutil.Big    `json:"value,omitempty"`
}

func (p *RPCProvider) SendTransaction(ctx context.Context, tx core.TxRequest) (common.Hash, error) {
	args := sendTxArgs{From: tx.From, To: tx.To, Data: tx.Data}
	if tx.Gas != 0 {
		gas := hexutil.Uint64(tx.Gas)
		args.Gas = &gas
	}
	if tx.Value != nil {
		args.Value = (*hexutil.Big)(tx.Value)
	}

	var hash common.Hash
	if err := p.rpc.CallContext(ctx, &hash, "eth_sendTransaction", args); err != nil {
		return common.Hash{}, providerError(err)
	}
	return hash, nil
}

func (p *RPCProvider) Call(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	out, err := p.eth.CallContract(ctx, msg, nil)
	return out, providerError(err)
}

func (p *RPCProvider) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	gas, err := p.eth.EstimateGas(ctx, msg)
	return gas, providerError(err)
}

func (p *RPCProvider) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return p.eth.TransactionReceipt(ctx, hash)
}

// Subscribe starts the poller with the first subscriber and stops it with the last.
func (p *RPCProvider) Subscribe(fn func(core.ProviderEvent)) func() {
	unsubscribe := p.Emitter.Subscribe(fn)

	p.mu.Lock()
	if p.stop == nil && p.poll > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		p.stop = cancel
		p.wg.Add(1)
		go p.watch(ctx)
	}
	p.mu.Unlock()

	return func() {
		unsubscribe()
		if p.Subscribers() == 0 {
			p.stopWatch()
		}
	}
}

// stopWatch does not wait for the poller, since it may run on the poller
// goroutine when a listener unsubscribes from inside an event.
func (p *RPCProvider) stopWatch() {
	p.mu.Lock()
	stop := p.stop
	p.stop = nil
	p.mu.Unlock()

	if stop != nil {
		stop()
	}
}

func (p *RPCProvider) watch(ctx context.Context) {
	defer p.wg.Done()

	// Baseline so the first tick does not report the current state as a change.
	p.snapshot(ctx)

	ticker := time.NewTicker(p.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.check(ctx)
		}
	}
}

func (p *RPCProvider) snapshot(ctx context.Context) {
	accounts, _ := p.Accounts(ctx)
	chainID, _ := p.ChainID(ctx)

	p.mu.Lock()
	p.accounts = accounts
	p.chainID = chainID
	p.mu.Unlock()
}

func (p *RPCProvider) check(ctx context.Context) {
	accounts, err := p.Accounts(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Debug("Wallet poll failed", zap.String("url", p.url), zap.Error(err))
		}
		return
	}
	chainID, err := p.ChainID(ctx)
	if err != nil {
		return
	}

	p.mu.Lock()
	accountsChanged := !slices.Equal(accounts, p.accounts)
	chainChanged := p.chainID != 0 && chainID != p.chainID
	p.accounts = accounts
	p.chainID = chainID
	p.mu.Unlock()

	if chainChanged {
		p.Emit(core.ProviderEvent{Kind: core.EventChainChanged, ChainID: chainID})
	}
	if accountsChanged {
		p.Emit(core.ProviderEvent{Kind: core.EventAccountsChanged, Accounts: accounts})
	}
}

// Close stops polling and closes the connection.
func (p *RPCProvider) Close() {
	p.stopWatch()
	p.wg.Wait()
	p.rpc.Close()
}

