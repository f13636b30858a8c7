package wallet

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/layer-3/verisafe/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type codedError struct {
	code int
	msg  string
}

func (e *codedError) Error() string  { return e.msg }
func (e *codedError) ErrorCode() int { return e.code }

type fakeWallet struct {
	mu       sync.Mutex
	accounts []common.Address
	chainID  uint64
	reject   bool
	lastTx   sendTxArgs
}

type ethAPI struct{ w *fakeWallet }

func (api *ethAPI) RequestAccounts() ([]common.Address, error) {
	api.w.mu.Lock()
	defer api.w.mu.Unlock()
	if api.w.reject {
		return nil, &codedError{code: core.CodeUserRejected, msg: "User rejected the request."}
	}
	return api.w.accounts, nil
}

func (api *ethAPI) Accounts() []common.Address {
	api.w.mu.Lock()
	defer api.w.mu.Unlock()
	return api.w.accounts
}

func (api *ethAPI) ChainId() *hexutil.Big {
	api.w.mu.Lock()
	defer api.w.mu.Unlock()
	return (*hexutil.Big)(new(big.Int).SetUint64(api.w.chainID))
}

func (api *ethAPI) SendTransaction(args sendTxArgs) common.Hash {
	api.w.mu.Lock()
	defer api.w.mu.Unlock()
	api.w.lastTx = args
	return common.HexToHash("0xabc")
}

type walletAPI struct{ w *fakeWallet }

func (api *walletAPI) SwitchEthereumChain(arg map[string]string) error {
	if arg["chainId"] != hexutil.EncodeUint64(core.SepoliaChainID) {
		return &codedError{code: core.CodeUnrecognizedChain, msg: "Unrecognized chain ID"}
	}
	api.w.mu.Lock()
	api.w.chainID = core.SepoliaChainID
	api.w.mu.Unlock()
	return nil
}

func newTestRPCProvider(t *testing.T, w *fakeWallet, withRequest bool, poll time.Duration) *RPCProvider {
	t.Helper()
	server := rpc.NewServer()
	if withRequest {
		require.NoError(t, server.RegisterName("eth", &ethAPI{w: w}))
	} else {
		require.NoError(t, server.RegisterName("eth", &plainEthAPI{w: w}))
	}
	require.NoError(t, server.RegisterName("wallet", &walletAPI{w: w}))
	t.Cleanup(server.Stop)

	p := NewRPCProvider(rpc.DialInProc(server), "inproc", poll, nil)
	t.Cleanup(p.Close)
	return p
}

// plainEthAPI is a node without eth_requestAccounts.
type plainEthAPI struct{ w *fakeWallet }

func (api *plainEthAPI) Accounts() []common.Address { return (&ethAPI{w: api.w}).Accounts() }
func (api *plainEthAPI) ChainId() *hexutil.Big      { return (&ethAPI{w: api.w}).ChainId() }

func TestRPCProvider_RequestAccounts(t *testing.T) {
	ctx := context.Background()
	alice := common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	w := &fakeWallet{accounts: []common.Address{alice}, chainID: 1}

	p := newTestRPCProvider(t, w, true, 0)
	accounts, err := p.RequestAccounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{alice}, accounts)

	w.mu.Lock()
	w.reject = true
	w.mu.Unlock()
	_, err = p.RequestAccounts(ctx)
	require.Error(t, err)
	assert.True(t, core.IsUserRejection(err))
}

func TestRPCProvider_RequestAccountsFallsBack(t *testing.T) {
	alice := common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	w := &fakeWallet{accounts: []common.Address{alice}, chainID: 1}

	p := newTestRPCProvider(t, w, false, 0)
	accounts, err := p.RequestAccounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []common.Address{alice}, accounts)
}

func TestRPCProvider_SwitchChain(t *testing.T) {
	ctx := context.Background()
	w := &fakeWallet{chainID: 1}
	p := newTestRPCProvider(t, w, true, 0)

	err := p.SwitchChain(ctx, 31337)
	require.Error(t, err)
	assert.True(t, core.IsUnrecognizedChain(err))

	require.NoError(t, p.SwitchChain(ctx, core.SepoliaChainID))
	id, err := p.ChainID(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.SepoliaChainID, id)
}

func TestRPCProvider_SendTransaction(t *testing.T) {
	w := &fakeWallet{chainID: 1}
	p := newTestRPCProvider(t, w, true, 0)

	from := common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	to := common.HexToAddress("0xc26042fd8F8fbE521814fE98C27B66003FD0553f")
	hash, err := p.SendTransaction(context.Background(), core.TxRequest{From: from, To: &to, Data: []byte{1, 2}, Gas: 21_000})
	require.NoError(t, err)
	assert.Equal(t, common.HexToHash("0xabc"), hash)

	w.mu.Lock()
	defer w.mu.Unlock()
	assert.Equal(t, from, w.lastTx.From)
	assert.Equal(t, to, *w.lastTx.To)
	assert.Equal(t, hexutil.Bytes{1, 2}, w.lastTx.Data)
	require.NotNil(t, w.lastTx.Gas)
	assert.Equal(t, hexutil.Uint64(21_000), *w.lastTx.Gas)
}

func TestRPCProvider_PollEmitsChanges(t *testing.T) {
	alice := common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	w := &fakeWallet{accounts: []common.Address{alice}, chainID: 1}
	p := newTestRPCProvider(t, w, true, 10*time.Millisecond)

	events := make(chan core.ProviderEvent, 8)
	unsubscribe := p.Subscribe(func(ev core.ProviderEvent) { events <- ev })
	defer unsubscribe()

	// Let the poller take its baseline before changing anything.
	time.Sleep(50 * time.Millisecond)
	w.mu.Lock()
	w.chainID = 5
	w.accounts = nil
	w.mu.Unlock()

	var kinds []core.EventKind
	timeout := time.After(2 * time.Second)
	for len(kinds) < 2 {
		select {
		case ev := <-events:
			kinds = append(kinds, ev.Kind)
		case <-timeout:
			t.Fatalf("got events %v, want chainChanged and accountsChanged", kinds)
		}
	}
	assert.ElementsMatch(t, []core.EventKind{core.EventChainChanged, core.EventAccountsChanged}, kinds)
}
