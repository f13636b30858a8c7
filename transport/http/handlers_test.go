package http

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/layer-3/verisafe/adapters/chain"
	"github.com/layer-3/verisafe/adapters/devnet"
	"github.com/layer-3/verisafe/adapters/relayer"
	"github.com/layer-3/verisafe/adapters/store"
	"github.com/layer-3/verisafe/adapters/tokenizer"
	"github.com/layer-3/verisafe/adapters/wallet"
	"github.com/layer-3/verisafe/core"
	"github.com/layer-3/verisafe/ports"
	"github.com/layer-3/verisafe/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	net    *devnet.Network
	store  *store.MemoryStore
	ctrl   *service.Controller
	router *gin.Engine
}

type serverConfig struct {
	devnet    devnet.Options
	detectors []wallet.Detector
	binder    ports.ContractBinder
}

type serverOption func(*serverConfig)

func withDevnet(opts devnet.Options) serverOption {
	return func(c *serverConfig) { c.devnet = opts }
}

func withDetectors(d ...wallet.Detector) serverOption {
	return func(c *serverConfig) { c.detectors = d }
}

// withoutSimulation binds a contract whose eth_call simulation always fails.
func withoutSimulation() serverOption {
	return func(c *serverConfig) { c.binder = noSimulationBinder{} }
}

type noSimulationBinder struct{}

func (noSimulationBinder) Bind(p ports.Provider, from common.Address) (ports.VeriSafe, error) {
	v, err := chain.Binder{Address: chain.DefaultAddress, PollInterval: time.Millisecond}.Bind(p, from)
	if err != nil {
		return nil, err
	}
	return noSimulation{v}, nil
}

type noSimulation struct {
	ports.VeriSafe
}

func (noSimulation) SimulateVerifyAge(context.Context, core.Handle, []byte) (core.Handle, error) {
	return core.ZeroHandle, errors.New("eth_call not supported")
}

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()

	cfg := serverConfig{
		binder: chain.Binder{Address: chain.DefaultAddress, PollInterval: time.Millisecond},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	net, err := devnet.New(nil, cfg.devnet)
	require.NoError(t, err)
	detectors := cfg.detectors
	if len(detectors) == 0 {
		detectors = []wallet.Detector{wallet.Static("devnet", net.Wallet)}
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	st := store.NewMemoryStore()
	network := relayer.SepoliaConfig()
	ctrl := service.NewController(
		service.Config{
			Chain:         core.SepoliaChain(relayer.SepoliaNetworkURL),
			Network:       network,
			WatchInterval: time.Hour,
		},
		st,
		wallet.NewRegistry(nil, detectors...),
		cfg.binder,
		service.NewSDKManager(net.SDK, network, time.Second, nil),
		service.WithSleep(func(context.Context, time.Duration) error { return nil }),
	)
	t.Cleanup(ctrl.Close)

	sessions := service.NewSessionService(tokenizer.NewJWTTokenizer(key), st, time.Hour)
	return &testServer{
		net:    net,
		store:  st,
		ctrl:   ctrl,
		router: SetupRouter(ctrl, sessions, nil),
	}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func (s *testServer) connect(t *testing.T) string {
	t.Helper()
	w, body := s.do(t, http.MethodPost, "/wallet/connect", "", nil)
	require.Equal(t, http.StatusOK, w.Code, body)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w, body := s.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestConnectVerifyDisconnect(t *testing.T) {
	s := newTestServer(t)
	token := s.connect(t)

	w, body := s.do(t, http.MethodGet, "/api/session", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, s.net.Wallet.Address().Hex(), body["address"])
	state := body["state"].(map[string]any)
	assert.Equal(t, true, state["connected"])
	assert.Equal(t, true, state["sdk_ready"])

	w, body = s.do(t, http.MethodPost, "/api/verify", token, map[string]any{"age": "25"})
	require.Equal(t, http.StatusOK, w.Code, body)
	assert.Equal(t, true, body["qualified"])
	assert.Equal(t, "Qualified (Age 18+)", body["result"])
	assert.NotEmpty(t, body["tx_hash"])

	w, body = s.do(t, http.MethodPost, "/api/verify", token, map[string]any{"age": 10})
	require.Equal(t, http.StatusOK, w.Code, body)
	assert.Equal(t, false, body["qualified"])
	assert.Equal(t, "Not Qualified (Under 18)", body["result"])

	w, _ = s.do(t, http.MethodPost, "/wallet/disconnect", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, s.ctrl.Snapshot().Connected)
	assert.True(t, s.ctrl.Snapshot().Disconnected)

	w, body = s.do(t, http.MethodGet, "/api/session", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Session has been revoked", body["error"])
}

func TestVerify_InvalidAge(t *testing.T) {
	s := newTestServer(t)
	token := s.connect(t)
	requests := s.net.Wallet.Requests()

	for _, age := range []any{"abc", 12.5, 0, 151, ""} {
		w, body := s.do(t, http.MethodPost, "/api/verify", token, map[string]any{"age": age})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code, age)
		assert.Equal(t, "shake", body["cue"], age)
	}
	assert.Equal(t, requests, s.net.Wallet.Requests())
}

func TestVerify_RequiresSession(t *testing.T) {
	s := newTestServer(t)

	w, body := s.do(t, http.MethodPost, "/api/verify", "", map[string]any{"age": "25"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid authorization header", body["error"])

	w, body = s.do(t, http.MethodPost, "/api/verify", "garbage", map[string]any{"age": "25"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid session token", body["error"])
}

func TestVerify_WalletGone(t *testing.T) {
	s := newTestServer(t)
	token := s.connect(t)
	s.net.Wallet.RevokeAccounts()

	w, body := s.do(t, http.MethodPost, "/api/verify", token, map[string]any{"age": "25"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Wallet is not connected", body["error"])
}

func TestVerify_SessionForOtherAccount(t *testing.T) {
	s := newTestServer(t)
	token := s.connect(t)
	requests := s.net.Wallet.Requests()

	other := common.HexToAddress("0x2c7536E3605D9C16a7a3D7b1898e529396a65c23")
	s.net.Wallet.Emit(core.ProviderEvent{Kind: core.EventAccountsChanged, Accounts: []common.Address{other}})
	require.Equal(t, other, s.ctrl.Snapshot().Account)

	w, body := s.do(t, http.MethodPost, "/api/verify", token, map[string]any{"age": "25"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Session belongs to a different account", body["error"])
	assert.Equal(t, requests, s.net.Wallet.Requests())
}

func TestVerify_GasEstimationFailure(t *testing.T) {
	s := newTestServer(t)
	token := s.connect(t)
	s.net.Wallet.Configure(devnet.Options{EstimateError: errors.New("execution reverted")})

	w, body := s.do(t, http.MethodPost, "/api/verify", token, map[string]any{"age": "25"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "Gas estimation failed: execution reverted. This usually means the contract call will fail.", body["error"])
	assert.Equal(t, string(core.StageFailed), body["stage"])
	assert.Nil(t, body["tx_hash"])
}

func TestVerify_Reverted(t *testing.T) {
	s := newTestServer(t)
	token := s.connect(t)
	s.net.Wallet.Configure(devnet.Options{Revert: true})

	w, body := s.do(t, http.MethodPost, "/api/verify", token, map[string]any{"age": "25"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, body["error"], "Verification failed: ")
}

func TestVerify_SignatureRejectedIsCancelled(t *testing.T) {
	s := newTestServer(t)
	token := s.connect(t)
	s.net.Wallet.Configure(devnet.Options{RejectSignature: true})

	w, body := s.do(t, http.MethodPost, "/api/verify", token, map[string]any{"age": "25"})
	require.Equal(t, http.StatusOK, w.Code, body)
	assert.Equal(t, true, body["cancelled"])
	assert.NotEmpty(t, body["attempt_id"])
	assert.Empty(t, s.ctrl.Snapshot().Error)
}

func TestVerify_DecryptionFailureCarriesTxHash(t *testing.T) {
	s := newTestServer(t, withDevnet(devnet.Options{StaleReads: true}), withoutSimulation())
	token := s.connect(t)

	w, body := s.do(t, http.MethodPost, "/api/verify", token, map[string]any{"age": "25"})
	assert.Equal(t, http.StatusBadGateway, w.Code, body)
	assert.Contains(t, body["error"], "Transaction succeeded but failed to decrypt result")
	txHash, _ := body["tx_hash"].(string)
	assert.NotEqual(t, common.Hash{}.Hex(), txHash)
}

func TestConnect_Rejected(t *testing.T) {
	s := newTestServer(t)
	s.net.Wallet.Configure(devnet.Options{RejectAccounts: true})

	w, body := s.do(t, http.MethodPost, "/wallet/connect", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["cancelled"])
	assert.Nil(t, body["token"])
}

func TestConnect_NoWallet(t *testing.T) {
	s := newTestServer(t, withDetectors(wallet.Detector{
		Name:   "none",
		Detect: func(context.Context) (ports.Provider, error) { return nil, nil },
	}))

	w, body := s.do(t, http.MethodPost, "/wallet/connect", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, service.InstallWalletNotice, body["error"])
}

func TestView(t *testing.T) {
	s := newTestServer(t)

	w, body := s.do(t, http.MethodGet, "/view", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "home", body["view"])

	w, _ = s.do(t, http.MethodPut, "/view", "", map[string]any{"view": "main"})
	require.Equal(t, http.StatusOK, w.Code)
	stored, ok, err := s.store.Get(context.Background(), core.ViewKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "main", stored)

	w, _ = s.do(t, http.MethodPut, "/view", "", map[string]any{"view": "intro"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodPost, "/view/reset", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token := s.connect(t)
	w, body = s.do(t, http.MethodPost, "/view/reset", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "home", body["view"])
	assert.True(t, s.ctrl.Snapshot().Connected)
}
