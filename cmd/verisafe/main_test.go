package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/verisafe/adapters/wallet"
	"github.com/layer-3/verisafe/core"
	"github.com/layer-3/verisafe/deploy"
	"github.com/layer-3/verisafe/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func devnetApp(t *testing.T) *app {
	t.Helper()
	t.Setenv("VERISAFE_STATE_FILE", filepath.Join(t.TempDir(), "state.db"))

	c, err := config.Load()
	require.NoError(t, err)

	a, err := newApp(context.Background(), c, zap.NewNop(), true, appOptions{})
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func TestVerify_Devnet(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tests := []struct {
		age  string
		want string
	}{
		{"25", "Verification Result: Qualified (Age 18+)"},
		{"17", "Verification Result: Not Qualified (Under 18)"},
	}
	for _, tt := range tests {
		t.Run(tt.age, func(t *testing.T) {
			a := devnetApp(t)
			var out bytes.Buffer
			require.NoError(t, verify(ctx, a, &out, tt.age, true))

			assert.Contains(t, out.String(), "Connected: "+a.devnet.Wallet.Address().Hex())
			assert.Contains(t, out.String(), tt.want)
			assert.Contains(t, out.String(), "Transaction: 0x")
			// Devnet transactions have no explorer.
			assert.NotContains(t, out.String(), "Explorer:")
			assert.False(t, a.ctrl.Snapshot().Connected)
		})
	}
}

func TestVerify_InvalidAge(t *testing.T) {
	a := devnetApp(t)
	var out bytes.Buffer
	err := verify(context.Background(), a, &out, "abc", false)
	assert.ErrorIs(t, err, core.ErrInvalidAge)
	assert.Empty(t, out.String())
	assert.False(t, a.ctrl.Snapshot().Connected)
}

func TestExplorerTxURL(t *testing.T) {
	a := &app{chain: core.SepoliaChain("http://localhost")}
	tx := core.ZeroHandle.Hash()
	assert.Equal(t, "https://sepolia.etherscan.io/tx/"+tx.Hex(), a.explorerTxURL(tx))
}

func TestRenderQR(t *testing.T) {
	got := renderQR([][]bool{{true, false}, {false, true}})
	assert.Equal(t, "██  \n  ██\n", got)
}

func TestDeploy_Simulated(t *testing.T) {
	dir := t.TempDir()
	artifact := `{"contractName":"VeriSafe","abi":[],"bytecode":"0x600a600c600039600a6000f3602a60005260206000f3"}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "VeriSafe.json"), []byte(artifact), 0o644))

	env := &deploy.Env{Artifacts: dir, Logger: zap.NewNop()}
	closeBackend, err := simulatedEnv(env)
	require.NoError(t, err)
	defer closeBackend()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var out bytes.Buffer
	require.NoError(t, runDeploy(ctx, env, &out, nil))
	assert.Contains(t, out.String(), "VeriSafe deployed at 0x")
}

func TestDeployerKey_Missing(t *testing.T) {
	_, err := deployerKey(&config.Config{})
	assert.EqualError(t, err, "deploy needs VERISAFE_PRIVATE_KEY or VERISAFE_KEYSTORE")
}

func TestDetectors_KeyWalletsBeforeRPC(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	// Nothing listens on port 1, so the RPC wallet can never be dialed.
	t.Setenv("VERISAFE_WALLET_RPC", "ws://127.0.0.1:1")
	t.Setenv("VERISAFE_PRIVATE_KEY", hex.EncodeToString(crypto.FromECDSA(key)))

	c, err := config.Load()
	require.NoError(t, err)
	a := &app{cfg: c, logger: zap.NewNop(), chain: core.SepoliaChain(c.RPCURL)}
	t.Cleanup(a.Close)

	detectors, err := a.detectors(appOptions{interactive: true})
	require.NoError(t, err)
	names := make([]string, 0, len(detectors))
	for _, d := range detectors {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"private-key", "rpc"}, names)

	p, err := wallet.NewRegistry(nil, detectors...).Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "private-key", p.Name())

	// An unreachable RPC wallet listed first is skipped.
	reversed := []wallet.Detector{detectors[1], detectors[0]}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p, err = wallet.NewRegistry(nil, reversed...).Discover(ctx)
	require.NoError(t, err)
	assert.Equal(t, "private-key", p.Name())
}
