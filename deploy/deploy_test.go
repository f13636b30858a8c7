package deploy

import (
	"context"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelect(t *testing.T) {
	other := Task{ID: "deploy_other", Tags: []string{"Other"}}
	tasks := []Task{VeriSafe, other}

	assert.Len(t, Select(tasks, nil), 2)
	assert.Equal(t, []Task{other}, Select(tasks, []string{"Other"}))

	selected := Select(tasks, []string{"VeriSafe"})
	require.Len(t, selected, 1)
	assert.Equal(t, "deploy_verisafe", selected[0].ID)
	assert.Empty(t, Select(tasks, []string{"Missing"}))
}

func TestRun_NoMatchingTask(t *testing.T) {
	_, err := Run(context.Background(), &Env{}, Tasks, []string{"Missing"})
	assert.ErrorIs(t, err, ErrNoTasks)
}

func TestRun_MissingArtifact(t *testing.T) {
	_, err := Run(context.Background(), &Env{Artifacts: t.TempDir()}, Tasks, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deploy_verisafe")
	assert.Contains(t, err.Error(), "no VeriSafe artifact")
}

func TestRun_DeploysVeriSafe(t *testing.T) {
	dir := t.TempDir()
	artifactDir := filepath.Join(dir, "contracts", "VeriSafe.sol")
	require.NoError(t, os.MkdirAll(artifactDir, 0o755))
	// Runtime code returns 42 for any call.
	artifact := `{"contractName":"VeriSafe","abi":[],"bytecode":"0x600a600c600039600a6000f3602a60005260206000f3"}`
	require.NoError(t, os.WriteFile(filepath.Join(artifactDir, "VeriSafe.json"), []byte(artifact), 0o644))

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	deployer := crypto.PubkeyToAddress(key.PublicKey)

	sim := simulated.NewBackend(types.GenesisAlloc{
		deployer: {Balance: new(big.Int).Mul(big.NewInt(1e18), big.NewInt(10))},
	})
	t.Cleanup(func() { _ = sim.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				sim.Commit()
			}
		}
	}()
	results, err := Run(ctx, &Env{
		Backend:   sim.Client(),
		Key:       key,
		ChainID:   big.NewInt(1337),
		Artifacts: dir,
	}, Tasks, []string{"VeriSafe"})
	close(done)
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, "deploy_verisafe", results[0].Task)
	assert.Equal(t, "VeriSafe", results[0].Name)
	assert.Equal(t, crypto.CreateAddress(deployer, 0), results[0].Address)
	assert.NotEqual(t, common.Hash{}, results[0].TxHash)

	code, err := sim.Client().CodeAt(ctx, results[0].Address, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, code)
}
