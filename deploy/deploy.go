// Package deploy holds the named contract deployment tasks.
package deploy

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/verisafe/adapters/chain"
	"go.uber.org/zap"
)

// Env is what a task deploys with.
type Env struct {
	Backend chain.DeployBackend
	Key     *ecdsa.PrivateKey
	ChainID *big.Int
	// Artifacts is the hardhat artifacts directory.
	Artifacts string
	Logger    *zap.Logger
}

// Result records one deployed contract.
type Result struct {
	Task    string
	Name    string
	Address common.Address
	TxHash  common.Hash
}

// Task is a named deployment step selectable by tag.
type Task struct {
	ID   string
	Tags []string
	Run  func(ctx context.Context, env *Env) (*Result, error)
}

var VeriSafe = Task{
	ID:   "deploy_verisafe",
	Tags: []string{"VeriSafe"},
	Run:  deployContract("VeriSafe"),
}

// Tasks lists every task in execution order.
var Tasks = []Task{VeriSafe}

// Select returns the tasks carrying at least one of tags, or all tasks when
// tags is empty.
func Select(tasks []Task, tags []string) []Task {
	if len(tags) == 0 {
		return tasks
	}
	var out []Task
	for _, t := range tasks {
		if t.hasTag(tags) {
			out = append(out, t)
		}
	}
	return out
}

func (t Task) hasTag(tags []string) bool {
	for _, want := range tags {
		for _, have := range t.Tags {
			if want == have {
				return true
			}
		}
	}
	return false
}

var ErrNoTasks = errors.New("no deployment task matches the given tags")

// Run executes the tasks selected by tags in order and stops at the first failure.
func Run(ctx context.Context, env *Env, tasks []Task, tags []string) ([]Result, error) {
	if env.Logger == nil {
		env.Logger = zap.NewNop()
	}
	selected := Select(tasks, tags)
	if len(selected) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrNoTasks, tags)
	}

	results := make([]Result, 0, len(selected))
	for _, t := range selected {
		logger := env.Logger.With(zap.String("task", t.ID))
		logger.Info("Running deployment task")

		res, err := t.Run(ctx, env)
		if err != nil {
			return results, fmt.Errorf("task %s: %w", t.ID, err)
		}
		res.Task = t.ID
		results = append(results, *res)
	}
	return results, nil
}

func deployContract(name string) func(ctx context.Context, env *Env) (*Result, error) {
	return func(ctx context.Context, env *Env) (*Result, error) {
		path, err := artifactPath(env.Artifacts, name)
		if err != nil {
			return nil, err
		}
		artifact, err := chain.LoadArtifact(path)
		if err != nil {
			return nil, err
		}

		dep, err := chain.Deploy(ctx, env.Backend, env.Key, env.ChainID, artifact)
		if err != nil {
			return nil, err
		}

		env.Logger.Info(name+" contract deployed",
			zap.String("address", dep.Address.Hex()),
			zap.String("tx", dep.Tx.Hash().Hex()),
			zap.Uint64("gas_used", dep.Receipt.GasUsed),
		)
		return &Result{Name: name, Address: dep.Address, TxHash: dep.Tx.Hash()}, nil
	}
}

// artifactPath finds name in the hardhat layout (contracts/<name>.sol/<name>.json)
// or directly in dir.
func artifactPath(dir, name string) (string, error) {
	candidates := []string{
		filepath.Join(dir, "contracts", name+".sol", name+".json"),
		filepath.Join(dir, name+".json"),
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("no %s artifact under %s", name, dir)
}
