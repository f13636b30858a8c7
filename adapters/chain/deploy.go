package chain

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Artifact is the subset of a hardhat compilation artifact needed to deploy.
type Artifact struct {
	ContractName string          `json:"contractName"`
	ABI          json.RawMessage `json:"abi"`
	Bytecode     string          `json:"bytecode"`
}

func LoadArtifact(path string) (*Artifact, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}
	var a Artifact
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("failed to parse artifact %s: %w", path, err)
	}
	if len(a.ABI) == 0 || len(common.FromHex(a.Bytecode)) == 0 {
		return nil, fmt.Errorf("artifact %s has no abi or bytecode", path)
	}
	return &a, nil
}

// DeployBackend is what Deploy needs from a chain client such as ethclient.Client.
type DeployBackend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// Deployment is the outcome of a contract deployment.
type Deployment struct {
	Address common.Address
	Tx      *types.Transaction
	Receipt *types.Receipt
}

// Deploy publishes the artifact from key and waits until the code is on chain.
func Deploy(ctx context.Context, backend DeployBackend, key *ecdsa.PrivateKey, chainID *big.Int, artifact *Artifact, args ...interface{}) (*Deployment, error) {
	parsed, err := abi.JSON(bytes.NewReader(artifact.ABI))
	if err != nil {
		return nil, fmt.Errorf("invalid abi in %s artifact: %w", artifact.ContractName, err)
	}

	auth, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	auth.Context = ctx

	addr, tx, _, err := bind.DeployContract(auth, parsed, common.FromHex(artifact.Bytecode), backend, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to deploy %s: %w", artifact.ContractName, err)
	}

	receipt, err := bind.WaitMined(ctx, backend, tx)
	if err != nil {
		return nil, fmt.Errorf("failed waiting for %s deployment: %w", artifact.ContractName, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%s deployment %s reverted", artifact.ContractName, tx.Hash().Hex())
	}
	if _, err := bind.WaitDeployed(ctx, backend, tx); err != nil {
		return nil, fmt.Errorf("%s has no code at %s: %w", artifact.ContractName, addr.Hex(), err)
	}

	return &Deployment{Address: addr, Tx: tx, Receipt: receipt}, nil
}
