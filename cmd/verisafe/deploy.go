package main

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/layer-3/verisafe/adapters/wallet"
	"github.com/layer-3/verisafe/deploy"
	"github.com/layer-3/verisafe/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var deployTags []string

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy the VeriSafe contract from compiled artifacts",
	Example: `  VERISAFE_PRIVATE_KEY=0x... verisafe deploy --tags VeriSafe
  verisafe deploy --devnet`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		env := &deploy.Env{Artifacts: cfg.Artifacts, Logger: logger.Named("deploy")}
		if devnetMode {
			closeBackend, err := simulatedEnv(env)
			if err != nil {
				return err
			}
			defer closeBackend()
		} else {
			closeClient, err := rpcEnv(ctx, cfg, env)
			if err != nil {
				return err
			}
			defer closeClient()
		}
		return runDeploy(ctx, env, cmd.OutOrStdout(), deployTags)
	},
}

func runDeploy(ctx context.Context, env *deploy.Env, out io.Writer, tags []string) error {
	results, err := deploy.Run(ctx, env, deploy.Tasks, tags)
	for _, r := range results {
		fmt.Fprintf(out, "%s deployed at %s (tx %s)\n", r.Name, r.Address.Hex(), r.TxHash.Hex())
	}
	return err
}

// rpcEnv deploys through cfg.RPCURL with the configured key.
func rpcEnv(ctx context.Context, cfg *config.Config, env *deploy.Env) (func(), error) {
	key, err := deployerKey(cfg)
	if err != nil {
		return nil, err
	}
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.RPCURL, err)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to read chain id: %w", err)
	}
	env.Backend = client
	env.Key = key
	env.ChainID = chainID
	return client.Close, nil
}

func deployerKey(cfg *config.Config) (*ecdsa.PrivateKey, error) {
	switch {
	case cfg.PrivateKey != "":
		return wallet.ParsePrivateKey(cfg.PrivateKey)
	case cfg.Keystore != "":
		passphrase := cfg.Passphrase
		if passphrase == "" {
			var err error
			passphrase, err = wallet.PromptPassphrase(int(os.Stdin.Fd()), "Keystore passphrase: ")
			if err != nil {
				return nil, err
			}
		}
		return wallet.LoadKeystore(cfg.Keystore, cfg.AccountAddress(), passphrase)
	}
	return nil, errors.New("deploy needs VERISAFE_PRIVATE_KEY or VERISAFE_KEYSTORE")
}

// simulatedEnv deploys into a throwaway simulated chain with a funded key.
func simulatedEnv(env *deploy.Env) (func(), error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	deployer := crypto.PubkeyToAddress(key.PublicKey)
	sim := simulated.NewBackend(types.GenesisAlloc{
		deployer: {Balance: new(big.Int).Mul(big.NewInt(1e18), big.NewInt(100))},
	})

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(50 * time.Millisecond)
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

	env.Backend = sim.Client()
	env.Key = key
	env.ChainID = big.NewInt(1337)
	env.Logger.Info("Deploying to a simulated chain", zap.String("deployer", deployer.Hex()))
	return func() {
		close(done)
		_ = sim.Close()
	}, nil
}
