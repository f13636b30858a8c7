package main

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/verisafe/adapters/chain"
	"github.com/layer-3/verisafe/adapters/devnet"
	"github.com/layer-3/verisafe/adapters/events"
	"github.com/layer-3/verisafe/adapters/relayer"
	"github.com/layer-3/verisafe/adapters/store"
	"github.com/layer-3/verisafe/adapters/tokenizer"
	"github.com/layer-3/verisafe/adapters/wallet"
	"github.com/layer-3/verisafe/core"
	"github.com/layer-3/verisafe/internal/config"
	"github.com/layer-3/verisafe/ports"
	"github.com/layer-3/verisafe/service"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// app is the wired VeriSafe session used by every command.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	chain    core.ChainParams
	contract common.Address
	ctrl     *service.Controller
	sessions *service.SessionService
	devnet   *devnet.Network

	mu      sync.Mutex
	closers []func()
}

type appOptions struct {
	// interactive means the terminal belongs to another reader, so wallet
	// requests are approved by the action that triggered them.
	interactive bool
	promptIn    io.Reader
	promptOut   io.Writer
	controller  []service.Option
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, devnetMode bool, opts appOptions) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	revocations, views, publisher, err := a.stores(ctx)
	if err != nil {
		return nil, err
	}

	network := relayer.SepoliaConfig()
	network.Network = cfg.RPCURL
	a.chain = core.SepoliaChain(cfg.RPCURL)

	var (
		sdk       ports.RelayerSDK
		discovery ports.ProviderDiscovery
		binder    = chain.Binder{Address: cfg.ContractAddress(), PollInterval: cfg.ReceiptPoll}
		readDelay = cfg.ResultReadDelay
	)
	if devnetMode {
		net, err := devnet.New(nil, devnet.Options{})
		if err != nil {
			return nil, err
		}
		a.devnet = net
		sdk = net.SDK
		discovery = wallet.NewRegistry(logger.Named("wallet"), wallet.Static("devnet", net.Wallet))
		binder = chain.Binder{Address: chain.DefaultAddress, PollInterval: 10 * time.Millisecond}
		readDelay = 0
		logger.Info("Using in-process devnet", zap.String("account", net.Wallet.Address().Hex()))
	} else {
		sdk = relayer.NewClient(cfg.SDKURL,
			relayer.WithRetry(cfg.RelayerRetries, cfg.RelayerRetryDelay),
			relayer.WithLogger(logger.Named("relayer")),
		)
		detectors, err := a.detectors(opts)
		if err != nil {
			return nil, err
		}
		discovery = wallet.NewRegistry(logger.Named("wallet"), detectors...)
	}

	a.contract = binder.Address

	ctrlOpts := append([]service.Option{
		service.WithLogger(logger.Named("controller")),
		service.WithEvents(events.NewWatermillPublisher(publisher)),
	}, opts.controller...)

	a.ctrl = service.NewController(
		service.Config{
			Chain:           a.chain,
			Network:         network,
			DecryptionDays:  cfg.DecryptionDays,
			ResultReadDelay: readDelay,
			WatchInterval:   cfg.WatchInterval,
		},
		views,
		discovery,
		binder,
		service.NewSDKManager(sdk, network, cfg.SDKInitTimeout, logger.Named("sdk")),
		ctrlOpts...,
	)
	a.onClose(a.ctrl.Close)

	if err := a.ctrl.Load(ctx); err != nil {
		return nil, err
	}

	signKey, err := cfg.SigningKey()
	if err != nil {
		return nil, err
	}
	a.sessions = service.NewSessionService(tokenizer.NewJWTTokenizer(signKey), revocations, cfg.SessionTTL)
	return a, nil
}

// stores picks Redis for revocations, view state and events when configured,
// otherwise process memory, a SQLite state file and an in-process channel.
func (a *app) stores(ctx context.Context) (ports.Store, ports.ViewStore, message.Publisher, error) {
	wmLogger := events.NewZapLogger(a.logger.Named("events"))

	if a.cfg.RedisURL != "" {
		opts, err := redis.ParseURL(a.cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		client := redis.NewClient(opts)
		a.onClose(func() { _ = client.Close() })

		publisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{Client: client}, wmLogger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to create Redis publisher: %w", err)
		}
		a.onClose(func() { _ = publisher.Close() })

		rs := store.NewRedisStore(client)
		return rs, rs, publisher, nil
	}

	pubSub := gochannel.NewGoChannel(gochannel.Config{}, wmLogger)
	a.onClose(func() { _ = pubSub.Close() })

	var views ports.ViewStore = store.NewMemoryStore()
	if a.cfg.StateFile != "" {
		sqlite, err := store.OpenSQLiteStore(ctx, a.cfg.StateFile)
		if err != nil {
			return nil, nil, nil, err
		}
		a.onClose(func() { _ = sqlite.Close() })
		views = sqlite
	}
	return store.NewMemoryStore(), views, pubSub, nil
}

// detectors lists the configured wallets in priority order: keystore, private
// key, then the wallet RPC. Keys are decrypted up front so a passphrase prompt
// never competes with the interface for stdin.
func (a *app) detectors(opts appOptions) ([]wallet.Detector, error) {
	chains, err := a.chains()
	if err != nil {
		return nil, err
	}
	// A wallet whose registry lacks the required chain starts elsewhere and
	// gets the chain added on connect.
	start := a.chain.ChainID
	if _, ok := chains.Get(start); !ok {
		if ids := chains.IDs(); len(ids) > 0 {
			start = ids[0]
		}
	}

	var approver wallet.Approver = wallet.AutoApprove{}
	if !opts.interactive && !a.cfg.AutoApprove {
		approver = wallet.NewPromptApprover(opts.promptIn, opts.promptOut)
	}

	var detectors []wallet.Detector
	keyed := func(name string, key *ecdsa.PrivateKey) error {
		p, err := wallet.NewKeyProvider(name, []*ecdsa.PrivateKey{key}, chains, start,
			wallet.WithApprover(approver),
			wallet.WithLogger(a.logger.Named("wallet."+name)),
		)
		if err != nil {
			return err
		}
		a.onClose(p.Close)
		detectors = append(detectors, wallet.Static(name, p))
		return nil
	}

	if a.cfg.Keystore != "" {
		passphrase := a.cfg.Passphrase
		if passphrase == "" {
			passphrase, err = wallet.PromptPassphrase(int(os.Stdin.Fd()), "Keystore passphrase: ")
			if err != nil {
				return nil, err
			}
		}
		key, err := wallet.LoadKeystore(a.cfg.Keystore, a.cfg.AccountAddress(), passphrase)
		if err != nil {
			return nil, err
		}
		if err := keyed("keystore", key); err != nil {
			return nil, err
		}
	}

	if a.cfg.PrivateKey != "" {
		key, err := wallet.ParsePrivateKey(a.cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		if err := keyed("private-key", key); err != nil {
			return nil, err
		}
	}

	// A generic wallet RPC is the fallback behind the known key wallets.
	if a.cfg.WalletRPC != "" {
		url := a.cfg.WalletRPC
		detectors = append(detectors, wallet.Detector{
			Name: "rpc",
			Detect: func(ctx context.Context) (ports.Provider, error) {
				p, err := wallet.DialRPC(ctx, url, a.cfg.WatchInterval, a.logger.Named("wallet.rpc"))
				if err != nil {
					return nil, err
				}
				a.onClose(p.Close)
				return p, nil
			},
		})
	}
	return detectors, nil
}

// chains is the key wallets' chain list, from the registry file when one is set.
func (a *app) chains() (*wallet.ChainRegistry, error) {
	if a.cfg.ChainsFile == "" {
		return wallet.NewChainRegistry(a.chain), nil
	}
	return wallet.LoadChains(a.cfg.ChainsFile)
}

func (a *app) onClose(fn func()) {
	a.mu.Lock()
	a.closers = append(a.closers, fn)
	a.mu.Unlock()
}

// Close releases everything in reverse order of creation.
func (a *app) Close() {
	a.mu.Lock()
	closers := a.closers
	a.closers = nil
	a.mu.Unlock()

	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
}
