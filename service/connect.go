package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/verisafe/core"
	"github.com/layer-3/verisafe/ports"
	"go.uber.org/zap"
)

// Connect discovers a wallet, gets account access, puts the wallet on the
// required chain and prepares the FHE SDK. A user rejection returns
// core.ErrUserRejected and leaves no error on screen.
func (c *Controller) Connect(ctx context.Context) error {
	c.update(func(s *State) {
		s.Disconnected = false
		s.Stage = core.StageConnecting
		s.Loading = true
		s.Error = ""
		s.Notice = ""
	})

	provider, account, err := c.connectWallet(ctx)
	if err != nil {
		c.update(func(s *State) {
			s.Stage = core.StageIdle
			s.Loading = false
			switch {
			case errors.Is(err, core.ErrNoWallet):
				s.Notice = InstallWalletNotice
			case core.IsUserRejection(err):
			default:
				s.Error = ConnectionMessage(err)
			}
		})
		if core.IsUserRejection(err) {
			c.logger.Info("Wallet connection cancelled by user")
			return core.ErrUserRejected
		}
		c.logger.Warn("Wallet connection failed", zap.Error(err))
		return err
	}

	contract, err := c.binder.Bind(provider, account)
	if err != nil {
		c.update(func(s *State) {
			s.Stage = core.StageIdle
			s.Loading = false
			s.Error = ConnectionMessage(err)
		})
		return fmt.Errorf("failed to bind contract: %w", err)
	}

	c.attach(provider, contract, account)
	c.logger.Info("Wallet connected", zap.String("wallet", provider.Name()), zap.String("account", account.Hex()))
	c.publishWallet(ctx, ports.WalletEvent{Type: "connected", Address: account.Hex(), ChainID: c.cfg.Chain.ChainID})

	if _, _, err := c.sdk.Instance(ctx); err != nil {
		c.logger.Error("FHE SDK initialization failed", zap.Error(err))
		c.update(func(s *State) {
			s.Error = sdkInitMessage(err)
		})
	}

	c.update(func(s *State) { s.Loading = false })
	return nil
}

func (c *Controller) connectWallet(ctx context.Context) (ports.Provider, common.Address, error) {
	provider, err := c.discovery.Discover(ctx)
	if err != nil {
		return nil, common.Address{}, err
	}

	accounts, err := provider.RequestAccounts(ctx)
	if err != nil {
		return nil, common.Address{}, err
	}
	if len(accounts) == 0 {
		return nil, common.Address{}, fmt.Errorf("wallet returned no accounts")
	}

	if err := c.ensureChain(ctx, provider); err != nil {
		return nil, common.Address{}, err
	}
	return provider, accounts[0], nil
}

// ensureChain switches the wallet to the configured chain, adding it first when
// the wallet does not know it.
func (c *Controller) ensureChain(ctx context.Context, p ports.Provider) error {
	want := c.cfg.Chain.ChainID

	current, err := p.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to read chain id: %w", err)
	}
	if current == want {
		return nil
	}

	c.logger.Info("Switching wallet network", zap.Uint64("from", current), zap.Uint64("to", want))
	err = p.SwitchChain(ctx, want)
	if core.IsUnrecognizedChain(err) {
		c.logger.Info("Wallet does not know the network, adding it", zap.String("chain", c.cfg.Chain.ChainName))
		if err := p.AddChain(ctx, c.cfg.Chain); err != nil {
			return err
		}
		err = p.SwitchChain(ctx, want)
	}
	if err != nil {
		return err
	}

	current, err = p.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to read chain id: %w", err)
	}
	if current != want {
		return fmt.Errorf("%w: please switch to %s (chain id %d)", core.ErrChainMismatch, c.cfg.Chain.ChainName, want)
	}
	return nil
}

func (c *Controller) attach(provider ports.Provider, contract ports.VeriSafe, account common.Address) {
	c.mu.Lock()
	teardown := c.detachLocked()

	c.provider = provider
	c.contract = contract
	c.state.Connected = true
	c.state.Account = account
	c.state.ChainID = c.cfg.Chain.ChainID
	c.state.Wallet = provider.Name()
	c.state.Contract = contract.Address()
	c.state.Stage = core.StageConnected

	c.unsubscribe = provider.Subscribe(func(ev core.ProviderEvent) { c.handleEvent(provider, ev) })

	ctx, cancel := context.WithCancel(context.Background())
	c.stopWatch = cancel
	c.wg.Add(1)
	go c.watch(ctx, provider)

	s := c.snapshotLocked()
	c.mu.Unlock()

	teardown()
	c.notify(s)
}

// detachLocked unhooks the current provider and returns the work that must run
// after c.mu is released.
func (c *Controller) detachLocked() func() {
	unsubscribe, stop := c.unsubscribe, c.stopWatch
	c.unsubscribe, c.stopWatch = nil, nil
	c.provider = nil
	c.contract = nil

	return func() {
		if stop != nil {
			stop()
		}
		if unsubscribe != nil {
			unsubscribe()
		}
	}
}

// clearSessionLocked forgets the wallet and any verification shown.
func (c *Controller) clearSessionLocked() {
	c.attempt = nil
	c.state.Connected = false
	c.state.Account = common.Address{}
	c.state.ChainID = 0
	c.state.Wallet = ""
	c.state.Stage = core.StageIdle
	c.state.Age = ""
	c.state.Result = nil
	c.state.Error = ""
	c.state.Loading = false
	c.state.AttemptID = ""
	c.state.TxHash = common.Hash{}
	c.state.Handle = core.ZeroHandle
}

// Disconnect forgets the wallet session. It does not revoke the wallet's own
// permission, and nothing reconnects automatically afterwards.
func (c *Controller) Disconnect(ctx context.Context) {
	c.mu.Lock()
	account := c.state.Account
	teardown := c.detachLocked()
	c.clearSessionLocked()
	c.state.Disconnected = true
	s := c.snapshotLocked()
	c.mu.Unlock()

	teardown()
	c.notify(s)
	c.logger.Info("Wallet disconnected", zap.String("account", account.Hex()))
	c.publishWallet(ctx, ports.WalletEvent{Type: "disconnected", Address: account.Hex(), Reason: "user"})
}

// Reload drops all in-memory session state and restores the persisted view,
// as a fresh start would.
func (c *Controller) Reload(ctx context.Context) {
	c.mu.Lock()
	teardown := c.detachLocked()
	c.clearSessionLocked()
	c.state.Disconnected = false
	c.state.Notice = ""
	c.mu.Unlock()

	teardown()
	c.sdk.Reset()
	_ = c.Load(ctx)
}

func (c *Controller) handleEvent(from ports.Provider, ev core.ProviderEvent) {
	c.mu.Lock()
	current := c.provider == from
	c.mu.Unlock()
	if !current {
		return
	}

	switch ev.Kind {
	case core.EventChainChanged:
		c.logger.Info("Wallet network changed, reloading", zap.Uint64("chain_id", ev.ChainID))
		c.reload()
	case core.EventAccountsChanged:
		if len(ev.Accounts) == 0 {
			c.dropSession("wallet revoked access", true)
			return
		}
		c.switchAccount(from, ev.Accounts[0])
	case core.EventDisconnect:
		c.dropSession(fmt.Sprintf("wallet disconnected: %v", ev.Err), false)
	}
}

// dropSession clears the session after the wallet went away on its own.
func (c *Controller) dropSession(reason string, userDisconnected bool) {
	c.mu.Lock()
	if c.provider == nil {
		c.mu.Unlock()
		return
	}
	account := c.state.Account
	teardown := c.detachLocked()
	c.clearSessionLocked()
	if userDisconnected {
		c.state.Disconnected = true
	}
	s := c.snapshotLocked()
	c.mu.Unlock()

	teardown()
	c.notify(s)
	c.logger.Info("Wallet session ended", zap.String("account", account.Hex()), zap.String("reason", reason))
	c.publishWallet(context.Background(), ports.WalletEvent{Type: "disconnected", Address: account.Hex(), Reason: reason})
}

func (c *Controller) switchAccount(p ports.Provider, account common.Address) {
	c.mu.Lock()
	same := c.state.Account == account
	c.mu.Unlock()
	if same {
		return
	}

	contract, err := c.binder.Bind(p, account)
	if err != nil {
		c.logger.Error("Failed to rebind contract for new account", zap.String("account", account.Hex()), zap.Error(err))
		c.dropSession("account change failed", false)
		return
	}

	c.mu.Lock()
	if c.provider != p {
		c.mu.Unlock()
		return
	}
	c.contract = contract
	c.state.Account = account
	c.state.Result = nil
	c.state.Error = ""
	s := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(s)
	c.logger.Info("Wallet account changed", zap.String("account", account.Hex()))
	c.publishWallet(context.Background(), ports.WalletEvent{Type: "account_changed", Address: account.Hex(), ChainID: c.cfg.Chain.ChainID})
}

// watch polls the wallet for revoked access in case the event was missed.
func (c *Controller) watch(ctx context.Context, p ports.Provider) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.WatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		accounts, err := p.Accounts(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Debug("Wallet poll failed", zap.Error(err))
			continue
		}
		if len(accounts) == 0 {
			c.handleEvent(p, core.ProviderEvent{Kind: core.EventAccountsChanged, Accounts: accounts})
			return
		}
	}
}

func (c *Controller) publishWallet(ctx context.Context, ev ports.WalletEvent) {
	if err := c.events.PublishWallet(ctx, ev); err != nil {
		c.logger.Warn("Failed to publish wallet event", zap.String("type", ev.Type), zap.Error(err))
	}
}
