package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/layer-3/verisafe/core"
	"github.com/layer-3/verisafe/ports"
	"go.uber.org/zap"
)

const (
	DefaultDecryptionDays  = 1
	DefaultResultReadDelay = 2 * time.Second
	DefaultWatchInterval   = 2 * time.Second

	// InstallWalletNotice is shown when no wallet provider could be found.
	InstallWalletNotice = "No wallet found. Install a wallet or configure a keystore, private key or wallet RPC, then try again."
)

// Config holds the network the controller works against.
type Config struct {
	// Chain is the chain the wallet must be on, with the parameters used to add it.
	Chain           core.ChainParams
	Network         core.NetworkConfig
	DecryptionDays  int
	ResultReadDelay time.Duration
	WatchInterval   time.Duration
}

// State is what a user interface renders.
type State struct {
	View         core.View      `json:"view"`
	Stage        core.Stage     `json:"stage"`
	Connected    bool           `json:"connected"`
	Account      common.Address `json:"account"`
	ChainID      uint64         `json:"chain_id,omitempty"`
	Wallet       string         `json:"wallet,omitempty"`
	Contract     common.Address `json:"contract"`
	SDKReady     bool           `json:"sdk_ready"`
	Age          string         `json:"age"`
	Loading      bool           `json:"loading"`
	Result       *core.Outcome  `json:"result,omitempty"`
	Error        string         `json:"error,omitempty"`
	Notice       string         `json:"notice,omitempty"`
	Disconnected bool           `json:"disconnected"`
	AttemptID    string         `json:"attempt_id,omitempty"`
	TxHash       common.Hash    `json:"tx_hash"`
	Handle       core.Handle    `json:"-"`
}

// Controller is the VeriSafe session: wallet connection, the persisted view and
// verification attempts. One Controller serves one user.
type Controller struct {
	cfg       Config
	views     ports.ViewStore
	discovery ports.ProviderDiscovery
	binder    ports.ContractBinder
	sdk       *SDKManager
	events    ports.EventPublisher
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
	sleep     func(ctx context.Context, d time.Duration) error
	reload    func()
	onChange  func(State)

	wg sync.WaitGroup

	mu          sync.Mutex
	state       State
	provider    ports.Provider
	contract    ports.VeriSafe
	unsubscribe func()
	stopWatch   context.CancelFunc
	busy        bool
	attempt     *core.Attempt
}

// Option configures a Controller.
type Option func(*Controller)

func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

func WithEvents(p ports.EventPublisher) Option {
	return func(c *Controller) { c.events = p }
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func WithIDGenerator(fn func() string) Option {
	return func(c *Controller) { c.newID = fn }
}

// WithSleep replaces the wait before reading the stored result.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Controller) { c.sleep = fn }
}

// WithReloader replaces what happens on a chain change. The default is Reload.
func WithReloader(fn func()) Option {
	return func(c *Controller) { c.reload = fn }
}

// WithOnChange registers a listener called after every state change.
func WithOnChange(fn func(State)) Option {
	return func(c *Controller) { c.onChange = fn }
}

func NewController(cfg Config, views ports.ViewStore, discovery ports.ProviderDiscovery, binder ports.ContractBinder, sdk *SDKManager, opts ...Option) *Controller {
	if cfg.DecryptionDays <= 0 {
		cfg.DecryptionDays = DefaultDecryptionDays
	}
	if cfg.ResultReadDelay < 0 {
		cfg.ResultReadDelay = 0
	}
	if cfg.WatchInterval <= 0 {
		cfg.WatchInterval = DefaultWatchInterval
	}

	c := &Controller{
		cfg:       cfg,
		views:     views,
		discovery: discovery,
		binder:    binder,
		sdk:       sdk,
		events:    nopEvents{},
		logger:    zap.NewNop(),
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
		sleep:     sleepContext,
		state:     State{View: core.ViewHome, Stage: core.StageIdle},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.reload == nil {
		c.reload = func() { c.Reload(context.Background()) }
	}
	return c
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type nopEvents struct{}

func (nopEvents) PublishWallet(context.Context, ports.WalletEvent) error { return nil }
func (nopEvents) PublishVerification(context.Context, ports.VerificationEvent) error { return nil }

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() State {
	s := c.state
	if s.Result != nil {
		r := *s.Result
		s.Result = &r
	}
	s.SDKReady = c.sdk.Ready()
	return s
}

// update applies fn under the lock and notifies the change listener.
func (c *Controller) update(fn func(s *State)) {
	c.mu.Lock()
	fn(&c.state)
	s := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(s)
}

func (c *Controller) notify(s State) {
	if c.onChange != nil {
		c.onChange(s)
	}
}

func (c *Controller) changed() {
	c.notify(c.Snapshot())
}

// Load restores the persisted view. A missing or unreadable value means home.
func (c *Controller) Load(ctx context.Context) error {
	raw, ok, err := c.views.Get(ctx, core.ViewKey)
	if err != nil {
		c.logger.Warn("Failed to read persisted view", zap.Error(err))
	}
	view := core.ViewHome
	if err == nil && ok {
		view = core.ParseView(raw)
		if view.String() != raw {
			c.logger.Warn("Ignoring unknown persisted view", zap.String("value", raw))
		}
	}

	c.update(func(s *State) { s.View = view })
	return nil
}

// SetView switches screens and persists the choice.
func (c *Controller) SetView(ctx context.Context, v core.View) error {
	c.update(func(s *State) { s.View = v })
	if err := c.views.Set(ctx, core.ViewKey, v.String()); err != nil {
		return fmt.Errorf("failed to persist view: %w", err)
	}
	return nil
}

// StartVerification moves from the home screen to the main screen.
func (c *Controller) StartVerification(ctx context.Context) error {
	return c.SetView(ctx, core.ViewMain)
}

// ResetToHome clears the verification form and returns home. The wallet stays
// connected and a user disconnect is remembered.
func (c *Controller) ResetToHome(ctx context.Context) error {
	c.mu.Lock()
	c.attempt = nil
	c.state.Age = ""
	c.state.Result = nil
	c.state.Error = ""
	c.state.Loading = false
	c.state.AttemptID = ""
	c.state.TxHash = common.Hash{}
	c.state.Handle = core.ZeroHandle
	if c.state.Connected {
		c.state.Stage = core.StageConnected
	}
	c.mu.Unlock()

	return c.SetView(ctx, core.ViewHome)
}

// SetAge records the age field as typed.
func (c *Controller) SetAge(input string) {
	c.update(func(s *State) { s.Age = input })
}

// Close detaches from the wallet and waits for background work to stop.
func (c *Controller) Close() {
	c.mu.Lock()
	teardown := c.detachLocked()
	c.mu.Unlock()
	teardown()
	c.wg.Wait()
}
