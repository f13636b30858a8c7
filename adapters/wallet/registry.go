package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/layer-3/verisafe/core"
	"github.com/layer-3/verisafe/ports"
	"go.uber.org/zap"
)

// Detector probes for one kind of wallet. Detect returns a nil provider, not an
// error, when that wallet is simply not configured.
type Detector struct {
	Name   string
	Detect func(ctx context.Context) (ports.Provider, error)
}

// Registry discovers the first available wallet in priority order and keeps it,
// so approvals and added chains survive reconnects. A detector that fails is
// skipped; its error is returned only when no later detector finds a wallet.
type Registry struct {
	detectors []Detector
	logger    *zap.Logger

	mu    sync.Mutex
	found ports.Provider
}

func NewRegistry(logger *zap.Logger, detectors ...Detector) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{detectors: detectors, logger: logger}
}

func (r *Registry) Discover(ctx context.Context) (ports.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.found != nil {
		return r.found, nil
	}
	var errs []error
	for _, d := range r.detectors {
		p, err := d.Detect(ctx)
		if err != nil {
			r.logger.Warn("Wallet detection failed", zap.String("detector", d.Name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s wallet: %w", d.Name, err))
			continue
		}
		if p == nil {
			r.logger.Debug("Wallet not present", zap.String("detector", d.Name))
			continue
		}
		r.logger.Info("Wallet discovered", zap.String("detector", d.Name), zap.String("provider", p.Name()))
		r.found = p
		return p, nil
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return nil, core.ErrNoWallet
}

// Static always yields p. Useful for tests and embedded wallets.
func Static(name string, p ports.Provider) Detector {
	return Detector{Name: name, Detect: func(context.Context) (ports.Provider, error) { return p, nil }}
}
