package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/layer-3/verisafe/core"
	"github.com/layer-3/verisafe/ports"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultSDKInitTimeout bounds instance creation.
const DefaultSDKInitTimeout = 30 * time.Second

// SDKManager owns the FHE SDK instance. Concurrent callers share a single
// initialisation attempt.
type SDKManager struct {
	sdk     ports.RelayerSDK
	network core.NetworkConfig
	timeout time.Duration
	logger  *zap.Logger

	group    singleflight.Group
	mu       sync.Mutex
	instance ports.FHEInstance
}

func NewSDKManager(sdk ports.RelayerSDK, network core.NetworkConfig, timeout time.Duration, logger *zap.Logger) *SDKManager {
	if timeout <= 0 {
		timeout = DefaultSDKInitTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SDKManager{sdk: sdk, network: network, timeout: timeout, logger: logger}
}

// Cached returns the current instance, or nil.
func (m *SDKManager) Cached() ports.FHEInstance {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.instance
}

// Ready reports whether an instance is available.
func (m *SDKManager) Ready() bool {
	return m.Cached() != nil
}

// Instance returns the cached instance or initialises one. initialized reports
// whether this call ran (or joined) an initialisation.
func (m *SDKManager) Instance(ctx context.Context) (inst ports.FHEInstance, initialized bool, err error) {
	if inst := m.Cached(); inst != nil {
		return inst, false, nil
	}

	v, err, shared := m.group.Do("init", func() (interface{}, error) {
		if inst := m.Cached(); inst != nil {
			return inst, nil
		}
		return m.initialize(ctx)
	})
	if err != nil {
		return nil, true, err
	}
	if shared {
		m.logger.Debug("Joined in-flight SDK initialization")
	}
	return v.(ports.FHEInstance), true, nil
}

func (m *SDKManager) initialize(ctx context.Context) (ports.FHEInstance, error) {
	start := time.Now()
	m.logger.Info("Initializing FHE SDK", zap.String("relayer", m.network.RelayerURL), zap.Uint64("chain_id", m.network.ChainID))

	if err := m.sdk.Init(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrSDKInit, err)
	}

	cctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	inst, err := m.sdk.CreateInstance(cctx, m.network)
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: createInstance timed out after %s", core.ErrSDKInit, m.timeout)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrSDKInit, err)
	}
	if inst == nil {
		return nil, fmt.Errorf("%w: createInstance returned no instance", core.ErrSDKInit)
	}

	m.mu.Lock()
	m.instance = inst
	m.mu.Unlock()

	m.logger.Info("FHE SDK ready", zap.Duration("took", time.Since(start)))
	return inst, nil
}

// Reset drops the cached instance so the next Instance call initialises again.
func (m *SDKManager) Reset() {
	m.mu.Lock()
	m.instance = nil
	m.mu.Unlock()
}
