package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/layer-3/verisafe/adapters/devnet"
	"github.com/layer-3/verisafe/adapters/relayer"
	"github.com/layer-3/verisafe/core"
	"github.com/layer-3/verisafe/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatedSDK blocks CreateInstance until the gate opens or the context ends.
type gatedSDK struct {
	inner   *devnet.SDK
	gate    chan struct{}
	creates atomic.Int32
}

func (g *gatedSDK) Init(ctx context.Context) error { return g.inner.Init(ctx) }

func (g *gatedSDK) CreateInstance(ctx context.Context, network core.NetworkConfig) (ports.FHEInstance, error) {
	g.creates.Add(1)
	select {
	case <-g.gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.inner.CreateInstance(ctx, network)
}

func TestSDKManager_SharesInitialization(t *testing.T) {
	sdk := &gatedSDK{inner: devnet.NewSDK(devnet.NewCoprocessor()), gate: make(chan struct{})}
	m := NewSDKManager(sdk, relayer.SepoliaConfig(), time.Second, nil)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]ports.FHEInstance, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			inst, _, err := m.Instance(context.Background())
			assert.NoError(t, err)
			results[i] = inst
		}(i)
	}

	require.Eventually(t, func() bool { return sdk.creates.Load() == 1 }, time.Second, time.Millisecond)
	close(sdk.gate)
	wg.Wait()

	assert.Equal(t, int32(1), sdk.creates.Load())
	for _, inst := range results {
		assert.Same(t, results[0], inst)
	}

	inst, initialized, err := m.Instance(context.Background())
	require.NoError(t, err)
	assert.False(t, initialized)
	assert.Same(t, results[0], inst)
}

func TestSDKManager_Timeout(t *testing.T) {
	sdk := &gatedSDK{inner: devnet.NewSDK(devnet.NewCoprocessor()), gate: make(chan struct{})}
	m := NewSDKManager(sdk, relayer.SepoliaConfig(), 20*time.Millisecond, nil)

	_, initialized, err := m.Instance(context.Background())
	assert.True(t, initialized)
	assert.ErrorIs(t, err, core.ErrSDKInit)
	assert.Contains(t, err.Error(), "timed out")
	assert.False(t, m.Ready())
}

func TestSDKManager_Reset(t *testing.T) {
	sdk := devnet.NewSDK(devnet.NewCoprocessor())
	m := NewSDKManager(sdk, relayer.SepoliaConfig(), 0, nil)

	first, _, err := m.Instance(context.Background())
	require.NoError(t, err)
	m.Reset()
	assert.False(t, m.Ready())

	second, initialized, err := m.Instance(context.Background())
	require.NoError(t, err)
	assert.True(t, initialized)
	assert.NotSame(t, first, second)

	_, creates := sdk.Calls()
	assert.Equal(t, 2, creates)
}
