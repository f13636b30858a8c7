package wallet

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/layer-3/verisafe/core"
	"gopkg.in/yaml.v3"
)

// ChainRegistry is the set of chains a wallet knows how to reach.
type ChainRegistry struct {
	mu     sync.RWMutex
	chains map[uint64]core.ChainParams
}

func NewChainRegistry(chains ...core.ChainParams) *ChainRegistry {
	r := &ChainRegistry{chains: make(map[uint64]core.ChainParams)}
	for _, c := range chains {
		r.chains[c.ChainID] = c
	}
	return r
}

type chainsFile struct {
	Chains []core.ChainParams `yaml:"chains"`
}

// LoadChains reads a YAML chain list:
//
//	chains:
//	  - chain_id: 11155111
//	    name: Sepolia
//	    rpc_urls: [https://ethereum-sepolia-rpc.publicnode.com]
func LoadChains(path string) (*ChainRegistry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read chain registry: %w", err)
	}

	var f chainsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("failed to parse chain registry %s: %w", path, err)
	}

	r := NewChainRegistry()
	for _, c := range f.Chains {
		if err := r.Add(c); err != nil {
			return nil, fmt.Errorf("chain registry %s: %w", path, err)
		}
	}
	return r, nil
}

// Add registers or replaces a chain definition.
func (r *ChainRegistry) Add(c core.ChainParams) error {
	if c.ChainID == 0 {
		return fmt.Errorf("chain id is required")
	}
	if len(c.RPCURLs) == 0 {
		return fmt.Errorf("chain %d has no rpc urls", c.ChainID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.chains[c.ChainID] = c
	return nil
}

func (r *ChainRegistry) Get(id uint64) (core.ChainParams, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.chains[id]
	return c, ok
}

// IDs returns the known chain ids in ascending order.
func (r *ChainRegistry) IDs() []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]uint64, 0, len(r.chains))
	for id := range r.chains {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
