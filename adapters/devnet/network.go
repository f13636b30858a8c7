package devnet

import (
	"crypto/ecdsa"

	"github.com/layer-3/verisafe/adapters/chain"
)

// Network bundles a coprocessor with the SDK and wallet that share it.
type Network struct {
	Coprocessor *Coprocessor
	SDK         *SDK
	Wallet      *Wallet
}

// New starts a devnet with VeriSafe at its Sepolia address. A nil key generates one.
func New(key *ecdsa.PrivateKey, opts Options) (*Network, error) {
	cop := NewCoprocessor()
	w, err := NewWallet(cop, chain.DefaultAddress, key, opts)
	if err != nil {
		return nil, err
	}
	return &Network{Coprocessor: cop, SDK: NewSDK(cop), Wallet: w}, nil
}
