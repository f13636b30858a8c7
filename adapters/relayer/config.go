// Package relayer talks to the FHE relayer SDK and describes the networks it serves.
package relayer

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/verisafe/core"
)

const (
	SepoliaNetworkURL = "https://eth-sepolia.public.blastapi.io"
	SepoliaRelayerURL = "https://relayer.testnet.zama.cloud"
	SepoliaGatewayID  = 55815
)

// SepoliaConfig is the relayer network configuration for the Sepolia testnet.
func SepoliaConfig() core.NetworkConfig {
	return core.NetworkConfig{
		ACLContractAddress:                        common.HexToAddress("0x687820221192C5B662b25367F70076A37bc79b6c"),
		KMSContractAddress:                        common.HexToAddress("0x1364cBBf2cDF5032C47d8226a6f6FBD2AFCDacAC"),
		InputVerifierContractAddress:              common.HexToAddress("0xbc91f3daD1A5F19F8390c400196e58073B6a0BC4"),
		VerifyingContractAddressDecryption:        common.HexToAddress("0xb6E160B1ff80D67Bfe90A85eE06Ce0A2613607D1"),
		VerifyingContractAddressInputVerification: common.HexToAddress("0x7048C39f048125eDa9d678AEbaDfB22F7900a29F"),
		ChainID:                                   core.SepoliaChainID,
		GatewayChainID:                            SepoliaGatewayID,
		Network:                                   SepoliaNetworkURL,
		RelayerURL:                                SepoliaRelayerURL,
	}
}
