package core

import "github.com/ethereum/go-ethereum/common"

// NetworkConfig parameterizes an FHE SDK instance: the auxiliary contracts that
// guard inputs and decryptions, the chain ids involved and the relayer endpoint.
type NetworkConfig struct {
	ACLContractAddress                        common.Address `json:"aclContractAddress"`
	KMSContractAddress                        common.Address `json:"kmsContractAddress"`
	InputVerifierContractAddress              common.Address `json:"inputVerifierContractAddress"`
	VerifyingContractAddressDecryption        common.Address `json:"verifyingContractAddressDecryption"`
	VerifyingContractAddressInputVerification common.Address `json:"verifyingContractAddressInputVerification"`
	ChainID                                   uint64         `json:"chainId"`
	GatewayChainID                            uint64         `json:"gatewayChainId"`
	Network                                   string         `json:"network"`
	RelayerURL                                string         `json:"relayerUrl"`
}
