package relayer

import (
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/layer-3/verisafe/core"
	"github.com/layer-3/verisafe/internal/eth"
)

const (
	UserDecryptPrimaryType = "UserDecryptRequestVerification"
	decryptionDomainName   = "Decryption"
	decryptionDomainVer    = "1"
)

// UserDecryptTypedData is the authorization a user signs to let publicKey
// re-encrypt handles of contracts. It lives on the gateway chain, verified by the
// decryption contract.
func UserDecryptTypedData(network core.NetworkConfig, publicKey string, contracts []common.Address, startTimestamp int64, durationDays int) apitypes.TypedData {
	addrs := make([]interface{}, len(contracts))
	for i, c := range contracts {
		addrs[i] = c.Hex()
	}

	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": eth.EIP712DomainType,
			UserDecryptPrimaryType: []apitypes.Type{
				{Name: "publicKey", Type: "bytes"},
				{Name: "contractAddresses", Type: "address[]"},
				{Name: "startTimestamp", Type: "uint256"},
				{Name: "durationDays", Type: "uint256"},
				{Name: "extraData", Type: "bytes"},
			},
		},
		PrimaryType: UserDecryptPrimaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              decryptionDomainName,
			Version:           decryptionDomainVer,
			ChainId:           math.NewHexOrDecimal256(int64(network.GatewayChainID)),
			VerifyingContract: network.VerifyingContractAddressDecryption.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"publicKey":         "0x" + strings.TrimPrefix(publicKey, "0x"),
			"contractAddresses": addrs,
			"startTimestamp":    strconv.FormatInt(startTimestamp, 10),
			"durationDays":      strconv.Itoa(durationDays),
			"extraData":         "0x00",
		},
	}
}
