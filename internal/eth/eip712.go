// Package eth holds small go-ethereum helpers shared by the wallet, relayer and
// chain adapters.
package eth

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// ErrInvalidSignature is returned for signatures that are not 65 byte [R || S || V].
var ErrInvalidSignature = errors.New("invalid signature")

// EIP712DomainType is the domain type list for domains with name, version, chainId and verifyingContract.
var EIP712DomainType = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
}

// TypedDataHash returns the EIP-712 digest keccak256("\x19\x01" || domainSeparator || hashStruct(message)).
func TypedDataHash(data apitypes.TypedData) ([]byte, error) {
	hash, _, err := apitypes.TypedDataAndHash(data)
	if err != nil {
		return nil, fmt.Errorf("failed to hash typed data: %w", err)
	}
	return hash, nil
}

// SignTypedData signs typed data the way wallets do for eth_signTypedData_v4,
// with V in {27, 28}.
func SignTypedData(key *ecdsa.PrivateKey, data apitypes.TypedData) ([]byte, error) {
	hash, err := TypedDataHash(data)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(hash, key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign typed data: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// RecoverTypedDataSigner returns the address that produced sig over data.
func RecoverTypedDataSigner(data apitypes.TypedData, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes: %w", crypto.SignatureLength, ErrInvalidSignature)
	}
	hash, err := TypedDataHash(data)
	if err != nil {
		return common.Address{}, err
	}

	normalized := make([]byte, len(sig))
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(hash, normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover signer: %w", ErrInvalidSignature)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifySignatureAgainstAddress reports whether sig over data was made by expected.
func VerifySignatureAgainstAddress(data apitypes.TypedData, sig []byte, expected common.Address) (bool, error) {
	signer, err := RecoverTypedDataSigner(data, sig)
	if err != nil {
		return false, err
	}
	return signer == expected, nil
}
