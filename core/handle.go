package core

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Handle is an opaque reference to a ciphertext held by the FHE coprocessor.
// It is not the ciphertext itself.
type Handle [32]byte

// ZeroHandle is what an unset ebool reads as on chain.
var ZeroHandle Handle

// HandleFromHex parses a 0x-prefixed 32 byte hex string.
func HandleFromHex(s string) (Handle, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return Handle{}, fmt.Errorf("%w: %v", ErrInvalidHandle, err)
	}
	return HandleFromBytes(b)
}

// HandleFromBytes copies exactly 32 bytes into a Handle.
func HandleFromBytes(b []byte) (Handle, error) {
	var h Handle
	if len(b) != len(h) {
		return Handle{}, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidHandle, len(b), len(h))
	}
	copy(h[:], b)
	return h, nil
}

func (h Handle) IsZero() bool {
	return h == ZeroHandle
}

func (h Handle) Hex() string {
	return hexutil.Encode(h[:])
}

func (h Handle) String() string {
	return h.Hex()
}

func (h Handle) Hash() common.Hash {
	return common.Hash(h)
}

// EncryptedInput is what the SDK produces for one contract call: one handle per
// added value plus a proof the input verifier accepts.
type EncryptedInput struct {
	Handles    []Handle
	InputProof []byte
}

// Keypair is a one-time key pair used to re-encrypt a result for the user.
// Both halves are hex strings as handed out by the SDK.
type Keypair struct {
	PublicKey  string `json:"publicKey"`
	PrivateKey string `json:"privateKey"`
}

// HandleContractPair names a handle together with the contract that owns it.
type HandleContractPair struct {
	Handle          Handle         `json:"handle"`
	ContractAddress common.Address `json:"contractAddress"`
}
