package eth

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTypedData() apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": EIP712DomainType,
			"Permit": []apitypes.Type{
				{Name: "publicKey", Type: "bytes"},
				{Name: "contractAddresses", Type: "address[]"},
				{Name: "startTimestamp", Type: "uint256"},
			},
		},
		PrimaryType: "Permit",
		Domain: apitypes.TypedDataDomain{
			Name:              "Decryption",
			Version:           "1",
			ChainId:           math.NewHexOrDecimal256(55815),
			VerifyingContract: "0xb6E160B1ff80D67Bfe90A85eE06Ce0A2613607D1",
		},
		Message: apitypes.TypedDataMessage{
			"publicKey":         "0x0102",
			"contractAddresses": []interface{}{"0xc26042fd8F8fbE521814fE98C27B66003FD0553f"},
			"startTimestamp":    "1700000000",
		},
	}
}

func TestSignAndRecoverTypedData(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey)

	data := sampleTypedData()
	sig, err := SignTypedData(key, data)
	require.NoError(t, err)
	require.Len(t, sig, crypto.SignatureLength)
	assert.True(t, sig[64] == 27 || sig[64] == 28)

	ok, err := VerifySignatureAgainstAddress(data, sig, addr)
	require.NoError(t, err)
	assert.True(t, ok)

	data.Message["startTimestamp"] = "1700000001"
	ok, err = VerifySignatureAgainstAddress(data, sig, addr)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecoverTypedDataSigner_BadLength(t *testing.T) {
	_, err := RecoverTypedDataSigner(sampleTypedData(), []byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestFormatEther(t *testing.T) {
	assert.Equal(t, "1", FormatEther(big.NewInt(1_000_000_000_000_000_000)))
	assert.Equal(t, "0.000021", FormatEther(big.NewInt(21_000_000_000_000)))
	assert.Equal(t, "0", FormatEther(nil))
}

func TestReceiptFee(t *testing.T) {
	r := &types.Receipt{GasUsed: 21000, EffectiveGasPrice: big.NewInt(2)}
	assert.Equal(t, big.NewInt(42000), ReceiptFee(r))
	assert.Equal(t, new(big.Int), ReceiptFee(nil))
}
