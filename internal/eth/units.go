package eth

import (
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
)

// FormatEther renders a wei amount in ether without float rounding.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -18).String()
}

// ReceiptFee returns gasUsed * effectiveGasPrice in wei.
func ReceiptFee(r *types.Receipt) *big.Int {
	if r == nil || r.EffectiveGasPrice == nil {
		return new(big.Int)
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(r.GasUsed), r.EffectiveGasPrice)
}
