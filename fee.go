package stxbulk

import (
	"context"
	"math/big"
)

// FeeEstimator returns a fee estimate in uSTX for a fully built transaction.
type FeeEstimator interface {
	EstimateFee(ctx context.Context, tx *SignedTransaction) (*big.Int, error)
}

// BumpFee returns floor(fee * (100 + multiplier) / 100).
//
// Example:
//
//	BumpFee(big.NewInt(200), 15) // 230
func BumpFee(fee *big.Int, multiplier uint64) *big.Int {
	pct := new(big.Int).SetUint64(multiplier)
	pct.Add(pct, big.NewInt(100))
	out := new(big.Int).Mul(fee, pct)
	return out.Quo(out, big.NewInt(100))
}
