package lending

import "math/big"

// Accrue advances a balance across a span of whole periods at a single
// per-period rate:
//
//	newBalance = balance + (balance * rate * periods) / scale
//
// The interest term is floor-truncated, so accrual never manufactures value
// beyond what integer arithmetic supports. Spans that straddle a rate change
// must be accrued as separate segments by the caller; the result of one
// segment feeds the next.
func Accrue(balance *big.Int, rate, periods, scale uint64) *big.Int {
	if balance == nil {
		return big.NewInt(0)
	}
	if rate == 0 || periods == 0 || scale == 0 || balance.Sign() == 0 {
		return new(big.Int).Set(balance)
	}
	interest := new(big.Int).Set(balance)
	interest.Mul(interest, new(big.Int).SetUint64(rate))
	interest.Mul(interest, new(big.Int).SetUint64(periods))
	interest.Quo(interest, new(big.Int).SetUint64(scale))
	return new(big.Int).Add(balance, interest)
}
