package lending

import (
	"math/big"

	ethmath "github.com/ethereum/go-ethereum/common/math"
)

// RepayMax is the sentinel repayment amount meaning "settle the full rounded
// outstanding balance". Callers that cannot predict the payoff to the second
// pass this instead of an exact amount.
var RepayMax = new(big.Int).Set(ethmath.MaxBig256)

// RoundToAccuracy rounds the value half-up to the nearest multiple of the
// accuracy unit. Rounding happens only at the presentation and settlement
// boundary; internally tracked balances stay unrounded.
func RoundToAccuracy(value *big.Int, unit uint64) *big.Int {
	if value == nil {
		return big.NewInt(0)
	}
	if unit <= 1 || value.Sign() <= 0 {
		return new(big.Int).Set(value)
	}
	step := new(big.Int).SetUint64(unit)
	quo, rem := new(big.Int).QuoRem(value, step, new(big.Int))
	if rem.Sign() != 0 {
		doubled := new(big.Int).Lsh(rem, 1)
		if doubled.Cmp(step) >= 0 {
			quo.Add(quo, big.NewInt(1))
		}
	}
	return quo.Mul(quo, step)
}

// IsAligned reports whether the value is a whole multiple of the accuracy
// unit. Nil counts as zero and zero is always aligned.
func IsAligned(value *big.Int, unit uint64) bool {
	if value == nil || value.Sign() == 0 {
		return true
	}
	if unit <= 1 {
		return true
	}
	rem := new(big.Int).Mod(value, new(big.Int).SetUint64(unit))
	return rem.Sign() == 0
}

// PeriodIndex returns the number of whole periods elapsed between start and
// at. Times before start map to period zero.
func PeriodIndex(start, at, periodSeconds uint64) uint64 {
	if periodSeconds == 0 || at <= start {
		return 0
	}
	return (at - start) / periodSeconds
}

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}
