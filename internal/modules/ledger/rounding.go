package ledger

import "github.com/shopspring/decimal"

// CostPrecision is the number of fractional digits kept for average cost.
const CostPrecision int32 = 6

var two = decimal.NewFromInt(2)

// DivRoundHalfEven divides num by den exactly and rounds the quotient half-to-even
// at places fractional digits. Both operands must be non-negative and den non-zero.
func DivRoundHalfEven(num, den decimal.Decimal, places int32) decimal.Decimal {
	q, r := num.QuoRem(den, places)
	if r.IsZero() {
		return q
	}

	step := decimal.New(1, -places)
	// r lies in [0, den*step); compare it against half a step.
	switch r.Mul(two).Cmp(den.Mul(step)) {
	case 1:
		return q.Add(step)
	case 0:
		if q.Shift(places).BigInt().Bit(0) == 1 {
			return q.Add(step)
		}
	}
	return q
}
