package betting

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Size computes the bet amount for a confidence in [0,100] by linear
// interpolation between minBet and maxBet:
//
//	amount = minBet + confidence * (maxBet - minBet) / 100
//
// Confidence 0 yields minBet, 100 yields maxBet. The function is exact
// decimal arithmetic so sizes are reproducible and auditable.
func Size(confidence int, minBet, maxBet decimal.Decimal) decimal.Decimal {
	c := decimal.NewFromInt(int64(confidence))
	return minBet.Add(maxBet.Sub(minBet).Mul(c).Div(hundred))
}
