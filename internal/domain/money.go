package domain

import "github.com/shopspring/decimal"

// Monetary precision rules: amounts round half-up to 2 fractional digits,
// tax rates carry 4. All totals are computed in the service layer before
// persistence; the database stores computed values only.

// MoneyPlaces is the number of fractional digits for monetary amounts.
const MoneyPlaces = 2

// RatePlaces is the number of fractional digits for tax rates.
const RatePlaces = 4

// RoundMoney rounds a monetary amount half-up to two fractional digits.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// RoundRate rounds a tax rate half-up to four fractional digits.
func RoundRate(d decimal.Decimal) decimal.Decimal {
	return d.Round(RatePlaces)
}

// TaxAmount computes the rounded tax on a taxable base given a rate
// expressed as a percentage (e.g. 8.25 for 8.25%).
func TaxAmount(base, ratePercent decimal.Decimal) decimal.Decimal {
	return RoundMoney(base.Mul(ratePercent).Div(decimal.NewFromInt(100)))
}

// LineTotal computes a transaction line total:
//
//	round((quantity*unitPrice - discount + tax) * periodMultiplier, 2)
//
// periodMultiplier is 1 for non-rental lines and the number of rental
// period units otherwise.
func LineTotal(quantity, unitPrice, discount, tax decimal.Decimal, periodMultiplier decimal.Decimal) decimal.Decimal {
	base := quantity.Mul(unitPrice).Sub(discount).Add(tax)
	return RoundMoney(base.Mul(periodMultiplier))
}

// WeightedAverageCost recomputes a moving average cost after receiving a new
// lot: ((avg*onHand) + (newCost*newQty)) / (onHand + newQty). When the
// combined quantity is zero the current average is kept.
func WeightedAverageCost(avg, onHand, newCost, newQty decimal.Decimal) decimal.Decimal {
	combined := onHand.Add(newQty)
	if combined.IsZero() {
		return avg
	}
	total := avg.Mul(onHand).Add(newCost.Mul(newQty))
	return total.DivRound(combined, RatePlaces)
}
