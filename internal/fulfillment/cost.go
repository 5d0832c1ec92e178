package fulfillment

import "github.com/shopspring/decimal"

// EvaluateCost prices BOM deltas: additions add price*quantity, removals subtract it.
// Parts missing from prices count as zero.
func EvaluateCost(deltas []BOMDelta, prices map[string]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, d := range deltas {
		price, ok := prices[d.PartID]
		if !ok {
			continue
		}
		cost := price.Mul(decimal.NewFromInt(d.Quantity))
		if d.ChangeType == ChangeRemoval {
			total = total.Sub(cost)
		} else {
			total = total.Add(cost)
		}
	}
	return total
}
