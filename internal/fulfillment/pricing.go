package fulfillment

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ProductPrice is what pricing needs to know about a product.
type ProductPrice struct {
	BasePrice decimal.Decimal
	BOM       []BOMLine
}

// Catalog is the price lookup resolved before pricing an order.
type Catalog struct {
	Products map[string]ProductPrice
	Parts    map[string]decimal.Decimal
}

// Pricer computes SALE totals.
type Pricer struct {
	// Symmetric prices parts that only a submitted BOM uses as additions.
	Symmetric bool
}

// Diff runs the configured BOM diff.
func (p Pricer) Diff(canonical, submitted []BOMLine) []BOMDelta {
	if p.Symmetric {
		return DiffBOMSymmetric(canonical, submitted)
	}
	return DiffBOM(canonical, submitted)
}

// LineCost prices one line. Product lines cost basePrice*quantity plus the cost of their
// BOM override, part lines cost price*quantity.
func (p Pricer) LineCost(line OrderLine, cat Catalog) (decimal.Decimal, error) {
	qty := decimal.NewFromInt(line.Quantity)
	if line.PartID != "" {
		price, ok := cat.Parts[line.PartID]
		if !ok {
			return decimal.Zero, fmt.Errorf("%w: part %s", ErrNotFound, line.PartID)
		}
		return price.Mul(qty), nil
	}
	product, ok := cat.Products[line.ProductID]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: product %s", ErrNotFound, line.ProductID)
	}
	cost := product.BasePrice.Mul(qty)
	if line.HasOverride() {
		cost = cost.Add(EvaluateCost(p.Diff(product.BOM, line.BOM), cat.Parts))
	}
	return cost, nil
}

// Total sums LineCost over every line.
func (p Pricer) Total(lines []OrderLine, cat Catalog) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, line := range lines {
		cost, err := p.LineCost(line, cat)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(cost)
	}
	return total, nil
}

// PricedPartIDs lists every part id whose price is needed to price lines: part lines,
// canonical BOM parts of the ordered products and parts named in overrides.
func PricedPartIDs(lines []OrderLine, products map[string]ProductPrice) []string {
	seen := map[string]int64{}
	for _, line := range lines {
		if line.PartID != "" {
			seen[line.PartID] = 1
			continue
		}
		if !line.HasOverride() {
			continue
		}
		for _, item := range products[line.ProductID].BOM {
			seen[item.PartID] = 1
		}
		for _, item := range line.BOM {
			seen[item.PartID] = 1
		}
	}
	return sortedKeys(seen)
}
