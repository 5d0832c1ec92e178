package fulfillment

import (
	"fmt"
	"math"
)

// Aggregate folds order lines into per-entity quantities. Part lines count toward
// parts; product lines count toward products and every submitted BOM line is added to
// parts as is. Repeated ids are summed; a sum that no longer fits an int64 is a
// validation error.
func Aggregate(lines []OrderLine) (Deltas, error) {
	out := NewDeltas()
	for i, line := range lines {
		if err := validateLine(i, line); err != nil {
			return Deltas{}, err
		}
		if line.PartID != "" {
			if err := accumulate(out.Parts, line.PartID, line.Quantity); err != nil {
				return Deltas{}, err
			}
			continue
		}
		if err := accumulate(out.Products, line.ProductID, line.Quantity); err != nil {
			return Deltas{}, err
		}
		for _, item := range line.BOM {
			if err := accumulate(out.Parts, item.PartID, item.Quantity); err != nil {
				return Deltas{}, err
			}
		}
	}
	return out, nil
}

func accumulate(m map[string]int64, id string, qty int64) error {
	sum, ok := addQuantity(m[id], qty)
	if !ok {
		return fmt.Errorf("%w: total quantity for %s is too large", ErrValidation, id)
	}
	m[id] = sum
	return nil
}

// addQuantity adds two non-negative quantities and reports false on overflow.
func addQuantity(a, b int64) (int64, bool) {
	if b > math.MaxInt64-a {
		return 0, false
	}
	return a + b, true
}

func validateLine(i int, line OrderLine) error {
	switch {
	case line.PartID == "" && line.ProductID == "":
		return fmt.Errorf("%w: line %d: partId or productId required", ErrValidation, i)
	case line.PartID != "" && line.ProductID != "":
		return fmt.Errorf("%w: line %d: only one of partId or productId allowed", ErrValidation, i)
	case line.Quantity <= 0:
		return fmt.Errorf("%w: line %d: quantity must be a positive integer", ErrValidation, i)
	case line.Quantity > MaxQuantity:
		return fmt.Errorf("%w: line %d: quantity exceeds %d", ErrValidation, i, MaxQuantity)
	case line.PartID != "" && line.BOM != nil:
		return fmt.Errorf("%w: line %d: bom only allowed on product lines", ErrValidation, i)
	}
	for j, item := range line.BOM {
		if item.PartID == "" || item.Quantity <= 0 || item.Quantity > MaxQuantity {
			return fmt.Errorf("%w: line %d: invalid bom item %d", ErrValidation, i, j)
		}
	}
	return nil
}
