package fulfillment

// DiffBOM compares a submitted BOM against the canonical one. Only canonical parts are
// considered: a part missing from submitted is removed in full, a lower quantity is a
// removal of the difference, a higher one an addition. Parts that only appear in
// submitted are ignored. Repeated lines on either side are summed per part first, and
// output follows the first occurrence of each part in canonical.
func DiffBOM(canonical, submitted []BOMLine) []BOMDelta {
	want := sumByPart(submitted)
	folded := foldByPart(canonical)
	deltas := make([]BOMDelta, 0, len(folded))
	for _, line := range folded {
		got, ok := want[line.PartID]
		if !ok {
			deltas = append(deltas, BOMDelta{PartID: line.PartID, Quantity: line.Quantity, ChangeType: ChangeRemoval})
			continue
		}
		if d, ok := delta(line.PartID, line.Quantity, got); ok {
			deltas = append(deltas, d)
		}
	}
	return deltas
}

// DiffBOMSymmetric behaves like DiffBOM and additionally reports parts that only the
// submitted BOM uses as additions, in submitted order.
func DiffBOMSymmetric(canonical, submitted []BOMLine) []BOMDelta {
	deltas := DiffBOM(canonical, submitted)
	known := make(map[string]struct{}, len(canonical))
	for _, line := range canonical {
		known[line.PartID] = struct{}{}
	}
	extra := sumByPart(submitted)
	for _, line := range submitted {
		if _, ok := known[line.PartID]; ok {
			continue
		}
		qty, pending := extra[line.PartID]
		if !pending || qty <= 0 {
			continue
		}
		deltas = append(deltas, BOMDelta{PartID: line.PartID, Quantity: qty, ChangeType: ChangeAddition})
		delete(extra, line.PartID)
	}
	return deltas
}

func delta(partID string, canonical, submitted int64) (BOMDelta, bool) {
	switch {
	case submitted < canonical:
		return BOMDelta{PartID: partID, Quantity: canonical - submitted, ChangeType: ChangeRemoval}, true
	case submitted > canonical:
		return BOMDelta{PartID: partID, Quantity: submitted - canonical, ChangeType: ChangeAddition}, true
	default:
		return BOMDelta{}, false
	}
}

func sumByPart(lines []BOMLine) map[string]int64 {
	out := make(map[string]int64, len(lines))
	for _, line := range lines {
		out[line.PartID] += line.Quantity
	}
	return out
}

// foldByPart merges repeated parts into their first line.
func foldByPart(lines []BOMLine) []BOMLine {
	index := make(map[string]int, len(lines))
	out := make([]BOMLine, 0, len(lines))
	for _, line := range lines {
		if i, ok := index[line.PartID]; ok {
			out[i].Quantity += line.Quantity
			continue
		}
		index[line.PartID] = len(out)
		out = append(out, line)
	}
	return out
}
