package fulfillment

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestDiffBOMScenarios(t *testing.T) {
	canonical := []BOMLine{{PartID: "p1", Quantity: 2}, {PartID: "p2", Quantity: 3}, {PartID: "p3", Quantity: 4}}

	cases := []struct {
		name      string
		submitted []BOMLine
		want      []BOMDelta
	}{
		{
			name:      "higher quantity is an addition",
			submitted: []BOMLine{{PartID: "p1", Quantity: 2}, {PartID: "p2", Quantity: 5}, {PartID: "p3", Quantity: 4}},
			want:      []BOMDelta{{PartID: "p2", Quantity: 2, ChangeType: ChangeAddition}},
		},
		{
			name:      "lower quantity is a removal",
			submitted: []BOMLine{{PartID: "p1", Quantity: 1}, {PartID: "p2", Quantity: 3}, {PartID: "p3", Quantity: 4}},
			want:      []BOMDelta{{PartID: "p1", Quantity: 1, ChangeType: ChangeRemoval}},
		},
		{
			name:      "missing part is removed in full",
			submitted: []BOMLine{{PartID: "p1", Quantity: 2}, {PartID: "p3", Quantity: 4}},
			want:      []BOMDelta{{PartID: "p2", Quantity: 3, ChangeType: ChangeRemoval}},
		},
		{
			name:      "empty override removes everything in canonical order",
			submitted: []BOMLine{},
			want: []BOMDelta{
				{PartID: "p1", Quantity: 2, ChangeType: ChangeRemoval},
				{PartID: "p2", Quantity: 3, ChangeType: ChangeRemoval},
				{PartID: "p3", Quantity: 4, ChangeType: ChangeRemoval},
			},
		},
		{
			name:      "submitted-only parts are ignored",
			submitted: []BOMLine{{PartID: "p1", Quantity: 2}, {PartID: "p2", Quantity: 3}, {PartID: "p3", Quantity: 4}, {PartID: "p9", Quantity: 7}},
			want:      []BOMDelta{},
		},
		{
			name:      "duplicate submitted lines are summed",
			submitted: []BOMLine{{PartID: "p1", Quantity: 1}, {PartID: "p1", Quantity: 3}, {PartID: "p2", Quantity: 3}, {PartID: "p3", Quantity: 4}},
			want:      []BOMDelta{{PartID: "p1", Quantity: 2, ChangeType: ChangeAddition}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, DiffBOM(canonical, tc.submitted))
		})
	}
}

func TestDiffBOMOfIdenticalBOMsIsEmpty(t *testing.T) {
	boms := [][]BOMLine{
		nil,
		{{PartID: "a", Quantity: 1}},
		{{PartID: "a", Quantity: 1}, {PartID: "b", Quantity: 10}, {PartID: "c", Quantity: 3}},
		{{PartID: "a", Quantity: 2}, {PartID: "a", Quantity: 2}},
		{{PartID: "b", Quantity: 1}, {PartID: "a", Quantity: 4}, {PartID: "b", Quantity: 6}},
	}
	for _, bom := range boms {
		require.Empty(t, DiffBOM(bom, bom))
		require.Empty(t, DiffBOMSymmetric(bom, bom))
	}
}

func TestDiffBOMReconstructsSubmittedForCanonicalParts(t *testing.T) {
	canonical := []BOMLine{{PartID: "a", Quantity: 5}, {PartID: "b", Quantity: 1}, {PartID: "c", Quantity: 2}, {PartID: "d", Quantity: 9}}
	submitted := []BOMLine{{PartID: "a", Quantity: 8}, {PartID: "c", Quantity: 2}, {PartID: "d", Quantity: 1}, {PartID: "z", Quantity: 4}}

	applied := map[string]int64{}
	for _, line := range canonical {
		applied[line.PartID] = line.Quantity
	}
	for _, d := range DiffBOM(canonical, submitted) {
		require.Positive(t, d.Quantity)
		if d.ChangeType == ChangeAddition {
			applied[d.PartID] += d.Quantity
		} else {
			applied[d.PartID] -= d.Quantity
		}
	}
	want := sumByPart(submitted)
	for _, line := range canonical {
		require.Equal(t, want[line.PartID], applied[line.PartID], line.PartID)
	}
}

func TestDiffBOMSymmetricAddsSubmittedOnlyParts(t *testing.T) {
	canonical := []BOMLine{{PartID: "p1", Quantity: 2}}
	submitted := []BOMLine{{PartID: "p9", Quantity: 1}, {PartID: "p1", Quantity: 2}, {PartID: "p8", Quantity: 3}, {PartID: "p9", Quantity: 2}}

	require.Equal(t, []BOMDelta{
		{PartID: "p9", Quantity: 3, ChangeType: ChangeAddition},
		{PartID: "p8", Quantity: 3, ChangeType: ChangeAddition},
	}, DiffBOMSymmetric(canonical, submitted))
}

func TestEvaluateCostScenarioA(t *testing.T) {
	deltas := DiffBOM(
		[]BOMLine{{PartID: "p1", Quantity: 2}, {PartID: "p2", Quantity: 3}},
		[]BOMLine{{PartID: "p1", Quantity: 2}, {PartID: "p2", Quantity: 5}},
	)
	require.Equal(t, []BOMDelta{{PartID: "p2", Quantity: 2, ChangeType: ChangeAddition}}, deltas)

	cost := EvaluateCost(deltas, map[string]decimal.Decimal{"p2": decimal.NewFromInt(10)})
	require.True(t, cost.Equal(decimal.NewFromInt(20)), cost.String())
}

func TestEvaluateCostSignProperty(t *testing.T) {
	prices := map[string]decimal.Decimal{
		"a": decimal.RequireFromString("1.10"),
		"b": decimal.RequireFromString("0.35"),
		"c": decimal.RequireFromString("12.00"),
	}
	canonical := []BOMLine{{PartID: "a", Quantity: 3}, {PartID: "b", Quantity: 7}, {PartID: "c", Quantity: 1}}
	submitted := []BOMLine{{PartID: "a", Quantity: 1}, {PartID: "b", Quantity: 10}, {PartID: "x", Quantity: 4}}

	priceOf := func(bom []BOMLine) decimal.Decimal {
		inCanonical := map[string]bool{}
		for _, l := range canonical {
			inCanonical[l.PartID] = true
		}
		total := decimal.Zero
		for _, l := range bom {
			if inCanonical[l.PartID] {
				total = total.Add(prices[l.PartID].Mul(decimal.NewFromInt(l.Quantity)))
			}
		}
		return total
	}

	got := EvaluateCost(DiffBOM(canonical, submitted), prices)
	want := priceOf(submitted).Sub(priceOf(canonical))
	require.True(t, got.Equal(want), "got %s want %s", got, want)
}

func TestEvaluateCostMissingPriceIsZero(t *testing.T) {
	cost := EvaluateCost([]BOMDelta{
		{PartID: "unknown", Quantity: 4, ChangeType: ChangeAddition},
		{PartID: "known", Quantity: 1, ChangeType: ChangeRemoval},
	}, map[string]decimal.Decimal{"known": decimal.RequireFromString("2.5")})
	require.True(t, cost.Equal(decimal.RequireFromString("-2.5")), cost.String())
}

func TestDiffBOMFoldsRepeatedCanonicalLines(t *testing.T) {
	canonical := []BOMLine{{PartID: "b", Quantity: 1}, {PartID: "a", Quantity: 4}, {PartID: "b", Quantity: 2}}
	submitted := []BOMLine{{PartID: "a", Quantity: 4}, {PartID: "b", Quantity: 5}}

	require.Equal(t, []BOMDelta{{PartID: "b", Quantity: 2, ChangeType: ChangeAddition}}, DiffBOM(canonical, submitted))
	require.Equal(t, []BOMDelta{
		{PartID: "b", Quantity: 3, ChangeType: ChangeRemoval},
		{PartID: "a", Quantity: 4, ChangeType: ChangeRemoval},
	}, DiffBOM(canonical, nil))
	require.Equal(t, []BOMLine{{PartID: "b", Quantity: 1}, {PartID: "a", Quantity: 4}, {PartID: "b", Quantity: 2}}, canonical)
}
