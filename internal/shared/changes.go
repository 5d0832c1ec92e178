package shared

import (
	"fmt"
	"strconv"
	"strings"
)

// Change describes one edited field for human-readable summaries.
type Change struct {
	Field string
	Label string
	Old   string
	New   string
}

const (
	// FieldQuantity marks a stock quantity change.
	FieldQuantity = "quantity"
	// FieldPrice marks a price change.
	FieldPrice = "price"
)

// SummarizeChanges renders a one-line description of the edits made to name.
// kind ("Part", "Product") is used when nothing changed.
func SummarizeChanges(kind, name string, changes []Change) string {
	switch len(changes) {
	case 0:
		return fmt.Sprintf("%s %s has been updated", kind, name)
	case 1:
		c := changes[0]
		switch c.Field {
		case FieldQuantity:
			oldQty, _ := strconv.ParseInt(c.Old, 10, 64)
			newQty, _ := strconv.ParseInt(c.New, 10, 64)
			direction := "decreased"
			if newQty > oldQty {
				direction = "increased"
			}
			diff := newQty - oldQty
			if diff < 0 {
				diff = -diff
			}
			return fmt.Sprintf("%s's quantity %s by %d units (from %s to %s)", name, direction, diff, c.Old, c.New)
		case FieldPrice:
			return fmt.Sprintf("%s's price changed from RM%s to RM%s", name, c.Old, c.New)
		default:
			return fmt.Sprintf("%s's %s changed from %q to %q", name, strings.ToLower(c.Label), c.Old, c.New)
		}
	case 2:
		return fmt.Sprintf("%s's %s and %s have been updated", name, strings.ToLower(changes[0].Label), strings.ToLower(changes[1].Label))
	default:
		return fmt.Sprintf("%s has been updated with changes to %d fields", name, len(changes))
	}
}
