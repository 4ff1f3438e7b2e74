package flight

import (
	"cmp"
	"slices"
)

// Criteria are the named orderings accepted by ReorderBy.
var Criteria = map[string]func(a, b Flight) int{
	// delay moves delayed flights to the back, keeping relative order otherwise.
	"delay": func(a, b Flight) int {
		return cmp.Compare(rankIf(a.Status == StatusDelayed), rankIf(b.Status == StatusDelayed))
	},
	"time": func(a, b Flight) int {
		return a.ScheduledAt.Compare(b.ScheduledAt)
	},
	// emergency moves emergency flights to the front.
	"emergency": func(a, b Flight) int {
		return cmp.Compare(rankIf(a.Status != StatusEmergency), rankIf(b.Status != StatusEmergency))
	},
	"code": func(a, b Flight) int {
		return cmp.Compare(a.Code, b.Code)
	},
}

// CriterionNames returns the keys of Criteria in sorted order.
func CriterionNames() []string {
	names := make([]string, 0, len(Criteria))
	for name := range Criteria {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func rankIf(b bool) int {
	if b {
		return 1
	}
	return 0
}
