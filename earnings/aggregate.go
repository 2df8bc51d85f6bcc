package earnings

import "sort"

// SumByUser totals earning amounts per recipient.
func SumByUser(es []Earning) map[UserID]Cents {
	out := make(map[UserID]Cents)
	for _, e := range es {
		out[e.UserID] += e.Amount
	}
	return out
}

// SumByType totals earning amounts per earning type.
func SumByType(es []Earning) map[EarningType]Cents {
	out := make(map[EarningType]Cents)
	for _, e := range es {
		out[e.Type] += e.Amount
	}
	return out
}

// UserTotal is one row of a per-user summary.
type UserTotal struct {
	UserID UserID
	Amount Cents
}

// SortedTotals flattens a per-user map into a slice ordered by user id, so
// reports are stable.
func SortedTotals(m map[UserID]Cents) []UserTotal {
	out := make([]UserTotal, 0, len(m))
	for u, a := range m {
		out = append(out, UserTotal{UserID: u, Amount: a})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
