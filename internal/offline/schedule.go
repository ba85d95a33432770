package offline

import "slices"

// Schedule returns the rack of every node in allocation order. It starts at
// the first rack with capacity and moves to the next rack that still has
// nodes left, wrapping around, until every rack is exhausted. Non-positive
// counts are treated as empty racks. nodesPerRack is not modified.
func Schedule(nodesPerRack []int) []int {
	remaining := slices.Clone(nodesPerRack)
	total := 0
	for i, n := range remaining {
		if n < 0 {
			remaining[i] = 0
		}
		total += remaining[i]
	}

	order := make([]int, 0, total)
	rack := slices.IndexFunc(remaining, func(n int) bool { return n > 0 })
	if rack < 0 {
		return order
	}
	for remaining[rack] > 0 {
		order = append(order, rack)

		next := (rack + 1) % len(remaining)
		for remaining[next] == 0 && next != rack {
			next = (next + 1) % len(remaining)
		}
		remaining[rack]--
		rack = next
	}
	return order
}
