package domain

import "sort"

// sortLines orders lines by creation time, breaking wall-clock ties by row
// identity so that rows inserted in the same instant keep insertion order.
func sortLines(lines []OrderLine) {
	sort.SliceStable(lines, func(i, j int) bool {
		if lines[i].CreatedAt.Equal(lines[j].CreatedAt) {
			return lines[i].ID < lines[j].ID
		}
		return lines[i].CreatedAt.Before(lines[j].CreatedAt)
	})
}

// Consolidate merges all lines of one group into a single OrderGroup view.
// Address and customer name come from the earliest line, state and updated_at
// from the latest, and products keep line-creation order without deduplication.
// Returns nil for an empty line set.
func Consolidate(lines []OrderLine) *OrderGroup {
	if len(lines) == 0 {
		return nil
	}

	ordered := make([]OrderLine, len(lines))
	copy(ordered, lines)
	sortLines(ordered)

	first := ordered[0]
	last := ordered[len(ordered)-1]

	group := &OrderGroup{
		ID:           first.GroupID,
		Address:      first.Address,
		CustomerName: first.UserName,
		Products:     make([]Product, 0, len(ordered)),
		State:        last.State,
		CreatedAt:    first.CreatedAt,
		UpdatedAt:    last.UpdatedAt,
	}
	for _, line := range ordered {
		group.Products = append(group.Products, Product{
			Name:     line.ProductName,
			Quantity: line.Quantity,
			Price:    line.Price,
			Details:  line.Details,
			Adicion:  line.Adicion,
		})
	}
	return group
}

// GroupLines partitions a mixed line set by group id.
func GroupLines(lines []OrderLine) map[int64][]OrderLine {
	byGroup := make(map[int64][]OrderLine)
	for _, line := range lines {
		byGroup[line.GroupID] = append(byGroup[line.GroupID], line)
	}
	return byGroup
}

// BuildDailyReport consolidates a day's unpaid lines into per-group views plus
// aggregate stats. Sales only count lines belonging to completado groups, using
// price times quantity per line. Groups are listed in ascending group-id order.
func BuildDailyReport(lines []OrderLine) *DailyReport {
	byGroup := GroupLines(lines)

	groupIDs := make([]int64, 0, len(byGroup))
	for id := range byGroup {
		groupIDs = append(groupIDs, id)
	}
	sort.Slice(groupIDs, func(i, j int) bool { return groupIDs[i] < groupIDs[j] })

	report := &DailyReport{
		Orders: make([]*OrderGroup, 0, len(groupIDs)),
	}
	for _, id := range groupIDs {
		groupLines := byGroup[id]
		group := Consolidate(groupLines)
		if group == nil {
			continue
		}

		report.Stats.TotalOrders++
		switch group.State {
		case StatePendiente:
			report.Stats.PendingOrders++
		case StateCompletado:
			report.Stats.CompleteOrders++
			for _, line := range groupLines {
				report.Stats.TotalSales += line.Price * float64(line.Quantity)
			}
		}
		report.Orders = append(report.Orders, group)
	}
	return report
}
