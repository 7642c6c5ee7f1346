package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lineAt(id, groupID int64, product string, qty int, price float64, state OrderState, createdAt time.Time) OrderLine {
	return OrderLine{
		ID:          id,
		GroupID:     groupID,
		ProductName: product,
		Quantity:    qty,
		Price:       price,
		State:       state,
		Address:     "Calle 10 #5-23",
		UserName:    "Santiago",
		UserID:      "user-1",
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
}

func TestConsolidateEmpty(t *testing.T) {
	assert.Nil(t, Consolidate(nil))
	assert.Nil(t, Consolidate([]OrderLine{}))
}

func TestConsolidateFirstAndLastSemantics(t *testing.T) {
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	first := lineAt(1, 100001, "Bandeja Paisa", 1, 25, StatePendiente, base)
	first.Address = "Calle 1"
	first.UserName = "Ana"

	last := lineAt(2, 100001, "Jugo de Lulo", 2, 6, StateEnPreparacion, base.Add(5*time.Minute))
	last.Address = "Calle 2"
	last.UserName = "Otro"
	last.UpdatedAt = base.Add(20 * time.Minute)

	group := Consolidate([]OrderLine{last, first})
	require.NotNil(t, group)

	assert.Equal(t, int64(100001), group.ID)
	assert.Equal(t, "Calle 1", group.Address, "address must come from the earliest line")
	assert.Equal(t, "Ana", group.CustomerName, "customer name must come from the earliest line")
	assert.Equal(t, StateEnPreparacion, group.State, "state must come from the latest line")
	assert.Equal(t, base, group.CreatedAt)
	assert.Equal(t, base.Add(20*time.Minute), group.UpdatedAt)
}

func TestConsolidateKeepsInsertionOrder(t *testing.T) {
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	lines := []OrderLine{
		lineAt(3, 100001, "Arepa", 1, 3, StatePendiente, base.Add(2*time.Minute)),
		lineAt(1, 100001, "Sopa", 2, 10, StatePendiente, base),
		lineAt(2, 100001, "Sopa", 1, 10, StatePendiente, base.Add(time.Minute)),
	}

	group := Consolidate(lines)
	require.NotNil(t, group)
	require.Len(t, group.Products, 3)

	// Creation order, duplicates not merged.
	assert.Equal(t, "Sopa", group.Products[0].Name)
	assert.Equal(t, 2, group.Products[0].Quantity)
	assert.Equal(t, "Sopa", group.Products[1].Name)
	assert.Equal(t, 1, group.Products[1].Quantity)
	assert.Equal(t, "Arepa", group.Products[2].Name)
}

func TestConsolidateBreaksTimestampTiesByID(t *testing.T) {
	at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	lines := []OrderLine{
		lineAt(5, 100001, "Segundo", 1, 0, StatePendiente, at),
		lineAt(4, 100001, "Primero", 1, 0, StatePendiente, at),
	}

	group := Consolidate(lines)
	require.NotNil(t, group)
	assert.Equal(t, "Primero", group.Products[0].Name)
	assert.Equal(t, "Segundo", group.Products[1].Name)
}

func TestGroupLines(t *testing.T) {
	base := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	lines := []OrderLine{
		lineAt(1, 100001, "Sopa", 1, 10, StatePendiente, base),
		lineAt(2, 100002, "Arroz", 1, 5, StateCompletado, base.Add(time.Minute)),
		lineAt(3, 100001, "Jugo", 1, 4, StatePendiente, base.Add(2*time.Minute)),
	}

	byGroup := GroupLines(lines)
	require.Len(t, byGroup, 2)
	assert.Len(t, byGroup[100001], 2)
	assert.Len(t, byGroup[100002], 1)
}

func TestBuildDailyReportStats(t *testing.T) {
	base := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	lines := []OrderLine{
		lineAt(1, 100001, "Sopa", 2, 10, StatePendiente, base),
		lineAt(2, 100002, "Arroz", 1, 5, StateCompletado, base.Add(time.Minute)),
	}

	report := BuildDailyReport(lines)
	require.NotNil(t, report)

	assert.Equal(t, 2, report.Stats.TotalOrders)
	assert.Equal(t, 1, report.Stats.PendingOrders)
	assert.Equal(t, 1, report.Stats.CompleteOrders)
	assert.Equal(t, 5.0, report.Stats.TotalSales, "sales only count completado groups")

	require.Len(t, report.Orders, 2)
	assert.Equal(t, int64(100001), report.Orders[0].ID)
	assert.Equal(t, int64(100002), report.Orders[1].ID)
}

func TestBuildDailyReportSalesSumAllLinesOfCompleteGroup(t *testing.T) {
	base := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	lines := []OrderLine{
		lineAt(1, 100001, "Sopa", 2, 10, StateCompletado, base),
		lineAt(2, 100001, "Jugo", 3, 4, StateCompletado, base.Add(time.Minute)),
	}

	report := BuildDailyReport(lines)
	assert.Equal(t, 1, report.Stats.CompleteOrders)
	assert.Equal(t, 32.0, report.Stats.TotalSales)
}

func TestBuildDailyReportEmpty(t *testing.T) {
	report := BuildDailyReport(nil)
	require.NotNil(t, report)
	assert.Equal(t, DailyStats{}, report.Stats)
	assert.Empty(t, report.Orders)
}
