package analytics

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestAgingLabelBoundaries(t *testing.T) {
	cases := map[int]string{
		-5: AgingCurrent,
		0:  AgingCurrent,
		30: AgingCurrent,
		31: Aging31To60,
		45: Aging31To60,
		60: Aging31To60,
		61: Aging61To90,
		90: Aging61To90,
		91: AgingOver90,
	}
	for days, want := range cases {
		require.Equal(t, want, AgingLabel(days), "days %d", days)
	}
}

func TestBucketAging(t *testing.T) {
	asOf := time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)
	ago := func(days int) time.Time { return asOf.AddDate(0, 0, -days) }
	items := []OpenItem{
		{Outstanding: decimal.NewFromInt(100), Reference: ago(10)},
		{Outstanding: decimal.NewFromInt(50), Reference: ago(-5)},
		{Outstanding: decimal.NewFromInt(200), Reference: ago(45)},
		{Outstanding: decimal.NewFromInt(300), Reference: ago(75)},
		{Outstanding: decimal.NewFromInt(400), Reference: ago(120)},
		{Outstanding: decimal.Zero, Reference: ago(120)},
	}
	require.Equal(t, []AgingBucket{
		{Range: AgingCurrent, Amount: 150, Count: 2},
		{Range: Aging31To60, Amount: 200, Count: 1},
		{Range: Aging61To90, Amount: 300, Count: 1},
		{Range: AgingOver90, Amount: 400, Count: 1},
	}, BucketAging(items, asOf))

	empty := BucketAging(nil, asOf)
	require.Len(t, empty, 4)
	for _, bucket := range empty {
		require.Zero(t, bucket.Amount)
	}
}

func TestReceivableItemsPreferDueDate(t *testing.T) {
	due := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	items := receivableItems([]SaleTransaction{
		{ID: "s1", Date: due.AddDate(0, -1, 0), DueDate: &due, Status: StatusActive, DueAmount: decimal.NewFromInt(10)},
		{ID: "s2", Date: due, Status: StatusCancelled, DueAmount: decimal.NewFromInt(10)},
		{ID: "s3", Date: due, Status: StatusActive, DueAmount: decimal.Zero},
	})
	require.Len(t, items, 1)
	require.Equal(t, due, items[0].Reference)
}

func TestFindDeadStock(t *testing.T) {
	stock := func(branch string, qty int64) BranchStock {
		return BranchStock{BranchID: branch, Quantity: decimal.NewFromInt(qty)}
	}
	products := []Product{
		{ID: "p1", Name: "Sold", PurchasePrice: decimal.NewFromInt(10), Inventory: []BranchStock{stock("b1", 5)}},
		{ID: "p2", Name: "Cheap", PurchasePrice: decimal.NewFromInt(2), Inventory: []BranchStock{stock("b1", 10)}},
		{ID: "p3", Name: "Dear", PurchasePrice: decimal.NewFromInt(50), Inventory: []BranchStock{stock("b1", 1), stock("b2", 3)}},
		{ID: "p4", Name: "Empty", PurchasePrice: decimal.NewFromInt(50)},
	}
	recent := map[string]struct{}{"p1": {}}

	got := FindDeadStock(products, recent, "", 90)
	require.Len(t, got, 2)
	require.Equal(t, "p3", got[0].ProductID)
	require.Equal(t, 200.0, got[0].Value)
	require.Equal(t, "p2", got[1].ProductID)

	got = FindDeadStock(products, recent, "b2", 90)
	require.Len(t, got, 1)
	require.Equal(t, 3.0, got[0].Stock)
}

func TestProjectStockouts(t *testing.T) {
	products := []Product{
		{ID: "p1", Inventory: []BranchStock{{BranchID: "b1", Quantity: decimal.NewFromInt(50)}}},
		{ID: "p2", Inventory: []BranchStock{{BranchID: "b1", Quantity: decimal.NewFromInt(2), ReorderLevel: decimal.NewFromInt(5)}}},
		{ID: "p3", Inventory: []BranchStock{{BranchID: "b1", Quantity: decimal.NewFromInt(3)}}},
		{ID: "p4", Inventory: []BranchStock{{BranchID: "b1", Quantity: decimal.NewFromInt(9)}}},
	}
	units := map[string]float64{"p1": 10, "p2": 5, "p3": 30}

	got := ProjectStockouts(products, units, "b1", 30, 14)
	require.Len(t, got, 2)
	require.Equal(t, "p3", got[0].ProductID)
	require.Equal(t, 3.0, got[0].DaysUntilStockout)
	require.Equal(t, "p2", got[1].ProductID)
	require.Equal(t, 12.0, got[1].DaysUntilStockout)
	require.Equal(t, 0.17, got[1].DailyVelocity)
	require.Equal(t, 5.0, got[1].ReorderLevel)
}
