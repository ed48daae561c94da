package analytics

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestScoreRFMSegments(t *testing.T) {
	cases := []struct {
		name      string
		recency   float64
		frequency int64
		monetary  float64
		want      string
	}{
		{"champion", 10, 11, 60000, SegmentChampion},
		{"at risk", 100, 5, 60000, SegmentAtRisk},
		{"new customer", 5, 1, 100, SegmentNewCustomer},
		{"loyal", 60, 12, 100, SegmentLoyal},
		{"standard", 60, 2, 100, SegmentStandard},
		{"boundaries stay in the lower score", 30, 10, 50000, SegmentStandard},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, ScoreRFM(tc.recency, tc.frequency, tc.monetary).Segment())
		})
	}
	require.Equal(t, RFMScore{Recency: 2, Frequency: 2, Monetary: 2}, ScoreRFM(30, 10, 50000))
}

func TestSegmentCustomersCountsEveryLabel(t *testing.T) {
	asOf := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
	got := SegmentCustomers([]CustomerActivity{
		{CustomerID: "c1", LastPurchase: asOf.AddDate(0, 0, -3), Purchases: 20, Spend: 90000},
		{CustomerID: "c2", LastPurchase: asOf.AddDate(0, 0, -200), Purchases: 4, Spend: 70000},
		{CustomerID: "c3", LastPurchase: asOf.AddDate(0, 0, -1), Purchases: 1, Spend: 50},
		{CustomerID: "", LastPurchase: asOf, Purchases: 99, Spend: 99999},
	}, asOf)
	require.Equal(t, RFMSegments{Champion: 1, AtRisk: 1, NewCustomer: 1}, got)

	raw, err := json.Marshal(got)
	require.NoError(t, err)
	require.JSONEq(t, `{"Champion":1,"At Risk":1,"Loyal":0,"New Customer":1,"Standard":0}`, string(raw))
}

func TestBuildCohortMatrix(t *testing.T) {
	month := func(m time.Month, d int) time.Time { return time.Date(2025, m, d, 12, 0, 0, 0, time.UTC) }
	first := map[string]time.Time{
		"c0": time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		"c1": month(time.January, 5),
		"c2": month(time.January, 20),
		"c3": month(time.February, 3),
	}
	activity := []MonthlyActivity{
		{CustomerID: "c1", Month: month(time.January, 1)},
		{CustomerID: "c2", Month: month(time.January, 1)},
		{CustomerID: "c1", Month: month(time.February, 1)},
		{CustomerID: "c3", Month: month(time.February, 1)},
		{CustomerID: "c1", Month: month(time.March, 1)},
		{CustomerID: "c1", Month: month(time.March, 1)},
		{CustomerID: "c0", Month: month(time.March, 1)},
	}
	cells := BuildCohortMatrix(first, activity, month(time.January, 1), time.UTC)
	require.Equal(t, []CohortCell{
		{Cohort: "2025-01", ActivityMonth: "2025-01", MonthsSince: 0, Count: 2, Retention: 100},
		{Cohort: "2025-01", ActivityMonth: "2025-02", MonthsSince: 1, Count: 1, Retention: 50},
		{Cohort: "2025-01", ActivityMonth: "2025-03", MonthsSince: 2, Count: 1, Retention: 50},
		{Cohort: "2025-02", ActivityMonth: "2025-02", MonthsSince: 0, Count: 1, Retention: 100},
	}, cells)

	sizes := map[string]int{}
	for _, cell := range cells {
		if cell.MonthsSince == 0 {
			sizes[cell.Cohort] = cell.Count
			continue
		}
		require.LessOrEqual(t, cell.Count, sizes[cell.Cohort])
	}
}
