package pipeline

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func saleFact(tenant, branch, customer, status string, at time.Time, total float64) Fact {
	return Fact{
		TenantID: tenant,
		BranchID: branch,
		At:       at,
		Status:   status,
		Keys:     map[Field]string{FieldCustomerID: customer},
		Values:   map[Field]decimal.Decimal{FieldTotalAmount: decimal.NewFromFloat(total)},
	}
}

func TestRunScopesAndExcludesCancelled(t *testing.T) {
	day := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	facts := []Fact{
		saleFact("t1", "b1", "c1", "active", day, 100),
		saleFact("t1", "b2", "c2", "active", day, 50),
		saleFact("t1", "b1", "c1", "cancelled", day, 999),
		saleFact("t2", "b1", "c9", "active", day, 700),
	}
	q, err := From(SourceSales).Scope("t1", "b1").
		Sum("revenue", FieldTotalAmount).
		Count("orders").
		CountDistinct("customers", FieldCustomerID).
		Build()
	require.NoError(t, err)

	rows, err := Run(q, facts)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, 100.0, rows[0].Float("revenue"))
	require.Equal(t, int64(1), rows[0].Int("orders"))
	require.Equal(t, int64(1), rows[0].Int("customers"))
}

func TestRunCancelledOnlyCounts(t *testing.T) {
	day := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	facts := []Fact{
		saleFact("t1", "", "c1", "active", day, 100),
		saleFact("t1", "", "c1", "cancelled", day, 10),
		saleFact("t1", "", "c2", "void", day, 20),
	}
	q, err := From(SourceSales).Scope("t1", "").Status(StatusCancelled).Count("orders").Build()
	require.NoError(t, err)
	rows, err := Run(q, facts)
	require.NoError(t, err)
	require.Equal(t, int64(2), First(rows).Int("orders"))
}

func TestRunHalfOpenWindow(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	facts := []Fact{
		saleFact("t1", "", "c1", "active", start, 1),
		saleFact("t1", "", "c1", "active", end.Add(-time.Millisecond), 2),
		saleFact("t1", "", "c1", "active", end, 4),
	}
	q, err := From(SourceSales).Scope("t1", "").Between(start, end).Sum("revenue", FieldTotalAmount).Build()
	require.NoError(t, err)
	rows, err := Run(q, facts)
	require.NoError(t, err)
	require.Equal(t, 3.0, First(rows).Float("revenue"))
}

func TestRunEmptyResultYieldsZeroRow(t *testing.T) {
	q, err := From(SourceSales).Scope("t1", "").Sum("revenue", FieldTotalAmount).Build()
	require.NoError(t, err)
	rows, err := Run(q, nil)
	require.NoError(t, err)
	require.Empty(t, rows)
	row := First(rows)
	require.True(t, row.Decimal("revenue").IsZero())
	require.Zero(t, row.Int("orders"))
}

func TestRunBucketsAndOrdering(t *testing.T) {
	facts := []Fact{
		saleFact("t1", "", "c1", "active", time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC), 10),
		saleFact("t1", "", "c2", "active", time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), 5),
		saleFact("t1", "", "c1", "active", time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC), 7),
	}
	q, err := From(SourceSales).Scope("t1", "").Bucket(GranularityMonth, time.UTC).Sum("revenue", FieldTotalAmount).Build()
	require.NoError(t, err)
	rows, err := Run(q, facts)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "2025-01", Label(rows[0].Bucket, GranularityMonth))
	require.Equal(t, 12.0, rows[0].Float("revenue"))
	require.Equal(t, 10.0, rows[1].Float("revenue"))

	q, err = From(SourceSales).Scope("t1", "").By(FieldCustomerID).Sum("spend", FieldTotalAmount).
		MinTime("first").OrderBy("spend", true).Limit(1).Build()
	require.NoError(t, err)
	rows, err = Run(q, facts)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "c1", rows[0].Key)
	require.Equal(t, time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC), rows[0].Time("first"))
}

func TestBuildRejectsInvalidQueries(t *testing.T) {
	_, err := From(SourceSales).Sum("revenue", FieldTotalAmount).Build()
	require.ErrorIs(t, err, ErrInvalidQuery)

	_, err = From(SourceSales).Scope("t1", "").Sum("qty", FieldQuantity).Build()
	require.ErrorIs(t, err, ErrInvalidQuery)

	_, err = From(SourceCustomers).Scope("t1", "").By(FieldProductID).Count("n").Build()
	require.ErrorIs(t, err, ErrInvalidQuery)

	_, err = From(SourceSales).Scope("t1", "").Count("n").Count("n").Build()
	require.ErrorIs(t, err, ErrInvalidQuery)
}

func TestTruncateWeekStartsMonday(t *testing.T) {
	sunday := time.Date(2025, 3, 16, 18, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), Truncate(sunday, GranularityWeek, time.UTC))
	monday := time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC)
	require.Equal(t, monday, Truncate(monday, GranularityWeek, time.UTC))
}

func TestBucketsCoverWindow(t *testing.T) {
	from := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	buckets := Buckets(from, to, GranularityMonth, time.UTC)
	require.Len(t, buckets, 3)
	require.Equal(t, "2025-01", Label(buckets[0], GranularityMonth))
	require.Equal(t, "2025-03", Label(buckets[2], GranularityMonth))
	require.Nil(t, Buckets(to, from, GranularityDay, time.UTC))
}
