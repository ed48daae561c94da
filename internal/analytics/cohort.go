package analytics

import (
	"sort"
	"time"

	"github.com/odyssey-erp/odyssey-analytics/internal/analytics/pipeline"
)

const cohortLookbackMonths = 12

// CohortCell is one non-zero entry of the retention matrix.
type CohortCell struct {
	Cohort        string  `json:"cohort"`
	ActivityMonth string  `json:"activityMonth"`
	MonthsSince   int     `json:"monthsSince"`
	Count         int     `json:"count"`
	Retention     float64 `json:"retention"`
}

// MonthlyActivity marks a customer as active in the month starting at Month.
type MonthlyActivity struct {
	CustomerID string
	Month      time.Time
}

// BuildCohortMatrix groups customers by the month of their first purchase and
// counts distinct active members per later month. Only cohorts starting at or
// after since are emitted. Cells are sorted by cohort then activity month.
func BuildCohortMatrix(firstPurchase map[string]time.Time, activity []MonthlyActivity, since time.Time, loc *time.Location) []CohortCell {
	cohortOf := make(map[string]time.Time, len(firstPurchase))
	sizes := make(map[time.Time]int)
	for customerID, first := range firstPurchase {
		if customerID == "" {
			continue
		}
		cohort := pipeline.Truncate(first, pipeline.GranularityMonth, loc)
		if cohort.Before(pipeline.Truncate(since, pipeline.GranularityMonth, loc)) {
			continue
		}
		cohortOf[customerID] = cohort
		sizes[cohort]++
	}

	type cellKey struct {
		cohort   time.Time
		activity time.Time
	}
	members := make(map[cellKey]map[string]struct{})
	for _, a := range activity {
		cohort, ok := cohortOf[a.CustomerID]
		if !ok {
			continue
		}
		month := pipeline.Truncate(a.Month, pipeline.GranularityMonth, loc)
		if month.Before(cohort) {
			continue
		}
		key := cellKey{cohort: cohort, activity: month}
		set, ok := members[key]
		if !ok {
			set = make(map[string]struct{})
			members[key] = set
		}
		set[a.CustomerID] = struct{}{}
	}

	cells := make([]CohortCell, 0, len(members))
	for key, set := range members {
		if len(set) == 0 {
			continue
		}
		cells = append(cells, CohortCell{
			Cohort:        pipeline.Label(key.cohort, pipeline.GranularityMonth),
			ActivityMonth: pipeline.Label(key.activity, pipeline.GranularityMonth),
			MonthsSince:   monthsBetween(key.cohort, key.activity),
			Count:         len(set),
			Retention:     Percentage(float64(len(set)), float64(sizes[key.cohort])),
		})
	}
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Cohort != cells[j].Cohort {
			return cells[i].Cohort < cells[j].Cohort
		}
		return cells[i].ActivityMonth < cells[j].ActivityMonth
	})
	return cells
}

func monthsBetween(from, to time.Time) int {
	return (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
}
