package analytics

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Aging bucket labels.
const (
	AgingCurrent  = "0-30 Days"
	Aging31To60   = "31-60 Days"
	Aging61To90   = "61-90 Days"
	AgingOver90   = "91+ Days"
	secondsPerDay = 86400
)

var agingLabels = []string{AgingCurrent, Aging31To60, Aging61To90, AgingOver90}

// AgingBucket summarises outstanding amounts inside a days-overdue range.
type AgingBucket struct {
	Range  string  `json:"range"`
	Amount float64 `json:"amount"`
	Count  int     `json:"count"`
}

// OpenItem is an unpaid or partially paid document.
type OpenItem struct {
	Outstanding decimal.Decimal
	Reference   time.Time
}

// DaysOverdue returns whole days between reference and asOf. Negative values
// are possible for documents not yet due.
func DaysOverdue(reference, asOf time.Time) int {
	return int(math.Floor(asOf.Sub(reference).Seconds() / secondsPerDay))
}

// AgingLabel places days overdue on the [0,31,61,91) boundaries. Negative days
// clamp into the first bucket.
func AgingLabel(days int) string {
	switch {
	case days < 31:
		return AgingCurrent
	case days < 61:
		return Aging31To60
	case days < 91:
		return Aging61To90
	default:
		return AgingOver90
	}
}

// BucketAging aggregates open items as of asOf. All four buckets are always
// returned in ascending order.
func BucketAging(items []OpenItem, asOf time.Time) []AgingBucket {
	amounts := make(map[string]decimal.Decimal, len(agingLabels))
	counts := make(map[string]int, len(agingLabels))
	for _, item := range items {
		if !item.Outstanding.IsPositive() {
			continue
		}
		label := AgingLabel(DaysOverdue(item.Reference, asOf))
		amounts[label] = amounts[label].Add(item.Outstanding)
		counts[label]++
	}
	buckets := make([]AgingBucket, 0, len(agingLabels))
	for _, label := range agingLabels {
		buckets = append(buckets, AgingBucket{
			Range:  label,
			Amount: Round2(amounts[label].InexactFloat64()),
			Count:  counts[label],
		})
	}
	return buckets
}

func receivableItems(sales []SaleTransaction) []OpenItem {
	items := make([]OpenItem, 0, len(sales))
	for _, sale := range sales {
		if sale.Excluded() || !sale.DueAmount.IsPositive() {
			continue
		}
		ref := sale.Date
		if sale.DueDate != nil {
			ref = *sale.DueDate
		}
		items = append(items, OpenItem{Outstanding: sale.DueAmount, Reference: ref})
	}
	return items
}

func payableItems(purchases []PurchaseTransaction) []OpenItem {
	items := make([]OpenItem, 0, len(purchases))
	for _, purchase := range purchases {
		if purchase.Excluded() || !purchase.DueAmount.IsPositive() {
			continue
		}
		ref := purchase.Date
		if purchase.DueDate != nil {
			ref = *purchase.DueDate
		}
		items = append(items, OpenItem{Outstanding: purchase.DueAmount, Reference: ref})
	}
	return items
}
