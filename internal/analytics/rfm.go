package analytics

import (
	"math"
	"time"
)

// Segment labels.
const (
	SegmentChampion    = "Champion"
	SegmentAtRisk      = "At Risk"
	SegmentLoyal       = "Loyal"
	SegmentNewCustomer = "New Customer"
	SegmentStandard    = "Standard"
)

const rfmLookback = 365 * 24 * time.Hour

// RFMScore holds the ordinal 1-3 scores of a customer.
type RFMScore struct {
	Recency   int
	Frequency int
	Monetary  int
}

// ScoreRFM scores days since last purchase, purchase count and total spend.
func ScoreRFM(recencyDays float64, frequency int64, monetary float64) RFMScore {
	score := RFMScore{Recency: 1, Frequency: 1, Monetary: 1}
	switch {
	case recencyDays < 30:
		score.Recency = 3
	case recencyDays < 90:
		score.Recency = 2
	}
	switch {
	case frequency > 10:
		score.Frequency = 3
	case frequency > 3:
		score.Frequency = 2
	}
	switch {
	case monetary > 50000:
		score.Monetary = 3
	case monetary > 10000:
		score.Monetary = 2
	}
	return score
}

// Segment applies the first matching rule of the decision list.
func (s RFMScore) Segment() string {
	switch {
	case s.Recency == 3 && s.Frequency == 3 && s.Monetary == 3:
		return SegmentChampion
	case s.Recency == 1 && s.Monetary == 3:
		return SegmentAtRisk
	case s.Recency == 3 && s.Frequency == 1:
		return SegmentNewCustomer
	case s.Frequency == 3:
		return SegmentLoyal
	default:
		return SegmentStandard
	}
}

// RFMSegments counts customers per segment. Every label is always present.
type RFMSegments struct {
	Champion    int `json:"Champion"`
	AtRisk      int `json:"At Risk"`
	Loyal       int `json:"Loyal"`
	NewCustomer int `json:"New Customer"`
	Standard    int `json:"Standard"`
}

func (r *RFMSegments) add(segment string) {
	switch segment {
	case SegmentChampion:
		r.Champion++
	case SegmentAtRisk:
		r.AtRisk++
	case SegmentLoyal:
		r.Loyal++
	case SegmentNewCustomer:
		r.NewCustomer++
	default:
		r.Standard++
	}
}

// CustomerActivity is the per-customer input of RFM scoring.
type CustomerActivity struct {
	CustomerID   string
	LastPurchase time.Time
	Purchases    int64
	Spend        float64
}

// SegmentCustomers scores every customer as of asOf and counts segments.
func SegmentCustomers(activity []CustomerActivity, asOf time.Time) RFMSegments {
	var out RFMSegments
	for _, c := range activity {
		if c.CustomerID == "" {
			continue
		}
		recency := math.Floor(asOf.Sub(c.LastPurchase).Hours() / 24)
		if recency < 0 {
			recency = 0
		}
		out.add(ScoreRFM(recency, c.Purchases, c.Spend).Segment())
	}
	return out
}
