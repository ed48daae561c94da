package analytics

import (
	"math"
	"sort"
)

const (
	deadStockDays     = 90
	velocityDays      = 30
	stockoutHorizon   = 14
	defaultTopProduct = 10
)

// DeadStockItem is a product holding stock without recent sales.
type DeadStockItem struct {
	ProductID          string  `json:"productId"`
	Name               string  `json:"name"`
	Stock              float64 `json:"stock"`
	Value              float64 `json:"value"`
	LastSoldWithinDays int     `json:"lastSoldWithinDays"`
}

// StockoutItem is a product projected to run out within the horizon.
type StockoutItem struct {
	ProductID         string  `json:"productId"`
	Name              string  `json:"name"`
	Stock             float64 `json:"stock"`
	DailyVelocity     float64 `json:"dailyVelocity"`
	DaysUntilStockout float64 `json:"daysUntilStockout"`
	ReorderLevel      float64 `json:"reorderLevel"`
}

// FindDeadStock returns products with positive stock in branchID that are not
// in recentlySold. Stock is valued at purchase price; the most valuable come
// first.
func FindDeadStock(products []Product, recentlySold map[string]struct{}, branchID string, thresholdDays int) []DeadStockItem {
	out := make([]DeadStockItem, 0)
	for _, product := range products {
		if _, sold := recentlySold[product.ID]; sold {
			continue
		}
		stock := product.Stock(branchID)
		if !stock.IsPositive() {
			continue
		}
		out = append(out, DeadStockItem{
			ProductID:          product.ID,
			Name:               product.Name,
			Stock:              stock.InexactFloat64(),
			Value:              Round2(stock.Mul(product.PurchasePrice).InexactFloat64()),
			LastSoldWithinDays: thresholdDays,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].ProductID < out[j].ProductID
	})
	return out
}

// ProjectStockouts computes days until stockout from units sold over
// velocityWindow days. Products without stock or velocity are skipped and
// only those at or under horizon days are returned, most urgent first.
func ProjectStockouts(products []Product, unitsSold map[string]float64, branchID string, velocityWindow int, horizon float64) []StockoutItem {
	if velocityWindow <= 0 {
		velocityWindow = velocityDays
	}
	out := make([]StockoutItem, 0)
	for _, product := range products {
		stock := product.Stock(branchID).InexactFloat64()
		if stock <= 0 {
			continue
		}
		velocity := unitsSold[product.ID] / float64(velocityWindow)
		if velocity <= 0 {
			continue
		}
		days := stock / velocity
		if days > horizon {
			continue
		}
		out = append(out, StockoutItem{
			ProductID:         product.ID,
			Name:              product.Name,
			Stock:             stock,
			DailyVelocity:     Round2(velocity),
			DaysUntilStockout: math.Round(days*10) / 10,
			ReorderLevel:      product.ReorderLevel(branchID).InexactFloat64(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DaysUntilStockout != out[j].DaysUntilStockout {
			return out[i].DaysUntilStockout < out[j].DaysUntilStockout
		}
		return out[i].ProductID < out[j].ProductID
	})
	return out
}
