package analytics

import (
	"slices"
	"strings"
)

const (
	basketLookbackMonths = 6
	defaultMinSupport    = 2
	defaultTopK          = 10
)

// ProductPair is a co-occurring product pair.
type ProductPair struct {
	ProductA string  `json:"productA"`
	ProductB string  `json:"productB"`
	NameA    string  `json:"nameA"`
	NameB    string  `json:"nameB"`
	Count    int     `json:"count"`
	Support  float64 `json:"support"`
}

// BasketOptions tunes the association miner.
type BasketOptions struct {
	MinSupport int
	TopK       int
}

func (o BasketOptions) withDefaults() BasketOptions {
	if o.MinSupport <= 0 {
		o.MinSupport = defaultMinSupport
	}
	if o.TopK <= 0 {
		o.TopK = defaultTopK
	}
	return o
}

type pairKey struct {
	a, b string
}

// MinePairs counts unordered product pairs across baskets. Item ids are
// deduplicated per basket; pairs below MinSupport are dropped and the TopK by
// count (ties broken by ids) are returned. names enriches the result and may
// be nil.
func MinePairs(baskets [][]string, names map[string]string, opts BasketOptions) []ProductPair {
	opts = opts.withDefaults()
	counts := make(map[pairKey]int)
	nonEmpty := 0
	for _, basket := range baskets {
		items := dedupeSorted(basket)
		if len(items) == 0 {
			continue
		}
		nonEmpty++
		for i := 0; i < len(items); i++ {
			for j := i + 1; j < len(items); j++ {
				counts[pairKey{a: items[i], b: items[j]}]++
			}
		}
	}

	pairs := make([]ProductPair, 0, len(counts))
	for key, count := range counts {
		if count < opts.MinSupport {
			continue
		}
		pairs = append(pairs, ProductPair{
			ProductA: key.a,
			ProductB: key.b,
			NameA:    names[key.a],
			NameB:    names[key.b],
			Count:    count,
			Support:  Round2(SafeDiv(float64(count), float64(nonEmpty))),
		})
	}
	slices.SortFunc(pairs, func(x, y ProductPair) int {
		if x.Count != y.Count {
			return y.Count - x.Count
		}
		if c := strings.Compare(x.ProductA, y.ProductA); c != 0 {
			return c
		}
		return strings.Compare(x.ProductB, y.ProductB)
	})
	if len(pairs) > opts.TopK {
		pairs = pairs[:opts.TopK]
	}
	return pairs
}

func dedupeSorted(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	slices.Sort(out)
	return out
}

// basketsFrom turns active sales into product-id baskets.
func basketsFrom(sales []SaleTransaction, window Window) [][]string {
	baskets := make([][]string, 0, len(sales))
	for _, sale := range sales {
		if sale.Excluded() || !window.Contains(sale.Date) {
			continue
		}
		items := make([]string, 0, len(sale.Items))
		for _, item := range sale.Items {
			items = append(items, item.ProductID)
		}
		baskets = append(baskets, items)
	}
	return baskets
}

func monthsBack(w Window, months int) Window {
	return Window{Start: w.End.AddDate(0, -months, 0), End: w.End}
}
