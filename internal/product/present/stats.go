package present

import (
	"github.com/montanaflynn/stats"
	"github.com/smallbiznis/productdesk/internal/product/domain"
)

type Stats struct {
	Total        int            `json:"total"`
	AveragePrice float64        `json:"average_price"`
	TotalValue   float64        `json:"total_value"`
	Categories   map[string]int `json:"categories"`
}

// Aggregate summarises records. An empty input yields zero values and an
// empty category map.
func Aggregate(records []domain.Response) Stats {
	out := Stats{Categories: map[string]int{}}
	if len(records) == 0 {
		return out
	}

	prices := make(stats.Float64Data, 0, len(records))
	for _, r := range records {
		prices = append(prices, r.Price)
		out.Categories[r.Category]++
	}

	out.Total = len(records)
	out.TotalValue, _ = prices.Sum()
	out.AveragePrice, _ = prices.Mean()
	return out
}
