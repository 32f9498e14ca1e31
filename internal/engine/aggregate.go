package engine

import (
	"math"
	"sort"

	"github.com/rickgao/market-stream/internal/model"
)

// DefaultTrendingLimit is used when GetTrendingSymbols is called with limit <= 0.
const DefaultTrendingLimit = 10

// GetMarketSummary aggregates the cached entries of every category.
// Categories with no entries are reported with zero counts.
func (e *Engine) GetMarketSummary() map[model.Category]model.CategorySummary {
	out := make(map[model.Category]model.CategorySummary, len(model.Categories))
	for _, c := range model.Categories {
		out[c] = summarize(e.store.Entries(c))
	}
	return out
}

func summarize(entries []model.CacheEntry) model.CategorySummary {
	var s model.CategorySummary
	if len(entries) == 0 {
		return s
	}

	var total float64
	for _, entry := range entries {
		cp := entry.Point.ChangePercent
		total += cp
		switch {
		case cp > 0:
			s.PositiveCount++
		case cp < 0:
			s.NegativeCount++
		default:
			s.NeutralCount++
		}
		if entry.UpdatedAt.After(s.LastUpdated) {
			s.LastUpdated = entry.UpdatedAt
		}
	}
	s.TickerCount = len(entries)
	s.AvgChangePercent = total / float64(len(entries))
	return s
}

// GetTrendingSymbols returns up to limit cached points ranked by
// volume * |change_percent|, highest first.
func (e *Engine) GetTrendingSymbols(limit int) []model.PricePoint {
	if limit <= 0 {
		limit = DefaultTrendingLimit
	}

	entries := e.store.All()
	points := make([]model.PricePoint, len(entries))
	for i, entry := range entries {
		points[i] = entry.Point
	}

	sort.Slice(points, func(i, j int) bool {
		si, sj := trendScore(points[i]), trendScore(points[j])
		if si != sj {
			return si > sj
		}
		return points[i].Symbol < points[j].Symbol
	})

	if len(points) > limit {
		points = points[:limit]
	}
	return points
}

func trendScore(p model.PricePoint) float64 {
	return float64(p.Volume) * math.Abs(p.ChangePercent)
}
