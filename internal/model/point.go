package model

import "time"

// PointFromBars builds a PricePoint from bars ordered oldest first.
// Change is measured against the previous bar's close; with a single bar, or
// a zero previous close, the respective change fields are zero.
// Returns false when there are no bars.
func PointFromBars(symbol string, category Category, bars []Bar, observedAt time.Time) (PricePoint, bool) {
	if len(bars) == 0 {
		return PricePoint{}, false
	}

	latest := bars[len(bars)-1]
	p := PricePoint{
		Symbol:     NormalizeSymbol(symbol),
		Category:   category,
		Price:      latest.Close,
		Volume:     latest.Volume,
		High:       latest.High,
		Low:        latest.Low,
		ObservedAt: observedAt,
	}

	if len(bars) >= 2 {
		prev := bars[len(bars)-2].Close
		p.Change = latest.Close - prev
		if prev != 0 {
			p.ChangePercent = p.Change / prev * 100
		}
	}

	return p, true
}
