package quotes

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rickgao/market-stream/internal/model"
)

// ErrNoSymbols is returned when a batch request names no symbols.
var ErrNoSymbols = errors.New("no symbols requested")

// barsPerSymbol is enough to compute change against the previous bar.
const barsPerSymbol = 2

// BarsResponse from GET /v1/bars/latest
type BarsResponse struct {
	Bars map[string][]APIBar `json:"bars"`
}

// APIBar is one OHLCV bar on the wire. High and low are optional.
type APIBar struct {
	Time   string   `json:"t"` // RFC 3339
	Open   float64  `json:"o"`
	High   *float64 `json:"h"`
	Low    *float64 `json:"l"`
	Close  float64  `json:"c"`
	Volume int64    `json:"v"`
}

// ToModel converts a wire bar. Unparseable timestamps become the zero time.
func (b APIBar) ToModel() model.Bar {
	ts, _ := time.Parse(time.RFC3339, b.Time)
	return model.Bar{
		Time:   ts,
		Open:   b.Open,
		High:   b.High,
		Low:    b.Low,
		Close:  b.Close,
		Volume: b.Volume,
	}
}

// LatestBars fetches the most recent bars for each upstream symbol.
// The result is keyed by the symbol exactly as requested; symbols missing
// from the response, or with no bars, are absent from the map.
func (c *Client) LatestBars(ctx context.Context, symbols []string) (map[string][]model.Bar, error) {
	if len(symbols) == 0 {
		return nil, ErrNoSymbols
	}

	query := url.Values{}
	query.Set("symbols", strings.Join(symbols, ","))
	query.Set("limit", strconv.Itoa(barsPerSymbol))

	var resp BarsResponse
	if err := c.get(ctx, "/v1/bars/latest", query, &resp); err != nil {
		return nil, fmt.Errorf("get latest bars: %w", err)
	}

	// Provider keys may differ in case from what we asked for.
	byUpper := make(map[string][]APIBar, len(resp.Bars))
	for sym, bars := range resp.Bars {
		byUpper[strings.ToUpper(sym)] = bars
	}

	out := make(map[string][]model.Bar, len(symbols))
	for _, sym := range symbols {
		wire, ok := byUpper[strings.ToUpper(sym)]
		if !ok || len(wire) == 0 {
			continue
		}
		bars := make([]model.Bar, 0, len(wire))
		for _, b := range wire {
			bars = append(bars, b.ToModel())
		}
		sort.SliceStable(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
		out[sym] = bars
	}

	return out, nil
}

// FetchPoint fetches a single symbol on demand and converts it to a PricePoint.
func (c *Client) FetchPoint(ctx context.Context, category model.Category, symbol string) (model.PricePoint, error) {
	upstream := category.UpstreamSymbol(symbol)

	bars, err := c.LatestBars(ctx, []string{upstream})
	if err != nil {
		return model.PricePoint{}, err
	}

	p, ok := model.PointFromBars(symbol, category, bars[upstream], time.Now())
	if !ok {
		return model.PricePoint{}, fmt.Errorf("no bars for %s", upstream)
	}
	return p, nil
}
