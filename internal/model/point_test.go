package model

import (
	"math"
	"testing"
	"time"
)

func TestPointFromBars(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	high := 106.0

	tests := []struct {
		name        string
		bars        []Bar
		wantOK      bool
		wantPrice   float64
		wantChange  float64
		wantPercent float64
	}{
		{
			name:   "no bars",
			bars:   nil,
			wantOK: false,
		},
		{
			name:      "single bar",
			bars:      []Bar{{Close: 50, Volume: 10}},
			wantOK:    true,
			wantPrice: 50,
		},
		{
			name:        "rise against previous close",
			bars:        []Bar{{Close: 100}, {Close: 105, High: &high, Volume: 7}},
			wantOK:      true,
			wantPrice:   105,
			wantChange:  5,
			wantPercent: 5,
		},
		{
			name:        "fall against previous close",
			bars:        []Bar{{Close: 90}, {Close: 80}, {Close: 60}},
			wantOK:      true,
			wantPrice:   60,
			wantChange:  -20,
			wantPercent: -25,
		},
		{
			name:       "zero previous close",
			bars:       []Bar{{Close: 0}, {Close: 3}},
			wantOK:     true,
			wantPrice:  3,
			wantChange: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := PointFromBars("eqnr.ol", CategoryDomestic, tt.bars, now)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if p.Symbol != "EQNR" {
				t.Errorf("Symbol = %q, want EQNR", p.Symbol)
			}
			if p.Category != CategoryDomestic {
				t.Errorf("Category = %q", p.Category)
			}
			if p.Price != tt.wantPrice {
				t.Errorf("Price = %v, want %v", p.Price, tt.wantPrice)
			}
			if math.Abs(p.Change-tt.wantChange) > 1e-9 {
				t.Errorf("Change = %v, want %v", p.Change, tt.wantChange)
			}
			if math.Abs(p.ChangePercent-tt.wantPercent) > 1e-9 {
				t.Errorf("ChangePercent = %v, want %v", p.ChangePercent, tt.wantPercent)
			}
			if !p.ObservedAt.Equal(now) {
				t.Errorf("ObservedAt = %v, want %v", p.ObservedAt, now)
			}
		})
	}
}
