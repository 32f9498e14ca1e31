package cache

import (
	"testing"
	"time"

	"github.com/rickgao/market-stream/internal/model"
)

func TestHistory_AppendAndSince(t *testing.T) {
	h := NewHistory(10)

	for i := 0; i < 5; i++ {
		h.Append("EQNR", model.HistoryPoint{
			Timestamp: t0.Add(time.Duration(i) * time.Minute),
			Price:     float64(100 + i),
			Volume:    int64(i),
		})
	}

	all := h.Since("eqnr.ol", time.Time{})
	if len(all) != 5 {
		t.Fatalf("Since(zero) = %d points, want 5", len(all))
	}
	if all[0].Price != 100 || all[4].Price != 104 {
		t.Errorf("order = %v..%v, want oldest first", all[0].Price, all[4].Price)
	}

	recent := h.Since("EQNR", t0.Add(3*time.Minute))
	if len(recent) != 2 {
		t.Fatalf("Since(t0+3m) = %d points, want 2", len(recent))
	}
	if recent[0].Price != 103 {
		t.Errorf("recent[0].Price = %v, want 103", recent[0].Price)
	}
}

func TestHistory_EvictsOldest(t *testing.T) {
	h := NewHistory(3)

	for i := 0; i < 7; i++ {
		h.Append("DNB", model.HistoryPoint{
			Timestamp: t0.Add(time.Duration(i) * time.Minute),
			Price:     float64(i),
		})
	}

	pts := h.Since("DNB", time.Time{})
	if len(pts) != 3 {
		t.Fatalf("retained = %d, want 3", len(pts))
	}
	want := []float64{4, 5, 6}
	for i, p := range pts {
		if p.Price != want[i] {
			t.Errorf("pts[%d].Price = %v, want %v", i, p.Price, want[i])
		}
	}
}

func TestHistory_UnknownSymbol(t *testing.T) {
	h := NewHistory(0)
	if h.capacity != DefaultHistoryCapacity {
		t.Errorf("capacity = %d, want %d", h.capacity, DefaultHistoryCapacity)
	}
	if pts := h.Since("NOPE", time.Time{}); pts != nil {
		t.Errorf("Since(NOPE) = %v, want nil", pts)
	}
}
