package alert

import (
	"fmt"
	"math"

	"github.com/rickgao/market-stream/internal/model"
)

// Triggered reports whether a's condition holds for the cached point.
func Triggered(a model.PriceAlert, p model.PricePoint) bool {
	switch a.Type {
	case model.AlertAbove:
		return p.Price >= a.TriggerPrice
	case model.AlertBelow:
		return p.Price <= a.TriggerPrice
	case model.AlertChangePercent:
		return math.Abs(p.ChangePercent) >= a.TriggerPrice
	default:
		return false
	}
}

// Message renders the human-readable text sent with a triggered alert.
func Message(a model.PriceAlert, p model.PricePoint) string {
	switch a.Type {
	case model.AlertAbove:
		return fmt.Sprintf("%s is at %.2f, at or above your target of %.2f", a.Symbol, p.Price, a.TriggerPrice)
	case model.AlertBelow:
		return fmt.Sprintf("%s is at %.2f, at or below your target of %.2f", a.Symbol, p.Price, a.TriggerPrice)
	case model.AlertChangePercent:
		return fmt.Sprintf("%s moved %+.2f%% (threshold %.2f%%), now at %.2f", a.Symbol, p.ChangePercent, a.TriggerPrice, p.Price)
	default:
		return fmt.Sprintf("%s alert triggered at %.2f", a.Symbol, p.Price)
	}
}
