package subscription

import "github.com/rickgao/market-stream/internal/model"

// ChanOutbound is an Outbound backed by a buffered channel. Push drops the
// event when the buffer is full.
type ChanOutbound chan model.Event

// Push queues ev without blocking.
func (c ChanOutbound) Push(ev model.Event) bool {
	select {
	case c <- ev:
		return true
	default:
		return false
	}
}
