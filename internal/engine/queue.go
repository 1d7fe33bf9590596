package engine

import (
	"github.com/shopspring/decimal"

	"github.com/rtpalgo/terminal/internal/types"
)

// conditionalEntry is one row waiting for its trigger price to be
// crossed before the entry order goes out.
type conditionalEntry struct {
	input         types.RowInput
	token         string
	tradingSymbol string
}

func (e conditionalEntry) row() int { return e.input.RowID }

// fired reports whether the last price has crossed the trigger.
func (e conditionalEntry) fired(price decimal.Decimal) bool {
	switch e.input.Trigger {
	case types.TriggerAbove:
		return price.GreaterThanOrEqual(e.input.TriggerPrice)
	case types.TriggerBelow:
		return price.LessThanOrEqual(e.input.TriggerPrice)
	default:
		return false
	}
}

// stopTargetEntry is one open position waiting for its stoploss or
// target to be hit.
type stopTargetEntry struct {
	input         types.RowInput
	token         string
	tradingSymbol string
	entryOrderID  string
}

func (e stopTargetEntry) row() int { return e.input.RowID }

// closeReason returns the exit reason the last price calls for, or ""
// when the position should stay open. Stoploss is checked before
// target so a bar that sweeps both closes as a loss.
func (e stopTargetEntry) closeReason(price decimal.Decimal) string {
	in := e.input
	switch in.Side {
	case types.SideBuy:
		if in.HasStoploss() && price.LessThanOrEqual(in.Stoploss) {
			return exitStoploss
		}
		if in.HasTarget() && price.GreaterThanOrEqual(in.Target) {
			return exitTarget
		}
	case types.SideSell:
		if in.HasStoploss() && price.GreaterThanOrEqual(in.Stoploss) {
			return exitStoploss
		}
		if in.HasTarget() && price.LessThanOrEqual(in.Target) {
			return exitTarget
		}
	}
	return ""
}

// openEntry is one open position with no stoploss or target. It is not
// price-monitored; the queue only keeps the row addressable for MODIFY,
// CANCEL and EXIT.
type openEntry struct {
	input         types.RowInput
	token         string
	tradingSymbol string
	entryOrderID  string
}

func (e openEntry) row() int { return e.input.RowID }

const (
	exitStoploss = "STOPLOSS"
	exitTarget   = "TARGET"
	exitManual   = "EXIT"
)

type rowEntry interface {
	row() int
}

// withoutRow returns a fresh slice with every entry for rowID removed.
// Queues are replaced, never mutated in place, so monitor snapshots
// taken before the removal stay valid.
func withoutRow[E rowEntry](entries []E, rowID int) []E {
	out := make([]E, 0, len(entries))
	for _, e := range entries {
		if e.row() != rowID {
			out = append(out, e)
		}
	}
	return out
}

func containsRow[E rowEntry](entries []E, rowID int) bool {
	for _, e := range entries {
		if e.row() == rowID {
			return true
		}
	}
	return false
}
