// Package types defines shared types used across the trading terminal.
package types

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side represents the direction of a trade.
type Side int

const (
	SideNone Side = iota
	SideBuy
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return ""
	}
}

// Opposite returns the reversing side, used when closing a position.
func (s Side) Opposite() Side {
	switch s {
	case SideBuy:
		return SideSell
	case SideSell:
		return SideBuy
	default:
		return SideNone
	}
}

// ParseSide parses a side as entered on the sheet.
func ParseSide(v string) Side {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "BUY":
		return SideBuy
	case "SELL":
		return SideSell
	default:
		return SideNone
	}
}

// ProductType represents the brokerage product bucket for an order.
type ProductType int

const (
	ProductNone ProductType = iota
	ProductIntraday
	ProductDelivery
	ProductNormal
)

func (p ProductType) String() string {
	switch p {
	case ProductIntraday:
		return "MIS"
	case ProductDelivery:
		return "CNC"
	case ProductNormal:
		return "NRML"
	default:
		return ""
	}
}

// ParseProductType parses a product type as entered on the sheet.
func ParseProductType(v string) ProductType {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "MIS", "INTRADAY":
		return ProductIntraday
	case "CNC", "DELIVERY":
		return ProductDelivery
	case "NRML", "NORMAL":
		return ProductNormal
	default:
		return ProductNone
	}
}

// Action is a user-requested row action.
type Action int

const (
	ActionNone Action = iota
	ActionExecute
	ActionModify
	ActionCancel
	ActionExit
)

func (a Action) String() string {
	switch a {
	case ActionExecute:
		return "EXECUTE"
	case ActionModify:
		return "MODIFY"
	case ActionCancel:
		return "CANCEL"
	case ActionExit:
		return "EXIT"
	default:
		return ""
	}
}

// ParseAction parses an action as entered on the sheet.
func ParseAction(v string) Action {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "EXECUTE":
		return ActionExecute
	case "MODIFY":
		return ActionModify
	case "CANCEL":
		return ActionCancel
	case "EXIT":
		return ActionExit
	default:
		return ActionNone
	}
}

// TriggerDirection says which way the last price must cross the trigger
// price before a conditional order fires.
type TriggerDirection int

const (
	TriggerNone TriggerDirection = iota
	TriggerAbove
	TriggerBelow
)

func (d TriggerDirection) String() string {
	switch d {
	case TriggerAbove:
		return "ABOVE"
	case TriggerBelow:
		return "BELOW"
	default:
		return ""
	}
}

// ParseTriggerDirection parses a trigger direction as entered on the sheet.
func ParseTriggerDirection(v string) TriggerDirection {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "ABOVE":
		return TriggerAbove
	case "BELOW":
		return TriggerBelow
	default:
		return TriggerNone
	}
}

// OrderKind distinguishes market from limit orders in the order log.
type OrderKind int

const (
	OrderMarket OrderKind = iota
	OrderLimit
)

func (k OrderKind) String() string {
	if k == OrderLimit {
		return "LIMIT"
	}
	return "MARKET"
}

// RowStatus is the status label shown on the sheet for a row. The label
// is the single authoritative record of which waiting queue (if any)
// currently owns the row, and doubles as the error report channel.
type RowStatus string

const (
	StatusIdle               RowStatus = ""
	StatusWaitingConditional RowStatus = "WAITING_AB"
	StatusWaitingStopTarget  RowStatus = "WAITING_SL_T"
	StatusOpen               RowStatus = "OPEN"
	StatusClosed             RowStatus = "CLOSED"
	StatusCancelled          RowStatus = "CANCELLED"
	StatusNotCancelled       RowStatus = "NOT CANCELLED"
	StatusNotModifiedOpen    RowStatus = "NOT_MODIFIED_OPEN"
	StatusExited             RowStatus = "EXITED"
	StatusError              RowStatus = "ERROR"
	StatusInvalid            RowStatus = "INVALID"
)

const modifiedPrefix = "MODIFIED_"

// Modified returns the MODIFIED_ variant of a status. An in-place edit
// keeps queue membership, so the variant classifies like its base.
func (s RowStatus) Modified() RowStatus {
	if strings.HasPrefix(string(s), modifiedPrefix) {
		return s
	}
	return RowStatus(modifiedPrefix + string(s))
}

// Base strips the MODIFIED_ prefix, if any.
func (s RowStatus) Base() RowStatus {
	return RowStatus(strings.TrimPrefix(string(s), modifiedPrefix))
}

// IsWaitingConditional reports whether the row sits in the conditional
// trigger queue.
func (s RowStatus) IsWaitingConditional() bool {
	return s.Base() == StatusWaitingConditional
}

// IsWaitingStopTarget reports whether the row sits in the stoploss/target
// queue.
func (s RowStatus) IsWaitingStopTarget() bool {
	return s.Base() == StatusWaitingStopTarget
}

// IsOpen reports whether the row sits in the open queue.
func (s RowStatus) IsOpen() bool {
	return s.Base() == StatusOpen
}

// IsTerminal reports whether no further transition is expected.
func (s RowStatus) IsTerminal() bool {
	return s == StatusClosed || s == StatusExited
}

// RowInput is the immutable per-poll snapshot of one sheet row.
// Optional price fields use decimal zero for "not set"; a zero limit
// price means a market order.
type RowInput struct {
	RowID        int
	Instrument   string
	Side         Side
	Product      ProductType
	LimitPrice   decimal.Decimal
	Quantity     int
	Stoploss     decimal.Decimal
	Target       decimal.Decimal
	Trigger      TriggerDirection
	TriggerPrice decimal.Decimal
	Action       Action
}

// HasStoploss reports whether the row carries a stoploss.
func (r RowInput) HasStoploss() bool { return !r.Stoploss.IsZero() }

// HasTarget reports whether the row carries a target.
func (r RowInput) HasTarget() bool { return !r.Target.IsZero() }

// HasTrigger reports whether the row is a conditional order.
func (r RowInput) HasTrigger() bool { return r.Trigger != TriggerNone }

// RowState is the per-row record written back to the sheet.
type RowState struct {
	RowID        int
	EntryOrderID string
	Status       RowStatus
	ExitResult   string
}

// Tick is the merged most-recent market snapshot for one instrument
// token. Fields a partial update did not carry retain their previous
// value.
type Tick struct {
	Token        string
	Open         decimal.Decimal
	High         decimal.Decimal
	Low          decimal.Decimal
	Close        decimal.Decimal
	LastPrice    decimal.Decimal
	Volume       int64
	VWAP         decimal.Decimal
	BestBid      decimal.Decimal
	BestAsk      decimal.Decimal
	OpenInterest int64
	UpdatedAt    time.Time
}

// OrderLogEntry is one append-only order-book record. Only the Status
// field is ever rewritten, by re-querying the gateway on refresh.
type OrderLogEntry struct {
	ID            string
	Timestamp     time.Time
	OrderID       string
	Side          Side
	Product       ProductType
	Instrument    string
	TradingSymbol string
	Quantity      int
	Price         decimal.Decimal
	Kind          OrderKind
	Status        string
}
