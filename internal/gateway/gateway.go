// Package gateway defines the brokerage order gateway contract and the
// retrying placement wrapper used by the engine.
package gateway

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/rtpalgo/terminal/internal/types"
)

// OrderRequest carries the parameters of a place or modify call. A zero
// limit price means a market order.
type OrderRequest struct {
	Instrument string
	Side       types.Side
	Product    types.ProductType
	LimitPrice decimal.Decimal
	Quantity   int
}

// Kind returns the order kind implied by the limit price.
func (r OrderRequest) Kind() types.OrderKind {
	if r.LimitPrice.IsZero() {
		return types.OrderMarket
	}
	return types.OrderLimit
}

// OrderState is the brokerage-side lifecycle state of a placed order.
type OrderState string

const (
	OrderOpen     OrderState = "open"
	OrderComplete OrderState = "complete"
	OrderRejected OrderState = "rejected"
	OrderUnknown  OrderState = "unknown"
)

// OrderStatus is the result of a status query.
type OrderStatus struct {
	State        OrderState
	RejectReason string
}

func (s OrderStatus) String() string {
	if s.State == OrderRejected && s.RejectReason != "" {
		return "Rejected due to - " + s.RejectReason
	}
	return string(s.State)
}

// MarginSummary is the account margin snapshot shown on the profile
// sheet.
type MarginSummary struct {
	AccountID      string
	CashMargin     decimal.Decimal
	Credits        decimal.Decimal
	ExposureMargin decimal.Decimal
	Net            decimal.Decimal
	GrossExposure  decimal.Decimal
}

// Gateway is the synchronous brokerage boundary. Place returns the
// brokerage order id; Modify and Cancel act on a previously returned id.
// All calls block for one network round-trip and are never invoked with
// engine locks held.
type Gateway interface {
	Place(ctx context.Context, req OrderRequest) (string, error)
	Modify(ctx context.Context, orderID string, req OrderRequest) error
	Cancel(ctx context.Context, orderID string) error
	OrderStatus(ctx context.Context, orderID string) (OrderStatus, error)
	Margin(ctx context.Context) (MarginSummary, error)
}
