// Package paper provides a simulated order gateway for paper trading
// and tests.
package paper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rtpalgo/terminal/internal/gateway"
	"github.com/rtpalgo/terminal/internal/types"
)

// Config holds paper gateway settings.
type Config struct {
	// FillDelay is how long a placed order stays open before it is
	// marked complete. Zero fills immediately.
	FillDelay time.Duration
	AccountID string
	Cash      decimal.Decimal
}

// DefaultConfig returns default paper gateway settings.
func DefaultConfig() Config {
	return Config{
		AccountID: "PAPER",
		Cash:      decimal.NewFromInt(1_000_000),
	}
}

type paperOrder struct {
	id           string
	req          gateway.OrderRequest
	state        gateway.OrderState
	rejectReason string
	placedAt     time.Time
}

// Gateway implements gateway.Gateway entirely in memory.
type Gateway struct {
	cfg    Config
	logger *slog.Logger

	mu        sync.Mutex
	orders    map[string]*paperOrder
	failNext  int
	failWith  error
}

// New creates a paper gateway.
func New(cfg Config, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		cfg:    cfg,
		logger: logger,
		orders: make(map[string]*paperOrder),
	}
}

// Place records the order and returns a fresh order id.
func (g *Gateway) Place(ctx context.Context, req gateway.OrderRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.failNext > 0 {
		g.failNext--
		return "", g.failWith
	}

	o := &paperOrder{
		id:       uuid.NewString(),
		req:      req,
		state:    gateway.OrderOpen,
		placedAt: time.Now(),
	}
	g.orders[o.id] = o

	g.logger.Info("paper order placed",
		"order_id", o.id,
		"instrument", req.Instrument,
		"side", req.Side.String(),
		"product", req.Product.String(),
		"kind", req.Kind().String(),
		"quantity", req.Quantity,
		"price", req.LimitPrice,
	)
	return o.id, nil
}

// Modify rewrites the request of an order that is still open.
func (g *Gateway) Modify(ctx context.Context, orderID string, req gateway.OrderRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	o, ok := g.orders[orderID]
	if !ok || g.effectiveState(o) != gateway.OrderOpen {
		return types.ErrModificationFailed
	}
	o.req = req

	g.logger.Info("paper order modified", "order_id", orderID)
	return nil
}

// Cancel cancels an order that is still open. Cancelling a completed
// order fails, which is how the engine learns a fill won the race.
func (g *Gateway) Cancel(ctx context.Context, orderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	o, ok := g.orders[orderID]
	if !ok || g.effectiveState(o) != gateway.OrderOpen {
		return types.ErrCancellationFailed
	}
	o.state = gateway.OrderRejected
	o.rejectReason = "cancelled by user"

	g.logger.Info("paper order cancelled", "order_id", orderID)
	return nil
}

// OrderStatus reports the simulated lifecycle state.
func (g *Gateway) OrderStatus(ctx context.Context, orderID string) (gateway.OrderStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	o, ok := g.orders[orderID]
	if !ok {
		return gateway.OrderStatus{State: gateway.OrderUnknown}, nil
	}
	return gateway.OrderStatus{State: g.effectiveState(o), RejectReason: o.rejectReason}, nil
}

// Margin returns a static margin snapshot.
func (g *Gateway) Margin(ctx context.Context) (gateway.MarginSummary, error) {
	return gateway.MarginSummary{
		AccountID:  g.cfg.AccountID,
		CashMargin: g.cfg.Cash,
		Net:        g.cfg.Cash,
	}, nil
}

// effectiveState applies the fill delay. Market orders complete once
// the delay elapses; limit orders rest open until cancelled or forced
// via SetState. Callers hold g.mu.
func (g *Gateway) effectiveState(o *paperOrder) gateway.OrderState {
	if o.state == gateway.OrderOpen && o.req.Kind() == types.OrderMarket &&
		time.Since(o.placedAt) >= g.cfg.FillDelay {
		o.state = gateway.OrderComplete
	}
	return o.state
}

// FailNextPlacements makes the next n Place calls fail with err.
// Test hook.
func (g *Gateway) FailNextPlacements(n int, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failNext = n
	g.failWith = err
}

// SetState overrides an order's state. Test hook.
func (g *Gateway) SetState(orderID string, state gateway.OrderState) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if o, ok := g.orders[orderID]; ok {
		o.state = state
	}
}

// OpenOrders returns the ids of orders still open.
func (g *Gateway) OpenOrders() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var ids []string
	for id, o := range g.orders {
		if g.effectiveState(o) == gateway.OrderOpen {
			ids = append(ids, id)
		}
	}
	return ids
}

var _ gateway.Gateway = (*Gateway)(nil)
