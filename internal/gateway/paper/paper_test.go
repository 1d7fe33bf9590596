package paper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rtpalgo/terminal/internal/gateway"
	"github.com/rtpalgo/terminal/internal/types"
)

func marketBuy(qty int) gateway.OrderRequest {
	return gateway.OrderRequest{
		Instrument: "NIFTY SEP FUT",
		Side:       types.SideBuy,
		Product:    types.ProductIntraday,
		Quantity:   qty,
	}
}

func limitSell(price string, qty int) gateway.OrderRequest {
	return gateway.OrderRequest{
		Instrument: "NIFTY SEP FUT",
		Side:       types.SideSell,
		Product:    types.ProductIntraday,
		LimitPrice: decimal.RequireFromString(price),
		Quantity:   qty,
	}
}

func TestPlaceAndStatus(t *testing.T) {
	g := New(DefaultConfig(), nil)
	ctx := context.Background()

	orderID, err := g.Place(ctx, marketBuy(50))
	if err != nil {
		t.Fatalf("Place() error: %v", err)
	}
	if orderID == "" {
		t.Fatal("Place() returned empty order id")
	}

	// Market orders fill immediately with a zero fill delay.
	st, err := g.OrderStatus(ctx, orderID)
	if err != nil {
		t.Fatalf("OrderStatus() error: %v", err)
	}
	if st.State != gateway.OrderComplete {
		t.Errorf("market order state = %v, want complete", st.State)
	}
}

func TestLimitOrdersRestOpen(t *testing.T) {
	g := New(DefaultConfig(), nil)
	ctx := context.Background()

	orderID, err := g.Place(ctx, limitSell("105.5", 50))
	if err != nil {
		t.Fatalf("Place() error: %v", err)
	}

	st, _ := g.OrderStatus(ctx, orderID)
	if st.State != gateway.OrderOpen {
		t.Errorf("limit order state = %v, want open", st.State)
	}
}

func TestCancelOpenOrder(t *testing.T) {
	g := New(DefaultConfig(), nil)
	ctx := context.Background()

	orderID, _ := g.Place(ctx, limitSell("105.5", 50))
	if err := g.Cancel(ctx, orderID); err != nil {
		t.Fatalf("Cancel() error: %v", err)
	}

	st, _ := g.OrderStatus(ctx, orderID)
	if st.State != gateway.OrderRejected {
		t.Errorf("cancelled order state = %v, want rejected", st.State)
	}
}

func TestCancelFilledOrderFails(t *testing.T) {
	g := New(DefaultConfig(), nil)
	ctx := context.Background()

	orderID, _ := g.Place(ctx, marketBuy(50))

	err := g.Cancel(ctx, orderID)
	if !errors.Is(err, types.ErrCancellationFailed) {
		t.Errorf("Cancel(filled) = %v, want ErrCancellationFailed", err)
	}
}

func TestModifyOnlyWhileOpen(t *testing.T) {
	g := New(DefaultConfig(), nil)
	ctx := context.Background()

	orderID, _ := g.Place(ctx, limitSell("105.5", 50))
	if err := g.Modify(ctx, orderID, limitSell("106", 25)); err != nil {
		t.Fatalf("Modify(open) error: %v", err)
	}

	filled, _ := g.Place(ctx, marketBuy(50))
	err := g.Modify(ctx, filled, marketBuy(25))
	if !errors.Is(err, types.ErrModificationFailed) {
		t.Errorf("Modify(filled) = %v, want ErrModificationFailed", err)
	}
}

func TestFillDelayKeepsMarketOrderOpen(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FillDelay = time.Hour
	g := New(cfg, nil)
	ctx := context.Background()

	orderID, _ := g.Place(ctx, marketBuy(50))

	st, _ := g.OrderStatus(ctx, orderID)
	if st.State != gateway.OrderOpen {
		t.Errorf("delayed market order state = %v, want open", st.State)
	}
	if err := g.Cancel(ctx, orderID); err != nil {
		t.Errorf("Cancel(open market order) error: %v", err)
	}
}

func TestFailNextPlacements(t *testing.T) {
	g := New(DefaultConfig(), nil)
	ctx := context.Background()

	gwErr := errors.New("exchange closed")
	g.FailNextPlacements(2, gwErr)

	for i := 0; i < 2; i++ {
		if _, err := g.Place(ctx, marketBuy(50)); !errors.Is(err, gwErr) {
			t.Fatalf("Place() #%d = %v, want injected error", i+1, err)
		}
	}
	if _, err := g.Place(ctx, marketBuy(50)); err != nil {
		t.Errorf("Place() after injected failures: %v", err)
	}
}

func TestUnknownOrderStatus(t *testing.T) {
	g := New(DefaultConfig(), nil)

	st, err := g.OrderStatus(context.Background(), "missing")
	if err != nil {
		t.Fatalf("OrderStatus() error: %v", err)
	}
	if st.State != gateway.OrderUnknown {
		t.Errorf("OrderStatus(missing) = %v, want unknown", st.State)
	}
}

func TestMargin(t *testing.T) {
	g := New(DefaultConfig(), nil)

	m, err := g.Margin(context.Background())
	if err != nil {
		t.Fatalf("Margin() error: %v", err)
	}
	if m.AccountID != "PAPER" || m.CashMargin.IsZero() {
		t.Errorf("Margin() = %+v", m)
	}
}
