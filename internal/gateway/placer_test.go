package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rtpalgo/terminal/internal/types"
)

// flakyGateway fails Place a set number of times before succeeding.
type flakyGateway struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (f *flakyGateway) Place(_ context.Context, _ OrderRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return "", errors.New("gateway timeout")
	}
	return "ORD-1", nil
}

func (f *flakyGateway) Modify(context.Context, string, OrderRequest) error { return nil }
func (f *flakyGateway) Cancel(context.Context, string) error               { return nil }
func (f *flakyGateway) OrderStatus(context.Context, string) (OrderStatus, error) {
	return OrderStatus{State: OrderOpen}, nil
}
func (f *flakyGateway) Margin(context.Context) (MarginSummary, error) {
	return MarginSummary{}, nil
}

func testPlacerConfig() PlacerConfig {
	return PlacerConfig{
		MaxRetries:        3,
		RetryDelay:        time.Millisecond,
		RequestsPerSecond: 1000,
	}
}

func TestPlacerSucceedsAfterRetries(t *testing.T) {
	gw := &flakyGateway{failures: 2}
	p := NewPlacer(gw, testPlacerConfig(), nil)

	orderID, err := p.Place(context.Background(), OrderRequest{Instrument: "NIFTY SEP FUT"})
	if err != nil {
		t.Fatalf("Place() error: %v", err)
	}
	if orderID != "ORD-1" {
		t.Errorf("Place() = %q", orderID)
	}
	if gw.calls != 3 {
		t.Errorf("gateway called %d times, want 3", gw.calls)
	}
}

func TestPlacerExhaustsRetries(t *testing.T) {
	gw := &flakyGateway{failures: 10}
	p := NewPlacer(gw, testPlacerConfig(), nil)

	_, err := p.Place(context.Background(), OrderRequest{Instrument: "NIFTY SEP FUT"})
	if !errors.Is(err, types.ErrPlacementFailed) {
		t.Fatalf("Place() = %v, want ErrPlacementFailed", err)
	}
	if gw.calls != 3 {
		t.Errorf("gateway called %d times, want MaxRetries=3", gw.calls)
	}
}

func TestPlacerRespectsContextBetweenRetries(t *testing.T) {
	gw := &flakyGateway{failures: 10}
	cfg := testPlacerConfig()
	cfg.RetryDelay = time.Minute
	p := NewPlacer(gw, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := p.Place(ctx, OrderRequest{Instrument: "NIFTY SEP FUT"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Place() = %v, want context.Canceled", err)
	}
}

func TestOrderRequestKind(t *testing.T) {
	market := OrderRequest{}
	if market.Kind() != types.OrderMarket {
		t.Errorf("zero limit price Kind() = %v, want MARKET", market.Kind())
	}

	limit := OrderRequest{LimitPrice: decimal.RequireFromString("101.5")}
	if limit.Kind() != types.OrderLimit {
		t.Errorf("non-zero limit price Kind() = %v, want LIMIT", limit.Kind())
	}
}

func TestOrderStatusString(t *testing.T) {
	s := OrderStatus{State: OrderRejected, RejectReason: "margin shortfall"}
	if s.String() != "Rejected due to - margin shortfall" {
		t.Errorf("String() = %q", s.String())
	}

	if (OrderStatus{State: OrderComplete}).String() != "complete" {
		t.Errorf("complete String() = %q", OrderStatus{State: OrderComplete}.String())
	}
}
