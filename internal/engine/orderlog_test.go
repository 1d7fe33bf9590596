package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/rtpalgo/terminal/internal/gateway"
	"github.com/rtpalgo/terminal/internal/types"
)

// statusGateway serves per-order statuses for refresh tests.
type statusGateway struct {
	stubGateway
	statuses map[string]gateway.OrderStatus
}

func (g *statusGateway) OrderStatus(ctx context.Context, orderID string) (gateway.OrderStatus, error) {
	st, ok := g.statuses[orderID]
	if !ok {
		return gateway.OrderStatus{}, errors.New("not found")
	}
	return st, nil
}

func TestOrderLogAppendFillsDefaults(t *testing.T) {
	log := NewOrderLog()

	log.Append(types.OrderLogEntry{OrderID: "ord-1", Status: "open"})

	entries := log.Entries()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if entries[0].ID == "" {
		t.Error("entry id not generated")
	}
	if entries[0].Timestamp.IsZero() {
		t.Error("entry timestamp not set")
	}
}

func TestOrderLogEntriesReturnsCopy(t *testing.T) {
	log := NewOrderLog()
	log.Append(types.OrderLogEntry{OrderID: "ord-1", Status: "open"})

	entries := log.Entries()
	entries[0].Status = "mangled"

	if got := log.Entries()[0].Status; got != "open" {
		t.Errorf("status = %q after caller mutation, want %q", got, "open")
	}
}

func TestOrderLogRefresh(t *testing.T) {
	log := NewOrderLog()
	log.Append(types.OrderLogEntry{OrderID: "ord-1", Status: "open"})
	log.Append(types.OrderLogEntry{OrderID: "ord-2", Status: "complete"})
	log.Append(types.OrderLogEntry{OrderID: "ord-3", Status: "open"})

	gw := &statusGateway{statuses: map[string]gateway.OrderStatus{
		"ord-1": {State: gateway.OrderComplete},
		"ord-3": {State: gateway.OrderRejected, RejectReason: "insufficient funds"},
	}}

	log.Refresh(context.Background(), gw, nil)

	entries := log.Entries()
	if entries[0].Status != "complete" {
		t.Errorf("ord-1 status = %q, want %q", entries[0].Status, "complete")
	}
	if entries[1].Status != "complete" {
		t.Errorf("ord-2 status = %q, want untouched %q", entries[1].Status, "complete")
	}
	if want := "Rejected due to - insufficient funds"; entries[2].Status != want {
		t.Errorf("ord-3 status = %q, want %q", entries[2].Status, want)
	}
}

func TestOrderLogRefreshSkipsSettled(t *testing.T) {
	log := NewOrderLog()
	log.Append(types.OrderLogEntry{OrderID: "ord-1", Status: "Rejected due to - margin"})

	// No status on the gateway; a query would overwrite with an error.
	gw := &statusGateway{statuses: map[string]gateway.OrderStatus{}}
	log.Refresh(context.Background(), gw, nil)

	if got := log.Entries()[0].Status; got != "Rejected due to - margin" {
		t.Errorf("status = %q, want settled status untouched", got)
	}
}

func TestEngineStartStop(t *testing.T) {
	e, _, _ := newTestEngine(t, DefaultConfig())

	ctx := context.Background()
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !e.IsRunning() {
		t.Error("engine not running after Start")
	}
	if err := e.Start(ctx); err == nil {
		t.Error("second Start() should fail")
	}

	if err := e.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if e.IsRunning() {
		t.Error("engine still running after Stop")
	}
	if err := e.Stop(ctx); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}
