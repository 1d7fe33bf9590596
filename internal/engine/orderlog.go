package engine

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rtpalgo/terminal/internal/gateway"
	"github.com/rtpalgo/terminal/internal/types"
)

// OrderLog is the append-only in-memory order book. Entries are never
// removed; only their Status field is rewritten on refresh.
type OrderLog struct {
	mu      sync.Mutex
	entries []types.OrderLogEntry
}

// NewOrderLog creates an empty order log.
func NewOrderLog() *OrderLog {
	return &OrderLog{}
}

// Append records one order. A missing ID or timestamp is filled in.
func (l *OrderLog) Append(e types.OrderLogEntry) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
}

// Entries returns a copy of the log in append order.
func (l *OrderLog) Entries() []types.OrderLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]types.OrderLogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of logged orders.
func (l *OrderLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Refresh re-queries the gateway for every order not yet in a settled
// state and rewrites its status. Gateway calls run without the log
// lock held.
func (l *OrderLog) Refresh(ctx context.Context, gw gateway.Gateway, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	type pending struct {
		index   int
		orderID string
	}

	l.mu.Lock()
	var toCheck []pending
	for i, e := range l.entries {
		if settledStatus(e.Status) {
			continue
		}
		toCheck = append(toCheck, pending{index: i, orderID: e.OrderID})
	}
	l.mu.Unlock()

	for _, p := range toCheck {
		st, err := gw.OrderStatus(ctx, p.orderID)
		if err != nil {
			logger.Warn("order status refresh failed",
				"order_id", p.orderID,
				"err", err,
			)
			continue
		}

		l.mu.Lock()
		l.entries[p.index].Status = st.String()
		l.mu.Unlock()
	}
}

// settledStatus reports whether an order status can no longer change.
func settledStatus(status string) bool {
	switch status {
	case string(gateway.OrderComplete), string(gateway.OrderRejected):
		return true
	}
	return strings.HasPrefix(status, "Rejected due to")
}
