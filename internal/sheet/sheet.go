// Package sheet is the user-facing surface of the terminal. The user
// edits order rows on a watch sheet; the terminal polls them, dispatches
// the requested actions and writes statuses, the live ticker, the order
// book and the account profile back out.
package sheet

import (
	"context"

	"github.com/rtpalgo/terminal/internal/gateway"
	"github.com/rtpalgo/terminal/internal/types"
)

// Sheet reads user rows and writes result panes.
type Sheet interface {
	// Rows returns the current order rows in row order.
	Rows(ctx context.Context) ([]types.RowInput, error)

	// ClearAction blanks a row's action cell after it has been
	// dispatched, so one entry fires exactly once.
	ClearAction(ctx context.Context, rowID int) error

	// WriteRowStates writes the per-row status pane.
	WriteRowStates(ctx context.Context, states []types.RowState) error

	// WriteTicker writes the live market snapshot pane.
	WriteTicker(ctx context.Context, ticks []types.Tick) error

	// WriteOrderLog writes the order book pane.
	WriteOrderLog(ctx context.Context, entries []types.OrderLogEntry) error

	// WriteProfile writes the account margin pane.
	WriteProfile(ctx context.Context, margin gateway.MarginSummary) error
}
