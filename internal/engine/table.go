package engine

import (
	"github.com/rtpalgo/terminal/internal/types"
)

// rowSlot is the per-row record inside the position table. The busy
// flag claims a row for the duration of one unlocked gateway call so
// that a monitor promotion and a user action can never both act on it.
type rowSlot struct {
	entryOrderID string
	status       types.RowStatus
	exitResult   string
	busy         bool
}

func (s rowSlot) state(rowID int) types.RowState {
	return types.RowState{
		RowID:        rowID,
		EntryOrderID: s.entryOrderID,
		Status:       s.status,
		ExitResult:   s.exitResult,
	}
}
