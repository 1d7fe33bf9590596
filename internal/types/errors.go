package types

import "errors"

// Sentinel errors for the trading terminal.
var (
	// Row validation
	ErrInvalidRow     = errors.New("row is missing a required field")
	ErrRowOutOfRange  = errors.New("row id outside the position table")
	ErrRowBusy        = errors.New("row has a gateway call in flight")
	ErrActionRejected = errors.New("action not applicable in current row state")

	// Instrument lookup
	ErrUnknownInstrument = errors.New("instrument not found in master contracts")

	// Gateway
	ErrPlacementFailed    = errors.New("order placement failed after retries")
	ErrModificationFailed = errors.New("order modification rejected")
	ErrCancellationFailed = errors.New("order cancellation rejected")
	ErrStatusUnavailable  = errors.New("order status unavailable")
	ErrNotConnected       = errors.New("gateway not connected")

	// Feed
	ErrNoTick = errors.New("no tick received for token")

	// Engine lifecycle
	ErrEngineStopped = errors.New("engine is not running")
	ErrEngineHalted  = errors.New("engine halted by kill switch")

	// Configuration
	ErrInvalidConfig = errors.New("invalid configuration")
)
