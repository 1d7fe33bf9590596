// Package engine coordinates the order lifecycle: row actions coming
// from the sheet, the conditional trigger queue, the stoploss/target
// queue and the open position list all flow through one Engine.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rtpalgo/terminal/internal/alerting"
	"github.com/rtpalgo/terminal/internal/gateway"
	"github.com/rtpalgo/terminal/internal/instruments"
	"github.com/rtpalgo/terminal/internal/metrics"
	"github.com/rtpalgo/terminal/internal/types"
)

// Config holds engine configuration.
type Config struct {
	MaxRows                int
	TriggerPollInterval    time.Duration
	StopTargetPollInterval time.Duration

	// HaltOnPlacementFailure stops all further placements once a single
	// order placement exhausts its retries. Off by default: a placement
	// failure marks only its own row as ERROR.
	HaltOnPlacementFailure bool
}

// DefaultConfig returns default engine config.
func DefaultConfig() Config {
	return Config{
		MaxRows:                250,
		TriggerPollInterval:    time.Second,
		StopTargetPollInterval: time.Second,
	}
}

// Resolver maps instrument names from the sheet to master contracts.
type Resolver interface {
	ByName(ctx context.Context, name string) (instruments.Contract, error)
}

// PriceSource serves the most recent traded price per feed token.
type PriceSource interface {
	LastPrice(token string) (decimal.Decimal, error)
}

// Engine owns all order state. Every mutation of the position table or
// a queue happens under one mutex; gateway calls never do.
type Engine struct {
	cfg       Config
	logger    *slog.Logger
	gw        gateway.Gateway
	prices    PriceSource
	contracts Resolver
	alerter   alerting.Alerter
	recorder  *metrics.Recorder
	orders    *OrderLog

	mu          sync.Mutex
	table       []rowSlot
	conditional []conditionalEntry
	stopTarget  []stopTargetEntry
	open        []openEntry
	halted      bool

	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// New creates a new engine.
func New(
	cfg Config,
	gw gateway.Gateway,
	prices PriceSource,
	contracts Resolver,
	alerter alerting.Alerter,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = DefaultConfig().MaxRows
	}

	return &Engine{
		cfg:       cfg,
		logger:    logger,
		gw:        gw,
		prices:    prices,
		contracts: contracts,
		alerter:   alerter,
		recorder:  metrics.NewRecorder(),
		orders:    NewOrderLog(),
		table:     make([]rowSlot, cfg.MaxRows),
		done:      make(chan struct{}),
	}
}

// Start launches the two monitor loops.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("engine already running")
	}
	e.running = true
	e.mu.Unlock()

	e.logger.Info("starting engine",
		"max_rows", e.cfg.MaxRows,
		"trigger_poll", e.cfg.TriggerPollInterval,
		"stop_target_poll", e.cfg.StopTargetPollInterval,
	)

	e.wg.Add(1)
	go e.conditionalLoop(ctx)

	e.wg.Add(1)
	go e.stopTargetLoop(ctx)

	return nil
}

// Stop stops the monitor loops and waits for them to drain.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	e.mu.Unlock()

	e.logger.Info("stopping engine")
	close(e.done)
	e.wg.Wait()
	e.logger.Info("engine stopped")
	return nil
}

// IsRunning returns true if the monitor loops are live.
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Halted reports whether the placement kill switch has fired.
func (e *Engine) Halted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.halted
}

// HandleRowAction applies one user action read off the sheet. A nil
// return means the action was accepted and committed; ErrRowBusy means
// a monitor holds the row right now and the caller should retry on the
// next poll.
func (e *Engine) HandleRowAction(ctx context.Context, input types.RowInput) error {
	if input.Action == types.ActionNone {
		return nil
	}
	if input.RowID < 0 || input.RowID >= e.cfg.MaxRows {
		return fmt.Errorf("%w: row %d", types.ErrRowOutOfRange, input.RowID)
	}

	switch input.Action {
	case types.ActionExecute:
		return e.execute(ctx, input)
	case types.ActionModify:
		return e.modify(ctx, input)
	case types.ActionCancel:
		return e.cancel(ctx, input)
	case types.ActionExit:
		return e.exit(ctx, input)
	default:
		return fmt.Errorf("%w: unknown action", types.ErrActionRejected)
	}
}

// execute places a fresh order for the row, or queues it behind its
// trigger. Any previous state on the row is discarded first.
func (e *Engine) execute(ctx context.Context, input types.RowInput) error {
	contract, err := e.validate(ctx, input)
	if err != nil {
		e.mu.Lock()
		e.table[input.RowID] = rowSlot{status: types.StatusInvalid}
		e.mu.Unlock()
		return err
	}
	token := strconv.FormatInt(contract.Token, 10)

	e.mu.Lock()
	if e.halted {
		e.mu.Unlock()
		return types.ErrEngineHalted
	}
	slot := &e.table[input.RowID]
	if slot.busy {
		e.mu.Unlock()
		return fmt.Errorf("%w: row %d", types.ErrRowBusy, input.RowID)
	}

	// A re-execute replaces whatever the row held before.
	e.removeRowLocked(input.RowID)
	*slot = rowSlot{}

	if input.HasTrigger() {
		e.conditional = append(e.conditional, conditionalEntry{
			input:         input,
			token:         token,
			tradingSymbol: contract.TradingSymbol,
		})
		slot.status = types.StatusWaitingConditional
		e.recordQueueDepthsLocked()
		e.mu.Unlock()

		e.logger.Info("row queued on trigger",
			"row", input.RowID,
			"instrument", input.Instrument,
			"direction", input.Trigger.String(),
			"trigger_price", input.TriggerPrice,
		)
		return nil
	}

	slot.busy = true
	e.mu.Unlock()

	orderID, placeErr := e.placeEntry(ctx, input, contract.TradingSymbol)

	e.mu.Lock()
	slot = &e.table[input.RowID]
	slot.busy = false
	if placeErr != nil {
		slot.status = types.StatusError
		e.recordRowsInErrorLocked()
		e.mu.Unlock()
		e.onPlacementFailure(ctx, input.RowID, placeErr)
		return placeErr
	}

	e.enqueuePlacedLocked(input, token, contract.TradingSymbol, orderID)
	e.mu.Unlock()

	e.alert(ctx, alerting.EventOrderPlaced, "Order placed",
		"row", input.RowID,
		"order_id", orderID,
		"instrument", input.Instrument,
		"side", input.Side.String(),
		"quantity", input.Quantity,
	)
	return nil
}

// modify edits a waiting or open row in place. A row still behind its
// trigger is edited purely in memory; a row whose entry order is
// already with the brokerage gets a gateway modification.
func (e *Engine) modify(ctx context.Context, input types.RowInput) error {
	contract, err := e.validate(ctx, input)
	if err != nil {
		e.mu.Lock()
		e.table[input.RowID] = rowSlot{status: types.StatusInvalid}
		e.mu.Unlock()
		return err
	}
	token := strconv.FormatInt(contract.Token, 10)

	e.mu.Lock()
	slot := &e.table[input.RowID]
	if slot.busy {
		e.mu.Unlock()
		return fmt.Errorf("%w: row %d", types.ErrRowBusy, input.RowID)
	}

	switch {
	case slot.status.IsWaitingConditional():
		for i := range e.conditional {
			if e.conditional[i].row() == input.RowID {
				e.conditional[i] = conditionalEntry{
					input:         input,
					token:         token,
					tradingSymbol: contract.TradingSymbol,
				}
			}
		}
		slot.status = types.StatusWaitingConditional.Modified()
		e.mu.Unlock()
		e.recorder.RecordModification(true)
		return nil

	case slot.status.IsWaitingStopTarget():
		// Stoploss and target live only in the engine, so the entry
		// order at the brokerage is untouched. Everything else on the
		// queue entry keeps its executed values.
		for i := range e.stopTarget {
			if e.stopTarget[i].row() == input.RowID {
				e.stopTarget[i].input.Stoploss = input.Stoploss
				e.stopTarget[i].input.Target = input.Target
			}
		}
		slot.status = types.StatusWaitingStopTarget.Modified()
		e.mu.Unlock()
		e.recorder.RecordModification(true)
		return nil

	case slot.status.IsOpen():
		orderID := slot.entryOrderID
		slot.busy = true
		e.mu.Unlock()

		req := orderRequest(input, contract.TradingSymbol)
		modErr := e.gw.Modify(ctx, orderID, req)

		e.mu.Lock()
		slot = &e.table[input.RowID]
		slot.busy = false
		if modErr != nil {
			slot.status = types.StatusNotModifiedOpen
			e.mu.Unlock()
			e.recorder.RecordModification(false)
			return fmt.Errorf("%w: order %s: %v", types.ErrModificationFailed, orderID, modErr)
		}

		for i := range e.open {
			if e.open[i].row() == input.RowID {
				e.open[i].input = input
				e.open[i].token = token
			}
		}
		slot.status = types.StatusOpen.Modified()
		e.mu.Unlock()
		e.recorder.RecordModification(true)
		e.logModify(ctx, orderID, input, contract.TradingSymbol, req)
		return nil

	default:
		status := slot.status
		e.mu.Unlock()
		return fmt.Errorf("%w: cannot modify row in state %q", types.ErrActionRejected, status)
	}
}

// cancel withdraws a row. Behind the trigger nothing was ever placed,
// so the queue entry is simply dropped; otherwise the entry order is
// cancelled at the brokerage first.
func (e *Engine) cancel(ctx context.Context, input types.RowInput) error {
	e.mu.Lock()
	slot := &e.table[input.RowID]
	if slot.busy {
		e.mu.Unlock()
		return fmt.Errorf("%w: row %d", types.ErrRowBusy, input.RowID)
	}

	switch {
	case slot.status.IsWaitingConditional():
		e.conditional = withoutRow(e.conditional, input.RowID)
		slot.status = types.StatusCancelled
		e.recordQueueDepthsLocked()
		e.mu.Unlock()
		e.recorder.RecordCancellation(true)
		return nil

	case slot.status.IsWaitingStopTarget(), slot.status.IsOpen(),
		slot.status == types.StatusNotCancelled:
		orderID := slot.entryOrderID
		slot.busy = true
		e.mu.Unlock()

		cancelErr := e.gw.Cancel(ctx, orderID)

		e.mu.Lock()
		slot = &e.table[input.RowID]
		slot.busy = false
		if cancelErr != nil {
			slot.status = types.StatusNotCancelled
			e.mu.Unlock()
			e.recorder.RecordCancellation(false)
			return fmt.Errorf("%w: order %s: %v", types.ErrCancellationFailed, orderID, cancelErr)
		}

		e.removeRowLocked(input.RowID)
		slot.status = types.StatusCancelled
		e.recordQueueDepthsLocked()
		e.mu.Unlock()
		e.recorder.RecordCancellation(true)

		e.alert(ctx, alerting.EventOrderCancelled, "Order cancelled",
			"row", input.RowID,
			"order_id", orderID,
		)
		return nil

	default:
		status := slot.status
		e.mu.Unlock()
		return fmt.Errorf("%w: cannot cancel row in state %q", types.ErrActionRejected, status)
	}
}

// exit squares off a row. Behind the trigger nothing was ever placed,
// so the queue entry is simply dropped; an already closed row settles
// on EXITED without touching the brokerage. Otherwise the entry order
// is looked up first: still-open entries are cancelled, completed ones
// are reversed with an opposite market order.
func (e *Engine) exit(ctx context.Context, input types.RowInput) error {
	e.mu.Lock()
	slot := &e.table[input.RowID]
	if slot.busy {
		e.mu.Unlock()
		return fmt.Errorf("%w: row %d", types.ErrRowBusy, input.RowID)
	}

	switch {
	case slot.status.IsWaitingConditional():
		e.conditional = withoutRow(e.conditional, input.RowID)
		slot.status = types.StatusExited
		slot.exitResult = exitManual
		e.recordQueueDepthsLocked()
		e.mu.Unlock()

		e.logger.Info("conditional row exited before trigger", "row", input.RowID)
		return nil

	case slot.status.IsTerminal():
		// Nothing left to square off; EXIT settles on EXITED.
		slot.status = types.StatusExited
		if slot.exitResult == "" {
			slot.exitResult = exitManual
		}
		e.mu.Unlock()
		return nil
	}

	var (
		position types.RowInput
		symbol   string
		entryID  string
		found    bool
	)
	if slot.status.IsWaitingStopTarget() || slot.status.IsOpen() ||
		slot.status == types.StatusNotCancelled {
		for _, en := range e.stopTarget {
			if en.row() == input.RowID {
				position, symbol, entryID, found = en.input, en.tradingSymbol, en.entryOrderID, true
			}
		}
		for _, en := range e.open {
			if en.row() == input.RowID {
				position, symbol, entryID, found = en.input, en.tradingSymbol, en.entryOrderID, true
			}
		}
	}
	if !found {
		status := slot.status
		e.mu.Unlock()
		return fmt.Errorf("%w: cannot exit row in state %q", types.ErrActionRejected, status)
	}

	slot.busy = true
	e.mu.Unlock()

	st, stErr := e.gw.OrderStatus(ctx, entryID)
	if stErr != nil {
		e.mu.Lock()
		e.table[input.RowID].busy = false
		e.mu.Unlock()
		return fmt.Errorf("%w: order %s: %v", types.ErrStatusUnavailable, entryID, stErr)
	}

	switch st.State {
	case gateway.OrderOpen:
		// The entry never filled; withdrawing it is the whole exit.
		cancelErr := e.gw.Cancel(ctx, entryID)

		e.mu.Lock()
		slot = &e.table[input.RowID]
		slot.busy = false
		if cancelErr != nil {
			slot.status = types.StatusNotCancelled
			e.mu.Unlock()
			e.recorder.RecordCancellation(false)
			return fmt.Errorf("%w: order %s: %v", types.ErrCancellationFailed, entryID, cancelErr)
		}

		e.removeRowLocked(input.RowID)
		slot.status = types.StatusExited
		slot.exitResult = exitManual
		e.recordQueueDepthsLocked()
		e.mu.Unlock()
		e.recorder.RecordCancellation(true)

		e.alert(ctx, alerting.EventPositionClosed, "Unfilled entry withdrawn on exit",
			"row", input.RowID,
			"order_id", entryID,
			"instrument", position.Instrument,
		)
		return nil

	case gateway.OrderComplete:
		exitID, placeErr := e.placeExit(ctx, position, symbol)

		e.mu.Lock()
		slot = &e.table[input.RowID]
		slot.busy = false
		if placeErr != nil {
			slot.status = types.StatusError
			e.recordRowsInErrorLocked()
			e.mu.Unlock()
			e.onPlacementFailure(ctx, input.RowID, placeErr)
			return placeErr
		}

		e.removeRowLocked(input.RowID)
		slot.status = types.StatusExited
		slot.exitResult = exitManual
		e.recordQueueDepthsLocked()
		e.mu.Unlock()

		e.alert(ctx, alerting.EventPositionClosed, "Position exited",
			"row", input.RowID,
			"exit_order_id", exitID,
			"instrument", position.Instrument,
		)
		return nil

	case gateway.OrderRejected:
		// A rejected entry left nothing at the brokerage.
		e.mu.Lock()
		slot = &e.table[input.RowID]
		slot.busy = false
		e.removeRowLocked(input.RowID)
		slot.status = types.StatusExited
		slot.exitResult = exitManual
		e.recordQueueDepthsLocked()
		e.mu.Unlock()
		return nil

	default:
		e.mu.Lock()
		e.table[input.RowID].busy = false
		e.mu.Unlock()
		return fmt.Errorf("%w: order %s in state %q", types.ErrStatusUnavailable, entryID, st.State)
	}
}

// RowStates returns the current sheet write-back for every row that
// holds any state.
func (e *Engine) RowStates() []types.RowState {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []types.RowState
	for i, slot := range e.table {
		if slot.status == types.StatusIdle && slot.entryOrderID == "" {
			continue
		}
		out = append(out, slot.state(i))
	}
	return out
}

// RowState returns the write-back record for one row.
func (e *Engine) RowState(rowID int) (types.RowState, error) {
	if rowID < 0 || rowID >= e.cfg.MaxRows {
		return types.RowState{}, fmt.Errorf("%w: row %d", types.ErrRowOutOfRange, rowID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.table[rowID].state(rowID), nil
}

// Orders returns the order log.
func (e *Engine) Orders() *OrderLog {
	return e.orders
}

// validate checks a row's tradable fields and resolves its contract.
func (e *Engine) validate(ctx context.Context, input types.RowInput) (instruments.Contract, error) {
	if input.Instrument == "" {
		return instruments.Contract{}, fmt.Errorf("%w: row %d: missing instrument", types.ErrInvalidRow, input.RowID)
	}
	if input.Side == types.SideNone {
		return instruments.Contract{}, fmt.Errorf("%w: row %d: missing side", types.ErrInvalidRow, input.RowID)
	}
	if input.Quantity <= 0 {
		return instruments.Contract{}, fmt.Errorf("%w: row %d: quantity %d", types.ErrInvalidRow, input.RowID, input.Quantity)
	}
	if input.HasTrigger() && input.TriggerPrice.IsZero() {
		return instruments.Contract{}, fmt.Errorf("%w: row %d: trigger without trigger price", types.ErrInvalidRow, input.RowID)
	}

	contract, err := e.contracts.ByName(ctx, input.Instrument)
	if err != nil {
		return instruments.Contract{}, fmt.Errorf("%w: row %d: %v", types.ErrInvalidRow, input.RowID, err)
	}
	return contract, nil
}

// placeEntry places the entry order for a row and logs it.
func (e *Engine) placeEntry(ctx context.Context, input types.RowInput, tradingSymbol string) (string, error) {
	req := orderRequest(input, tradingSymbol)
	orderID, err := e.gw.Place(ctx, req)
	if err != nil {
		e.recorder.RecordOrder(input.Side.String(), req.Kind().String(), "FAILED")
		return "", err
	}

	e.logOrder(ctx, orderID, input.Side, input, tradingSymbol, req)
	return orderID, nil
}

// placeExit places the opposite market order that squares off a
// position and logs it.
func (e *Engine) placeExit(ctx context.Context, position types.RowInput, tradingSymbol string) (string, error) {
	req := gateway.OrderRequest{
		Instrument: tradingSymbol,
		Side:       position.Side.Opposite(),
		Product:    position.Product,
		Quantity:   position.Quantity,
	}
	orderID, err := e.gw.Place(ctx, req)
	if err != nil {
		e.recorder.RecordOrder(req.Side.String(), req.Kind().String(), "FAILED")
		return "", err
	}

	e.logOrder(ctx, orderID, req.Side, position, tradingSymbol, req)
	return orderID, nil
}

func (e *Engine) logOrder(ctx context.Context, orderID string, side types.Side, input types.RowInput, tradingSymbol string, req gateway.OrderRequest) {
	status := "PLACED"
	if st, err := e.gw.OrderStatus(ctx, orderID); err == nil {
		status = st.String()
	}

	e.orders.Append(types.OrderLogEntry{
		OrderID:       orderID,
		Side:          side,
		Product:       input.Product,
		Instrument:    input.Instrument,
		TradingSymbol: tradingSymbol,
		Quantity:      req.Quantity,
		Price:         req.LimitPrice,
		Kind:          req.Kind(),
		Status:        status,
	})
	e.recorder.RecordOrder(side.String(), req.Kind().String(), status)

	e.logger.Info("order placed",
		"order_id", orderID,
		"trading_symbol", tradingSymbol,
		"side", side.String(),
		"kind", req.Kind().String(),
		"quantity", req.Quantity,
		"status", status,
	)
}

// logModify records a successful gateway modification in the order log.
func (e *Engine) logModify(ctx context.Context, orderID string, input types.RowInput, tradingSymbol string, req gateway.OrderRequest) {
	status := "MODIFIED"
	if st, err := e.gw.OrderStatus(ctx, orderID); err == nil {
		status = st.String()
	}

	e.orders.Append(types.OrderLogEntry{
		OrderID:       orderID,
		Side:          input.Side,
		Product:       input.Product,
		Instrument:    input.Instrument,
		TradingSymbol: tradingSymbol,
		Quantity:      req.Quantity,
		Price:         req.LimitPrice,
		Kind:          req.Kind(),
		Status:        status,
	})

	e.logger.Info("order modified",
		"order_id", orderID,
		"trading_symbol", tradingSymbol,
		"quantity", req.Quantity,
		"status", status,
	)
}

// onPlacementFailure handles a placement that exhausted its retries.
// The row is already marked ERROR; optionally the whole engine halts.
func (e *Engine) onPlacementFailure(ctx context.Context, rowID int, err error) {
	e.recorder.RecordPlacementFailure()
	e.logger.Error("order placement failed",
		"row", rowID,
		"err", err,
	)

	e.alert(ctx, alerting.EventPlacementFailed, "Order placement failed",
		"row", rowID,
		"error", err.Error(),
	)

	if !e.cfg.HaltOnPlacementFailure {
		return
	}

	e.mu.Lock()
	alreadyHalted := e.halted
	e.halted = true
	e.mu.Unlock()
	e.recorder.RecordEngineHalted(true)

	if !alreadyHalted {
		e.logger.Error("engine halted after placement failure")
		e.alert(ctx, alerting.EventKillSwitch, "Engine halted after placement failure",
			"row", rowID,
		)
	}
}

func (e *Engine) alert(ctx context.Context, event alerting.AlertEvent, message string, fields ...any) {
	if e.alerter == nil {
		return
	}
	if err := e.alerter.Alert(ctx, alerting.EventSeverity(event), message, fields...); err != nil {
		e.logger.Warn("alert failed", "event", string(event), "err", err)
	}
}

// enqueuePlacedLocked routes a freshly placed entry order into the
// queue its close rules require. Callers hold e.mu.
func (e *Engine) enqueuePlacedLocked(input types.RowInput, token, tradingSymbol, orderID string) {
	slot := &e.table[input.RowID]
	slot.entryOrderID = orderID
	if input.HasStoploss() || input.HasTarget() {
		slot.status = types.StatusWaitingStopTarget
		e.stopTarget = append(e.stopTarget, stopTargetEntry{
			input:         input,
			token:         token,
			tradingSymbol: tradingSymbol,
			entryOrderID:  orderID,
		})
	} else {
		slot.status = types.StatusOpen
		e.open = append(e.open, openEntry{
			input:         input,
			token:         token,
			tradingSymbol: tradingSymbol,
			entryOrderID:  orderID,
		})
	}
	e.recordQueueDepthsLocked()
}

// removeRowLocked drops a row from every queue. Callers hold e.mu.
func (e *Engine) removeRowLocked(rowID int) {
	e.conditional = withoutRow(e.conditional, rowID)
	e.stopTarget = withoutRow(e.stopTarget, rowID)
	e.open = withoutRow(e.open, rowID)
}

func (e *Engine) recordQueueDepthsLocked() {
	e.recorder.RecordQueueDepth("conditional", len(e.conditional))
	e.recorder.RecordQueueDepth("stop_target", len(e.stopTarget))
	e.recorder.RecordQueueDepth("open", len(e.open))
}

func (e *Engine) recordRowsInErrorLocked() {
	n := 0
	for _, slot := range e.table {
		if slot.status == types.StatusError {
			n++
		}
	}
	e.recorder.RecordRowsInError(n)
}

// orderRequest builds the gateway request for a row's entry order.
func orderRequest(input types.RowInput, tradingSymbol string) gateway.OrderRequest {
	return gateway.OrderRequest{
		Instrument: tradingSymbol,
		Side:       input.Side,
		Product:    input.Product,
		LimitPrice: input.LimitPrice,
		Quantity:   input.Quantity,
	}
}
