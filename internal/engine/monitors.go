package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rtpalgo/terminal/internal/alerting"
	"github.com/rtpalgo/terminal/internal/metrics"
	"github.com/rtpalgo/terminal/internal/types"
)

// conditionalLoop sweeps the trigger queue on a fixed interval.
func (e *Engine) conditionalLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.TriggerPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.done:
			return
		case <-ticker.C:
			e.sweepConditional(ctx)
		}
	}
}

// sweepConditional promotes every queued row whose trigger has fired.
// The sweep works off a snapshot; each promotion re-checks and claims
// its row under the lock before the gateway call goes out.
func (e *Engine) sweepConditional(ctx context.Context) {
	timer := metrics.NewTimer()
	defer timer.ObserveMonitor("conditional")

	e.mu.Lock()
	entries := make([]conditionalEntry, len(e.conditional))
	copy(entries, e.conditional)
	halted := e.halted
	e.mu.Unlock()

	if halted {
		return
	}

	for _, en := range entries {
		price, err := e.prices.LastPrice(en.token)
		if err != nil {
			if !errors.Is(err, types.ErrNoTick) {
				e.logger.Warn("price lookup failed", "token", en.token, "err", err)
			}
			continue
		}
		if !en.fired(price) {
			continue
		}

		e.promote(ctx, en, price)
	}
}

// promote moves one triggered row out of the conditional queue by
// placing its entry order.
func (e *Engine) promote(ctx context.Context, en conditionalEntry, price decimal.Decimal) {
	rowID := en.row()

	e.mu.Lock()
	slot := &e.table[rowID]
	if slot.busy || !slot.status.IsWaitingConditional() || !containsRow(e.conditional, rowID) {
		e.mu.Unlock()
		return
	}
	slot.busy = true
	e.mu.Unlock()

	e.logger.Info("trigger fired",
		"row", rowID,
		"instrument", en.input.Instrument,
		"direction", en.input.Trigger.String(),
		"trigger_price", en.input.TriggerPrice,
		"last_price", price,
	)

	orderID, placeErr := e.placeEntry(ctx, en.input, en.tradingSymbol)

	e.mu.Lock()
	slot = &e.table[rowID]
	slot.busy = false
	e.conditional = withoutRow(e.conditional, rowID)
	if placeErr != nil {
		slot.status = types.StatusError
		e.recordRowsInErrorLocked()
		e.recordQueueDepthsLocked()
		e.mu.Unlock()
		e.onPlacementFailure(ctx, rowID, placeErr)
		return
	}

	e.enqueuePlacedLocked(en.input, en.token, en.tradingSymbol, orderID)
	e.mu.Unlock()

	e.alert(ctx, alerting.EventTriggerFired, "Trigger fired",
		"row", rowID,
		"instrument", en.input.Instrument,
		"order_id", orderID,
		"last_price", price.String(),
	)
}

// stopTargetLoop sweeps the stoploss/target queue on a fixed interval.
func (e *Engine) stopTargetLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.StopTargetPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.done:
			return
		case <-ticker.C:
			e.sweepStopTarget(ctx)
		}
	}
}

// sweepStopTarget closes every monitored position whose stoploss or
// target has been hit.
func (e *Engine) sweepStopTarget(ctx context.Context) {
	timer := metrics.NewTimer()
	defer timer.ObserveMonitor("stop_target")

	e.mu.Lock()
	entries := make([]stopTargetEntry, len(e.stopTarget))
	copy(entries, e.stopTarget)
	halted := e.halted
	e.mu.Unlock()

	if halted {
		return
	}

	for _, en := range entries {
		price, err := e.prices.LastPrice(en.token)
		if err != nil {
			if !errors.Is(err, types.ErrNoTick) {
				e.logger.Warn("price lookup failed", "token", en.token, "err", err)
			}
			continue
		}
		reason := en.closeReason(price)
		if reason == "" {
			continue
		}

		e.close(ctx, en, reason, price)
	}
}

// close squares off one monitored position whose close rule fired.
func (e *Engine) close(ctx context.Context, en stopTargetEntry, reason string, price decimal.Decimal) {
	rowID := en.row()

	e.mu.Lock()
	slot := &e.table[rowID]
	// A failed cancel leaves the row on NOT CANCELLED but still queued;
	// its close rules keep firing until a cancel retry succeeds.
	monitored := slot.status.IsWaitingStopTarget() || slot.status == types.StatusNotCancelled
	if slot.busy || !monitored || !containsRow(e.stopTarget, rowID) {
		e.mu.Unlock()
		return
	}
	slot.busy = true
	e.mu.Unlock()

	e.logger.Info("close rule hit",
		"row", rowID,
		"instrument", en.input.Instrument,
		"reason", reason,
		"last_price", price,
	)

	exitID, placeErr := e.placeExit(ctx, en.input, en.tradingSymbol)

	e.mu.Lock()
	slot = &e.table[rowID]
	slot.busy = false
	e.stopTarget = withoutRow(e.stopTarget, rowID)
	if placeErr != nil {
		slot.status = types.StatusError
		e.recordRowsInErrorLocked()
		e.recordQueueDepthsLocked()
		e.mu.Unlock()
		e.onPlacementFailure(ctx, rowID, placeErr)
		return
	}

	slot.status = types.StatusClosed
	slot.exitResult = fmt.Sprintf("%s %s", reason, price)
	e.recordQueueDepthsLocked()
	e.mu.Unlock()

	e.alert(ctx, alerting.EventPositionClosed, "Position closed",
		"row", rowID,
		"instrument", en.input.Instrument,
		"reason", reason,
		"exit_order_id", exitID,
		"last_price", price.String(),
	)
}
