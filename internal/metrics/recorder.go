package metrics

import (
	"time"
)

// Recorder provides methods for recording metrics.
type Recorder struct{}

// NewRecorder creates a new metrics recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// RecordOrder records an order placement.
func (r *Recorder) RecordOrder(side, kind, status string) {
	OrdersTotal.WithLabelValues(side, kind, status).Inc()
}

// RecordCancellation records a cancellation attempt.
func (r *Recorder) RecordCancellation(ok bool) {
	CancellationsTotal.WithLabelValues(outcome(ok)).Inc()
}

// RecordModification records a modification attempt.
func (r *Recorder) RecordModification(ok bool) {
	ModificationsTotal.WithLabelValues(outcome(ok)).Inc()
}

// RecordQueueDepth records the current size of a monitoring queue.
func (r *Recorder) RecordQueueDepth(queue string, depth int) {
	QueueDepth.WithLabelValues(queue).Set(float64(depth))
}

// RecordRowsInError records the number of rows in ERROR state.
func (r *Recorder) RecordRowsInError(count int) {
	RowsInError.Set(float64(count))
}

// RecordMonitorCycle records the duration of a monitor sweep.
func (r *Recorder) RecordMonitorCycle(monitor string, duration time.Duration) {
	MonitorCycleDuration.WithLabelValues(monitor).Observe(duration.Seconds())
}

// RecordPlacementRetry records a single placement retry attempt.
func (r *Recorder) RecordPlacementRetry() {
	PlacementRetries.Inc()
}

// RecordPlacementFailure records a placement that exhausted all retries.
func (r *Recorder) RecordPlacementFailure() {
	PlacementFailures.Inc()
}

// RecordTick records a price tick being applied.
func (r *Recorder) RecordTick() {
	TicksTotal.Inc()
}

// RecordFeedStatus records price stream connection status.
func (r *Recorder) RecordFeedStatus(connected bool) {
	if connected {
		FeedConnected.Set(1)
	} else {
		FeedConnected.Set(0)
	}
}

// RecordFeedReconnect records a price stream reconnection attempt.
func (r *Recorder) RecordFeedReconnect() {
	FeedReconnects.Inc()
}

// RecordSheetPoll records the duration of a control loop poll cycle.
func (r *Recorder) RecordSheetPoll(duration time.Duration) {
	SheetPollDuration.Observe(duration.Seconds())
}

// RecordEngineHalted records the engine halt state.
func (r *Recorder) RecordEngineHalted(halted bool) {
	if halted {
		EngineHalted.Set(1)
	} else {
		EngineHalted.Set(0)
	}
}

// RecordError records an error.
func (r *Recorder) RecordError(errorType string) {
	ErrorsTotal.WithLabelValues(errorType).Inc()
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// Timer is a helper for measuring latency.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Elapsed returns the elapsed duration.
func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}

// ObserveMonitor observes the elapsed time as a monitor sweep duration.
func (t *Timer) ObserveMonitor(monitor string) {
	MonitorCycleDuration.WithLabelValues(monitor).Observe(t.Elapsed().Seconds())
}

// ObserveSheetPoll observes the elapsed time as a sheet poll duration.
func (t *Timer) ObserveSheetPoll() {
	SheetPollDuration.Observe(t.Elapsed().Seconds())
}
