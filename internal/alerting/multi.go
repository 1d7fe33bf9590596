package alerting

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// MultiAlerter fans one alert out to every configured channel so a slow
// or failing channel cannot suppress the others.
type MultiAlerter struct {
	mu       sync.RWMutex
	alerters []Alerter
	logger   *slog.Logger
}

// NewMultiAlerter creates a fan-out alerter over the given channels.
func NewMultiAlerter(logger *slog.Logger, alerters ...Alerter) *MultiAlerter {
	if logger == nil {
		logger = slog.Default()
	}
	return &MultiAlerter{
		alerters: alerters,
		logger:   logger,
	}
}

func (m *MultiAlerter) Name() string {
	return "multi"
}

// AddAlerter registers another channel.
func (m *MultiAlerter) AddAlerter(alerter Alerter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerters = append(m.alerters, alerter)
}

// Alert delivers the alert to every channel concurrently and joins any
// per-channel errors.
func (m *MultiAlerter) Alert(ctx context.Context, severity Severity, message string, fields ...any) error {
	m.mu.RLock()
	alerters := make([]Alerter, len(m.alerters))
	copy(alerters, m.alerters)
	m.mu.RUnlock()

	if len(alerters) == 0 {
		return nil
	}

	errs := make([]error, len(alerters))
	var wg sync.WaitGroup

	for i, alerter := range alerters {
		wg.Add(1)
		go func(i int, a Alerter) {
			defer wg.Done()
			if err := a.Alert(ctx, severity, message, fields...); err != nil {
				m.logger.Error("alert channel failed",
					"alerter", a.Name(),
					"severity", severity.String(),
					"err", err,
				)
				errs[i] = err
			}
		}(i, alerter)
	}
	wg.Wait()

	return errors.Join(errs...)
}

// AlertEvent delivers an alert for a lifecycle event at that event's
// severity.
func (m *MultiAlerter) AlertEvent(ctx context.Context, event AlertEvent, message string, fields ...any) error {
	return m.Alert(ctx, EventSeverity(event), message, fields...)
}
