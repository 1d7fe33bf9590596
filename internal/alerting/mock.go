package alerting

import (
	"context"
	"strings"
	"sync"
)

// CapturedAlert is one alert recorded by a MockAlerter.
type CapturedAlert struct {
	Severity Severity
	Message  string
	Fields   []any
}

// MockAlerter records alerts for inspection in tests.
type MockAlerter struct {
	mu       sync.Mutex
	captured []CapturedAlert
}

// NewMockAlerter creates a recording alerter.
func NewMockAlerter() *MockAlerter {
	return &MockAlerter{}
}

func (m *MockAlerter) Name() string {
	return "mock"
}

// Alert records the alert and always succeeds.
func (m *MockAlerter) Alert(_ context.Context, severity Severity, message string, fields ...any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.captured = append(m.captured, CapturedAlert{
		Severity: severity,
		Message:  message,
		Fields:   fields,
	})
	return nil
}

// Alerts returns a copy of everything recorded so far.
func (m *MockAlerter) Alerts() []CapturedAlert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CapturedAlert, len(m.captured))
	copy(out, m.captured)
	return out
}

// Count returns how many alerts were recorded.
func (m *MockAlerter) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.captured)
}

// HasAlertWithSeverity reports whether any recorded alert carries the
// given severity.
func (m *MockAlerter) HasAlertWithSeverity(severity Severity) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.captured {
		if a.Severity == severity {
			return true
		}
	}
	return false
}

// HasAlertContaining reports whether any recorded message contains the
// substring.
func (m *MockAlerter) HasAlertContaining(substr string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.captured {
		if strings.Contains(a.Message, substr) {
			return true
		}
	}
	return false
}
