// Package alerting provides notification capabilities for the trading
// terminal.
package alerting

import (
	"context"
	"fmt"
)

// Severity represents the alert severity level.
type Severity int

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = iota
	// SeverityWarning is for warning messages.
	SeverityWarning
	// SeverityHigh is for high priority alerts.
	SeverityHigh
	// SeverityCritical is for critical alerts requiring immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Alerter defines the interface for sending alerts.
type Alerter interface {
	// Alert sends an alert with the given severity and message.
	Alert(ctx context.Context, severity Severity, message string, fields ...any) error
	// Name returns the name of the alerter.
	Name() string
}

// FormatFields converts variadic key-value fields to a formatted string.
func FormatFields(fields ...any) string {
	if len(fields) == 0 {
		return ""
	}

	result := ""
	for i := 0; i < len(fields)-1; i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		value := fields[i+1]
		if result != "" {
			result += "\n"
		}
		result += fmt.Sprintf("• %s: %v", key, value)
	}
	return result
}

// AlertEvent represents a pre-defined alert event type.
type AlertEvent string

const (
	// EventOrderPlaced is sent when an entry or exit order is placed.
	EventOrderPlaced AlertEvent = "order_placed"
	// EventOrderCancelled is sent when a resting order is cancelled.
	EventOrderCancelled AlertEvent = "order_cancelled"
	// EventTriggerFired is sent when a conditional row crosses its trigger.
	EventTriggerFired AlertEvent = "trigger_fired"
	// EventPositionClosed is sent when a stoploss or target closes a position.
	EventPositionClosed AlertEvent = "position_closed"
	// EventPlacementFailed is sent when order placement retries are exhausted.
	EventPlacementFailed AlertEvent = "placement_failed"
	// EventKillSwitch is sent when the engine halts after a placement failure.
	EventKillSwitch AlertEvent = "kill_switch"
	// EventFeedConnected is sent when the price stream connects.
	EventFeedConnected AlertEvent = "feed_connected"
	// EventFeedDisconnected is sent when the price stream drops.
	EventFeedDisconnected AlertEvent = "feed_disconnected"
	// EventTerminalStarted is sent when the terminal starts.
	EventTerminalStarted AlertEvent = "terminal_started"
	// EventTerminalStopped is sent when the terminal stops.
	EventTerminalStopped AlertEvent = "terminal_stopped"
)

// EventSeverity returns the default severity for an event.
func EventSeverity(event AlertEvent) Severity {
	switch event {
	case EventKillSwitch:
		return SeverityCritical
	case EventPlacementFailed:
		return SeverityHigh
	case EventFeedDisconnected:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}
