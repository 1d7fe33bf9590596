package alerting

import (
	"context"
	"log/slog"
)

// ConsoleAlerter writes alerts to the terminal's structured log. It is
// the default channel and the only one active in paper trading.
type ConsoleAlerter struct {
	logger *slog.Logger
}

// NewConsoleAlerter creates a console alerter.
func NewConsoleAlerter(logger *slog.Logger) *ConsoleAlerter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsoleAlerter{logger: logger}
}

func (c *ConsoleAlerter) Name() string {
	return "console"
}

// Alert logs the alert at the slog level matching its severity.
func (c *ConsoleAlerter) Alert(ctx context.Context, severity Severity, message string, fields ...any) error {
	attrs := append([]any{"severity", severity.String()}, fields...)
	c.logger.Log(ctx, severityLevel(severity), "[ALERT] "+message, attrs...)
	return nil
}

func severityLevel(severity Severity) slog.Level {
	switch severity {
	case SeverityCritical:
		return slog.LevelError
	case SeverityHigh, SeverityWarning:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
