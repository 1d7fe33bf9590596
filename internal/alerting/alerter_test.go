package alerting

import (
	"context"
	"errors"
	"testing"
)

func TestEventSeverity(t *testing.T) {
	tests := []struct {
		event AlertEvent
		want  Severity
	}{
		{EventKillSwitch, SeverityCritical},
		{EventPlacementFailed, SeverityHigh},
		{EventFeedDisconnected, SeverityWarning},
		{EventOrderPlaced, SeverityInfo},
		{EventTriggerFired, SeverityInfo},
		{EventPositionClosed, SeverityInfo},
		{EventTerminalStarted, SeverityInfo},
	}
	for _, tt := range tests {
		if got := EventSeverity(tt.event); got != tt.want {
			t.Errorf("EventSeverity(%s) = %s, want %s", tt.event, got, tt.want)
		}
	}
}

func TestFormatFields(t *testing.T) {
	got := FormatFields("row", 3, "order_id", "abc123")
	want := "• row: 3\n• order_id: abc123"
	if got != want {
		t.Errorf("FormatFields() = %q, want %q", got, want)
	}

	if got := FormatFields(); got != "" {
		t.Errorf("FormatFields() with no fields = %q, want empty", got)
	}
}

func TestMultiAlerterFanOut(t *testing.T) {
	a := NewMockAlerter()
	b := NewMockAlerter()
	multi := NewMultiAlerter(nil, a, b)

	err := multi.AlertEvent(context.Background(), EventTriggerFired, "trigger fired", "row", 1)
	if err != nil {
		t.Fatalf("AlertEvent() error = %v", err)
	}

	if a.Count() != 1 || b.Count() != 1 {
		t.Errorf("alert counts = %d, %d, want 1, 1", a.Count(), b.Count())
	}
	if !a.HasAlertWithSeverity(SeverityInfo) {
		t.Error("expected info severity alert")
	}
}

func TestMultiAlerterJoinsErrors(t *testing.T) {
	good := NewMockAlerter()
	multi := NewMultiAlerter(nil, good, failingAlerter{})

	err := multi.Alert(context.Background(), SeverityHigh, "placement failed")
	if err == nil {
		t.Fatal("expected error from failing alerter")
	}
	if good.Count() != 1 {
		t.Errorf("good alerter count = %d, want 1", good.Count())
	}
}

type failingAlerter struct{}

func (failingAlerter) Name() string { return "failing" }

func (failingAlerter) Alert(context.Context, Severity, string, ...any) error {
	return errors.New("send failed")
}
