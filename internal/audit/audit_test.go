package audit

import (
	"fmt"
	"testing"

	"github.com/memshield/memshield/internal/models"
)

func TestLog_AssignsIDAndTimestamp(t *testing.T) {
	l := NewLog(10)
	l.Record(&models.SecurityEvent{Type: models.EventDataAccess})

	events := l.Recent(1)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].ID.String() == "00000000-0000-0000-0000-000000000000" {
		t.Error("expected an ID to be assigned")
	}
	if events[0].Timestamp.IsZero() {
		t.Error("expected a timestamp to be assigned")
	}
}

func TestLog_EvictsOldestFirst(t *testing.T) {
	l := NewLog(5)
	for i := 0; i < 8; i++ {
		l.Record(&models.SecurityEvent{
			Type:    models.EventDataAccess,
			Details: fmt.Sprintf("event %d", i),
		})
	}

	if l.Len() != 5 {
		t.Fatalf("expected capacity 5, got %d", l.Len())
	}

	events := l.Recent(0)
	if events[0].Details != "event 7" {
		t.Errorf("expected newest first, got %s", events[0].Details)
	}
	if events[len(events)-1].Details != "event 3" {
		t.Errorf("expected events 0-2 evicted, oldest retained is %s", events[len(events)-1].Details)
	}
}

func TestLog_RecentLimits(t *testing.T) {
	l := NewLog(10)
	for i := 0; i < 4; i++ {
		l.Record(&models.SecurityEvent{Details: fmt.Sprintf("event %d", i)})
	}

	if got := len(l.Recent(2)); got != 2 {
		t.Errorf("expected 2 events, got %d", got)
	}
	if got := len(l.Recent(100)); got != 4 {
		t.Errorf("expected all 4 events when n exceeds the log, got %d", got)
	}
}

func TestLog_DefaultCapacity(t *testing.T) {
	l := NewLog(0)
	for i := 0; i < DefaultCapacity+20; i++ {
		l.Record(&models.SecurityEvent{})
	}
	if l.Len() != DefaultCapacity {
		t.Errorf("expected default capacity %d, got %d", DefaultCapacity, l.Len())
	}
}

func TestReport_Score(t *testing.T) {
	tests := []struct {
		name     string
		blocked  int
		critical int
		expected int
	}{
		{"clean window", 0, 0, 100},
		{"some blocks", 3, 0, 85},
		{"critical events", 0, 2, 80},
		{"mixed", 4, 3, 50},
		{"floor at zero", 10, 10, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLog(200)
			for i := 0; i < tt.blocked; i++ {
				l.Record(&models.SecurityEvent{
					Result:   models.ResultBlocked,
					Severity: models.SeverityMedium,
				})
			}
			for i := 0; i < tt.critical; i++ {
				l.Record(&models.SecurityEvent{
					Result:   models.ResultSuccess,
					Severity: models.SeverityCritical,
				})
			}

			report := l.Report()
			if report.SecurityScore != tt.expected {
				t.Errorf("expected score %d, got %d", tt.expected, report.SecurityScore)
			}
			if report.BlockedEvents != tt.blocked {
				t.Errorf("expected %d blocked events, got %d", tt.blocked, report.BlockedEvents)
			}
			if report.CriticalEvents != tt.critical {
				t.Errorf("expected %d critical events, got %d", tt.critical, report.CriticalEvents)
			}
		})
	}
}

func TestReport_Breakdowns(t *testing.T) {
	l := NewLog(50)
	l.Record(&models.SecurityEvent{Type: models.EventDataAccess, Severity: models.SeverityLow, Result: models.ResultSuccess})
	l.Record(&models.SecurityEvent{Type: models.EventDataAccess, Severity: models.SeverityLow, Result: models.ResultSuccess})
	l.Record(&models.SecurityEvent{Type: models.EventSecurityViolation, Severity: models.SeverityCritical, Result: models.ResultBlocked})

	report := l.Report()

	if report.TotalEvents != 3 {
		t.Errorf("expected 3 events, got %d", report.TotalEvents)
	}
	if report.ByType[models.EventDataAccess] != 2 {
		t.Errorf("expected 2 data_access events, got %d", report.ByType[models.EventDataAccess])
	}
	if report.BySeverity[models.SeverityCritical] != 1 {
		t.Errorf("expected 1 critical event, got %d", report.BySeverity[models.SeverityCritical])
	}
	if report.ByResult[models.ResultBlocked] != 1 {
		t.Errorf("expected 1 blocked result, got %d", report.ByResult[models.ResultBlocked])
	}
	if len(report.RecentEvents) != 3 {
		t.Errorf("expected 3 recent events, got %d", len(report.RecentEvents))
	}
	if report.RecentEvents[0].Type != models.EventSecurityViolation {
		t.Error("expected the newest event first in the report")
	}
}

func TestFanout(t *testing.T) {
	a, b := NewLog(10), NewLog(10)
	sink := Fanout{a, b}

	sink.Record(&models.SecurityEvent{Type: models.EventDataAccess})

	if a.Len() != 1 || b.Len() != 1 {
		t.Errorf("expected the event in both sinks, got %d and %d", a.Len(), b.Len())
	}
}

func TestLog_ConcurrentRecord(t *testing.T) {
	l := NewLog(1000)
	done := make(chan struct{})

	for i := 0; i < 8; i++ {
		go func() {
			for j := 0; j < 50; j++ {
				l.Record(&models.SecurityEvent{Type: models.EventDataAccess})
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	if l.Len() != 400 {
		t.Errorf("expected 400 events, got %d", l.Len())
	}
}
