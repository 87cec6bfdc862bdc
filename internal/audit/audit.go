// Package audit keeps the append-only security event trail. The in-memory
// log is the only synchronization point in the subsystem: scans themselves
// are pure, but the shared log needs a mutex when callers run concurrently.
package audit

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/memshield/memshield/internal/models"
)

// DefaultCapacity bounds the in-memory log when no cap is configured.
const DefaultCapacity = 100

// Sink receives security events. audit.Log is the default implementation;
// the store package provides a persistent one.
type Sink interface {
	Record(event *models.SecurityEvent)
}

// Log is a mutex-guarded append-only ring of security events. When the cap
// is exceeded the oldest events are dropped first. Events are never mutated
// after Record.
type Log struct {
	mu       sync.Mutex
	events   []*models.SecurityEvent
	capacity int
}

func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{capacity: capacity}
}

// Record appends one event, assigning an ID and wall-clock timestamp if the
// caller left them zero. Timestamps are not required to be monotonic across
// process restarts.
func (l *Log) Record(event *models.SecurityEvent) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append(l.events, event)
	if len(l.events) > l.capacity {
		l.events = l.events[len(l.events)-l.capacity:]
	}
}

// Recent returns up to n most recent events, newest first.
func (l *Log) Recent(n int) []*models.SecurityEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n <= 0 || n > len(l.events) {
		n = len(l.events)
	}
	out := make([]*models.SecurityEvent, n)
	for i := 0; i < n; i++ {
		out[i] = l.events[len(l.events)-1-i]
	}
	return out
}

// Len returns the number of retained events.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// Report aggregates the retained events.
type Report struct {
	TotalEvents    int                        `json:"total_events"`
	BySeverity     map[models.Severity]int    `json:"by_severity"`
	ByResult       map[models.EventResult]int `json:"by_result"`
	ByType         map[models.EventType]int   `json:"by_type"`
	BlockedEvents  int                        `json:"blocked_events"`
	CriticalEvents int                        `json:"critical_events"`
	SecurityScore  int                        `json:"security_score"`
	RecentEvents   []*models.SecurityEvent    `json:"recent_events"`
}

// Report summarizes the retained window: totals, severity and result
// breakdowns, and a coarse 0-100 score penalizing blocked and critical
// events.
func (l *Log) Report() *Report {
	l.mu.Lock()
	events := make([]*models.SecurityEvent, len(l.events))
	copy(events, l.events)
	l.mu.Unlock()

	report := &Report{
		TotalEvents: len(events),
		BySeverity:  make(map[models.Severity]int),
		ByResult:    make(map[models.EventResult]int),
		ByType:      make(map[models.EventType]int),
	}

	for _, e := range events {
		report.BySeverity[e.Severity]++
		report.ByResult[e.Result]++
		report.ByType[e.Type]++
		if e.Result == models.ResultBlocked {
			report.BlockedEvents++
		}
		if e.Severity == models.SeverityCritical {
			report.CriticalEvents++
		}
	}

	score := 100 - report.BlockedEvents*5 - report.CriticalEvents*10
	if score < 0 {
		score = 0
	}
	report.SecurityScore = score

	n := 10
	if n > len(events) {
		n = len(events)
	}
	report.RecentEvents = make([]*models.SecurityEvent, n)
	for i := 0; i < n; i++ {
		report.RecentEvents[i] = events[len(events)-1-i]
	}

	return report
}

// Fanout records each event to every sink, letting the in-memory log and a
// persistent store share the trail.
type Fanout []Sink

func (f Fanout) Record(event *models.SecurityEvent) {
	for _, sink := range f {
		sink.Record(event)
	}
}
