package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/memshield/memshield/internal/models"
)

// getTestDSN returns the test database DSN from environment
func getTestDSN() string {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		dsn = "host=localhost port=5432 user=memshield password=memshield_password dbname=memshield_test sslmode=disable"
	}
	return dsn
}

// skipIfNoTestDB skips the test if no test database is available
func skipIfNoTestDB(t *testing.T) *Store {
	t.Helper()

	store, err := New(Config{
		DSN:          getTestDSN(),
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	})
	if err != nil {
		t.Skipf("Skipping test, database not available: %v", err)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := store.Ping(ctx); err != nil {
		t.Skipf("Skipping test, database not reachable: %v", err)
		return nil
	}

	return store
}

func TestStore_Entries(t *testing.T) {
	store := skipIfNoTestDB(t)
	if store == nil {
		return
	}
	defer store.Close()

	ctx := context.Background()

	entry := &models.MemoryEntry{
		Actor:      "test-agent-" + uuid.New().String()[:8],
		Category:   "clients",
		Content:    "Client Type: marketing firm\n\nClient A prefers weekly syncs",
		Importance: 7,
	}

	if err := store.CreateEntry(ctx, entry); err != nil {
		t.Fatalf("CreateEntry failed: %v", err)
	}
	if entry.ID == uuid.Nil {
		t.Error("Expected entry ID to be set")
	}

	retrieved, err := store.GetEntry(ctx, entry.ID)
	if err != nil {
		t.Fatalf("GetEntry failed: %v", err)
	}
	if retrieved.Content != entry.Content {
		t.Errorf("Expected content %q, got %q", entry.Content, retrieved.Content)
	}
	if retrieved.Importance != entry.Importance {
		t.Errorf("Expected importance %d, got %d", entry.Importance, retrieved.Importance)
	}

	entries, total, err := store.ListEntries(ctx, ListEntryFilters{Actor: &entry.Actor})
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	if total != 1 || len(entries) != 1 {
		t.Errorf("Expected exactly one entry for the actor, got %d (total %d)", len(entries), total)
	}

	if err := store.UpdateEntryContent(ctx, entry.ID, "rescanned content"); err != nil {
		t.Fatalf("UpdateEntryContent failed: %v", err)
	}
	retrieved, _ = store.GetEntry(ctx, entry.ID)
	if retrieved.Content != "rescanned content" {
		t.Errorf("Expected updated content, got %q", retrieved.Content)
	}

	if err := store.DeleteEntry(ctx, entry.ID); err != nil {
		t.Fatalf("DeleteEntry failed: %v", err)
	}
	retrieved, err = store.GetEntry(ctx, entry.ID)
	if err != nil {
		t.Fatalf("GetEntry after delete failed: %v", err)
	}
	if retrieved != nil {
		t.Error("Expected entry to be deleted")
	}
}

func TestStore_ScanRecords(t *testing.T) {
	store := skipIfNoTestDB(t)
	if store == nil {
		return
	}
	defer store.Close()

	ctx := context.Background()

	entry := &models.MemoryEntry{
		Actor:    "test-scan-" + uuid.New().String()[:8],
		Category: "notes",
		Content:  "sanitized",
	}
	if err := store.CreateEntry(ctx, entry); err != nil {
		t.Fatalf("CreateEntry failed: %v", err)
	}
	defer store.DeleteEntry(ctx, entry.ID)

	record := &models.ScanRecord{
		EntryID:          &entry.ID,
		Classification:   models.ClassificationConfidential,
		RedactionApplied: true,
		Confidence:       0.5,
		DetectedPatterns: models.StringArray{"client-company-name", "industry-financial-metric"},
		Warnings:         models.StringArray{"CLIENT DATA WARNING: client information detected - content will be redacted"},
	}
	if err := store.CreateScanRecord(ctx, record); err != nil {
		t.Fatalf("CreateScanRecord failed: %v", err)
	}

	records, err := store.ListScanRecords(ctx, &entry.ID, 10)
	if err != nil {
		t.Fatalf("ListScanRecords failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected one scan record, got %d", len(records))
	}
	if records[0].Classification != models.ClassificationConfidential {
		t.Errorf("Expected confidential classification, got %s", records[0].Classification)
	}
	if len(records[0].DetectedPatterns) != 2 {
		t.Errorf("Expected two detected patterns, got %v", records[0].DetectedPatterns)
	}
}

func TestStore_SecurityEvents(t *testing.T) {
	store := skipIfNoTestDB(t)
	if store == nil {
		return
	}
	defer store.Close()

	ctx := context.Background()
	actor := "test-events-" + uuid.New().String()[:8]

	event := &models.SecurityEvent{
		Type:           models.EventSecurityViolation,
		Actor:          actor,
		ActorRole:      models.RoleUser,
		Classification: models.ClassificationSecret,
		Details:        "content blocked: 1 secret rule(s) matched",
		Severity:       models.SeverityCritical,
		Result:         models.ResultBlocked,
		Action:         "scan",
	}
	if err := store.InsertSecurityEvent(ctx, event); err != nil {
		t.Fatalf("InsertSecurityEvent failed: %v", err)
	}

	eventType := models.EventSecurityViolation
	events, total, err := store.ListSecurityEvents(ctx, ListEventFilters{Type: &eventType, Limit: 50})
	if err != nil {
		t.Fatalf("ListSecurityEvents failed: %v", err)
	}
	if total == 0 || len(events) == 0 {
		t.Fatal("Expected the inserted event to be listed")
	}

	found := false
	for _, e := range events {
		if e.ID == event.ID {
			found = true
			if e.Result != models.ResultBlocked {
				t.Errorf("Expected blocked result, got %s", e.Result)
			}
		}
	}
	if !found {
		t.Error("Inserted event missing from the filtered list")
	}

	deleted, err := store.DeleteEventsBefore(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("DeleteEventsBefore failed: %v", err)
	}
	if deleted == 0 {
		t.Error("Expected the retention sweep to remove the event")
	}
}

func TestStore_EventSink(t *testing.T) {
	store := skipIfNoTestDB(t)
	if store == nil {
		return
	}
	defer store.Close()

	ctx := context.Background()
	actor := "test-sink-" + uuid.New().String()[:8]

	store.EventSink().Record(&models.SecurityEvent{
		Type:     models.EventDataAccess,
		Actor:    actor,
		Severity: models.SeverityLow,
		Result:   models.ResultSuccess,
		Action:   "scan",
	})

	eventType := models.EventDataAccess
	events, _, err := store.ListSecurityEvents(ctx, ListEventFilters{Type: &eventType, Limit: 100})
	if err != nil {
		t.Fatalf("ListSecurityEvents failed: %v", err)
	}

	found := false
	for _, e := range events {
		if e.Actor == actor {
			found = true
		}
	}
	if !found {
		t.Error("Expected the sink to persist the event")
	}
}
