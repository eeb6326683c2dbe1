package storage

import (
	"context"
	"os"
	"testing"

	"github.com/triage-ai/backend/internal/models"
)

// Exercises the Postgres store against a real database. Run with
// TEST_DATABASE_URL=postgres://... go test ./internal/storage -run Table
func TestTableStoreRoundtrip(t *testing.T) {
	databaseURL := os.Getenv("TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	store, err := NewTable(ctx, databaseURL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer store.Close()

	if err := store.Ping(ctx); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("schema failed: %v", err)
	}

	batch := sampleBatch()
	batchID, err := store.SaveBatch(ctx, batch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if batchID == "" {
		t.Fatalf("expected a batch id")
	}

	loaded, err := store.LoadLatest(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(loaded) != len(batch) {
		t.Fatalf("expected %d tickets, got %d", len(batch), len(loaded))
	}
	if loaded[0].Key() != batch[0].Key() || loaded[1].Key() != batch[1].Key() {
		t.Fatalf("batch order lost: %+v", loaded)
	}

	if err := store.AppendActionLog(ctx, models.ActionRecord{Action: "triage_and_assign", TicketsProcessed: len(batch), Method: "Mock Rule-Based"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	recent, err := store.RecentActions(ctx, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recent) == 0 || recent[0].Action != "triage_and_assign" {
		t.Fatalf("expected the appended action, got %+v", recent)
	}

	if err := store.AppendAssignmentLog(ctx, models.AssignmentRecord{TicketID: "INC10000", Engineer: "Alice Chen", Fallback: true, Reason: "No suitable engineer found (fallback to least loaded)"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
