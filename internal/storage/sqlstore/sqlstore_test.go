package sqlstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/openrescue/roadsync/internal/fault"
	"github.com/openrescue/roadsync/internal/storage"
)

// testStore opens a fresh SQLite store with the preferred schema.
func testStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	return s
}

func insertTestRequest(t *testing.T, s *Store, id string) storage.Row {
	t.Helper()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	row, err := s.InsertRequest(context.Background(), storage.Row{
		"id":         id,
		"created_at": now,
		"updated_at": now,
		"user_id":    "u-1",
		"user_email": "sam@example.com",
		"vehicle":    `{"make":"Toyota","model":"Corolla","year":"2016","plate":"ABC-123"}`,
		"contact":    `{"name":"Sam","phone":"555-0101","email":""}`,
		"status":     "open",
		"notes":      "[]",
	})
	if err != nil {
		t.Fatalf("InsertRequest() failed: %v", err)
	}
	return row
}

// TestInitSchema_Idempotent verifies repeated schema creation is safe.
func TestInitSchema_Idempotent(t *testing.T) {
	s := testStore(t)
	if err := s.InitSchema(context.Background()); err != nil {
		t.Fatalf("second InitSchema() failed: %v", err)
	}
}

// TestInsertAndGetRequest verifies the insert-returning-row round trip.
func TestInsertAndGetRequest(t *testing.T) {
	s := testStore(t)
	inserted := insertTestRequest(t, s, "req-1")

	if inserted["id"] != "req-1" {
		t.Errorf("returned row id = %v", inserted["id"])
	}

	got, err := s.GetRequest(context.Background(), "req-1")
	if err != nil {
		t.Fatalf("GetRequest() failed: %v", err)
	}
	if got["status"] != "open" {
		t.Errorf("status = %v", got["status"])
	}
}

// TestGetRequest_NotFound verifies the typed NotFound fault.
func TestGetRequest_NotFound(t *testing.T) {
	s := testStore(t)
	_, err := s.GetRequest(context.Background(), "missing")
	if !fault.Is(err, fault.NotFound) {
		t.Errorf("err = %v, want NotFound fault", err)
	}
}

// TestUpdateRequestWhere_GuardHolds verifies a guarded update applies
// and returns the updated row when the precondition is true.
func TestUpdateRequestWhere_GuardHolds(t *testing.T) {
	s := testStore(t)
	insertTestRequest(t, s, "req-1")

	row, ok, err := s.UpdateRequestWhere(context.Background(), "req-1",
		storage.Row{"status": "assigned", "assigned_mechanic_id": "m-1"},
		storage.IsNull("assigned_mechanic_id"),
	)
	if err != nil {
		t.Fatalf("UpdateRequestWhere() failed: %v", err)
	}
	if !ok {
		t.Fatal("guard should have held")
	}
	if row["assigned_mechanic_id"] != "m-1" || row["status"] != "assigned" {
		t.Errorf("updated row = %v", row)
	}
}

// TestUpdateRequestWhere_GuardFails verifies that a failed guard
// applies nothing and reports no match without an error.
func TestUpdateRequestWhere_GuardFails(t *testing.T) {
	s := testStore(t)
	insertTestRequest(t, s, "req-1")
	ctx := context.Background()

	// Claim once.
	if _, ok, err := s.UpdateRequestWhere(ctx, "req-1",
		storage.Row{"assigned_mechanic_id": "m-1", "status": "assigned"},
		storage.IsNull("assigned_mechanic_id")); err != nil || !ok {
		t.Fatalf("first claim: ok=%v err=%v", ok, err)
	}

	// Second claim by someone else must not match.
	row, ok, err := s.UpdateRequestWhere(ctx, "req-1",
		storage.Row{"assigned_mechanic_id": "m-2", "status": "assigned"},
		storage.IsNull("assigned_mechanic_id"))
	if err != nil {
		t.Fatalf("second claim errored: %v", err)
	}
	if ok || row != nil {
		t.Fatal("second claim should not match the guard")
	}

	got, err := s.GetRequest(ctx, "req-1")
	if err != nil {
		t.Fatalf("GetRequest() failed: %v", err)
	}
	if got["assigned_mechanic_id"] != "m-1" {
		t.Errorf("assignee overwritten: %v", got["assigned_mechanic_id"])
	}
}

// TestUpdateRequestWhere_InGuard verifies IN-list guards, which the
// engine uses for status preconditions with legacy token spellings.
func TestUpdateRequestWhere_InGuard(t *testing.T) {
	s := testStore(t)
	insertTestRequest(t, s, "req-1")
	ctx := context.Background()

	_, ok, err := s.UpdateRequestWhere(ctx, "req-1",
		storage.Row{"status": "in_progress"},
		storage.In("status", "assigned", "Accepted"))
	if err != nil {
		t.Fatalf("UpdateRequestWhere() failed: %v", err)
	}
	if ok {
		t.Fatal("status open should not satisfy IN(assigned, Accepted)")
	}

	_, ok, err = s.UpdateRequestWhere(ctx, "req-1",
		storage.Row{"status": "assigned"},
		storage.In("status", "open", "Submitted"))
	if err != nil || !ok {
		t.Fatalf("IN guard on open failed: ok=%v err=%v", ok, err)
	}
}

// TestUpdateRequestWhere_MissingColumn verifies that referencing a
// column this deployment lacks classifies as SchemaMismatch.
func TestUpdateRequestWhere_MissingColumn(t *testing.T) {
	s := testStore(t)
	insertTestRequest(t, s, "req-1")

	_, _, err := s.UpdateRequestWhere(context.Background(), "req-1",
		storage.Row{"nonexistent_column": "x"})
	if err == nil {
		t.Fatal("expected an error for a missing column")
	}
	if kind := storage.Classify(err); kind != fault.SchemaMismatch {
		t.Errorf("Classify() = %v, want SchemaMismatch (err: %v)", kind, err)
	}
}

// TestNotes_InsertListOrder verifies dedicated-relation note appends
// come back in chronological order.
func TestNotes_InsertListOrder(t *testing.T) {
	s := testStore(t)
	insertTestRequest(t, s, "req-1")
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, text := range []string{"first", "second", "third"} {
		err := s.InsertNote(ctx, "req-1", storage.Row{
			"id":         string(rune('a' + i)),
			"created_at": base.Add(time.Duration(i) * time.Minute).Format(time.RFC3339Nano),
			"author":     "mechanic",
			"body":       text,
		})
		if err != nil {
			t.Fatalf("InsertNote(%q) failed: %v", text, err)
		}
	}

	notes, err := s.ListNotes(ctx, "req-1")
	if err != nil {
		t.Fatalf("ListNotes() failed: %v", err)
	}
	if len(notes) != 3 {
		t.Fatalf("len(notes) = %d", len(notes))
	}
	for i, want := range []string{"first", "second", "third"} {
		if notes[i]["body"] != want {
			t.Errorf("notes[%d] = %v, want %q", i, notes[i]["body"], want)
		}
	}
}

// TestNotes_MissingRelation verifies the classification that drives
// the embedded-notes fallback on deployments without request_notes.
func TestNotes_MissingRelation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	// Legacy deployment: requests only, no request_notes relation.
	_, err = s.RawDB().Exec(`CREATE TABLE requests (
		id TEXT PRIMARY KEY, created_at TEXT, updated_at TEXT,
		status TEXT DEFAULT 'Submitted', mechanic_id TEXT, notes TEXT DEFAULT '[]')`)
	if err != nil {
		t.Fatalf("create legacy schema: %v", err)
	}

	err = s.InsertNote(context.Background(), "req-1", storage.Row{
		"id": "n-1", "created_at": "2026-03-01T10:00:00Z", "author": "mechanic", "body": "x",
	})
	if err == nil {
		t.Fatal("expected missing relation error")
	}
	if kind := storage.Classify(err); kind != fault.MissingRelation {
		t.Errorf("Classify() = %v, want MissingRelation (err: %v)", kind, err)
	}
}

// TestListRequests_Filters verifies condition rendering on list reads.
func TestListRequests_Filters(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	insertTestRequest(t, s, "req-1")
	insertTestRequest(t, s, "req-2")
	if _, ok, err := s.UpdateRequestWhere(ctx, "req-2",
		storage.Row{"assigned_mechanic_id": "m-1", "status": "assigned"},
		storage.IsNull("assigned_mechanic_id")); err != nil || !ok {
		t.Fatalf("claim req-2: ok=%v err=%v", ok, err)
	}

	open, err := s.ListRequests(ctx, storage.IsNull("assigned_mechanic_id"))
	if err != nil {
		t.Fatalf("ListRequests(open) failed: %v", err)
	}
	if len(open) != 1 || open[0]["id"] != "req-1" {
		t.Errorf("open requests = %v", open)
	}

	mine, err := s.ListRequests(ctx, storage.Eq("assigned_mechanic_id", "m-1"))
	if err != nil {
		t.Fatalf("ListRequests(mine) failed: %v", err)
	}
	if len(mine) != 1 || mine[0]["id"] != "req-2" {
		t.Errorf("my requests = %v", mine)
	}
}

// TestProfiles_RoundTrip verifies create, lookup by id and email, and
// field updates.
func TestProfiles_RoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	rec := &storage.ProfileRecord{PasswordHash: "hash"}
	rec.ID = "m-1"
	rec.Email = "Mech@Example.com"
	rec.Role = "mechanic"
	rec.Approval = "pending"
	rec.Name = "Alex"
	rec.CreatedAt = time.Now().UTC()

	if err := s.CreateProfile(ctx, rec); err != nil {
		t.Fatalf("CreateProfile() failed: %v", err)
	}

	byID, err := s.GetProfile(ctx, "m-1")
	if err != nil {
		t.Fatalf("GetProfile() failed: %v", err)
	}
	if byID.Email != "Mech@Example.com" || byID.PasswordHash != "hash" {
		t.Errorf("profile = %+v", byID)
	}

	byEmail, err := s.GetProfileByEmail(ctx, "mech@example.COM")
	if err != nil {
		t.Fatalf("GetProfileByEmail() failed: %v", err)
	}
	if byEmail.ID != "m-1" {
		t.Errorf("case-insensitive lookup returned %q", byEmail.ID)
	}

	if err := s.UpdateProfileFields(ctx, "m-1", storage.Row{"approval": "approved", "service_area": "Downtown"}); err != nil {
		t.Fatalf("UpdateProfileFields() failed: %v", err)
	}
	updated, _ := s.GetProfile(ctx, "m-1")
	if !updated.Approved() || updated.ServiceArea != "Downtown" {
		t.Errorf("updated profile = %+v", updated)
	}

	if err := s.UpdateProfileFields(ctx, "ghost", storage.Row{"name": "x"}); !fault.Is(err, fault.NotFound) {
		t.Errorf("update of missing profile = %v, want NotFound", err)
	}
}
