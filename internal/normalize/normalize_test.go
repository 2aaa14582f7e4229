package normalize

import (
	"testing"
	"time"

	"github.com/openrescue/roadsync/internal/status"
	"github.com/openrescue/roadsync/internal/storage"
)

// TestRequest_NestedObjects verifies the preferred shape: vehicle,
// contact, and notes stored as decoded JSON objects.
func TestRequest_NestedObjects(t *testing.T) {
	raw := storage.Row{
		"id":         "req-1",
		"created_at": "2026-03-01T10:00:00Z",
		"user_id":    "u-1",
		"user_email": "sam@example.com",
		"vehicle": map[string]any{
			"make": "Toyota", "model": "Corolla", "year": 2016, "plate": "ABC-123",
		},
		"issue_description":    "Car won't start, clicking noise.",
		"contact":              map[string]any{"name": "Sam Driver", "phone": "555-0101"},
		"status":               "open",
		"assigned_mechanic_id": nil,
		"notes":                []any{},
	}

	req := Request(raw)

	if req.ID != "req-1" {
		t.Errorf("ID = %q", req.ID)
	}
	if req.Vehicle.Make != "Toyota" || req.Vehicle.Model != "Corolla" {
		t.Errorf("vehicle = %+v", req.Vehicle)
	}
	if req.Vehicle.Year != "2016" {
		t.Errorf("numeric year not coerced: %q", req.Vehicle.Year)
	}
	if req.Contact.Name != "Sam Driver" || req.Contact.Phone != "555-0101" {
		t.Errorf("contact = %+v", req.Contact)
	}
	if req.Status != status.Open {
		t.Errorf("status = %q", req.Status)
	}
	if req.Assigned() {
		t.Error("request should be unassigned")
	}
	if req.CreatedAt.IsZero() {
		t.Error("created_at not parsed")
	}
	if req.UpdatedAt != req.CreatedAt {
		t.Error("updated_at should default to created_at")
	}
}

// TestRequest_FlatColumns verifies the flat-column schema variant
// with the legacy mechanic_id assignee column and legacy status.
func TestRequest_FlatColumns(t *testing.T) {
	raw := storage.Row{
		"id":             "req-2",
		"vehicle_make":   "Honda",
		"vehicle_model":  "Civic",
		"vehicle_year":   "2019",
		"vehicle_plate":  "XYZ-987",
		"contact_name":   "Pat",
		"contact_phone":  "555-0202",
		"contact_email":  "pat@example.com",
		"status":         "Accepted",
		"mechanic_id":    "m-7",
		"mechanic_email": "mech@example.com",
	}

	req := Request(raw)

	if req.Vehicle.Plate != "XYZ-987" {
		t.Errorf("plate = %q", req.Vehicle.Plate)
	}
	if req.Contact.Email != "pat@example.com" {
		t.Errorf("contact email = %q", req.Contact.Email)
	}
	if req.Status != status.Assigned {
		t.Errorf("legacy status not canonicalized: %q", req.Status)
	}
	if req.AssignedMechanicID != "m-7" || req.AssignedMechanicEmail != "mech@example.com" {
		t.Errorf("legacy assignee columns not picked up: %q %q",
			req.AssignedMechanicID, req.AssignedMechanicEmail)
	}
	if req.Notes == nil || len(req.Notes) != 0 {
		t.Errorf("absent notes should normalize to empty slice, got %#v", req.Notes)
	}
}

// TestRequest_BareColumnNames verifies the alternate bare column set
// (make/model/year/plate).
func TestRequest_BareColumnNames(t *testing.T) {
	raw := storage.Row{
		"id":    "req-3",
		"make":  "Ford",
		"model": "Focus",
		"year":  int64(2012),
		"plate": "FOC-012",
	}
	req := Request(raw)
	if req.Vehicle.Make != "Ford" || req.Vehicle.Year != "2012" {
		t.Errorf("vehicle = %+v", req.Vehicle)
	}
}

// TestRequest_WrappedRow verifies that a row delivered one level deep
// under a join key is unwrapped.
func TestRequest_WrappedRow(t *testing.T) {
	raw := storage.Row{
		"request": map[string]any{
			"id":     "req-4",
			"status": "Working",
		},
	}
	req := Request(raw)
	if req.ID != "req-4" {
		t.Errorf("wrapped row not unwrapped, ID = %q", req.ID)
	}
	if req.Status != status.InProgress {
		t.Errorf("status = %q", req.Status)
	}
}

// TestRequest_JSONEncodedFields verifies that vehicle, contact, and
// notes stored as JSON-encoded strings are decoded.
func TestRequest_JSONEncodedFields(t *testing.T) {
	raw := storage.Row{
		"id":      "req-5",
		"vehicle": `{"make":"Mazda","model":"3","year":"2021","plate":"MZD-003"}`,
		"contact": []byte(`{"name":"Kim","phone":"555-0303","email":""}`),
		"notes":   `[{"id":"n1","at":"2026-03-01T10:00:00Z","by":"mechanic","text":"Accepted request."}]`,
	}
	req := Request(raw)
	if req.Vehicle.Make != "Mazda" {
		t.Errorf("encoded vehicle not decoded: %+v", req.Vehicle)
	}
	if req.Contact.Name != "Kim" {
		t.Errorf("encoded contact not decoded: %+v", req.Contact)
	}
	if len(req.Notes) != 1 || req.Notes[0].Text != "Accepted request." {
		t.Errorf("encoded notes not decoded: %#v", req.Notes)
	}
}

// TestNotes_ObjectKeyedById verifies the object-of-objects notes
// shape, including chronological ordering and id recovery from keys.
func TestNotes_ObjectKeyedById(t *testing.T) {
	v := map[string]any{
		"n-late": map[string]any{
			"at": "2026-03-02T09:00:00Z", "by": "mechanic", "text": "Started work.",
		},
		"n-early": map[string]any{
			"at": "2026-03-01T09:00:00Z", "by": "mechanic", "text": "Accepted request.",
		},
	}
	notes := Notes(v)
	if len(notes) != 2 {
		t.Fatalf("len(notes) = %d", len(notes))
	}
	if notes[0].Text != "Accepted request." || notes[1].Text != "Started work." {
		t.Errorf("notes out of order: %#v", notes)
	}
	if notes[0].ID != "n-early" {
		t.Errorf("note id not recovered from key: %q", notes[0].ID)
	}
}

// TestNotes_MalformedInputs verifies that hostile notes values come
// back as an empty slice rather than a panic or nil.
func TestNotes_MalformedInputs(t *testing.T) {
	inputs := []any{
		nil,
		"not json",
		`"just a string"`,
		42,
		[]any{"not-a-map", 7},
		`{"k": "still-not-a-map"}`,
	}
	for _, in := range inputs {
		notes := Notes(in)
		if notes == nil {
			t.Errorf("Notes(%#v) returned nil", in)
		}
		if len(notes) != 0 {
			t.Errorf("Notes(%#v) = %#v, want empty", in, notes)
		}
	}
}

// TestRequest_NeverNilContract verifies the §8 property: malformed or
// partial rows still produce non-nil vehicle/contact/notes and a
// string issue description.
func TestRequest_NeverNilContract(t *testing.T) {
	rows := []storage.Row{
		{},
		{"id": "x"},
		{"vehicle": "][junk", "contact": 9, "notes": "oops"},
		{"vehicle": nil, "notes": map[string]any{"a": 1}},
		{"request": "not-a-map"},
	}
	for _, raw := range rows {
		req := Request(raw)
		if req == nil {
			t.Fatal("Request returned nil")
		}
		if req.Notes == nil {
			t.Errorf("Request(%#v).Notes is nil", raw)
		}
		// Vehicle/contact are value types; just confirm issue text is usable.
		_ = req.IssueDescription + req.Vehicle.Make + req.Contact.Name
	}
}

// TestRequest_Timestamps verifies parsing of both RFC 3339 and SQLite
// layouts, plus claimed/completed pointer semantics.
func TestRequest_Timestamps(t *testing.T) {
	raw := storage.Row{
		"id":           "req-6",
		"created_at":   "2026-03-01 10:00:00",
		"claimed_at":   "2026-03-01T11:00:00Z",
		"completed_at": time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	req := Request(raw)
	if req.CreatedAt.IsZero() {
		t.Error("SQLite layout not parsed")
	}
	if req.ClaimedAt == nil || req.ClaimedAt.Hour() != 11 {
		t.Errorf("claimed_at = %v", req.ClaimedAt)
	}
	if req.CompletedAt == nil || !req.CompletedAt.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("completed_at = %v", req.CompletedAt)
	}

	if req2 := Request(storage.Row{"id": "req-7"}); req2.CompletedAt != nil || req2.ClaimedAt != nil {
		t.Error("absent timestamps should be nil pointers")
	}
}

// TestRequest_Location verifies the nested and flat location shapes
// and the nil result when no location data is present.
func TestRequest_Location(t *testing.T) {
	nested := Request(storage.Row{
		"id":       "req-8",
		"location": map[string]any{"address": "5th & Main", "lat": 37.77, "lng": -122.41},
	})
	if nested.Location == nil || nested.Location.Latitude != 37.77 {
		t.Errorf("nested location = %+v", nested.Location)
	}

	flat := Request(storage.Row{
		"id":                 "req-9",
		"location_address":   "Pier 39",
		"location_latitude":  "37.808",
		"location_longitude": "-122.409",
	})
	if flat.Location == nil || flat.Location.Longitude != -122.409 {
		t.Errorf("flat location = %+v", flat.Location)
	}

	if none := Request(storage.Row{"id": "req-10"}); none.Location != nil {
		t.Errorf("expected nil location, got %+v", none.Location)
	}
}
