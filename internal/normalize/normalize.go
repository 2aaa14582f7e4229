// Package normalize converts heterogeneous persisted request rows into
// the canonical model shape.
//
// Deployments of the requests table disagree on almost everything:
// vehicle and contact data may live in a nested JSON object, in flat
// prefixed columns (vehicle_make, contact_phone), or under bare names
// (make, plate); the assignee column is assigned_mechanic_id in newer
// schemas and mechanic_id in older ones; notes arrive as a JSON array,
// a JSON-encoded string, an object keyed by note id, or not at all;
// and join queries deliver the whole row wrapped one level deep under
// a "request" key. For each logical field this package probes an
// ordered list of candidate locations and takes the first usable
// value.
//
// Normalization never fails. A row missing its identity still comes
// back as a best-effort Request with an empty ID; rejecting it is the
// caller's decision.
package normalize

import (
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"github.com/openrescue/roadsync/internal/model"
	"github.com/openrescue/roadsync/internal/status"
	"github.com/openrescue/roadsync/internal/storage"
)

// Request converts a raw persisted row into the canonical shape.
// Vehicle, contact, and notes are always non-nil in the result.
func Request(raw storage.Row) *model.Request {
	rec := unwrap(map[string]any(raw))

	req := &model.Request{
		ID:               str(rec, "id", "request_id", "requestId"),
		RequesterID:      str(rec, "user_id", "userId", "requester_id"),
		RequesterEmail:   str(rec, "user_email", "userEmail", "requester_email"),
		IssueDescription: str(rec, "issue_description", "issueDescription", "issue", "description"),
		Vehicle:          vehicle(rec),
		Contact:          contact(rec),
		Location:         location(rec),
		Status:           status.Canonicalize(str(rec, "status")),

		AssignedMechanicID:    str(rec, "assigned_mechanic_id", "mechanic_id", "assignedMechanicId"),
		AssignedMechanicEmail: str(rec, "assigned_mechanic_email", "mechanic_email", "assignedMechanicEmail"),

		Notes: Notes(rec["notes"]),
	}

	req.CreatedAt = timeAt(rec, "created_at", "createdAt")
	req.UpdatedAt = timeAt(rec, "updated_at", "updatedAt")
	if req.UpdatedAt.IsZero() {
		req.UpdatedAt = req.CreatedAt
	}
	req.ClaimedAt = timePtr(rec, "claimed_at", "accepted_at", "claimedAt")
	req.CompletedAt = timePtr(rec, "completed_at", "completedAt")

	return req
}

// Notes converts any persisted notes value into an ordered slice.
// Accepted shapes: a slice of note objects, a JSON-encoded string or
// []byte holding an array or object, an object keyed by note id, or
// nothing. The result is sorted chronologically and never nil.
func Notes(v any) []model.Note {
	notes := []model.Note{}

	switch val := decodeJSON(v).(type) {
	case []any:
		for _, item := range val {
			if m, ok := asMap(item); ok {
				notes = append(notes, note(m, ""))
			}
		}
	case map[string]any:
		// Object keyed by arbitrary note ids.
		for key, item := range val {
			if m, ok := asMap(item); ok {
				notes = append(notes, note(m, key))
			}
		}
	}

	sort.SliceStable(notes, func(i, j int) bool {
		if notes[i].At.Equal(notes[j].At) {
			return notes[i].ID < notes[j].ID
		}
		return notes[i].At.Before(notes[j].At)
	})
	return notes
}

// note builds one note from a raw map. fallbackID is used when the
// note carries no id of its own (object-of-objects shape).
func note(m map[string]any, fallbackID string) model.Note {
	n := model.Note{
		ID:   str(m, "id", "note_id"),
		By:   str(m, "by", "author", "author_role", "authorRole"),
		Text: str(m, "text", "body", "message"),
	}
	if n.ID == "" {
		n.ID = fallbackID
	}
	n.At = timeAt(m, "at", "created_at", "createdAt", "timestamp")
	return n
}

// unwrap peels a single join wrapper ({request: {...}} or
// {requests: {...}}) off the record if present.
func unwrap(rec map[string]any) map[string]any {
	for _, key := range []string{"request", "requests"} {
		if inner, ok := asMap(rec[key]); ok {
			return inner
		}
	}
	return rec
}

func vehicle(rec map[string]any) model.Vehicle {
	nested, _ := asMap(decodeJSON(rec["vehicle"]))
	return model.Vehicle{
		Make:  firstStr(nested, "make", rec, "vehicle_make", "make"),
		Model: firstStr(nested, "model", rec, "vehicle_model", "model"),
		Year:  firstStr(nested, "year", rec, "vehicle_year", "year"),
		Plate: firstStr(nested, "plate", rec, "vehicle_plate", "plate"),
	}
}

func contact(rec map[string]any) model.Contact {
	nested, _ := asMap(decodeJSON(rec["contact"]))
	return model.Contact{
		Name:  firstStr(nested, "name", rec, "contact_name"),
		Phone: firstStr(nested, "phone", rec, "contact_phone"),
		Email: firstStr(nested, "email", rec, "contact_email"),
	}
}

func location(rec map[string]any) *model.Location {
	nested, _ := asMap(decodeJSON(rec["location"]))
	loc := model.Location{
		Address: firstStr(nested, "address", rec, "location_address", "address"),
	}
	loc.Latitude = firstFloat(nested, []string{"latitude", "lat"}, rec, []string{"location_latitude", "latitude", "lat"})
	loc.Longitude = firstFloat(nested, []string{"longitude", "lng"}, rec, []string{"location_longitude", "longitude", "lng"})
	if loc.Address == "" && loc.Latitude == 0 && loc.Longitude == 0 {
		return nil
	}
	return &loc
}

// firstStr probes the nested object first, then the flat record keys.
func firstStr(nested map[string]any, nestedKey string, rec map[string]any, flatKeys ...string) string {
	if nested != nil {
		if s := str(nested, nestedKey); s != "" {
			return s
		}
	}
	return str(rec, flatKeys...)
}

func firstFloat(nested map[string]any, nestedKeys []string, rec map[string]any, flatKeys []string) float64 {
	if nested != nil {
		for _, k := range nestedKeys {
			if f, ok := toFloat(nested[k]); ok {
				return f
			}
		}
	}
	for _, k := range flatKeys {
		if f, ok := toFloat(rec[k]); ok {
			return f
		}
	}
	return 0
}

// str returns the first key whose value coerces to a non-empty string.
func str(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := toString(m[k]); s != "" {
			return s
		}
	}
	return ""
}

// toString coerces a dynamic value to a string without ever failing.
func toString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case json.Number:
		return val.String()
	case float64:
		// JSON numbers and numeric columns: render integers plainly.
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int64:
		return float64(val), true
	case int:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(val, 64)
		return f, err == nil
	case []byte:
		f, err := strconv.ParseFloat(string(val), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// asMap coerces a dynamic value to a string-keyed map.
func asMap(v any) (map[string]any, bool) {
	switch val := v.(type) {
	case map[string]any:
		return val, true
	case storage.Row:
		return map[string]any(val), true
	default:
		return nil, false
	}
}

// decodeJSON turns a JSON-encoded string or []byte into its decoded
// value; anything else passes through unchanged.
func decodeJSON(v any) any {
	var text string
	switch val := v.(type) {
	case string:
		text = val
	case []byte:
		text = string(val)
	default:
		return v
	}
	if text == "" {
		return nil
	}
	var out any
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil
	}
	return out
}

// timeAt probes keys for a parseable timestamp; zero time if none.
func timeAt(m map[string]any, keys ...string) time.Time {
	for _, k := range keys {
		if t, ok := toTime(m[k]); ok {
			return t
		}
	}
	return time.Time{}
}

// timePtr is timeAt but returns nil instead of a zero time.
func timePtr(m map[string]any, keys ...string) *time.Time {
	t := timeAt(m, keys...)
	if t.IsZero() {
		return nil
	}
	return &t
}

// timeFormats are the layouts observed across deployments: RFC 3339
// from JSON payloads, and the space-separated forms SQLite emits.
var timeFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func toTime(v any) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		if val.IsZero() {
			return time.Time{}, false
		}
		return val, true
	case string, []byte:
		s := toString(val)
		for _, layout := range timeFormats {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}
