// Package status canonicalizes request lifecycle statuses.
//
// The status vocabulary drifted across deployments: older databases
// hold capitalized tokens ("Submitted", "Accepted", "Working"), some
// hold spaced variants ("In Review", "En Route"), and current ones
// hold the lower-case canonical set. Every status read from storage
// must pass through Canonicalize before any comparison or guard is
// built from it.
package status

import (
	"sort"
	"strings"
)

// Status is the canonical lifecycle state of a request.
type Status string

const (
	// Open means the request has no assigned mechanic.
	Open Status = "open"
	// Assigned means a mechanic has claimed the request.
	Assigned Status = "assigned"
	// InProgress means the assigned mechanic has started work.
	InProgress Status = "in_progress"
	// Completed means work finished. Terminal.
	Completed Status = "completed"
	// Cancelled means the request was withdrawn. Terminal.
	Cancelled Status = "cancelled"
)

// String returns the canonical token.
func (s Status) String() string {
	return string(s)
}

// legacyMap maps every known historical spelling, upper-cased with
// spaces collapsed to underscores, onto its canonical status.
var legacyMap = map[string]Status{
	"OPEN":        Open,
	"ASSIGNED":    Assigned,
	"IN_PROGRESS": InProgress,
	"COMPLETED":   Completed,
	"CANCELLED":   Cancelled,
	"CANCELED":    Cancelled,

	"SUBMITTED": Open,
	"IN_REVIEW": Open,

	"ACCEPTED": Assigned,

	"EN_ROUTE": InProgress,
	"WORKING":  InProgress,

	"CLOSED": Completed,
}

// Canonicalize maps any raw status token onto a canonical Status.
//
// It is total: case and whitespace/underscore differences are ignored
// and unrecognized or empty input maps to Open, so a request with a
// garbled status is treated as unclaimed rather than stuck.
func Canonicalize(raw string) Status {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Open
	}
	compact := strings.ToUpper(s)
	compact = strings.Join(strings.Fields(compact), "_")
	compact = strings.ReplaceAll(compact, "-", "_")
	if st, ok := legacyMap[compact]; ok {
		return st
	}
	return Open
}

// Spellings returns every persisted spelling known to mean s, across
// all casing and separator conventions observed in deployments. The
// engine uses this to build status guards that hold regardless of
// which vocabulary wrote the row. The result is sorted and stable.
func Spellings(s Status) []string {
	seen := map[string]struct{}{}
	for key, st := range legacyMap {
		if st != s {
			continue
		}
		words := strings.Split(key, "_")
		spaced := strings.Join(words, " ")
		titled := make([]string, len(words))
		for i, w := range words {
			titled[i] = string(w[0]) + strings.ToLower(w[1:])
		}
		for _, v := range []string{
			key,
			spaced,
			strings.ToLower(key),
			strings.ToLower(spaced),
			strings.Join(titled, " "),
		} {
			seen[v] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Terminal reports whether no further transition can leave s.
func (s Status) Terminal() bool {
	return s == Completed || s == Cancelled
}

// Label returns the human-readable display form of a status.
func Label(s Status) string {
	switch s {
	case Open:
		return "Open"
	case Assigned:
		return "Assigned"
	case InProgress:
		return "In Progress"
	case Completed:
		return "Completed"
	case Cancelled:
		return "Cancelled"
	default:
		return strings.ReplaceAll(string(s), "_", " ")
	}
}

// StyleClass returns the presentation hint for a status badge.
// The names match the badge classes used by the portal frontends.
func StyleClass(s Status) string {
	switch s {
	case Open, Assigned:
		return "badge badge-blue"
	case InProgress:
		return "badge badge-amber"
	case Completed:
		return "badge badge-green"
	default:
		return "badge"
	}
}
