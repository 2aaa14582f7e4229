// Package model defines the canonical in-memory shapes for requests,
// notes, and mechanic profiles.
//
// Storage rows never leak past the normalizer: everything downstream
// of it works with these structs. Optional fields are present as zero
// values or nil pointers, never absent, so callers do not null-check
// field by field.
package model

import (
	"fmt"
	"time"

	"github.com/openrescue/roadsync/internal/status"
)

// Vehicle describes the vehicle a breakdown request is about.
type Vehicle struct {
	Make  string `json:"make" yaml:"make"`
	Model string `json:"model" yaml:"model"`
	Year  string `json:"year" yaml:"year"`
	Plate string `json:"plate" yaml:"plate"`
}

// Contact is who to reach at the breakdown site.
type Contact struct {
	Name  string `json:"name" yaml:"name"`
	Phone string `json:"phone" yaml:"phone"`
	Email string `json:"email" yaml:"email"`
}

// Location is the optional breakdown position.
type Location struct {
	Address   string  `json:"address" yaml:"address"`
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
}

// Note is one immutable audit-trail entry on a request.
// Notes are only ever appended, in chronological order.
type Note struct {
	ID   string    `json:"id" yaml:"id"`
	At   time.Time `json:"at" yaml:"at"`
	By   string    `json:"by" yaml:"by"`
	Text string    `json:"text" yaml:"text"`
}

// Request is the canonical request shape.
//
// AssignedMechanicID is empty exactly when Status is open. ClaimedAt
// and CompletedAt are set once, by the claim and complete transitions.
type Request struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	RequesterID    string `json:"requester_id"`
	RequesterEmail string `json:"requester_email"`

	Vehicle          Vehicle   `json:"vehicle"`
	IssueDescription string    `json:"issue_description"`
	Contact          Contact   `json:"contact"`
	Location         *Location `json:"location,omitempty"`

	Status status.Status `json:"status"`

	AssignedMechanicID    string     `json:"assigned_mechanic_id,omitempty"`
	AssignedMechanicEmail string     `json:"assigned_mechanic_email,omitempty"`
	ClaimedAt             *time.Time `json:"claimed_at,omitempty"`
	CompletedAt           *time.Time `json:"completed_at,omitempty"`

	Notes []Note `json:"notes"`
}

// Assigned reports whether a mechanic currently holds the request.
func (r *Request) Assigned() bool {
	return r.AssignedMechanicID != ""
}

// Validate checks the cross-field invariants of a canonical request.
func (r *Request) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("id is required")
	}
	if r.Status == status.Open && r.Assigned() {
		return fmt.Errorf("open request %s has an assignee", r.ID)
	}
	if r.Status != status.Open && r.Status != status.Cancelled && !r.Assigned() {
		return fmt.Errorf("request %s is %s but has no assignee", r.ID, r.Status)
	}
	if r.CompletedAt != nil && r.Status != status.Completed {
		return fmt.Errorf("request %s has completed_at but status %s", r.ID, r.Status)
	}
	return nil
}

// Role tags on a profile.
const (
	RoleUser     = "user"
	RoleMechanic = "mechanic"
	RoleAdmin    = "admin"
)

// Approval states of a mechanic profile.
const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
)

// Profile is a registered identity. Mechanics start out pending and
// are approved or rejected by an external authority; profiles are
// never deleted, only transitioned.
type Profile struct {
	ID          string    `json:"id" yaml:"id"`
	Email       string    `json:"email" yaml:"email"`
	Role        string    `json:"role" yaml:"role"`
	Approval    string    `json:"approval" yaml:"approval"`
	Name        string    `json:"name" yaml:"name"`
	ServiceArea string    `json:"service_area" yaml:"service_area"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
}

// Approved reports whether the profile may act on requests.
func (p *Profile) Approved() bool {
	return p.Approval == ApprovalApproved
}
