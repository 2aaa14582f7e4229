// Package seed loads demo fixtures into a store.
//
// Fixtures are YAML and idempotent: profiles are matched by email and
// requests by id, so re-seeding an already seeded database changes
// nothing.
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/openrescue/roadsync/internal/fault"
	"github.com/openrescue/roadsync/internal/model"
	"github.com/openrescue/roadsync/internal/status"
	"github.com/openrescue/roadsync/internal/storage"
)

// Fixture is a parsed seed file.
type Fixture struct {
	Profiles []ProfileFixture `yaml:"profiles"`
	Requests []RequestFixture `yaml:"requests"`
}

// ProfileFixture describes one account to create.
type ProfileFixture struct {
	Email       string `yaml:"email"`
	Password    string `yaml:"password"`
	Role        string `yaml:"role"`
	Approval    string `yaml:"approval"`
	Name        string `yaml:"name"`
	ServiceArea string `yaml:"service_area"`
}

// RequestFixture describes one request to create.
type RequestFixture struct {
	ID        string        `yaml:"id"`
	UserEmail string        `yaml:"user_email"`
	Vehicle   model.Vehicle `yaml:"vehicle"`
	Issue     string        `yaml:"issue"`
	Contact   model.Contact `yaml:"contact"`
	Status    string        `yaml:"status"`
}

// defaultYAML is the built-in demo dataset: one requester, one
// approved mechanic, one admin, and one open request to claim.
const defaultYAML = `
profiles:
  - email: sam@example.com
    password: demo-password
    role: user
    approval: approved
    name: Sam Driver
  - email: alex@example.com
    password: demo-password
    role: mechanic
    approval: approved
    name: Alex Mechanic
    service_area: Downtown
  - email: admin@example.com
    password: demo-password
    role: admin
    approval: approved
    name: Admin

requests:
  - id: demo-request-1
    user_email: sam@example.com
    vehicle:
      make: Toyota
      model: Corolla
      year: "2016"
      plate: ABC-123
    issue: Car won't start, clicking noise.
    contact:
      name: Sam Driver
      phone: 555-0101
    status: open
`

// Parse decodes a YAML fixture.
func Parse(data []byte) (*Fixture, error) {
	var fx Fixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	return &fx, nil
}

// Default returns the built-in demo fixture.
func Default() *Fixture {
	fx, err := Parse([]byte(defaultYAML))
	if err != nil {
		panic(err)
	}
	return fx
}

// Apply creates the fixture's profiles and requests, skipping any that
// already exist. It returns the number of records created.
func Apply(ctx context.Context, store storage.Store, fx *Fixture) (int, error) {
	created := 0
	ids := make(map[string]string, len(fx.Profiles))

	for _, p := range fx.Profiles {
		existing, err := store.GetProfileByEmail(ctx, p.Email)
		if err == nil {
			ids[p.Email] = existing.ID
			continue
		}
		if !fault.Is(err, fault.NotFound) {
			return created, fmt.Errorf("look up %s: %w", p.Email, err)
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(p.Password), bcrypt.DefaultCost)
		if err != nil {
			return created, fmt.Errorf("hash password for %s: %w", p.Email, err)
		}
		rec := &storage.ProfileRecord{PasswordHash: string(hash)}
		rec.ID = uuid.NewString()
		rec.Email = p.Email
		rec.Role = p.Role
		rec.Approval = p.Approval
		rec.Name = p.Name
		rec.ServiceArea = p.ServiceArea
		rec.CreatedAt = time.Now().UTC()
		if err := store.CreateProfile(ctx, rec); err != nil {
			return created, fmt.Errorf("create profile %s: %w", p.Email, err)
		}
		ids[p.Email] = rec.ID
		created++
	}

	for _, r := range fx.Requests {
		if _, err := store.GetRequest(ctx, r.ID); err == nil {
			continue
		} else if !fault.Is(err, fault.NotFound) {
			return created, fmt.Errorf("look up request %s: %w", r.ID, err)
		}

		now := time.Now().UTC().Format(time.RFC3339Nano)
		vehicle, _ := json.Marshal(r.Vehicle)
		contact, _ := json.Marshal(r.Contact)
		row := storage.Row{
			"id":                r.ID,
			"created_at":        now,
			"updated_at":        now,
			"user_id":           ids[r.UserEmail],
			"user_email":        r.UserEmail,
			"vehicle":           string(vehicle),
			"issue_description": r.Issue,
			"contact":           string(contact),
			"status":            string(status.Canonicalize(r.Status)),
			"notes":             "[]",
		}
		if _, err := store.InsertRequest(ctx, row); err != nil {
			return created, fmt.Errorf("create request %s: %w", r.ID, err)
		}
		created++
	}

	return created, nil
}
