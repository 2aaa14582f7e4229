// Package session resolves the acting identity and gates every
// mutating operation on role and approval state.
//
// The checks are deliberately ordered cheapest-first: an actor that is
// not signed in, has the wrong role, or is still pending approval is
// rejected before any statement reaches the storage layer. Authorize
// is the single combinator applied by the engine; individual checks
// exist for callers that need a subset.
package session

import (
	"github.com/openrescue/roadsync/internal/fault"
	"github.com/openrescue/roadsync/internal/model"
)

// Actor is the authenticated identity acting on the system.
type Actor = model.Profile

// RequireActor fails with Unauthenticated when no session is
// established.
func RequireActor(a *Actor) error {
	if a == nil || a.ID == "" {
		return fault.New(fault.Unauthenticated, "you must be signed in to perform this action")
	}
	return nil
}

// RequireRole fails with Forbidden when the actor's role does not
// match. Admins are not implicitly granted other roles; callers that
// accept several roles say so explicitly.
func RequireRole(a *Actor, roles ...string) error {
	for _, r := range roles {
		if a.Role == r {
			return nil
		}
	}
	return fault.Newf(fault.Forbidden, "this action requires the %s role", roles[0])
}

// RequireApproved fails with PendingApproval unless the actor's
// account has been approved.
func RequireApproved(a *Actor) error {
	if !a.Approved() {
		return fault.New(fault.PendingApproval, "your account is pending admin approval")
	}
	return nil
}

// Authorize runs the full gate: actor, role, approval, in that order.
func Authorize(a *Actor, roles ...string) error {
	if err := RequireActor(a); err != nil {
		return err
	}
	if err := RequireRole(a, roles...); err != nil {
		return err
	}
	return RequireApproved(a)
}
