package session

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/openrescue/roadsync/internal/fault"
	"github.com/openrescue/roadsync/internal/model"
	"github.com/openrescue/roadsync/internal/storage/sqlstore"
)

// TestGate_Order verifies the gate checks fail in the documented
// order: actor, then role, then approval.
func TestGate_Order(t *testing.T) {
	if err := Authorize(nil, model.RoleMechanic); !fault.Is(err, fault.Unauthenticated) {
		t.Errorf("nil actor = %v, want Unauthenticated", err)
	}

	user := &Actor{ID: "u-1", Role: model.RoleUser, Approval: model.ApprovalApproved}
	if err := Authorize(user, model.RoleMechanic); !fault.Is(err, fault.Forbidden) {
		t.Errorf("wrong role = %v, want Forbidden", err)
	}

	pending := &Actor{ID: "m-1", Role: model.RoleMechanic, Approval: model.ApprovalPending}
	if err := Authorize(pending, model.RoleMechanic); !fault.Is(err, fault.PendingApproval) {
		t.Errorf("pending mechanic = %v, want PendingApproval", err)
	}

	approved := &Actor{ID: "m-2", Role: model.RoleMechanic, Approval: model.ApprovalApproved}
	if err := Authorize(approved, model.RoleMechanic); err != nil {
		t.Errorf("approved mechanic = %v, want nil", err)
	}
}

// TestRequireRole_MultipleRoles verifies that any listed role passes.
func TestRequireRole_MultipleRoles(t *testing.T) {
	admin := &Actor{ID: "a-1", Role: model.RoleAdmin, Approval: model.ApprovalApproved}
	if err := RequireRole(admin, model.RoleMechanic, model.RoleAdmin); err != nil {
		t.Errorf("admin against mechanic|admin = %v", err)
	}
	if err := RequireRole(admin, model.RoleMechanic); !fault.Is(err, fault.Forbidden) {
		t.Errorf("admin against mechanic only = %v, want Forbidden", err)
	}
}

func testAuth(t *testing.T) *Authenticator {
	t.Helper()
	dir := t.TempDir()
	store, err := sqlstore.Open(filepath.Join(dir, "local.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	return NewAuthenticator(store, dir, "test-secret")
}

// TestAuth_SignUpSignInCycle verifies registration, session
// establishment, and fresh-profile resolution.
func TestAuth_SignUpSignInCycle(t *testing.T) {
	a := testAuth(t)
	ctx := context.Background()

	actor, err := a.SignUp(ctx, "mech@example.com", "password123", "Alex", "Downtown")
	if err != nil {
		t.Fatalf("SignUp() failed: %v", err)
	}
	if actor.Role != model.RoleMechanic || actor.Approval != model.ApprovalPending {
		t.Errorf("new account = %+v, want pending mechanic", actor)
	}

	// Session must be verifiable, not just assumed.
	current, err := a.CurrentActor(ctx)
	if err != nil {
		t.Fatalf("CurrentActor() after signup failed: %v", err)
	}
	if current.ID != actor.ID {
		t.Errorf("session actor = %q, want %q", current.ID, actor.ID)
	}

	if err := a.SignOut(); err != nil {
		t.Fatalf("SignOut() failed: %v", err)
	}
	if _, err := a.CurrentActor(ctx); !fault.Is(err, fault.Unauthenticated) {
		t.Errorf("after signout = %v, want Unauthenticated", err)
	}

	// Sign back in with the right and wrong password.
	if _, err := a.SignIn(ctx, "mech@example.com", "wrong"); !fault.Is(err, fault.Unauthenticated) {
		t.Errorf("bad password = %v, want Unauthenticated", err)
	}
	back, err := a.SignIn(ctx, "mech@example.com", "password123")
	if err != nil {
		t.Fatalf("SignIn() failed: %v", err)
	}
	if back.ID != actor.ID {
		t.Errorf("signed-in actor = %q, want %q", back.ID, actor.ID)
	}
}

// TestAuth_DuplicateSignUp verifies the email uniqueness check.
func TestAuth_DuplicateSignUp(t *testing.T) {
	a := testAuth(t)
	ctx := context.Background()
	if _, err := a.SignUp(ctx, "mech@example.com", "pw1", "A", ""); err != nil {
		t.Fatalf("first SignUp() failed: %v", err)
	}
	if _, err := a.SignUp(ctx, "mech@example.com", "pw2", "B", ""); err == nil {
		t.Fatal("duplicate SignUp() should fail")
	}
}

// TestAuth_ApprovalChangesVisibleNextCommand verifies that an external
// approval flips what CurrentActor reports without re-login.
func TestAuth_ApprovalChangesVisibleNextCommand(t *testing.T) {
	a := testAuth(t)
	ctx := context.Background()

	actor, err := a.SignUp(ctx, "mech@example.com", "password123", "Alex", "")
	if err != nil {
		t.Fatalf("SignUp() failed: %v", err)
	}

	// External approval authority flips the flag in storage.
	if err := a.store.UpdateProfileFields(ctx, actor.ID, map[string]any{"approval": model.ApprovalApproved}); err != nil {
		t.Fatalf("approve: %v", err)
	}

	current, err := a.CurrentActor(ctx)
	if err != nil {
		t.Fatalf("CurrentActor() failed: %v", err)
	}
	if !current.Approved() {
		t.Error("approval change not visible to existing session")
	}
}

// TestAuth_TamperedToken verifies that a corrupted session file is
// treated as signed out rather than trusted.
func TestAuth_TamperedToken(t *testing.T) {
	a := testAuth(t)
	ctx := context.Background()
	if _, err := a.SignUp(ctx, "mech@example.com", "password123", "Alex", ""); err != nil {
		t.Fatalf("SignUp() failed: %v", err)
	}

	b := NewAuthenticator(a.store, a.stateDir, "different-secret")
	if _, err := b.CurrentActor(ctx); !fault.Is(err, fault.Unauthenticated) {
		t.Errorf("wrong secret = %v, want Unauthenticated", err)
	}
}
