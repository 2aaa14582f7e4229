package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/openrescue/roadsync/internal/fault"
	"github.com/openrescue/roadsync/internal/model"
	"github.com/openrescue/roadsync/internal/storage"
)

// tokenDuration is how long a session token stays valid.
const tokenDuration = 30 * 24 * time.Hour

// sessionFile is the name of the active-session pointer inside the
// state directory.
const sessionFile = "session.jwt"

// Claims are the JWT claims embedded in a session token. Role is a
// hint only; CurrentActor always re-reads the profile so role and
// approval changes take effect on the next command.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator implements sign-in/out/up against the profiles
// relation and keeps the active session as a signed token file in the
// state directory.
type Authenticator struct {
	store    storage.Store
	stateDir string
	secret   []byte
}

// NewAuthenticator creates an authenticator over the given store.
// secret signs session tokens; it must be stable across runs.
func NewAuthenticator(store storage.Store, stateDir string, secret string) *Authenticator {
	return &Authenticator{store: store, stateDir: stateDir, secret: []byte(secret)}
}

func (a *Authenticator) sessionPath() string {
	return filepath.Join(a.stateDir, sessionFile)
}

// SignUp registers a new mechanic account in the pending approval
// state and establishes a session for it.
//
// Success of the credential write alone does not guarantee a usable
// session in every deployment mode; callers must verify with
// CurrentActor afterwards.
func (a *Authenticator) SignUp(ctx context.Context, email, password, name, serviceArea string) (*Actor, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, fault.New(fault.Unknown, "email and password are required")
	}
	if _, err := a.store.GetProfileByEmail(ctx, email); err == nil {
		return nil, fault.New(fault.Unknown, "an account with this email already exists")
	} else if !fault.Is(err, fault.NotFound) {
		return nil, fmt.Errorf("check existing account: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	rec := &storage.ProfileRecord{PasswordHash: string(hash)}
	rec.ID = uuid.NewString()
	rec.Email = email
	rec.Role = model.RoleMechanic
	rec.Approval = model.ApprovalPending
	rec.Name = name
	rec.ServiceArea = serviceArea
	rec.CreatedAt = time.Now().UTC()

	if err := a.store.CreateProfile(ctx, rec); err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}
	if err := a.establishSession(&rec.Profile); err != nil {
		return nil, err
	}
	actor := rec.Profile
	return &actor, nil
}

// SignIn verifies credentials and establishes a session.
func (a *Authenticator) SignIn(ctx context.Context, email, password string) (*Actor, error) {
	rec, err := a.store.GetProfileByEmail(ctx, strings.TrimSpace(email))
	if fault.Is(err, fault.NotFound) {
		return nil, fault.New(fault.Unauthenticated, "invalid email or password")
	}
	if err != nil {
		return nil, fmt.Errorf("look up account: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password)) != nil {
		return nil, fault.New(fault.Unauthenticated, "invalid email or password")
	}
	if err := a.establishSession(&rec.Profile); err != nil {
		return nil, err
	}
	actor := rec.Profile
	return &actor, nil
}

// SignOut clears the active session. Signing out twice is not an
// error.
func (a *Authenticator) SignOut() error {
	err := os.Remove(a.sessionPath())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// CurrentActor resolves the active session to a fresh profile, or a
// fault of kind Unauthenticated when there is no usable session.
func (a *Authenticator) CurrentActor(ctx context.Context) (*Actor, error) {
	raw, err := os.ReadFile(a.sessionPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, fault.New(fault.Unauthenticated, "not signed in")
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(strings.TrimSpace(string(raw)), claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		// Expired or tampered token: treat as signed out.
		_ = a.SignOut()
		return nil, fault.New(fault.Unauthenticated, "session expired; please sign in again")
	}

	rec, err := a.store.GetProfile(ctx, claims.Subject)
	if fault.Is(err, fault.NotFound) {
		_ = a.SignOut()
		return nil, fault.New(fault.Unauthenticated, "account no longer exists")
	}
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	actor := rec.Profile
	return &actor, nil
}

// establishSession signs a token for the profile and writes it as the
// active-session pointer.
func (a *Authenticator) establishSession(p *model.Profile) error {
	now := time.Now().UTC()
	claims := Claims{
		Email: p.Email,
		Role:  p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return fmt.Errorf("sign session token: %w", err)
	}
	if err := os.MkdirAll(a.stateDir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	if err := os.WriteFile(a.sessionPath(), []byte(signed), 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}
