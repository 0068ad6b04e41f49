package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func newTestService(t *testing.T) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	tokens := newTestTokenService(t)
	svc, err := NewService(store, tokens, NopPublisher{})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if err := svc.EnsureDefaults(context.Background()); err != nil {
		t.Fatalf("EnsureDefaults: %v", err)
	}
	return svc, store
}

func TestEnsureDefaultsIdempotent(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	if err := svc.EnsureDefaults(ctx); err != nil {
		t.Fatalf("second EnsureDefaults: %v", err)
	}
	admin, err := store.Roles().FindByName(ctx, RoleAdmin)
	if err != nil {
		t.Fatalf("admin role missing: %v", err)
	}
	if !admin.System {
		t.Error("admin role must carry the system flag")
	}
	if _, err := store.Roles().FindByName(ctx, RoleUser); err != nil {
		t.Fatalf("user role missing: %v", err)
	}
}

func TestRegister(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "  Alice@Example.COM ", "hunter2!")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.Email != "alice@example.com" {
		t.Errorf("email not normalized: %q", user.Email)
	}
	if !user.Active || !user.HasPassword() {
		t.Errorf("user = %+v", user)
	}

	names, err := svc.RoleNames(ctx, user.ID)
	if err != nil {
		t.Fatalf("RoleNames: %v", err)
	}
	if len(names) != 1 || names[0] != RoleUser {
		t.Errorf("roles = %v, want [user]", names)
	}

	if _, err := svc.Register(ctx, "alice@example.com", "other"); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("duplicate email: err = %v, want ErrAlreadyExists", err)
	}
	if _, err := svc.Register(ctx, "not-an-email", "pw"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("bad email: err = %v, want ErrInvalidInput", err)
	}
	if _, err := svc.Register(ctx, "bob@example.com", "  "); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("blank password: err = %v, want ErrInvalidInput", err)
	}

	// Stored hash never equals the raw password.
	stored, err := store.Users().Find(ctx, user.ID)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if stored.PasswordHash == "hunter2!" {
		t.Error("password stored in the clear")
	}
}

func TestLogin(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "alice@example.com", "hunter2!")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	pair, got, err := svc.Login(ctx, "ALICE@example.com", "hunter2!")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if got.ID != user.ID {
		t.Errorf("logged in as %s, want %s", got.ID, user.ID)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Errorf("incomplete pair: %+v", pair)
	}
	if !strings.Contains(pair.RefreshToken, ".") {
		t.Errorf("refresh token %q is not id.secret shaped", pair.RefreshToken)
	}

	// Wrong password, unknown user and inactive account all collapse into
	// the same error.
	if _, _, err := svc.Login(ctx, "alice@example.com", "wrong"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("wrong password: err = %v", err)
	}
	if _, _, err := svc.Login(ctx, "ghost@example.com", "hunter2!"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("unknown user: err = %v", err)
	}

	stored, _ := store.Users().Find(ctx, user.ID)
	stored.Active = false
	store.users[user.ID] = stored
	if _, _, err := svc.Login(ctx, "alice@example.com", "hunter2!"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("inactive user: err = %v", err)
	}
}

func TestRefreshRotation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice@example.com", "pw"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	pair, _, err := svc.Login(ctx, "alice@example.com", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	next, _, err := svc.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if next.RefreshToken == pair.RefreshToken {
		t.Error("refresh must rotate the token")
	}

	// The consumed token is single use.
	if _, _, err := svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("replayed token: err = %v, want ErrInvalidToken", err)
	}
	// The rotated token still works.
	if _, _, err := svc.Refresh(ctx, next.RefreshToken); err != nil {
		t.Errorf("rotated token: %v", err)
	}
}

func TestRefreshRejectsBadTokens(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice@example.com", "pw"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	pair, _, err := svc.Login(ctx, "alice@example.com", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	id := strings.SplitN(pair.RefreshToken, ".", 2)[0]

	for _, bad := range []string{"", "no-dot", ".secret", "id.", "unknown.secret"} {
		if _, _, err := svc.Refresh(ctx, bad); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Refresh(%q): err = %v, want ErrInvalidToken", bad, err)
		}
	}

	// A wrong secret for a real record burns the record.
	if _, _, err := svc.Refresh(ctx, id+".forged-secret"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("forged secret: err = %v, want ErrInvalidToken", err)
	}
	if _, _, err := svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("record must be revoked after a mismatch, err = %v", err)
	}
}

func TestLogoutRevokesAllRefreshTokens(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "alice@example.com", "pw")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	first, _, err := svc.Login(ctx, "alice@example.com", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	second, _, err := svc.Login(ctx, "alice@example.com", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := svc.Logout(ctx, user.ID); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	for _, tok := range []string{first.RefreshToken, second.RefreshToken} {
		if _, _, err := svc.Refresh(ctx, tok); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("token usable after logout: err = %v", err)
		}
	}
}

func TestSetPassword(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "alice@example.com", "old-pw")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := svc.SetPassword(ctx, user.ID, "new-pw"); err != nil {
		t.Fatalf("SetPassword: %v", err)
	}
	if _, _, err := svc.Login(ctx, "alice@example.com", "old-pw"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("old password still works: err = %v", err)
	}
	if _, _, err := svc.Login(ctx, "alice@example.com", "new-pw"); err != nil {
		t.Errorf("new password rejected: %v", err)
	}
	if err := svc.SetPassword(ctx, user.ID, " "); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("blank password: err = %v", err)
	}
	if err := svc.SetPassword(ctx, "ghost", "pw"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown user: err = %v", err)
	}
}
