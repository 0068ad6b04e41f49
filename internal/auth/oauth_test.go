package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

// stubProviderClient drives OAuthService tests without network calls.
type stubProviderClient struct {
	enabled   map[Provider]bool
	profile   Profile
	tokens    ProviderTokens
	exchanged int
	revoked   []string
	revokeErr error
}

func (s *stubProviderClient) Enabled(p Provider) bool { return s.enabled[p] }

func (s *stubProviderClient) AuthorizationURL(p Provider, state, _ string) (string, error) {
	if !s.enabled[p] {
		return "", ErrProviderNotConfigured
	}
	return "https://provider.example/authorize?state=" + state, nil
}

func (s *stubProviderClient) Exchange(_ context.Context, p Provider, code, _ string) (Profile, ProviderTokens, error) {
	s.exchanged++
	if code == "bad" {
		return Profile{}, ProviderTokens{}, errors.New("exchange failed")
	}
	return s.profile, s.tokens, nil
}

func (s *stubProviderClient) RefreshProviderToken(_ context.Context, p Provider, _ string) (ProviderTokens, error) {
	if p != ProviderGoogle {
		return ProviderTokens{}, ErrRefreshNotSupported
	}
	return s.tokens, nil
}

func (s *stubProviderClient) Revoke(_ context.Context, _ Provider, token string) error {
	s.revoked = append(s.revoked, token)
	return s.revokeErr
}

func (f *fixture) oauthService(client ProviderClient) *OAuthService {
	f.t.Helper()
	svc, err := NewOAuthService(f.store, client, NopPublisher{})
	if err != nil {
		f.t.Fatalf("NewOAuthService: %v", err)
	}
	return svc
}

func googleStub() *stubProviderClient {
	expiry := time.Now().Add(time.Hour).UTC()
	return &stubProviderClient{
		enabled: map[Provider]bool{ProviderGoogle: true},
		profile: Profile{
			Provider:       ProviderGoogle,
			ProviderUserID: "goog-123",
			Email:          "alice@gmail.com",
			Name:           "Alice",
		},
		tokens: ProviderTokens{
			AccessToken:  "at-1",
			RefreshToken: "rt-1",
			ExpiresAt:    &expiry,
		},
	}
}

func TestLinkCreatesConnection(t *testing.T) {
	f := newFixture(t)
	stub := googleStub()
	svc := f.oauthService(stub)
	user := f.addUser("alice@example.com")

	conn, err := svc.Link(f.ctx, user.ID, stub.profile, stub.tokens)
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	if conn.UserID != user.ID || conn.Provider != ProviderGoogle || conn.ProviderUserID != "goog-123" {
		t.Errorf("connection = %+v", conn)
	}
	if conn.AccessToken != "at-1" || conn.RefreshToken != "rt-1" {
		t.Errorf("tokens not stored: %+v", conn)
	}
}

func TestLinkRejectsLocalProvider(t *testing.T) {
	f := newFixture(t)
	svc := f.oauthService(googleStub())
	user := f.addUser("alice@example.com")

	_, err := svc.Link(f.ctx, user.ID, Profile{Provider: ProviderLocal, ProviderUserID: "x"}, ProviderTokens{})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestLinkRejectsForeignIdentity(t *testing.T) {
	f := newFixture(t)
	stub := googleStub()
	svc := f.oauthService(stub)
	alice := f.addUser("alice@example.com")
	bob := f.addUser("bob@example.com")

	if _, err := svc.Link(f.ctx, alice.ID, stub.profile, stub.tokens); err != nil {
		t.Fatalf("Link alice: %v", err)
	}
	if _, err := svc.Link(f.ctx, bob.ID, stub.profile, stub.tokens); !errors.Is(err, ErrAlreadyLinked) {
		t.Fatalf("linking bob to alice's identity: err = %v, want ErrAlreadyLinked", err)
	}
}

func TestLinkUpdatesOwnConnection(t *testing.T) {
	f := newFixture(t)
	stub := googleStub()
	svc := f.oauthService(stub)
	user := f.addUser("alice@example.com")

	first, err := svc.Link(f.ctx, user.ID, stub.profile, stub.tokens)
	if err != nil {
		t.Fatalf("Link: %v", err)
	}

	updated := stub.profile
	updated.Name = "Alice Updated"
	// Fresh tokens with no refresh token keep the stored one.
	again, err := svc.Link(f.ctx, user.ID, updated, ProviderTokens{AccessToken: "at-2"})
	if err != nil {
		t.Fatalf("re-link: %v", err)
	}
	if again.ID != first.ID {
		t.Error("re-link must update in place, not create")
	}
	if again.Name != "Alice Updated" {
		t.Errorf("profile not updated: %+v", again)
	}
	if again.AccessToken != "at-2" || again.RefreshToken != "rt-1" {
		t.Errorf("token merge wrong: access %q refresh %q", again.AccessToken, again.RefreshToken)
	}
}

func TestCompleteLink(t *testing.T) {
	f := newFixture(t)
	stub := googleStub()
	svc := f.oauthService(stub)
	user := f.addUser("alice@example.com")

	conn, err := svc.CompleteLink(f.ctx, user.ID, ProviderGoogle, "good-code", "verifier")
	if err != nil {
		t.Fatalf("CompleteLink: %v", err)
	}
	if conn.ProviderUserID != "goog-123" {
		t.Errorf("connection = %+v", conn)
	}
	if stub.exchanged != 1 {
		t.Errorf("exchange called %d times", stub.exchanged)
	}

	if _, err := svc.CompleteLink(f.ctx, user.ID, ProviderGoogle, "bad", ""); err == nil {
		t.Error("failed exchange must surface an error")
	}
	if _, err := svc.CompleteLink(f.ctx, user.ID, ProviderFacebook, "code", ""); !errors.Is(err, ErrProviderNotConfigured) {
		t.Errorf("disabled provider: err = %v", err)
	}
}

func TestUnlinkGuardsLastAuthMethod(t *testing.T) {
	f := newFixture(t)
	stub := googleStub()
	svc := f.oauthService(stub)

	// OAuth-only account: no password hash.
	user := f.addUser("alice@example.com")
	if _, err := svc.Link(f.ctx, user.ID, stub.profile, stub.tokens); err != nil {
		t.Fatalf("Link: %v", err)
	}

	if err := svc.Unlink(f.ctx, user.ID, ProviderGoogle); !errors.Is(err, ErrLastAuthMethod) {
		t.Fatalf("unlinking only method: err = %v, want ErrLastAuthMethod", err)
	}

	// After the account gains a password the unlink goes through.
	if err := f.store.Users().SetPassword(f.ctx, user.ID, "some-hash"); err != nil {
		t.Fatalf("SetPassword: %v", err)
	}
	if err := svc.Unlink(f.ctx, user.ID, ProviderGoogle); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if len(stub.revoked) != 1 || stub.revoked[0] != "at-1" {
		t.Errorf("revoked = %v", stub.revoked)
	}
	if _, err := f.store.OAuthConnections().FindByUserAndProvider(f.ctx, user.ID, ProviderGoogle); !errors.Is(err, ErrNotFound) {
		t.Errorf("connection still present: err = %v", err)
	}
}

func TestUnlinkSurvivesRevocationFailure(t *testing.T) {
	f := newFixture(t)
	stub := googleStub()
	stub.revokeErr = errors.New("provider down")
	svc := f.oauthService(stub)

	user := f.addUser("alice@example.com")
	if err := f.store.Users().SetPassword(f.ctx, user.ID, "hash"); err != nil {
		t.Fatalf("SetPassword: %v", err)
	}
	if _, err := svc.Link(f.ctx, user.ID, stub.profile, stub.tokens); err != nil {
		t.Fatalf("Link: %v", err)
	}

	if err := svc.Unlink(f.ctx, user.ID, ProviderGoogle); err != nil {
		t.Fatalf("revocation failure must not block unlink: %v", err)
	}
}

func TestUnlinkWithSecondConnection(t *testing.T) {
	f := newFixture(t)
	stub := googleStub()
	stub.enabled[ProviderFacebook] = true
	svc := f.oauthService(stub)

	user := f.addUser("alice@example.com")
	if _, err := svc.Link(f.ctx, user.ID, stub.profile, stub.tokens); err != nil {
		t.Fatalf("Link google: %v", err)
	}
	fb := Profile{Provider: ProviderFacebook, ProviderUserID: "fb-9"}
	if _, err := svc.Link(f.ctx, user.ID, fb, ProviderTokens{}); err != nil {
		t.Fatalf("Link facebook: %v", err)
	}

	// No password, but two connections: either one may go.
	if err := svc.Unlink(f.ctx, user.ID, ProviderGoogle); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	conns, err := svc.Connections(f.ctx, user.ID)
	if err != nil {
		t.Fatalf("Connections: %v", err)
	}
	if len(conns) != 1 || conns[0].Provider != ProviderFacebook {
		t.Errorf("connections = %+v", conns)
	}
}

func TestRefreshConnectionToken(t *testing.T) {
	f := newFixture(t)
	stub := googleStub()
	stub.enabled[ProviderFacebook] = true
	svc := f.oauthService(stub)
	user := f.addUser("alice@example.com")

	if _, err := svc.Link(f.ctx, user.ID, stub.profile, stub.tokens); err != nil {
		t.Fatalf("Link: %v", err)
	}
	later := time.Now().Add(2 * time.Hour).UTC()
	stub.tokens = ProviderTokens{AccessToken: "at-new", ExpiresAt: &later}

	conn, err := svc.RefreshConnectionToken(f.ctx, user.ID, ProviderGoogle)
	if err != nil {
		t.Fatalf("RefreshConnectionToken: %v", err)
	}
	if conn.AccessToken != "at-new" {
		t.Errorf("access token = %q", conn.AccessToken)
	}
	if conn.RefreshToken != "rt-1" {
		t.Errorf("stored refresh token must survive an empty refresh response, got %q", conn.RefreshToken)
	}

	fb := Profile{Provider: ProviderFacebook, ProviderUserID: "fb-9"}
	if _, err := svc.Link(f.ctx, user.ID, fb, ProviderTokens{AccessToken: "x", RefreshToken: "y"}); err != nil {
		t.Fatalf("Link facebook: %v", err)
	}
	if _, err := svc.RefreshConnectionToken(f.ctx, user.ID, ProviderFacebook); !errors.Is(err, ErrRefreshNotSupported) {
		t.Errorf("facebook refresh: err = %v, want ErrRefreshNotSupported", err)
	}
}

func TestConnectionTokenExpiry(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	tests := []struct {
		name    string
		conn    OAuthConnection
		expired bool
		valid   bool
	}{
		{"nil expiry", OAuthConnection{AccessToken: "a"}, true, false},
		{"past expiry", OAuthConnection{AccessToken: "a", TokenExpiresAt: &past}, true, false},
		{"future expiry", OAuthConnection{AccessToken: "a", TokenExpiresAt: &future}, false, true},
		{"no token", OAuthConnection{TokenExpiresAt: &future}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.conn.TokenExpired(now); got != tt.expired {
				t.Errorf("TokenExpired = %v, want %v", got, tt.expired)
			}
			if got := tt.conn.HasValidToken(now); got != tt.valid {
				t.Errorf("HasValidToken = %v, want %v", got, tt.valid)
			}
		})
	}
}
