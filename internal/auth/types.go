package auth

import (
	"fmt"
	"strings"
	"time"
)

// RoleAdmin is the only role permitted to carry the system flag. It can
// neither be renamed nor deleted.
const RoleAdmin = "admin"

// RoleUser is the default role assigned on registration.
const RoleUser = "user"

// Provider identifies an external identity provider.
type Provider string

const (
	// ProviderLocal is the pseudo-provider for password accounts. It can
	// never appear on an OAuthConnection.
	ProviderLocal    Provider = "local"
	ProviderGoogle   Provider = "google"
	ProviderFacebook Provider = "facebook"
	ProviderApple    Provider = "apple"
)

// ParseProvider maps a request path segment to a known external provider.
// The local pseudo-provider is rejected.
func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case ProviderGoogle, ProviderFacebook, ProviderApple:
		return p, nil
	default:
		return "", fmt.Errorf("%w: unknown provider %q", ErrInvalidInput, s)
	}
}

// User is a learner or administrator account.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasPassword reports whether the account can authenticate with a password.
// OAuth-only accounts have no hash.
func (u *User) HasPassword() bool {
	return u != nil && u.PasswordHash != ""
}

// Role groups permissions under a stable lowercase name.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	System      bool      `json:"system"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Permission is a named resource:action capability. The name is immutable
// once created.
type Permission struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Resource    string    `json:"resource"`
	Action      string    `json:"action"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Grant returns the permission as a grant value.
func (p *Permission) Grant() Grant {
	return Grant{Resource: p.Resource, Action: p.Action}
}

// OAuthConnection links a local user to one external identity. A user holds
// at most one connection per provider, and an external identity belongs to
// at most one user.
type OAuthConnection struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	Provider       Provider   `json:"provider"`
	ProviderUserID string     `json:"provider_user_id"`
	Email          string     `json:"email,omitempty"`
	Name           string     `json:"name,omitempty"`
	AvatarURL      string     `json:"avatar_url,omitempty"`
	AccessToken    string     `json:"-"`
	RefreshToken   string     `json:"-"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TokenExpired reports whether the stored provider token needs a refresh.
// A missing expiry counts as expired so the caller re-authenticates instead
// of assuming indefinite validity.
func (c *OAuthConnection) TokenExpired(now time.Time) bool {
	if c.TokenExpiresAt == nil {
		return true
	}
	return !now.Before(*c.TokenExpiresAt)
}

// HasValidToken reports whether the connection carries a usable access token.
func (c *OAuthConnection) HasValidToken(now time.Time) bool {
	return c.AccessToken != "" && !c.TokenExpired(now)
}

// Profile is the identity returned by a provider after a code exchange.
type Profile struct {
	Provider       Provider
	ProviderUserID string
	Email          string
	Name           string
	AvatarURL      string
}

// ProviderTokens carries the provider-side credentials from an exchange or
// refresh. ExpiresAt is nil when the provider does not report one.
type ProviderTokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
}

// UpdateProfile applies fresh profile fields in place. The update must
// target the same external identity as the stored connection.
func (c *OAuthConnection) UpdateProfile(p Profile) error {
	if p.Provider != c.Provider || p.ProviderUserID != c.ProviderUserID {
		return fmt.Errorf("%w: profile update targets a different identity", ErrInvalidInput)
	}
	c.Email = p.Email
	c.Name = p.Name
	c.AvatarURL = p.AvatarURL
	return nil
}

// SetTokens stores refreshed provider credentials on the connection.
func (c *OAuthConnection) SetTokens(t ProviderTokens) {
	c.AccessToken = t.AccessToken
	if t.RefreshToken != "" {
		c.RefreshToken = t.RefreshToken
	}
	c.TokenExpiresAt = t.ExpiresAt
}

// RefreshToken is a persisted, single-use refresh credential. Only the
// sha256 of the secret half is stored.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
	Revoked   bool
}

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	ExpiresIn        int64     `json:"expires_in"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}
