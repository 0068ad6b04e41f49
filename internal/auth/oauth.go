package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"coursebase.org/internal/ids"
)

// ProviderClient is the per-provider collaborator. One implementation covers
// all configured providers, selected by the Provider tag.
type ProviderClient interface {
	// Enabled reports whether the provider has client credentials configured.
	Enabled(p Provider) bool
	// AuthorizationURL builds the redirect URL for the consent screen. The
	// codeVerifier is empty for providers without PKCE support.
	AuthorizationURL(p Provider, state, codeVerifier string) (string, error)
	// Exchange trades an authorization code for the external profile and
	// provider tokens.
	Exchange(ctx context.Context, p Provider, code, codeVerifier string) (Profile, ProviderTokens, error)
	// RefreshProviderToken obtains fresh provider tokens. Providers without
	// refresh support return ErrRefreshNotSupported.
	RefreshProviderToken(ctx context.Context, p Provider, refreshToken string) (ProviderTokens, error)
	// Revoke invalidates a provider token. Best effort only.
	Revoke(ctx context.Context, p Provider, token string) error
}

// OAuthService manages the linking and unlinking of external identities to
// local accounts. Its invariants prevent account takeover through a shared
// provider identity and the loss of a user's only authentication method.
type OAuthService struct {
	store     Store
	providers ProviderClient
	events    Publisher
	now       func() time.Time
}

// NewOAuthService constructs the OAuth connection service.
func NewOAuthService(store Store, providers ProviderClient, events Publisher) (*OAuthService, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if providers == nil {
		return nil, errors.New("auth: provider client is required")
	}
	if events == nil {
		events = NopPublisher{}
	}
	return &OAuthService{store: store, providers: providers, events: events, now: time.Now}, nil
}

// Begin produces the authorization URL for the provider.
func (s *OAuthService) Begin(p Provider, state, codeVerifier string) (string, error) {
	if !s.providers.Enabled(p) {
		return "", fmt.Errorf("%w: %s", ErrProviderNotConfigured, p)
	}
	return s.providers.AuthorizationURL(p, state, codeVerifier)
}

// CompleteLink exchanges the callback code and links the resulting identity
// to the user.
func (s *OAuthService) CompleteLink(ctx context.Context, userID string, p Provider, code, codeVerifier string) (*OAuthConnection, error) {
	if !s.providers.Enabled(p) {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotConfigured, p)
	}
	profile, tokens, err := s.providers.Exchange(ctx, p, code, codeVerifier)
	if err != nil {
		return nil, err
	}
	return s.Link(ctx, userID, profile, tokens)
}

// Link connects an external identity to the user. An identity already owned
// by a different user is rejected; the user's own existing connection is
// updated in place.
func (s *OAuthService) Link(ctx context.Context, userID string, profile Profile, tokens ProviderTokens) (*OAuthConnection, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	if profile.Provider == ProviderLocal {
		return nil, fmt.Errorf("%w: local is not an external provider", ErrInvalidInput)
	}
	if strings.TrimSpace(profile.ProviderUserID) == "" {
		return nil, fmt.Errorf("%w: provider user id is required", ErrInvalidInput)
	}
	if _, err := s.store.Users().Find(ctx, userID); err != nil {
		return nil, err
	}

	conns := s.store.OAuthConnections()
	existing, err := conns.FindByProviderIdentity(ctx, profile.Provider, profile.ProviderUserID)
	switch {
	case err == nil:
		if existing.UserID != userID {
			return nil, ErrAlreadyLinked
		}
		if err := existing.UpdateProfile(profile); err != nil {
			return nil, err
		}
		existing.SetTokens(tokens)
		existing.UpdatedAt = s.now().UTC()
		if err := conns.Update(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	case errors.Is(err, ErrNotFound):
		// fall through to create
	default:
		return nil, err
	}

	now := s.now().UTC()
	conn := &OAuthConnection{
		ID:             ids.New(),
		UserID:         userID,
		Provider:       profile.Provider,
		ProviderUserID: profile.ProviderUserID,
		Email:          profile.Email,
		Name:           profile.Name,
		AvatarURL:      profile.AvatarURL,
		AccessToken:    tokens.AccessToken,
		RefreshToken:   tokens.RefreshToken,
		TokenExpiresAt: tokens.ExpiresAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := conns.Create(ctx, conn); err != nil {
		return nil, err
	}
	s.events.Publish(ctx, OAuthAccountLinked{UserID: userID, Provider: profile.Provider})
	return conn, nil
}

// Unlink removes the user's connection for the provider. It refuses to
// delete the user's only authentication method: a password or another
// connection must remain.
func (s *OAuthService) Unlink(ctx context.Context, userID string, p Provider) error {
	user, err := s.store.Users().Find(ctx, userID)
	if err != nil {
		return err
	}
	conns := s.store.OAuthConnections()
	conn, err := conns.FindByUserAndProvider(ctx, userID, p)
	if err != nil {
		return err
	}
	if !user.HasPassword() {
		all, err := conns.ListByUser(ctx, userID)
		if err != nil {
			return err
		}
		if len(all) <= 1 {
			return ErrLastAuthMethod
		}
	}
	if conn.AccessToken != "" {
		// Best effort: a failed provider-side revocation never blocks unlink.
		if err := s.providers.Revoke(ctx, p, conn.AccessToken); err != nil {
			zap.L().Warn("oauth token revocation failed",
				zap.String("provider", string(p)),
				zap.Error(err))
		}
	}
	if err := conns.Delete(ctx, conn.ID); err != nil {
		return err
	}
	s.events.Publish(ctx, OAuthAccountUnlinked{UserID: userID, Provider: p})
	return nil
}

// Connections lists the user's linked identities.
func (s *OAuthService) Connections(ctx context.Context, userID string) ([]*OAuthConnection, error) {
	if _, err := s.store.Users().Find(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.OAuthConnections().ListByUser(ctx, userID)
}

// RefreshConnectionToken refreshes the stored provider tokens for the
// user's connection. Providers without refresh support surface
// ErrRefreshNotSupported.
func (s *OAuthService) RefreshConnectionToken(ctx context.Context, userID string, p Provider) (*OAuthConnection, error) {
	conn, err := s.store.OAuthConnections().FindByUserAndProvider(ctx, userID, p)
	if err != nil {
		return nil, err
	}
	if conn.RefreshToken == "" {
		return nil, fmt.Errorf("%w: no refresh token stored for %s", ErrInvalidToken, p)
	}
	tokens, err := s.providers.RefreshProviderToken(ctx, p, conn.RefreshToken)
	if err != nil {
		return nil, err
	}
	conn.SetTokens(tokens)
	conn.UpdatedAt = s.now().UTC()
	if err := s.store.OAuthConnections().Update(ctx, conn); err != nil {
		return nil, err
	}
	return conn, nil
}
