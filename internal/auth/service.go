package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"coursebase.org/internal/ids"
)

// Service handles registration, credential login and the refresh token
// lifecycle. Refresh tokens are opaque "id.secret" strings; only the sha256
// of the secret half is persisted, and every successful refresh rotates the
// token: the used record is revoked and a fresh pair is minted.
type Service struct {
	store  Store
	tokens *TokenService
	events Publisher
	now    func() time.Time
}

// NewService constructs the authentication service.
func NewService(store Store, tokens *TokenService, events Publisher) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if tokens == nil {
		return nil, errors.New("auth: token service is required")
	}
	if events == nil {
		events = NopPublisher{}
	}
	return &Service{store: store, tokens: tokens, events: events, now: time.Now}, nil
}

// EnsureDefaults creates the admin system role and the default user role if
// they do not exist yet. Safe to call on every startup.
func (s *Service) EnsureDefaults(ctx context.Context) error {
	defaults := []*Role{
		{Name: RoleAdmin, Description: "Full administrative access", System: true},
		{Name: RoleUser, Description: "Default role for registered users"},
	}
	for _, role := range defaults {
		if _, err := s.store.Roles().FindByName(ctx, role.Name); err == nil {
			continue
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		now := s.now().UTC()
		role.ID = ids.New()
		role.CreatedAt = now
		role.UpdatedAt = now
		if err := s.store.Roles().Create(ctx, role); err != nil && !errors.Is(err, ErrAlreadyExists) {
			return err
		}
	}
	return nil
}

// Register creates an active account with the default user role.
func (s *Service) Register(ctx context.Context, email, password string) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if strings.TrimSpace(password) == "" {
		return nil, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	user := &User{
		ID:           ids.New(),
		Email:        email,
		PasswordHash: hash,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Users().Create(ctx, user); err != nil {
		return nil, err
	}
	defaultRole, err := s.store.Roles().FindByName(ctx, RoleUser)
	if err != nil {
		return nil, err
	}
	if err := s.store.Users().AssignRole(ctx, user.ID, defaultRole.ID); err != nil && !errors.Is(err, ErrAlreadyExists) {
		return nil, err
	}
	s.events.Publish(ctx, UserCreated{UserID: user.ID, Email: user.Email, CreatedAt: user.CreatedAt})
	return user, nil
}

// SetPassword stores a new password hash for the user. Used both for
// password changes and for adding a password to an OAuth-only account.
func (s *Service) SetPassword(ctx context.Context, userID, password string) error {
	if strings.TrimSpace(password) == "" {
		return fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	if _, err := s.store.Users().Find(ctx, userID); err != nil {
		return err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	return s.store.Users().SetPassword(ctx, userID, hash)
}

// Login authenticates credentials and mints a token pair. Every credential
// failure collapses into ErrUnauthorized.
func (s *Service) Login(ctx context.Context, email, password string) (TokenPair, *User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return TokenPair{}, nil, ErrUnauthorized
	}
	user, err := s.store.Users().FindByEmail(ctx, email)
	if err != nil {
		return TokenPair{}, nil, ErrUnauthorized
	}
	if !user.Active {
		return TokenPair{}, nil, ErrUnauthorized
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return TokenPair{}, nil, ErrUnauthorized
	}
	pair, err := s.MintTokens(ctx, user)
	if err != nil {
		return TokenPair{}, nil, err
	}
	return pair, user, nil
}

// Refresh rotates a refresh token and issues new access credentials. The
// presented token is single-use: its record is revoked whether or not the
// hash matches, so a replayed or guessed secret burns the credential.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, *User, error) {
	tokenID, secret, err := splitRefreshToken(refreshToken)
	if err != nil {
		return TokenPair{}, nil, ErrInvalidToken
	}
	store := s.store.RefreshTokens()
	record, err := store.Find(ctx, tokenID)
	if err != nil {
		return TokenPair{}, nil, ErrInvalidToken
	}
	if record.Revoked || !s.now().Before(record.ExpiresAt) {
		return TokenPair{}, nil, ErrInvalidToken
	}
	if !secureCompareHash(record.TokenHash, secret) {
		_ = store.MarkRevoked(ctx, record.ID)
		return TokenPair{}, nil, ErrInvalidToken
	}
	user, err := s.store.Users().Find(ctx, record.UserID)
	if err != nil {
		return TokenPair{}, nil, ErrInvalidToken
	}
	if !user.Active {
		return TokenPair{}, nil, ErrInvalidToken
	}
	if err := store.MarkRevoked(ctx, record.ID); err != nil {
		return TokenPair{}, nil, err
	}
	pair, err := s.MintTokens(ctx, user)
	if err != nil {
		return TokenPair{}, nil, err
	}
	return pair, user, nil
}

// Logout revokes every outstanding refresh token for the user. The access
// token stays valid until expiry; clients discard it.
func (s *Service) Logout(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	return s.store.RefreshTokens().MarkRevokedByUser(ctx, userID)
}

// MintTokens issues a fresh access/refresh pair for an authenticated user.
func (s *Service) MintTokens(ctx context.Context, user *User) (TokenPair, error) {
	roles, err := s.RoleNames(ctx, user.ID)
	if err != nil {
		return TokenPair{}, err
	}
	accessToken, err := s.tokens.GenerateAccessToken(user.ID, user.Email, roles)
	if err != nil {
		return TokenPair{}, err
	}
	refreshString, record, err := s.generateRefreshToken(user.ID)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.store.RefreshTokens().Create(ctx, record); err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshString,
		ExpiresIn:        int64(s.tokens.AccessTokenTTL().Seconds()),
		RefreshExpiresAt: record.ExpiresAt,
	}, nil
}

// RoleNames returns the user's role names, sorted by assignment order.
func (s *Service) RoleNames(ctx context.Context, userID string) ([]string, error) {
	roleIDs, err := s.store.Users().RoleIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(roleIDs))
	for _, id := range roleIDs {
		role, err := s.store.Roles().Find(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		names = append(names, role.Name)
	}
	return names, nil
}

func (s *Service) generateRefreshToken(userID string) (string, *RefreshToken, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", nil, err
	}
	secret := base64.RawURLEncoding.EncodeToString(secretBytes)
	sum := sha256.Sum256([]byte(secret))
	now := s.now().UTC()
	record := &RefreshToken{
		ID:        ids.New(),
		UserID:    userID,
		TokenHash: hex.EncodeToString(sum[:]),
		ExpiresAt: now.Add(s.tokens.RefreshTokenTTL()),
		CreatedAt: now,
	}
	return record.ID + "." + secret, record, nil
}

func splitRefreshToken(raw string) (id, secret string, err error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.New("invalid refresh token format")
	}
	return parts[0], parts[1], nil
}

func secureCompareHash(expectedHash, secret string) bool {
	sum := sha256.Sum256([]byte(secret))
	actual := hex.EncodeToString(sum[:])
	if len(expectedHash) != len(actual) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expectedHash), []byte(actual)) == 1
}
