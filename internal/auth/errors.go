package auth

import "errors"

var (
	ErrNotFound      = errors.New("auth: not found")
	ErrAlreadyExists = errors.New("auth: already exists")
	ErrInvalidInput  = errors.New("auth: invalid input")
	ErrUnauthorized  = errors.New("auth: unauthorized")

	// ErrInvalidToken indicates the access or refresh token failed validation.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrSystemRole is returned on attempts to rename or delete a system role.
	ErrSystemRole = errors.New("auth: system role cannot be modified")

	// ErrLastRole guards the invariant that every user holds at least one role.
	ErrLastRole = errors.New("auth: cannot remove last role")

	// ErrOwnAdminRole forbids an admin stripping their own admin role,
	// independent of how many other roles they hold.
	ErrOwnAdminRole = errors.New("auth: cannot remove own admin role")

	// ErrAlreadyLinked is returned when an external identity is already
	// connected to a different user.
	ErrAlreadyLinked = errors.New("auth: identity already linked to another user")

	// ErrLastAuthMethod guards against unlinking a user's only way to sign in.
	ErrLastAuthMethod = errors.New("auth: cannot remove last authentication method")

	// ErrRefreshNotSupported is returned by providers that do not issue
	// refreshable tokens (facebook, apple).
	ErrRefreshNotSupported = errors.New("auth: provider does not support token refresh")

	// ErrProviderNotConfigured indicates the provider has no client credentials.
	ErrProviderNotConfigured = errors.New("auth: provider not configured")
)
