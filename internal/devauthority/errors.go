package devauthority

import "errors"

var (
	// ErrRefreshTokenNotFound indicates no refresh token matched the provided identifier.
	ErrRefreshTokenNotFound = errors.New("refresh_store.not_found")
	// ErrRefreshTokenRevoked indicates the refresh token has been revoked.
	ErrRefreshTokenRevoked = errors.New("refresh_store.revoked")
	// ErrRefreshTokenExpired indicates the refresh token has exceeded its expiry.
	ErrRefreshTokenExpired = errors.New("refresh_store.expired")
	// ErrRefreshTokenEmptyOpaque indicates that the provided opaque token text is empty.
	ErrRefreshTokenEmptyOpaque = errors.New("refresh_store.empty_token")

	// ErrUserExists indicates the email is already registered for the tenant.
	ErrUserExists = errors.New("user_store.exists")
	// ErrUserNotFound indicates no user has the given id.
	ErrUserNotFound = errors.New("user_store.not_found")
	// ErrInvalidCredentials indicates an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("user_store.invalid_credentials")
	// ErrInvalidEmail indicates a malformed email address.
	ErrInvalidEmail = errors.New("user_store.invalid_email")
	// ErrWeakPassword indicates a password below the minimum length.
	ErrWeakPassword = errors.New("user_store.weak_password")
)
