package session

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrLockedOut indicates the client-side throttle rejected the attempt before any network call.
	ErrLockedOut = errors.New("session.locked_out")
	// ErrAuthenticationFailed indicates the authority rejected the credentials.
	ErrAuthenticationFailed = errors.New("session.authentication_failed")
	// ErrRegistrationFailed indicates the authority rejected the registration.
	ErrRegistrationFailed = errors.New("session.registration_failed")
	// ErrRefreshFailed indicates a refresh failed and the session was torn down.
	ErrRefreshFailed = errors.New("session.refresh_failed")
	// ErrSessionExpired indicates the expiry poll ended a session that was not refreshed in time.
	ErrSessionExpired = errors.New("session.expired")
	// ErrNoSession indicates an operation that needs a live session found none.
	ErrNoSession = errors.New("session.no_session")
	// ErrSuperseded indicates an in-flight sign-in or refresh lost to a newer transition.
	ErrSuperseded = errors.New("session.superseded")
	// ErrAuthorityUnavailable marks collaborator failures that say nothing
	// about the submitted credentials, such as transport errors or outages.
	// They never count toward lockout.
	ErrAuthorityUnavailable = errors.New("session.authority_unavailable")
	// ErrInvalidUserRecord indicates the authority returned a user record that cannot be normalized.
	ErrInvalidUserRecord = errors.New("session.invalid_user_record")

	errMissingAuthority = errors.New("session.controller.missing_authority")
	errMissingTokens    = errors.New("session.controller.missing_credential_store")
	errMissingGuard     = errors.New("session.controller.missing_lockout_guard")
)

// LockedOutError carries the remaining wait of an active lockout.
type LockedOutError struct {
	Identifier string
	Remaining  time.Duration
}

func (err *LockedOutError) Error() string {
	return fmt.Sprintf("%s: retry in %s", ErrLockedOut.Error(), err.Remaining.Round(time.Second))
}

// Unwrap lets errors.Is match ErrLockedOut.
func (err *LockedOutError) Unwrap() error {
	return ErrLockedOut
}
