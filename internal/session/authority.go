package session

import (
	"context"
	"time"

	"github.com/tyemirov/tripauth/internal/credentials"
)

// Credentials are the inputs of a sign-in.
type Credentials struct {
	Email    string
	Password string
	Tenant   string
	// Actor optionally scopes lockout bookkeeping, e.g. a client address.
	Actor string
}

// Registration are the inputs of a sign-up.
type Registration struct {
	Email       string
	Password    string
	Tenant      string
	FirstName   string
	LastName    string
	DisplayName string
	Actor       string
}

// Grant is what the authority returns for a successful sign-in, sign-up,
// refresh or restore.
type Grant struct {
	AccessToken  string
	RefreshToken string
	User         UserRecord
}

// Authority is the remote identity service. Implementations must honor ctx.
type Authority interface {
	Authenticate(ctx context.Context, credentials Credentials) (Grant, error)
	Register(ctx context.Context, registration Registration) (Grant, error)
	Refresh(ctx context.Context, refreshToken string) (Grant, error)
	// Restore validates a persisted pair. A nil grant with a nil error means
	// there is nothing to restore.
	Restore(ctx context.Context, pair credentials.TokenPair) (*Grant, error)
	Revoke(ctx context.Context, refreshToken string) error
}

// NoticeKind classifies a user-facing notice.
type NoticeKind string

const (
	NoticeLockedOut            NoticeKind = "locked_out"
	NoticeAuthenticationFailed NoticeKind = "authentication_failed"
	NoticeRegistrationFailed   NoticeKind = "registration_failed"
	NoticeRefreshFailed        NoticeKind = "refresh_failed"
	NoticeSessionExpired       NoticeKind = "session_expired"
	NoticeSignedIn             NoticeKind = "signed_in"
	NoticeSignedOut            NoticeKind = "signed_out"
)

// Notice is a message destined for the user interface.
type Notice struct {
	Kind      NoticeKind
	Message   string
	Err       error
	Remaining time.Duration
}

// Notifier surfaces notices. Implementations must not block.
type Notifier interface {
	Notify(notice Notice)
}

type discardNotifier struct{}

func (discardNotifier) Notify(Notice) {}
