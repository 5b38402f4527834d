package devauthority

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// RefreshTokenStore manages long-lived refresh tokens.
type RefreshTokenStore interface {
	Issue(ctx context.Context, applicationUserID string, expiresAt time.Time, previousTokenID string) (tokenID string, tokenOpaque string, err error)
	Validate(ctx context.Context, tokenOpaque string) (applicationUserID string, tokenID string, expiresAt time.Time, err error)
	Revoke(ctx context.Context, tokenID string) error
}

// MemoryRefreshTokenStore keeps refresh tokens in memory, indexed by the
// SHA-256 of the opaque value.
type MemoryRefreshTokenStore struct {
	mutex  sync.Mutex
	byID   map[string]*refreshRecord
	byHash map[string]string
	clock  clockwork.Clock
}

type refreshRecord struct {
	TokenID         string
	UserID          string
	Hash            string
	ExpiresAt       time.Time
	RevokedAt       time.Time
	PreviousTokenID string
	IssuedAt        time.Time
}

// NewMemoryRefreshTokenStore creates a new in-memory token store.
func NewMemoryRefreshTokenStore(clock clockwork.Clock) *MemoryRefreshTokenStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryRefreshTokenStore{
		byID:   make(map[string]*refreshRecord),
		byHash: make(map[string]string),
		clock:  clock,
	}
}

// Issue creates a new token, optionally linked to a previous token.
func (store *MemoryRefreshTokenStore) Issue(ctx context.Context, applicationUserID string, expiresAt time.Time, previousTokenID string) (string, string, error) {
	opaque, hashValue, err := generateRefreshOpaque()
	if err != nil {
		return "", "", err
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()

	tokenID := uuid.NewString()
	store.byID[tokenID] = &refreshRecord{
		TokenID:         tokenID,
		UserID:          applicationUserID,
		Hash:            hashValue,
		ExpiresAt:       expiresAt,
		PreviousTokenID: previousTokenID,
		IssuedAt:        store.clock.Now(),
	}
	store.byHash[hashValue] = tokenID
	return tokenID, opaque, nil
}

// Validate checks the opaque token and returns user, token id, and expiry.
func (store *MemoryRefreshTokenStore) Validate(ctx context.Context, tokenOpaque string) (string, string, time.Time, error) {
	if strings.TrimSpace(tokenOpaque) == "" {
		return "", "", time.Time{}, ErrRefreshTokenEmptyOpaque
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()

	tokenID, ok := store.byHash[hashOpaque(tokenOpaque)]
	if !ok {
		return "", "", time.Time{}, ErrRefreshTokenNotFound
	}
	record := store.byID[tokenID]
	if record == nil {
		return "", "", time.Time{}, ErrRefreshTokenNotFound
	}
	if !record.RevokedAt.IsZero() {
		return "", "", time.Time{}, ErrRefreshTokenRevoked
	}
	if !store.clock.Now().Before(record.ExpiresAt) {
		return "", "", time.Time{}, ErrRefreshTokenExpired
	}
	return record.UserID, record.TokenID, record.ExpiresAt, nil
}

// Revoke marks a token as revoked. Only the first caller succeeds; later
// calls get ErrRefreshTokenRevoked.
func (store *MemoryRefreshTokenStore) Revoke(ctx context.Context, tokenID string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	record := store.byID[tokenID]
	if record == nil {
		return ErrRefreshTokenNotFound
	}
	if !record.RevokedAt.IsZero() {
		return ErrRefreshTokenRevoked
	}
	record.RevokedAt = store.clock.Now()
	return nil
}
