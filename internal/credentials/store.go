package credentials

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const persistenceTimeout = 5 * time.Second

// Store holds the current credential pair in memory and mirrors it to a
// durable side-channel. It has no knowledge of the network or the UI and none
// of its methods fail: side-channel errors are logged and the in-memory pair
// stays authoritative.
type Store struct {
	mutex       sync.RWMutex
	pair        TokenPair
	persistence Persistence
	logger      *zap.Logger
	now         func() time.Time
}

// NewStore constructs a Store. A nil persistence keeps the pair in memory only.
func NewStore(persistence Persistence, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		persistence: persistence,
		logger:      logger,
		now:         time.Now,
	}
}

// Load hydrates the in-memory pair from the side-channel. It reports whether a
// pair was found.
func (store *Store) Load(ctx context.Context) bool {
	if store.persistence == nil {
		return false
	}
	pair, found, err := store.persistence.Load(ctx)
	if err != nil {
		store.logger.Warn("credential side-channel load failed",
			zap.String("code", "credentials.load_failed"),
			zap.Error(err))
		return false
	}
	if !found || pair.IsEmpty() {
		return false
	}
	store.mutex.Lock()
	store.pair = pair
	store.mutex.Unlock()
	return true
}

// SetTokens replaces the stored pair and persists it.
func (store *Store) SetTokens(accessToken string, refreshToken string) {
	pair := TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}
	store.mutex.Lock()
	store.pair = pair
	store.mutex.Unlock()

	if store.persistence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistenceTimeout)
	defer cancel()
	if err := store.persistence.Save(ctx, pair); err != nil {
		store.logger.Warn("credential side-channel save failed",
			zap.String("code", "credentials.save_failed"),
			zap.Error(err))
	}
}

// ClearTokens removes both tokens from memory and from the side-channel.
func (store *Store) ClearTokens() {
	store.mutex.Lock()
	store.pair = TokenPair{}
	store.mutex.Unlock()

	if store.persistence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistenceTimeout)
	defer cancel()
	if err := store.persistence.Clear(ctx); err != nil {
		store.logger.Warn("credential side-channel clear failed",
			zap.String("code", "credentials.clear_failed"),
			zap.Error(err))
	}
}

// AccessToken returns the current access token.
func (store *Store) AccessToken() (string, bool) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()
	return store.pair.AccessToken, store.pair.AccessToken != ""
}

// RefreshToken returns the current refresh token.
func (store *Store) RefreshToken() (string, bool) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()
	return store.pair.RefreshToken, store.pair.RefreshToken != ""
}

// Pair returns a copy of the current pair.
func (store *Store) Pair() TokenPair {
	store.mutex.RLock()
	defer store.mutex.RUnlock()
	return store.pair
}

// DecodeExpiry parses the expiry claim of token.
func (store *Store) DecodeExpiry(token string) (time.Time, bool) {
	return DecodeExpiry(token)
}

// HasValidToken reports whether an access token is present and unexpired.
func (store *Store) HasValidToken() bool {
	accessToken, ok := store.AccessToken()
	if !ok {
		return false
	}
	expiresAt, ok := DecodeExpiry(accessToken)
	if !ok {
		return false
	}
	return expiresAt.After(store.now())
}
