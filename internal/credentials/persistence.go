package credentials

import (
	"context"
	"sync"
)

// TokenPair is the access/refresh credential pair.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// IsEmpty reports whether neither token is set.
func (pair TokenPair) IsEmpty() bool {
	return pair.AccessToken == "" && pair.RefreshToken == ""
}

// Persistence is the durable side-channel that lets a credential pair survive
// process restarts within the same client.
type Persistence interface {
	// Save replaces the stored pair.
	Save(ctx context.Context, pair TokenPair) error
	// Load returns the stored pair; the boolean is false when nothing is stored.
	Load(ctx context.Context) (TokenPair, bool, error)
	// Clear removes the stored pair. Clearing an empty store is not an error.
	Clear(ctx context.Context) error
}

// MemoryPersistence keeps the pair in process memory. Useful for tests and
// clients that must not write credentials anywhere.
type MemoryPersistence struct {
	mutex  sync.Mutex
	pair   TokenPair
	stored bool
}

// NewMemoryPersistence constructs an empty in-memory side-channel.
func NewMemoryPersistence() *MemoryPersistence {
	return &MemoryPersistence{}
}

// Save stores the pair.
func (persistence *MemoryPersistence) Save(ctx context.Context, pair TokenPair) error {
	persistence.mutex.Lock()
	defer persistence.mutex.Unlock()
	persistence.pair = pair
	persistence.stored = true
	return nil
}

// Load returns the stored pair.
func (persistence *MemoryPersistence) Load(ctx context.Context) (TokenPair, bool, error) {
	persistence.mutex.Lock()
	defer persistence.mutex.Unlock()
	return persistence.pair, persistence.stored, nil
}

// Clear drops the stored pair.
func (persistence *MemoryPersistence) Clear(ctx context.Context) error {
	persistence.mutex.Lock()
	defer persistence.mutex.Unlock()
	persistence.pair = TokenPair{}
	persistence.stored = false
	return nil
}
