package devauthority

import (
	"context"
	"fmt"
	"net/mail"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/crypto/bcrypt"
)

// User is an account known to the authority.
type User struct {
	ID            string
	Email         string
	FirstName     string
	LastName      string
	DisplayName   string
	TenantID      string
	Role          string
	Permissions   []string
	EmailVerified bool
	PasswordHash  []byte
	CreatedAt     time.Time
	UpdatedAt     time.Time
	LastLoginAt   time.Time
}

// NewUser describes an account to create.
type NewUser struct {
	Email         string
	Password      string
	TenantID      string
	FirstName     string
	LastName      string
	DisplayName   string
	Role          string
	Permissions   []string
	EmailVerified bool
}

// UserStore persists and retrieves accounts.
type UserStore interface {
	Create(ctx context.Context, newUser NewUser) (User, error)
	Authenticate(ctx context.Context, email string, password string, tenantID string) (User, error)
	Get(ctx context.Context, applicationUserID string) (User, error)
}

// InMemoryUsers is a bcrypt-backed user store for dev and tests.
type InMemoryUsers struct {
	mutex             sync.RWMutex
	byID              map[string]*User
	byLogin           map[string]string
	clock             clockwork.Clock
	bcryptCost        int
	minPasswordLength int
}

// NewInMemoryUsers constructs an empty store. A non-positive cost uses bcrypt.DefaultCost.
func NewInMemoryUsers(clock clockwork.Clock, bcryptCost int, minPasswordLength int) *InMemoryUsers {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if bcryptCost <= 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	if minPasswordLength <= 0 {
		minPasswordLength = defaultMinPasswordLength
	}
	return &InMemoryUsers{
		byID:              make(map[string]*User),
		byLogin:           make(map[string]string),
		clock:             clock,
		bcryptCost:        bcryptCost,
		minPasswordLength: minPasswordLength,
	}
}

// Create registers newUser.
func (store *InMemoryUsers) Create(ctx context.Context, newUser NewUser) (User, error) {
	email := strings.TrimSpace(newUser.Email)
	if parsed, err := mail.ParseAddress(email); err != nil || parsed.Address != email {
		return User{}, fmt.Errorf("user_store.create: %w", ErrInvalidEmail)
	}
	if len(newUser.Password) < store.minPasswordLength {
		return User{}, fmt.Errorf("user_store.create: %w", ErrWeakPassword)
	}
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(newUser.Password), store.bcryptCost)
	if err != nil {
		return User{}, fmt.Errorf("user_store.create: %w", err)
	}

	loginKey := buildLoginKey(newUser.TenantID, email)
	now := store.clock.Now().UTC()
	user := &User{
		ID:            uuid.NewString(),
		Email:         email,
		FirstName:     strings.TrimSpace(newUser.FirstName),
		LastName:      strings.TrimSpace(newUser.LastName),
		DisplayName:   strings.TrimSpace(newUser.DisplayName),
		TenantID:      strings.TrimSpace(newUser.TenantID),
		Role:          strings.ToLower(strings.TrimSpace(newUser.Role)),
		Permissions:   normalizePermissions(newUser.Permissions),
		EmailVerified: newUser.EmailVerified,
		PasswordHash:  passwordHash,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if user.Role == "" {
		user.Role = "member"
	}

	store.mutex.Lock()
	defer store.mutex.Unlock()
	if _, exists := store.byLogin[loginKey]; exists {
		return User{}, fmt.Errorf("user_store.create: %w", ErrUserExists)
	}
	store.byID[user.ID] = user
	store.byLogin[loginKey] = user.ID
	return cloneUser(user), nil
}

// Authenticate checks the password and stamps the login time.
func (store *InMemoryUsers) Authenticate(ctx context.Context, email string, password string, tenantID string) (User, error) {
	store.mutex.RLock()
	userID, ok := store.byLogin[buildLoginKey(tenantID, email)]
	var passwordHash []byte
	if ok {
		passwordHash = store.byID[userID].PasswordHash
	}
	store.mutex.RUnlock()
	if !ok {
		return User{}, fmt.Errorf("user_store.authenticate: %w", ErrInvalidCredentials)
	}
	if err := bcrypt.CompareHashAndPassword(passwordHash, []byte(password)); err != nil {
		return User{}, fmt.Errorf("user_store.authenticate: %w", ErrInvalidCredentials)
	}

	store.mutex.Lock()
	defer store.mutex.Unlock()
	user, ok := store.byID[userID]
	if !ok {
		return User{}, fmt.Errorf("user_store.authenticate: %w", ErrInvalidCredentials)
	}
	user.LastLoginAt = store.clock.Now().UTC()
	return cloneUser(user), nil
}

// Get returns a user by application user id.
func (store *InMemoryUsers) Get(ctx context.Context, applicationUserID string) (User, error) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()
	user, ok := store.byID[applicationUserID]
	if !ok {
		return User{}, fmt.Errorf("user_store.get: %w", ErrUserNotFound)
	}
	return cloneUser(user), nil
}

func buildLoginKey(tenantID string, email string) string {
	return strings.ToLower(strings.TrimSpace(tenantID)) + "|" + strings.ToLower(strings.TrimSpace(email))
}

func normalizePermissions(permissions []string) []string {
	seen := make(map[string]struct{}, len(permissions))
	normalized := make([]string, 0, len(permissions))
	for _, permission := range permissions {
		trimmed := strings.TrimSpace(permission)
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		normalized = append(normalized, trimmed)
	}
	sort.Strings(normalized)
	return normalized
}

func cloneUser(user *User) User {
	clone := *user
	clone.Permissions = append([]string(nil), user.Permissions...)
	clone.PasswordHash = nil
	return clone
}
