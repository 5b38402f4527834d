package devauthority

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/crypto/bcrypt"
)

func TestRefreshTokenStores(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		build func(t *testing.T, clock clockwork.Clock) RefreshTokenStore
	}{
		{
			name: "memory",
			build: func(t *testing.T, clock clockwork.Clock) RefreshTokenStore {
				return NewMemoryRefreshTokenStore(clock)
			},
		},
		{
			name: "sqlite",
			build: func(t *testing.T, clock clockwork.Clock) RefreshTokenStore {
				store, err := NewDatabaseRefreshTokenStore(context.Background(), "sqlite://"+filepath.Join(t.TempDir(), "refresh.db"), clock)
				if err != nil {
					t.Fatalf("open: %v", err)
				}
				if store.Driver() != "sqlite" {
					t.Fatalf("unexpected driver %s", store.Driver())
				}
				return store
			},
		},
	}
	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			clock := clockwork.NewFakeClockAt(authorityEpoch)
			store := testCase.build(t, clock)

			tokenID, opaque, err := store.Issue(ctx, "user-1", authorityEpoch.Add(time.Hour), "")
			if err != nil || tokenID == "" || opaque == "" {
				t.Fatalf("issue: %q %q %v", tokenID, opaque, err)
			}
			userID, validatedID, expiresAt, err := store.Validate(ctx, opaque)
			if err != nil || userID != "user-1" || validatedID != tokenID || !expiresAt.Equal(authorityEpoch.Add(time.Hour)) {
				t.Fatalf("validate: %s %s %v %v", userID, validatedID, expiresAt, err)
			}

			if _, _, _, err := store.Validate(ctx, "   "); !errors.Is(err, ErrRefreshTokenEmptyOpaque) {
				t.Fatalf("expected empty token error, got %v", err)
			}
			if _, _, _, err := store.Validate(ctx, "unknown"); !errors.Is(err, ErrRefreshTokenNotFound) {
				t.Fatalf("expected not found, got %v", err)
			}

			if err := store.Revoke(ctx, tokenID); err != nil {
				t.Fatalf("revoke: %v", err)
			}
			if err := store.Revoke(ctx, tokenID); !errors.Is(err, ErrRefreshTokenRevoked) {
				t.Fatalf("second revoke must report revoked, got %v", err)
			}
			if err := store.Revoke(ctx, "missing"); !errors.Is(err, ErrRefreshTokenNotFound) {
				t.Fatalf("expected not found on unknown revoke, got %v", err)
			}
			if _, _, _, err := store.Validate(ctx, opaque); !errors.Is(err, ErrRefreshTokenRevoked) {
				t.Fatalf("expected revoked, got %v", err)
			}

			_, expiring, err := store.Issue(ctx, "user-1", authorityEpoch.Add(time.Minute), tokenID)
			if err != nil {
				t.Fatalf("issue rotated: %v", err)
			}
			clock.Advance(time.Minute)
			if _, _, _, err := store.Validate(ctx, expiring); !errors.Is(err, ErrRefreshTokenExpired) {
				t.Fatalf("expected expired, got %v", err)
			}
		})
	}
}

func TestHashOpaqueIsStable(t *testing.T) {
	t.Parallel()

	opaque, hashValue, err := generateRefreshOpaque()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if hashOpaque(opaque) != hashValue || hashValue == opaque {
		t.Fatalf("unexpected hash relation")
	}
}

func TestInMemoryUsers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(authorityEpoch)
	users := NewInMemoryUsers(clock, bcrypt.MinCost, 10)

	created, err := users.Create(ctx, NewUser{
		Email:       " ada@example.com ",
		Password:    "analytical-engine",
		TenantID:    "Tenant-1",
		Role:        "Admin",
		Permissions: []string{"trips:write", "trips:read", "trips:read", " "},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Role != "admin" || len(created.Permissions) != 2 || created.Permissions[0] != "trips:read" {
		t.Fatalf("unexpected normalization: %+v", created)
	}
	if created.PasswordHash != nil {
		t.Fatalf("password hash must not leave the store")
	}

	if _, err := users.Create(ctx, NewUser{Email: "ADA@example.com", Password: "analytical-engine", TenantID: "tenant-1"}); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected duplicate to be rejected, got %v", err)
	}
	if _, err := users.Create(ctx, NewUser{Email: "ada@example.com", Password: "analytical-engine", TenantID: "tenant-2"}); err != nil {
		t.Fatalf("same email in another tenant must be allowed: %v", err)
	}
	if _, err := users.Create(ctx, NewUser{Email: "short@example.com", Password: "123456789"}); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected weak password, got %v", err)
	}

	clock.Advance(time.Minute)
	authenticated, err := users.Authenticate(ctx, "Ada@Example.com", "analytical-engine", "tenant-1")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if !authenticated.LastLoginAt.Equal(authorityEpoch.Add(time.Minute)) {
		t.Fatalf("expected login stamp, got %v", authenticated.LastLoginAt)
	}
	if _, err := users.Authenticate(ctx, "ada@example.com", "wrong-password", "tenant-1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := users.Get(ctx, "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	fetched, err := users.Get(ctx, created.ID)
	if err != nil || fetched.Email != "ada@example.com" {
		t.Fatalf("get: %+v %v", fetched, err)
	}
}
