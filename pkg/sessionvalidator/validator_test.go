package sessionvalidator

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

type fixedClock struct {
	current time.Time
}

func (clock fixedClock) Now() time.Time {
	return clock.current
}

func mintToken(t *testing.T, signingKey []byte, issuer string, issuedAt time.Time, ttl time.Duration) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:          "user-123",
		UserEmail:       "user@example.com",
		UserDisplayName: "Demo User",
		TenantID:        "tenant-7",
		UserRole:        "member",
		Permissions:     []string{"trips:read"},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   "user-123",
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
	})
	result, err := token.SignedString(signingKey)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return result
}

func newTestValidator(t *testing.T, now time.Time) *Validator {
	t.Helper()
	validator, err := New(Config{
		SigningKey: []byte("secret-key"),
		Issuer:     "issuer",
		Clock:      fixedClock{current: now},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return validator
}

func TestNewValidatorRequiresConfiguration(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name          string
		configuration Config
		expected      error
	}{
		{name: "signing key", configuration: Config{Issuer: "issuer"}, expected: ErrMissingSigningKey},
		{name: "issuer", configuration: Config{SigningKey: []byte("secret"), Issuer: "  "}, expected: ErrMissingIssuer},
	}
	for _, testCase := range testCases {
		if _, err := New(testCase.configuration); !errors.Is(err, testCase.expected) {
			t.Fatalf("%s: expected %v, got %v", testCase.name, testCase.expected, err)
		}
	}
}

func TestNewValidatorDefaultsClock(t *testing.T) {
	t.Parallel()

	validator, err := New(Config{SigningKey: []byte("secret"), Issuer: "issuer"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if validator.clock == nil {
		t.Fatalf("expected default clock to be set")
	}
}

func TestValidateTokenSuccess(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0).UTC()
	validator := newTestValidator(t, now)
	tokenValue := mintToken(t, []byte("secret-key"), "issuer", now, time.Minute)

	claims, validateErr := validator.ValidateToken(tokenValue)
	if validateErr != nil {
		t.Fatalf("unexpected validation error: %v", validateErr)
	}
	if claims.GetUserID() != "user-123" || claims.GetTenantID() != "tenant-7" {
		t.Fatalf("unexpected claims: %#v", claims)
	}
	if !claims.GetExpiresAt().Equal(now.Add(time.Minute)) {
		t.Fatalf("unexpected expiry: %v", claims.GetExpiresAt())
	}
	if len(claims.Permissions) != 1 || claims.Permissions[0] != "trips:read" {
		t.Fatalf("unexpected permissions: %v", claims.Permissions)
	}
}

func TestNilClaimsReturnZeroValues(t *testing.T) {
	t.Parallel()

	var missing *Claims
	if missing.GetUserID() != "" || missing.GetTenantID() != "" || !missing.GetExpiresAt().IsZero() {
		t.Fatalf("nil claims must return zero values")
	}
}

func TestValidateTokenRejectsInvalidCases(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0).UTC()
	testCases := []struct {
		name      string
		tokenFunc func() string
		expectErr error
	}{
		{
			name:      "empty token",
			tokenFunc: func() string { return "" },
			expectErr: ErrMissingToken,
		},
		{
			name: "bad signature",
			tokenFunc: func() string {
				return mintToken(t, []byte("other-key"), "issuer", now, time.Minute)
			},
			expectErr: ErrInvalidToken,
		},
		{
			name: "wrong issuer",
			tokenFunc: func() string {
				return mintToken(t, []byte("secret-key"), "other-issuer", now, time.Minute)
			},
			expectErr: ErrInvalidIssuer,
		},
		{
			name: "expired",
			tokenFunc: func() string {
				return mintToken(t, []byte("secret-key"), "issuer", now.Add(-2*time.Minute), time.Minute)
			},
			expectErr: ErrTokenExpired,
		},
		{
			name: "no expiry",
			tokenFunc: func() string {
				signed, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
					UserID:           "user-123",
					RegisteredClaims: jwt.RegisteredClaims{Issuer: "issuer"},
				}).SignedString([]byte("secret-key"))
				return signed
			},
			expectErr: ErrInvalidToken,
		},
	}

	validator := newTestValidator(t, now)
	for _, testCase := range testCases {
		_, validateErr := validator.ValidateToken(testCase.tokenFunc())
		if validateErr == nil || !errors.Is(validateErr, testCase.expectErr) {
			t.Fatalf("%s: expected %v, got %v", testCase.name, testCase.expectErr, validateErr)
		}
	}
}

func TestValidateRequest(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0).UTC()
	tokenValue := mintToken(t, []byte("secret-key"), "issuer", now, time.Minute)
	validator := newTestValidator(t, now)

	testCases := []struct {
		name      string
		header    string
		expectErr error
	}{
		{name: "bearer", header: "Bearer " + tokenValue},
		{name: "lowercase scheme", header: "bearer " + tokenValue},
		{name: "missing header", header: "", expectErr: ErrMissingBearer},
		{name: "basic scheme", header: "Basic dXNlcjpwYXNz", expectErr: ErrMissingBearer},
		{name: "empty bearer", header: "Bearer    ", expectErr: ErrMissingBearer},
	}
	for _, testCase := range testCases {
		request := httptest.NewRequest(http.MethodGet, "/protected", nil)
		if testCase.header != "" {
			request.Header.Set("Authorization", testCase.header)
		}
		claims, validateErr := validator.ValidateRequest(request)
		if testCase.expectErr != nil {
			if !errors.Is(validateErr, testCase.expectErr) {
				t.Fatalf("%s: expected %v, got %v", testCase.name, testCase.expectErr, validateErr)
			}
			continue
		}
		if validateErr != nil || claims.GetUserID() != "user-123" {
			t.Fatalf("%s: unexpected result %v %v", testCase.name, claims, validateErr)
		}
	}
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	now := time.Unix(1700000000, 0).UTC()
	tokenValue := mintToken(t, []byte("secret-key"), "issuer", now, time.Minute)
	validator := newTestValidator(t, now)

	router := gin.New()
	router.Use(validator.GinMiddleware("claims"))
	router.GET("/protected", func(contextGin *gin.Context) {
		value, exists := contextGin.Get("claims")
		if !exists {
			t.Errorf("claims missing")
		}
		if _, ok := value.(*Claims); !ok {
			t.Errorf("unexpected claims type: %T", value)
		}
		contextGin.Status(http.StatusOK)
	})

	request := httptest.NewRequest(http.MethodGet, "/protected", nil)
	request.Header.Set("Authorization", "Bearer "+tokenValue)
	response := httptest.NewRecorder()
	router.ServeHTTP(response, request)
	if response.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", response.Code)
	}

	requestMissing := httptest.NewRequest(http.MethodGet, "/protected", nil)
	responseMissing := httptest.NewRecorder()
	router.ServeHTTP(responseMissing, requestMissing)
	if responseMissing.Code != http.StatusUnauthorized || !strings.Contains(responseMissing.Body.String(), "missing_bearer") {
		t.Fatalf("expected 401 missing_bearer, got %d %s", responseMissing.Code, responseMissing.Body.String())
	}
}
