package credentials

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the subset of access token claims the client reads.
type Claims struct {
	Subject   string
	TenantID  string
	ExpiresAt time.Time
}

// HasExpiry reports whether the token carried an expiry claim.
func (claims Claims) HasExpiry() bool {
	return !claims.ExpiresAt.IsZero()
}

type accessTokenClaims struct {
	TenantID      string `json:"tenant_id"`
	TenantIDCamel string `json:"tenantId"`
	jwt.RegisteredClaims
}

var claimsParser = jwt.NewParser()

// DecodeClaims reads subject, tenant, and expiry from an access token without
// verifying its signature. Verification belongs to the remote authority.
func DecodeClaims(token string) (Claims, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return Claims{}, fmt.Errorf("credentials.decode_claims: %w", ErrMalformedToken)
	}
	parsed := &accessTokenClaims{}
	if _, _, err := claimsParser.ParseUnverified(trimmed, parsed); err != nil {
		return Claims{}, fmt.Errorf("credentials.decode_claims: %w: %v", ErrMalformedToken, err)
	}
	claims := Claims{
		Subject:  parsed.Subject,
		TenantID: parsed.TenantID,
	}
	if claims.TenantID == "" {
		claims.TenantID = parsed.TenantIDCamel
	}
	if parsed.ExpiresAt != nil {
		claims.ExpiresAt = parsed.ExpiresAt.Time.UTC()
	}
	return claims, nil
}

// DecodeExpiry returns the expiry claim of token. The boolean is false when the
// token is malformed or carries no expiry, which callers treat as "cannot
// schedule from the token" rather than as a failure.
func DecodeExpiry(token string) (time.Time, bool) {
	claims, err := DecodeClaims(token)
	if err != nil || !claims.HasExpiry() {
		return time.Time{}, false
	}
	return claims.ExpiresAt, true
}
