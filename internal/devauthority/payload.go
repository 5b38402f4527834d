package devauthority

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
)

// tokenResponse renders a grant in the configured naming convention.
func tokenResponse(style PayloadStyle, accessToken string, refreshToken string, expiresIn time.Duration, user User) gin.H {
	if style == PayloadCamel {
		return gin.H{
			"accessToken":  accessToken,
			"refreshToken": refreshToken,
			"tokenType":    "Bearer",
			"expiresIn":    int64(expiresIn / time.Second),
			"user":         userPayload(style, user),
		}
	}
	return gin.H{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"token_type":    "Bearer",
		"expires_in":    int64(expiresIn / time.Second),
		"user":          userPayload(style, user),
	}
}

func userPayload(style PayloadStyle, user User) gin.H {
	permissions := user.Permissions
	if permissions == nil {
		permissions = []string{}
	}
	if style == PayloadCamel {
		return gin.H{
			"id":            user.ID,
			"email":         user.Email,
			"displayName":   user.DisplayName,
			"firstName":     user.FirstName,
			"lastName":      user.LastName,
			"tenantId":      user.TenantID,
			"role":          user.Role,
			"permissions":   permissions,
			"emailVerified": user.EmailVerified,
			"createdAt":     formatTime(user.CreatedAt),
			"updatedAt":     formatTime(user.UpdatedAt),
			"lastLoginAt":   formatTime(user.LastLoginAt),
		}
	}
	return gin.H{
		"id":             user.ID,
		"email":          user.Email,
		"display_name":   user.DisplayName,
		"first_name":     user.FirstName,
		"last_name":      user.LastName,
		"tenant_id":      user.TenantID,
		"role":           user.Role,
		"permissions":    permissions,
		"email_verified": user.EmailVerified,
		"created_at":     formatTime(user.CreatedAt),
		"updated_at":     formatTime(user.UpdatedAt),
		"last_login_at":  formatTime(user.LastLoginAt),
	}
}

func formatTime(value time.Time) interface{} {
	if value.IsZero() {
		return nil
	}
	return value.UTC().Format(time.RFC3339)
}

// inboundString reads the first non-blank string among paths.
func inboundString(document gjson.Result, paths ...string) string {
	for _, path := range paths {
		value := document.Get(path)
		if value.Type == gjson.String {
			if text := strings.TrimSpace(value.String()); text != "" {
				return text
			}
		}
	}
	return ""
}

// inboundSecret reads a string without trimming it.
func inboundSecret(document gjson.Result, paths ...string) string {
	for _, path := range paths {
		value := document.Get(path)
		if value.Type == gjson.String && value.String() != "" {
			return value.String()
		}
	}
	return ""
}
