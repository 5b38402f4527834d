package session

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// UserRecord is the raw JSON user object returned by the authority. It may
// use snake_case or camelCase field names.
type UserRecord []byte

// AuthUser is the canonical identity record of the signed-in user.
type AuthUser struct {
	ID            string
	Email         string
	DisplayName   string
	FirstName     string
	LastName      string
	TenantID      string
	Role          string
	Permissions   []string
	EmailVerified bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
	LastLoginAt   time.Time
}

// clone returns a deep copy so callers cannot mutate controller state.
func (user AuthUser) clone() AuthUser {
	if user.Permissions != nil {
		user.Permissions = append([]string(nil), user.Permissions...)
	}
	return user
}

// NormalizeUser converts a raw record into an AuthUser. DisplayName falls back
// to "first last" and then to the email so it is never empty.
func NormalizeUser(record UserRecord) (AuthUser, error) {
	if len(record) == 0 || !gjson.ValidBytes(record) {
		return AuthUser{}, fmt.Errorf("session.normalize_user: %w", ErrInvalidUserRecord)
	}
	document := gjson.ParseBytes(record)
	if !document.IsObject() {
		return AuthUser{}, fmt.Errorf("session.normalize_user: %w", ErrInvalidUserRecord)
	}

	user := AuthUser{
		ID:            firstString(document, "id", "user_id", "userId"),
		Email:         firstString(document, "email", "user_email", "userEmail"),
		DisplayName:   firstString(document, "display_name", "displayName", "name"),
		FirstName:     firstString(document, "first_name", "firstName"),
		LastName:      firstString(document, "last_name", "lastName"),
		TenantID:      firstString(document, "tenant_id", "tenantId"),
		Role:          strings.ToLower(firstString(document, "role", "user_role", "userRole")),
		Permissions:   permissionSet(document),
		EmailVerified: firstBool(document, "email_verified", "emailVerified"),
		CreatedAt:     firstTime(document, "created_at", "createdAt"),
		UpdatedAt:     firstTime(document, "updated_at", "updatedAt"),
		LastLoginAt:   firstTime(document, "last_login_at", "lastLoginAt", "last_login", "lastLogin"),
	}
	if user.ID == "" && user.Email == "" {
		return AuthUser{}, fmt.Errorf("session.normalize_user: %w: missing id and email", ErrInvalidUserRecord)
	}
	if user.DisplayName == "" {
		user.DisplayName = strings.TrimSpace(user.FirstName + " " + user.LastName)
	}
	if user.DisplayName == "" {
		user.DisplayName = user.Email
	}
	if user.DisplayName == "" {
		user.DisplayName = user.ID
	}
	return user, nil
}

func firstValue(document gjson.Result, paths ...string) (gjson.Result, bool) {
	for _, path := range paths {
		value := document.Get(path)
		if value.Exists() && value.Type != gjson.Null {
			return value, true
		}
	}
	return gjson.Result{}, false
}

func firstString(document gjson.Result, paths ...string) string {
	for _, path := range paths {
		value := document.Get(path)
		if !value.Exists() || value.Type == gjson.Null {
			continue
		}
		if text := strings.TrimSpace(value.String()); text != "" {
			return text
		}
	}
	return ""
}

func firstBool(document gjson.Result, paths ...string) bool {
	value, ok := firstValue(document, paths...)
	if !ok {
		return false
	}
	return value.Bool()
}

func firstTime(document gjson.Result, paths ...string) time.Time {
	value, ok := firstValue(document, paths...)
	if !ok {
		return time.Time{}
	}
	switch value.Type {
	case gjson.Number:
		return time.Unix(value.Int(), 0).UTC()
	case gjson.String:
		parsed, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(value.String()))
		if err != nil {
			return time.Time{}
		}
		return parsed.UTC()
	default:
		return time.Time{}
	}
}

// permissionSet reads "permissions" as strings or {resource, action} objects,
// normalized to "resource:action", deduplicated and sorted.
func permissionSet(document gjson.Result) []string {
	value, ok := firstValue(document, "permissions", "scopes")
	if !ok || !value.IsArray() {
		return nil
	}
	seen := make(map[string]struct{})
	var keys []string
	value.ForEach(func(_, entry gjson.Result) bool {
		var key string
		switch {
		case entry.IsObject():
			key = Permission{
				Resource: entry.Get("resource").String(),
				Action:   entry.Get("action").String(),
			}.Key()
		case entry.Type == gjson.String:
			key = PermissionKey(entry.String()).Key()
		}
		if key == "" {
			return true
		}
		if _, exists := seen[key]; exists {
			return true
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
		return true
	})
	sort.Strings(keys)
	return keys
}
