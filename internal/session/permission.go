package session

import "strings"

// Requirement names a permission either as a "resource:action" string
// (PermissionKey) or structurally (Permission).
type Requirement interface {
	Key() string
}

// PermissionKey is the "resource:action" string form of a permission.
type PermissionKey string

// Key returns the trimmed string form.
func (key PermissionKey) Key() string {
	resource, action, found := strings.Cut(string(key), ":")
	if !found {
		return strings.TrimSpace(string(key))
	}
	return Permission{Resource: resource, Action: action}.Key()
}

// Permission is the structured form of a permission.
type Permission struct {
	Resource string
	Action   string
}

// Key returns "resource:action", or "" when either part is blank.
func (permission Permission) Key() string {
	resource := strings.TrimSpace(permission.Resource)
	action := strings.TrimSpace(permission.Action)
	if resource == "" || action == "" {
		return ""
	}
	return resource + ":" + action
}

// administrativeRoles bypass every permission check. This is an intended
// escape hatch for tenant administrators.
var administrativeRoles = map[string]struct{}{
	"super_admin": {},
	"superadmin":  {},
	"admin":       {},
}

// IsAdministrativeRole reports whether role short-circuits permission checks.
func IsAdministrativeRole(role string) bool {
	_, ok := administrativeRoles[strings.ToLower(strings.TrimSpace(role))]
	return ok
}

// HasPermission evaluates required against user.
func HasPermission(user AuthUser, required Requirement) bool {
	if IsAdministrativeRole(user.Role) {
		return true
	}
	if required == nil {
		return false
	}
	key := required.Key()
	if key == "" {
		return false
	}
	for _, granted := range user.Permissions {
		if granted == key {
			return true
		}
	}
	return false
}
