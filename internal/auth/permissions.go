package auth

// Permission represents a named capability in the ops API.
type Permission string

// Permission constants.
const (
	PermGreenhouseRead  Permission = "greenhouse:read"
	PermDeviceOperate   Permission = "device:operate"
	PermDeviceConfigure Permission = "device:configure"
	PermReconcile       Permission = "reconcile:run"
)

// rolePermissions maps each role to its granted permissions.
var rolePermissions = map[Role][]Permission{
	RoleViewer: {
		PermGreenhouseRead,
	},
	RoleOperator: {
		PermGreenhouseRead,
		PermDeviceOperate,
		PermReconcile,
	},
	RoleAdmin: {
		PermGreenhouseRead,
		PermDeviceOperate,
		PermReconcile,
		PermDeviceConfigure,
	},
}

// HasPermission returns true if the given role has the specified permission.
func HasPermission(role Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// PermissionsForRole returns all permissions granted to a role.
// Returns nil for unknown roles.
func PermissionsForRole(role Role) []Permission {
	perms := rolePermissions[role]
	if perms == nil {
		return nil
	}
	result := make([]Permission, len(perms))
	copy(result, perms)
	return result
}
