package security

import (
	"fmt"
	"strings"
)

// ResourceRef identifies a protected resource. ID 0 stands for the type itself.
type ResourceRef struct {
	TypeName string `json:"type"`
	ID       int64  `json:"id"`
}

// TypeRef returns the type-level reference for typeName.
func TypeRef(typeName string) ResourceRef {
	return ResourceRef{TypeName: typeName}
}

// IsType reports whether r is a type-level (wildcard) reference.
func (r ResourceRef) IsType() bool { return r.ID == 0 }

func (r ResourceRef) String() string {
	return fmt.Sprintf("%s:%d", r.TypeName, r.ID)
}

func (r ResourceRef) validate() error {
	if strings.TrimSpace(r.TypeName) == "" {
		return fmt.Errorf("%w: resource type is required", ErrInvalidInput)
	}
	if r.ID < 0 {
		return fmt.Errorf("%w: resource id must not be negative", ErrInvalidInput)
	}
	return nil
}

// Permission is one of a closed set of grantable capabilities.
type Permission string

const (
	PermHasRole Permission = "HasRole"
	PermAccess  Permission = "Access"
	PermRead    Permission = "Read"
	PermWrite   Permission = "Write"
	PermAdmin   Permission = "Admin"
)

var permissions = map[Permission]struct{}{
	PermHasRole: {},
	PermAccess:  {},
	PermRead:    {},
	PermWrite:   {},
	PermAdmin:   {},
}

// Valid reports whether p belongs to the known permission set.
func (p Permission) Valid() bool {
	_, ok := permissions[p]
	return ok
}

// ParsePermission maps a wire value onto the permission set.
func ParsePermission(s string) (Permission, error) {
	p := Permission(strings.TrimSpace(s))
	if !p.Valid() {
		return "", fmt.Errorf("%w: unknown permission %q", ErrInvalidInput, s)
	}
	return p, nil
}

// Role resource types. Holding HasRole on one of these types is what makes an
// identity an administrator, author and so on.
const (
	RoleTypeAdmin               = "security.role.admin"
	RoleTypeAuthor              = "security.role.author"
	RoleTypeGroupManager        = "security.role.groupmanager"
	RoleTypeUserManager         = "security.role.usermanager"
	RoleTypeGuestOnly           = "security.role.guestonly"
	RoleTypeInstResourceManager = "security.role.instresourcemanager"
)
