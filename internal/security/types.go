package security

import "time"

// IdentityStatus is ordered: everything at or above StatusVisibilityLimit is
// hidden from login.
type IdentityStatus int

const (
	StatusPermanent       IdentityStatus = 1
	StatusActive          IdentityStatus = 2
	StatusPending         IdentityStatus = 50
	StatusVisibilityLimit IdentityStatus = 100
	StatusLoginDenied     IdentityStatus = 101
	StatusDeleted         IdentityStatus = 199
)

// CanLogin reports whether identities with this status may sign on.
func (s IdentityStatus) CanLogin() bool { return s < StatusVisibilityLimit }

// Deleted reports whether the identity has been removed.
func (s IdentityStatus) Deleted() bool { return s >= StatusDeleted }

// Identity is a login-capable account. Name is unique among non-deleted identities.
type Identity struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Email        string         `json:"email,omitempty"`
	PasswordHash string         `json:"-"`
	Language     string         `json:"language,omitempty"`
	Status       IdentityStatus `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	LastLogin    *time.Time     `json:"last_login,omitempty"`
}

// Group is an anonymous security group. Names live in a separate lookup.
type Group struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// Membership links one identity to one group; at most one per pair.
type Membership struct {
	IdentityID string    `json:"identity_id"`
	GroupID    string    `json:"group_id"`
	JoinedAt   time.Time `json:"joined_at"`
}

// Policy grants Permission on Resource to every member of GroupID, optionally
// bounded by [ValidFrom, ValidTo].
type Policy struct {
	ID         string      `json:"id"`
	GroupID    string      `json:"group_id"`
	Permission Permission  `json:"permission"`
	Resource   ResourceRef `json:"resource"`
	ValidFrom  *time.Time  `json:"valid_from,omitempty"`
	ValidTo    *time.Time  `json:"valid_to,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// ActiveAt reports whether the validity window covers at. Bounds are inclusive.
func (p Policy) ActiveAt(at time.Time) bool {
	if p.ValidFrom != nil && p.ValidFrom.After(at) {
		return false
	}
	if p.ValidTo != nil && p.ValidTo.Before(at) {
		return false
	}
	return true
}

// Invitation binds an unguessable token to a dedicated group.
type Invitation struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	GroupID   string    `json:"group_id"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Roles is the per-login role snapshot. It is derived, never persisted.
type Roles struct {
	Admin               bool `json:"admin"`
	Author              bool `json:"author"`
	GroupManager        bool `json:"group_manager"`
	UserManager         bool `json:"user_manager"`
	GuestOnly           bool `json:"guest_only"`
	InstResourceManager bool `json:"inst_resource_manager"`
	Invitee             bool `json:"invitee"`
}

// Well-known group names bound by Bootstrap.
const (
	GroupUsers                = "users"
	GroupAnonymous            = "anonymous"
	GroupAdmins               = "admins"
	GroupAuthors              = "authors"
	GroupGroupManagers        = "groupmanagers"
	GroupUserManagers         = "usermanagers"
	GroupInstResourceManagers = "instresourcemanagers"
)
