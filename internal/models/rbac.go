package models

import "time"

// RoleSlug identifies a role in the RBAC system.
type RoleSlug string

// Seeded roles. CDC/DRF/DR mirror the organizational approval hierarchy.
const (
	RoleAdmin     RoleSlug = "admin"
	RoleCDC       RoleSlug = "cdc"
	RoleDRF       RoleSlug = "drf"
	RoleDR        RoleSlug = "dr"
	RoleFormateur RoleSlug = "formateur"
)

// PermissionSlug identifies a named capability.
type PermissionSlug string

// Canonical permissions. Checks are set membership over these tags, never ad
// hoc string matching.
const (
	PermValidateFormations PermissionSlug = "validate-formations"
	PermRejectFormations   PermissionSlug = "reject-formations"
	PermAssignRoles        PermissionSlug = "assign-roles"
	PermManageFormations   PermissionSlug = "manage-formations"
	PermManageParticipants PermissionSlug = "manage-participants"
	PermManageAbsences     PermissionSlug = "manage-absences"
	PermViewReports        PermissionSlug = "view-reports"
)

// AllPermissions lists every capability known to the system.
var AllPermissions = []PermissionSlug{
	PermValidateFormations,
	PermRejectFormations,
	PermAssignRoles,
	PermManageFormations,
	PermManageParticipants,
	PermManageAbsences,
	PermViewReports,
}

// Role represents a named permission group.
type Role struct {
	ID          string       `db:"id" json:"id"`
	Name        string       `db:"name" json:"name"`
	Slug        RoleSlug     `db:"slug" json:"slug"`
	Permissions []Permission `json:"permissions,omitempty"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
}

// Permission represents a named capability row. Immutable once referenced by
// a role.
type Permission struct {
	ID   string         `db:"id" json:"id"`
	Name string         `db:"name" json:"name"`
	Slug PermissionSlug `db:"slug" json:"slug"`
}

// PermissionSet is the capability-set abstraction used by authorization
// checks.
type PermissionSet map[PermissionSlug]struct{}

// NewPermissionSet builds a set from slugs.
func NewPermissionSet(slugs ...PermissionSlug) PermissionSet {
	set := make(PermissionSet, len(slugs))
	for _, s := range slugs {
		set[s] = struct{}{}
	}
	return set
}

// Has reports membership.
func (p PermissionSet) Has(slug PermissionSlug) bool {
	_, ok := p[slug]
	return ok
}

// Union merges another set into a new one.
func (p PermissionSet) Union(other PermissionSet) PermissionSet {
	merged := make(PermissionSet, len(p)+len(other))
	for s := range p {
		merged[s] = struct{}{}
	}
	for s := range other {
		merged[s] = struct{}{}
	}
	return merged
}

// Slugs returns the sorted-stable-enough slice form for JWT claims.
func (p PermissionSet) Slugs() []PermissionSlug {
	slugs := make([]PermissionSlug, 0, len(p))
	for s := range p {
		slugs = append(slugs, s)
	}
	return slugs
}
