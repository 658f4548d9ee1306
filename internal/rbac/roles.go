// Package rbac is the single authorization authority: a fixed role
// hierarchy plus an evaluator that decides whether one user may act on
// another. Every mutation path consults it exactly once before any write.
package rbac

import "fmt"

type Role string

const (
	RolePlatformAdmin   Role = "platform_admin"
	RoleBusinessOwner   Role = "business_owner"
	RoleBusinessAdmin   Role = "business_admin"
	RoleLocationManager Role = "location_manager"
	RolePractitioner    Role = "practitioner"
	RoleAssistant       Role = "assistant"
	RoleRegularClient   Role = "regular_client"
)

// Scope is the breadth of resources a role may act on.
type Scope string

const (
	ScopePlatform   Scope = "platform"
	ScopeBusiness   Scope = "business"
	ScopeLocation   Scope = "location"
	ScopeDepartment Scope = "department"
	ScopeSelf       Scope = "self"
)

// Rank ordering is total and fixed at process start. Practitioner and
// assistant share a tier; neither outranks the other.
var roleRanks = map[Role]int{
	RolePlatformAdmin:   100,
	RoleBusinessOwner:   80,
	RoleBusinessAdmin:   70,
	RoleLocationManager: 60,
	RolePractitioner:    40,
	RoleAssistant:       40,
	RoleRegularClient:   10,
}

var roleScopes = map[Role]Scope{
	RolePlatformAdmin:   ScopePlatform,
	RoleBusinessOwner:   ScopeBusiness,
	RoleBusinessAdmin:   ScopeBusiness,
	RoleLocationManager: ScopeLocation,
	RolePractitioner:    ScopeDepartment,
	RoleAssistant:       ScopeDepartment,
	RoleRegularClient:   ScopeSelf,
}

// AllRoles lists every role in rank order, highest first.
var AllRoles = []Role{
	RolePlatformAdmin,
	RoleBusinessOwner,
	RoleBusinessAdmin,
	RoleLocationManager,
	RolePractitioner,
	RoleAssistant,
	RoleRegularClient,
}

// RankOf panics on an unknown role: the enum is closed, so a value outside
// it is a programming error and must never silently default.
func RankOf(r Role) int {
	rank, ok := roleRanks[r]
	if !ok {
		panic("rbac: invalid role " + string(r))
	}
	return rank
}

func ScopeOf(r Role) Scope {
	scope, ok := roleScopes[r]
	if !ok {
		panic("rbac: invalid role " + string(r))
	}
	return scope
}

func IsAtLeast(a, b Role) bool {
	return RankOf(a) >= RankOf(b)
}

// ParseRole validates an externally supplied role name. Untrusted input
// goes through here; only then may the value reach RankOf/ScopeOf.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if _, ok := roleRanks[r]; !ok {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}
