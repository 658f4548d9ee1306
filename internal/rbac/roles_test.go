package rbac

import "testing"

func TestRankReflexive(t *testing.T) {
	for _, r := range AllRoles {
		if !IsAtLeast(r, r) {
			t.Fatalf("IsAtLeast(%s, %s) should be true", r, r)
		}
	}
}

func TestRankTransitive(t *testing.T) {
	for _, a := range AllRoles {
		for _, b := range AllRoles {
			for _, c := range AllRoles {
				if IsAtLeast(a, b) && IsAtLeast(b, c) && !IsAtLeast(a, c) {
					t.Fatalf("transitivity violated for %s >= %s >= %s", a, b, c)
				}
			}
		}
	}
}

func TestRankOrdering(t *testing.T) {
	if !IsAtLeast(RolePlatformAdmin, RoleBusinessOwner) {
		t.Fatal("platform_admin should outrank business_owner")
	}
	if IsAtLeast(RoleRegularClient, RoleAssistant) {
		t.Fatal("regular_client should not outrank assistant")
	}
	// Practitioner and assistant share a tier.
	if !IsAtLeast(RolePractitioner, RoleAssistant) || !IsAtLeast(RoleAssistant, RolePractitioner) {
		t.Fatal("practitioner and assistant should be rank-equal")
	}
}

func TestEveryRoleHasOneScope(t *testing.T) {
	for _, r := range AllRoles {
		// ScopeOf panics on an unmapped role.
		_ = ScopeOf(r)
	}
}

func TestInvalidRolePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for unknown role")
		}
	}()
	RankOf(Role("superuser"))
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("business_admin")
	if err != nil || r != RoleBusinessAdmin {
		t.Fatalf("ParseRole(business_admin) = %v, %v", r, err)
	}
	if _, err := ParseRole("root"); err == nil {
		t.Fatal("expected error for unknown role name")
	}
}
