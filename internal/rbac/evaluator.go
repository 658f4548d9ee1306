package rbac

import "context"

// Actor is the identity a decision is made about. It is loaded fresh from
// the user store per request and never mutated.
type Actor struct {
	ID           string
	Role         Role
	BusinessID   string
	LocationID   string
	DepartmentID string
}

type Reason string

const (
	ReasonNotFound                Reason = "not_found"
	ReasonSelfActionForbidden     Reason = "self_action_forbidden"
	ReasonRankInsufficient        Reason = "rank_insufficient"
	ReasonScopeMismatch           Reason = "scope_mismatch"
	ReasonInsufficientPermissions Reason = "insufficient_permissions"
)

// Decision is the tagged outcome of a permission check. "Not allowed" is a
// result, not an error; lookup I/O failures are returned separately.
type Decision struct {
	Allowed bool
	Reason  Reason
	Fields  []string // offending fields for self-update denials
}

func allow() Decision        { return Decision{Allowed: true} }
func deny(r Reason) Decision { return Decision{Reason: r} }

// UserLookup resolves actors from the user store.
type UserLookup interface {
	FindActor(ctx context.Context, id string) (Actor, bool, error)
}

type Evaluator struct {
	users UserLookup
}

func NewEvaluator(users UserLookup) *Evaluator {
	return &Evaluator{users: users}
}

// CanManageUser decides whether actorID may act on targetID. Acting on
// oneself is allowed here but restricted to the self-updatable field set;
// callers doing a self-update must additionally run CheckSelfUpdate.
func (e *Evaluator) CanManageUser(ctx context.Context, actorID, targetID string) (Decision, error) {
	actor, ok, err := e.users.FindActor(ctx, actorID)
	if err != nil {
		return Decision{}, err
	}
	if !ok {
		return deny(ReasonNotFound), nil
	}

	if actorID == targetID {
		return allow(), nil
	}

	target, ok, err := e.users.FindActor(ctx, targetID)
	if err != nil {
		return Decision{}, err
	}
	if !ok {
		return deny(ReasonNotFound), nil
	}

	if !outranks(actor.Role, target.Role) {
		return deny(ReasonRankInsufficient), nil
	}
	if !scopeContains(actor, target) {
		return deny(ReasonScopeMismatch), nil
	}
	return allow(), nil
}

// CanDeleteUser is CanManageUser plus the categorical self-deletion ban.
func (e *Evaluator) CanDeleteUser(ctx context.Context, actorID, targetID string) (Decision, error) {
	if actorID == targetID {
		return deny(ReasonSelfActionForbidden), nil
	}
	return e.CanManageUser(ctx, actorID, targetID)
}

// CanActOnRole decides whether actorID may grant or operate on the given
// role. Changing one's own role is never allowed; that path is rejected by
// CheckSelfUpdate before this is consulted.
func (e *Evaluator) CanActOnRole(ctx context.Context, actorID string, candidate Role) (Decision, error) {
	actor, ok, err := e.users.FindActor(ctx, actorID)
	if err != nil {
		return Decision{}, err
	}
	if !ok {
		return deny(ReasonNotFound), nil
	}
	if !IsAtLeast(actor.Role, candidate) {
		return deny(ReasonRankInsufficient), nil
	}
	return allow(), nil
}

// ScopeFilter is the constraint set a user listing must apply. The
// evaluator never runs the query itself; it only narrows it.
type ScopeFilter struct {
	BusinessID    string // restrict to this business when non-empty
	LocationID    string // restrict to this location when non-empty
	ExcludeRoles  []Role // roles the caller may not see
	ExcludeUserID string // omit this user id from results
	SelfOnly      bool   // caller may only see their own record
}

// CanListUsers returns the filter a subsequent user search must honor.
func (e *Evaluator) CanListUsers(ctx context.Context, actorID string) (ScopeFilter, Decision, error) {
	actor, ok, err := e.users.FindActor(ctx, actorID)
	if err != nil {
		return ScopeFilter{}, Decision{}, err
	}
	if !ok {
		return ScopeFilter{}, deny(ReasonNotFound), nil
	}

	switch ScopeOf(actor.Role) {
	case ScopePlatform:
		// A platform admin never sees itself in "list all users".
		return ScopeFilter{ExcludeUserID: actor.ID}, allow(), nil
	case ScopeBusiness:
		return ScopeFilter{
			BusinessID:   actor.BusinessID,
			ExcludeRoles: rolesOutranking(actor.Role),
		}, allow(), nil
	case ScopeLocation:
		return ScopeFilter{
			BusinessID:   actor.BusinessID,
			LocationID:   actor.LocationID,
			ExcludeRoles: rolesOutranking(actor.Role),
		}, allow(), nil
	default:
		return ScopeFilter{SelfOnly: true, BusinessID: actor.BusinessID}, allow(), nil
	}
}

// Fields a user may change on their own record. Role and active-state are
// categorically off limits regardless of rank.
var selfUpdatableFields = map[string]bool{
	"name":  true,
	"email": true,
	"phone": true,
}

// CheckSelfUpdate validates the field set of a self-targeted update.
func CheckSelfUpdate(fields []string) Decision {
	var offending []string
	for _, f := range fields {
		switch f {
		case "role", "is_active":
			return Decision{Reason: ReasonSelfActionForbidden, Fields: []string{f}}
		default:
			if !selfUpdatableFields[f] {
				offending = append(offending, f)
			}
		}
	}
	if len(offending) > 0 {
		return Decision{Reason: ReasonInsufficientPermissions, Fields: offending}
	}
	return allow()
}

// outranks implements the strict-rank rule: equal-rank peers cannot manage
// each other, except platform admins, who may manage one another.
func outranks(actor, target Role) bool {
	if actor == RolePlatformAdmin && target == RolePlatformAdmin {
		return true
	}
	return RankOf(actor) > RankOf(target)
}

func scopeContains(actor, target Actor) bool {
	switch ScopeOf(actor.Role) {
	case ScopePlatform:
		return true
	case ScopeBusiness:
		return actor.BusinessID != "" && actor.BusinessID == target.BusinessID
	case ScopeLocation:
		return actor.BusinessID != "" && actor.BusinessID == target.BusinessID &&
			actor.LocationID != "" && actor.LocationID == target.LocationID
	case ScopeDepartment:
		return actor.BusinessID != "" && actor.BusinessID == target.BusinessID &&
			actor.LocationID != "" && actor.LocationID == target.LocationID &&
			actor.DepartmentID != "" && actor.DepartmentID == target.DepartmentID
	default:
		// Self scope never contains another user.
		return false
	}
}

func rolesOutranking(r Role) []Role {
	var out []Role
	for _, candidate := range AllRoles {
		if RankOf(candidate) > RankOf(r) {
			out = append(out, candidate)
		}
	}
	return out
}
