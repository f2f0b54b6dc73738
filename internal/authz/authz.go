// FilePath: internal/authz/authz.go
package authz

import (
	"context"

	"github.com/envimon/hub/internal/errors"
	"github.com/envimon/hub/internal/models"
)

// ResourceKind identifies the target of an authorization check.
type ResourceKind string

const (
	KindCompany ResourceKind = "company"
	KindGroup   ResourceKind = "group"
	KindSensor  ResourceKind = "sensor"
	KindUser    ResourceKind = "user"
)

// DenyReason explains a denial. NotFound is deliberately used in place of
// Forbidden when the target lives in a tenant the principal has no
// visibility into, so probing cannot reveal that the resource exists.
type DenyReason string

const (
	ReasonNotFound  DenyReason = "not_found"
	ReasonForbidden DenyReason = "forbidden"
)

// Principal is the explicit caller identity. Every core operation takes it
// as an input; nothing reaches into ambient request state.
type Principal struct {
	UserID     int64
	Roles      []string
	CompanyIDs []int64
}

// IsAdmin reports whether the principal carries the Admin role.
func (p Principal) IsAdmin() bool {
	for _, r := range p.Roles {
		if r == models.RoleAdmin {
			return true
		}
	}
	return false
}

func (p Principal) assignedTo(companyID int64) bool {
	for _, id := range p.CompanyIDs {
		if id == companyID {
			return true
		}
	}
	return false
}

// Chain is the resolved ownership chain of a target: sensor → group →
// company, or a shorter prefix for group/company targets. CompanyID is the
// derived effective company; nil means ungrouped.
type Chain struct {
	Exists bool
	// CompanyID is the effective company reached by walking the chain
	// upward; nil for ungrouped sensors and unassigned groups.
	CompanyID *int64
	// Active is false if any link in the chain is deactivated.
	Active bool
	// OwnerUserID is set for user targets only.
	OwnerUserID int64
}

// ChainResolver walks the ownership chain for a target id.
type ChainResolver interface {
	ResolveChain(ctx context.Context, kind ResourceKind, id int64) (Chain, error)
}

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool
	Reason  DenyReason
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(reason DenyReason) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// Err converts a denial into the matching taxonomy error; nil when allowed.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	if d.Reason == ReasonForbidden {
		return errors.NewForbiddenError("access denied", nil)
	}
	return errors.NewNotFoundError("resource not found", nil)
}

// Guard decides access for a principal against a target resource. It is
// stateless: resolution happens through the ChainResolver and the decision
// itself is a pure function of principal and chain.
type Guard struct {
	resolver ChainResolver
}

func NewGuard(resolver ChainResolver) *Guard {
	return &Guard{resolver: resolver}
}

// Authorize resolves the target's ownership chain and decides. Resolver
// failures surface as errors; a missing target is a Deny(NotFound), not an
// error.
func (g *Guard) Authorize(ctx context.Context, principal Principal, kind ResourceKind, id int64) (Decision, error) {
	chain, err := g.resolver.ResolveChain(ctx, kind, id)
	if err != nil {
		if errors.IsNotFound(err) {
			return deny(ReasonNotFound), nil
		}
		return Decision{}, err
	}
	return Decide(principal, kind, id, chain), nil
}

// Decide is the pure decision core over a resolved chain.
//
// Admins see everything, including deactivated and ungrouped resources.
// A non-admin sees a tenant resource only when assigned to its effective
// company AND the whole chain is active; a deactivated resource in the
// principal's own tenant yields Forbidden (existence is already known
// there), while anything outside the principal's tenants yields NotFound
// so cross-tenant probing learns nothing.
func Decide(principal Principal, kind ResourceKind, id int64, chain Chain) Decision {
	if !chain.Exists {
		return deny(ReasonNotFound)
	}

	if kind == KindUser {
		// Self-service exception: a principal always reaches its own record.
		if chain.OwnerUserID == principal.UserID {
			return allow()
		}
		if principal.IsAdmin() {
			return allow()
		}
		return deny(ReasonForbidden)
	}

	if principal.IsAdmin() {
		return allow()
	}

	// Ungrouped resources have no effective company to match; only admins
	// may address them, and their existence stays hidden.
	if chain.CompanyID == nil {
		return deny(ReasonNotFound)
	}

	if !principal.assignedTo(*chain.CompanyID) {
		return deny(ReasonNotFound)
	}

	// Within the principal's own tenant deactivated resources remain
	// admin-only, but their existence is not a secret.
	if !chain.Active {
		return deny(ReasonForbidden)
	}

	return allow()
}
