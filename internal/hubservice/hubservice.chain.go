// FilePath: internal/hubservice/hubservice.chain.go
package hubservice

import (
	"context"

	"github.com/envimon/hub/internal/authz"
	"github.com/envimon/hub/internal/errors"
)

// chainResolver walks a resource's ownership chain upward (sensor → group →
// company) so the guard can decide against the effective company. All
// resource kinds resolve through here; the guard never touches repositories
// directly.
type chainResolver struct {
	svc *HubService
}

func (r *chainResolver) ResolveChain(ctx context.Context, kind authz.ResourceKind, id int64) (authz.Chain, error) {
	switch kind {
	case authz.KindCompany:
		return r.resolveCompany(ctx, id)
	case authz.KindGroup:
		return r.resolveGroup(ctx, id)
	case authz.KindSensor:
		return r.resolveSensor(ctx, id)
	case authz.KindUser:
		return r.resolveUser(ctx, id)
	}
	return authz.Chain{}, errors.NewInternalError("unknown resource kind: "+string(kind), nil)
}

func (r *chainResolver) resolveCompany(ctx context.Context, id int64) (authz.Chain, error) {
	company, err := r.svc.Companies.Get(ctx, id)
	if err != nil {
		return authz.Chain{}, err
	}
	return authz.Chain{
		Exists:    true,
		CompanyID: &company.ID,
		Active:    company.Active,
	}, nil
}

func (r *chainResolver) resolveGroup(ctx context.Context, id int64) (authz.Chain, error) {
	group, err := r.svc.Groups.Get(ctx, id)
	if err != nil {
		return authz.Chain{}, err
	}
	chain := authz.Chain{Exists: true, Active: group.Active}
	if group.CompanyID == nil {
		return chain, nil
	}

	company, err := r.svc.Companies.Get(ctx, *group.CompanyID)
	if err != nil {
		// A dangling company reference behaves like an unassigned group.
		if errors.IsNotFound(err) {
			return chain, nil
		}
		return authz.Chain{}, err
	}
	chain.CompanyID = &company.ID
	chain.Active = group.Active && company.Active
	return chain, nil
}

func (r *chainResolver) resolveSensor(ctx context.Context, id int64) (authz.Chain, error) {
	sensor, err := r.svc.Sensors.Get(ctx, id)
	if err != nil {
		return authz.Chain{}, err
	}
	chain := authz.Chain{Exists: true, Active: sensor.Active()}
	if sensor.GroupID == nil {
		return chain, nil
	}

	parent, err := r.resolveGroup(ctx, *sensor.GroupID)
	if err != nil {
		if errors.IsNotFound(err) {
			return chain, nil
		}
		return authz.Chain{}, err
	}
	chain.CompanyID = parent.CompanyID
	chain.Active = chain.Active && parent.Active
	return chain, nil
}

func (r *chainResolver) resolveUser(ctx context.Context, id int64) (authz.Chain, error) {
	user, err := r.svc.Users.Get(ctx, id)
	if err != nil {
		return authz.Chain{}, err
	}
	return authz.Chain{
		Exists:      true,
		Active:      user.Active,
		OwnerUserID: user.ID,
	}, nil
}
