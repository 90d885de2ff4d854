package ops

import (
	"context"

	"github.com/moonkev/flexds/internal/authctx"
	"github.com/moonkev/flexds/internal/authz"
	"github.com/moonkev/flexds/internal/model"
	"github.com/moonkev/flexds/internal/repository"
)

// RouteConfig rows carry no team column of their own in this model (a
// route config is reachable only via the listeners that reference it), so
// authorization is team-agnostic: any caller with a route_config:<action>
// scope, admin:all, or any team-scoped route_config permission may act on
// any route config. This mirrors how the repository models the entity
// (model.RouteConfig has no Team field) rather than inventing one.
const resourceRouteConfig = "route_config"

func (f *Facade) CreateRouteConfig(ctx context.Context, actx *authctx.Context, rc *model.RouteConfig) (*model.RouteConfig, *Error) {
	if !authz.CheckResourceAccess(actx, resourceRouteConfig, authz.ActionWrite, "") {
		return nil, forbidden("write access to route configs denied")
	}
	if err := validate(rc); err != nil {
		return nil, err
	}
	if rerr := f.repo.CreateRouteConfig(ctx, rc); rerr != nil {
		return nil, translateRepositoryError(resourceRouteConfig, rc.Name, rerr)
	}
	if err := runRefresh(ctx, f.refresher, "create route config"); err != nil {
		return nil, err
	}
	return rc, nil
}

func (f *Facade) GetRouteConfig(ctx context.Context, actx *authctx.Context, id string) (*model.RouteConfig, *Error) {
	rc, rerr := f.repo.GetRouteConfigByID(ctx, id)
	if rerr != nil {
		return nil, translateRepositoryError(resourceRouteConfig, id, rerr)
	}
	if !authz.CheckResourceAccess(actx, resourceRouteConfig, authz.ActionRead, "") {
		return nil, notFound(resourceRouteConfig, id)
	}
	return rc, nil
}

func (f *Facade) ListRouteConfigs(ctx context.Context, actx *authctx.Context) ([]*model.RouteConfig, *Error) {
	if !authz.CheckResourceAccess(actx, resourceRouteConfig, authz.ActionRead, "") {
		return nil, nil
	}
	rows, rerr := f.repo.ListRouteConfigs(ctx, repository.TeamFilter{})
	if rerr != nil {
		return nil, internal("list route configs", rerr)
	}
	return rows, nil
}

func (f *Facade) UpdateRouteConfig(ctx context.Context, actx *authctx.Context, rc *model.RouteConfig) (*model.RouteConfig, *Error) {
	if _, rerr := f.repo.GetRouteConfigByID(ctx, rc.ID); rerr != nil {
		return nil, translateRepositoryError(resourceRouteConfig, rc.ID, rerr)
	}
	if !authz.CheckResourceAccess(actx, resourceRouteConfig, authz.ActionWrite, "") {
		return nil, forbidden("write access to route configs denied")
	}
	if err := validate(rc); err != nil {
		return nil, err
	}
	if rerr := f.repo.UpdateRouteConfig(ctx, rc); rerr != nil {
		return nil, translateRepositoryError(resourceRouteConfig, rc.Name, rerr)
	}
	if err := runRefresh(ctx, f.refresher, "update route config"); err != nil {
		return nil, err
	}
	return rc, nil
}

func (f *Facade) DeleteRouteConfig(ctx context.Context, actx *authctx.Context, id string) *Error {
	if _, rerr := f.repo.GetRouteConfigByID(ctx, id); rerr != nil {
		return translateRepositoryError(resourceRouteConfig, id, rerr)
	}
	if !authz.CheckResourceAccess(actx, resourceRouteConfig, authz.ActionWrite, "") {
		return forbidden("write access to route configs denied")
	}
	if rerr := f.repo.DeleteRouteConfig(ctx, id); rerr != nil {
		return translateRepositoryError(resourceRouteConfig, id, rerr)
	}
	return runRefresh(ctx, f.refresher, "delete route config")
}
