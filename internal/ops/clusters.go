package ops

import (
	"context"

	"github.com/moonkev/flexds/internal/authctx"
	"github.com/moonkev/flexds/internal/authz"
	"github.com/moonkev/flexds/internal/model"
)

const resourceCluster = "cluster"

// CreateCluster authorizes, validates, persists, and refreshes for a new
// cluster.
func (f *Facade) CreateCluster(ctx context.Context, actx *authctx.Context, c *model.Cluster) (*model.Cluster, *Error) {
	if err := authorizeWrite(actx, resourceCluster, c.Team); err != nil {
		return nil, err
	}
	if err := validate(c); err != nil {
		return nil, err
	}
	if rerr := f.repo.CreateCluster(ctx, c); rerr != nil {
		return nil, translateRepositoryError(resourceCluster, c.Name, rerr)
	}
	if err := runRefresh(ctx, f.refresher, "create cluster"); err != nil {
		return nil, err
	}
	return c, nil
}

// GetCluster returns the cluster by id, or NotFound for a cross-tenant or
// absent id.
func (f *Facade) GetCluster(ctx context.Context, actx *authctx.Context, id string) (*model.Cluster, *Error) {
	c, rerr := f.repo.GetClusterByID(ctx, id)
	if rerr != nil {
		return nil, translateRepositoryError(resourceCluster, id, rerr)
	}
	if err := authorizeRead(actx, resourceCluster, resourceCluster, id, c.Team); err != nil {
		return nil, err
	}
	return c, nil
}

// ListClusters returns every cluster visible to actx, restricted to its
// resolved teams unless it holds a team-agnostic or admin scope.
func (f *Facade) ListClusters(ctx context.Context, actx *authctx.Context) ([]*model.Cluster, *Error) {
	filter, skip := resolveListFilter(actx, resourceCluster, authz.ActionRead)
	if skip {
		return nil, nil
	}
	rows, rerr := f.repo.ListClusters(ctx, filter)
	if rerr != nil {
		return nil, internal("list clusters", rerr)
	}
	return rows, nil
}

// UpdateCluster authorizes (read-visibility, then write), validates,
// persists, and refreshes.
func (f *Facade) UpdateCluster(ctx context.Context, actx *authctx.Context, c *model.Cluster) (*model.Cluster, *Error) {
	existing, rerr := f.repo.GetClusterByID(ctx, c.ID)
	if rerr != nil {
		return nil, translateRepositoryError(resourceCluster, c.ID, rerr)
	}
	if err := authorizeRead(actx, resourceCluster, resourceCluster, c.ID, existing.Team); err != nil {
		return nil, err
	}
	if err := authorizeWrite(actx, resourceCluster, existing.Team); err != nil {
		return nil, err
	}
	if err := validate(c); err != nil {
		return nil, err
	}
	if rerr := f.repo.UpdateCluster(ctx, c); rerr != nil {
		return nil, translateRepositoryError(resourceCluster, c.Name, rerr)
	}
	if err := runRefresh(ctx, f.refresher, "update cluster"); err != nil {
		return nil, err
	}
	return c, nil
}

// DeleteCluster authorizes (read-visibility, then write), deletes, and
// refreshes.
func (f *Facade) DeleteCluster(ctx context.Context, actx *authctx.Context, id string) *Error {
	existing, rerr := f.repo.GetClusterByID(ctx, id)
	if rerr != nil {
		return translateRepositoryError(resourceCluster, id, rerr)
	}
	if err := authorizeRead(actx, resourceCluster, resourceCluster, id, existing.Team); err != nil {
		return err
	}
	if err := authorizeWrite(actx, resourceCluster, existing.Team); err != nil {
		return err
	}
	if rerr := f.repo.DeleteCluster(ctx, id); rerr != nil {
		return translateRepositoryError(resourceCluster, id, rerr)
	}
	return runRefresh(ctx, f.refresher, "delete cluster")
}
