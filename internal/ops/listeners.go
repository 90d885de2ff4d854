package ops

import (
	"context"
	"fmt"

	"github.com/moonkev/flexds/internal/authctx"
	"github.com/moonkev/flexds/internal/authz"
	"github.com/moonkev/flexds/internal/model"
)

const resourceListener = "listener"

func (f *Facade) CreateListener(ctx context.Context, actx *authctx.Context, l *model.Listener) (*model.Listener, *Error) {
	if err := authorizeWrite(actx, resourceListener, l.Team); err != nil {
		return nil, err
	}
	if err := validate(l); err != nil {
		return nil, err
	}
	if err := f.checkReservedPort(l.Port); err != nil {
		return nil, err
	}
	if existing, rerr := f.repo.FindListenerByAddressPort(ctx, l.Address, l.Port); rerr == nil && existing.Name != l.Name {
		return nil, conflict(fmt.Sprintf("address %s:%d is already bound by listener %q", l.Address, l.Port, existing.Name))
	}
	if rerr := f.repo.CreateListener(ctx, l); rerr != nil {
		return nil, translateRepositoryError(resourceListener, l.Name, rerr)
	}
	if err := runRefresh(ctx, f.refresher, "create listener"); err != nil {
		return nil, err
	}
	return l, nil
}

func (f *Facade) GetListener(ctx context.Context, actx *authctx.Context, id string) (*model.Listener, *Error) {
	l, rerr := f.repo.GetListenerByID(ctx, id)
	if rerr != nil {
		return nil, translateRepositoryError(resourceListener, id, rerr)
	}
	if err := authorizeRead(actx, resourceListener, resourceListener, id, l.Team); err != nil {
		return nil, err
	}
	return l, nil
}

func (f *Facade) ListListeners(ctx context.Context, actx *authctx.Context) ([]*model.Listener, *Error) {
	filter, skip := resolveListFilter(actx, resourceListener, authz.ActionRead)
	if skip {
		return nil, nil
	}
	rows, rerr := f.repo.ListListeners(ctx, filter)
	if rerr != nil {
		return nil, internal("list listeners", rerr)
	}
	return rows, nil
}

func (f *Facade) UpdateListener(ctx context.Context, actx *authctx.Context, l *model.Listener) (*model.Listener, *Error) {
	existing, rerr := f.repo.GetListenerByID(ctx, l.ID)
	if rerr != nil {
		return nil, translateRepositoryError(resourceListener, l.ID, rerr)
	}
	if err := authorizeRead(actx, resourceListener, resourceListener, l.ID, existing.Team); err != nil {
		return nil, err
	}
	if err := authorizeWrite(actx, resourceListener, existing.Team); err != nil {
		return nil, err
	}
	if err := validate(l); err != nil {
		return nil, err
	}
	if err := f.checkReservedPort(l.Port); err != nil {
		return nil, err
	}
	if rerr := f.repo.UpdateListener(ctx, l); rerr != nil {
		return nil, translateRepositoryError(resourceListener, l.Name, rerr)
	}
	if err := runRefresh(ctx, f.refresher, "update listener"); err != nil {
		return nil, err
	}
	return l, nil
}

// DeleteListener refuses to delete the configured default gateway listener
// (§4.G step 5), regardless of caller scope.
func (f *Facade) DeleteListener(ctx context.Context, actx *authctx.Context, id string) *Error {
	existing, rerr := f.repo.GetListenerByID(ctx, id)
	if rerr != nil {
		return translateRepositoryError(resourceListener, id, rerr)
	}
	if err := authorizeRead(actx, resourceListener, resourceListener, id, existing.Team); err != nil {
		return err
	}
	if f.defaultGatewayListenerName != "" && existing.Name == f.defaultGatewayListenerName {
		return forbidden(fmt.Sprintf("listener %q is the default gateway listener and cannot be deleted", existing.Name))
	}
	if err := authorizeWrite(actx, resourceListener, existing.Team); err != nil {
		return err
	}
	if rerr := f.repo.DeleteListener(ctx, id); rerr != nil {
		return translateRepositoryError(resourceListener, id, rerr)
	}
	return runRefresh(ctx, f.refresher, "delete listener")
}
