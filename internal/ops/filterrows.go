package ops

import (
	"context"

	"github.com/moonkev/flexds/internal/authctx"
	"github.com/moonkev/flexds/internal/authz"
	"github.com/moonkev/flexds/internal/model"
)

const resourceFilterRow = "filter"

func (f *Facade) CreateFilterRow(ctx context.Context, actx *authctx.Context, row *model.FilterRow) (*model.FilterRow, *Error) {
	if err := authorizeWrite(actx, resourceFilterRow, row.Team); err != nil {
		return nil, err
	}
	if err := validate(row); err != nil {
		return nil, err
	}
	if rerr := f.repo.CreateFilterRow(ctx, row); rerr != nil {
		return nil, translateRepositoryError(resourceFilterRow, row.Name, rerr)
	}
	if err := runRefresh(ctx, f.refresher, "create filter row"); err != nil {
		return nil, err
	}
	return row, nil
}

func (f *Facade) GetFilterRow(ctx context.Context, actx *authctx.Context, id string) (*model.FilterRow, *Error) {
	row, rerr := f.repo.GetFilterRowByID(ctx, id)
	if rerr != nil {
		return nil, translateRepositoryError(resourceFilterRow, id, rerr)
	}
	if err := authorizeRead(actx, resourceFilterRow, resourceFilterRow, id, row.Team); err != nil {
		return nil, err
	}
	return row, nil
}

func (f *Facade) ListFilterRows(ctx context.Context, actx *authctx.Context) ([]*model.FilterRow, *Error) {
	filter, skip := resolveListFilter(actx, resourceFilterRow, authz.ActionRead)
	if skip {
		return nil, nil
	}
	rows, rerr := f.repo.ListFilterRows(ctx, filter)
	if rerr != nil {
		return nil, internal("list filter rows", rerr)
	}
	return rows, nil
}

func (f *Facade) UpdateFilterRow(ctx context.Context, actx *authctx.Context, row *model.FilterRow) (*model.FilterRow, *Error) {
	existing, rerr := f.repo.GetFilterRowByID(ctx, row.ID)
	if rerr != nil {
		return nil, translateRepositoryError(resourceFilterRow, row.ID, rerr)
	}
	if err := authorizeRead(actx, resourceFilterRow, resourceFilterRow, row.ID, existing.Team); err != nil {
		return nil, err
	}
	if err := authorizeWrite(actx, resourceFilterRow, existing.Team); err != nil {
		return nil, err
	}
	if err := validate(row); err != nil {
		return nil, err
	}
	if rerr := f.repo.UpdateFilterRow(ctx, row); rerr != nil {
		return nil, translateRepositoryError(resourceFilterRow, row.Name, rerr)
	}
	if err := runRefresh(ctx, f.refresher, "update filter row"); err != nil {
		return nil, err
	}
	return row, nil
}

func (f *Facade) DeleteFilterRow(ctx context.Context, actx *authctx.Context, id string) *Error {
	existing, rerr := f.repo.GetFilterRowByID(ctx, id)
	if rerr != nil {
		return translateRepositoryError(resourceFilterRow, id, rerr)
	}
	if err := authorizeRead(actx, resourceFilterRow, resourceFilterRow, id, existing.Team); err != nil {
		return err
	}
	if err := authorizeWrite(actx, resourceFilterRow, existing.Team); err != nil {
		return err
	}
	if rerr := f.repo.DeleteFilterRow(ctx, id); rerr != nil {
		return translateRepositoryError(resourceFilterRow, id, rerr)
	}
	return runRefresh(ctx, f.refresher, "delete filter row")
}
