package ops

import (
	"context"

	"github.com/moonkev/flexds/internal/authctx"
	"github.com/moonkev/flexds/internal/authz"
	"github.com/moonkev/flexds/internal/model"
)

const resourceSecret = "secret"

func (f *Facade) CreateSecret(ctx context.Context, actx *authctx.Context, s *model.Secret) (*model.Secret, *Error) {
	if err := authorizeWrite(actx, resourceSecret, s.Team); err != nil {
		return nil, err
	}
	if err := validate(s); err != nil {
		return nil, err
	}
	if rerr := f.repo.CreateSecret(ctx, s); rerr != nil {
		return nil, translateRepositoryError(resourceSecret, s.Name, rerr)
	}
	if err := runRefresh(ctx, f.refresher, "create secret"); err != nil {
		return nil, err
	}
	return s, nil
}

func (f *Facade) GetSecret(ctx context.Context, actx *authctx.Context, id string) (*model.Secret, *Error) {
	s, rerr := f.repo.GetSecretByID(ctx, id)
	if rerr != nil {
		return nil, translateRepositoryError(resourceSecret, id, rerr)
	}
	if err := authorizeRead(actx, resourceSecret, resourceSecret, id, s.Team); err != nil {
		return nil, err
	}
	return s, nil
}

func (f *Facade) ListSecrets(ctx context.Context, actx *authctx.Context) ([]*model.Secret, *Error) {
	filter, skip := resolveListFilter(actx, resourceSecret, authz.ActionRead)
	if skip {
		return nil, nil
	}
	rows, rerr := f.repo.ListSecrets(ctx, filter)
	if rerr != nil {
		return nil, internal("list secrets", rerr)
	}
	return rows, nil
}

func (f *Facade) UpdateSecret(ctx context.Context, actx *authctx.Context, s *model.Secret) (*model.Secret, *Error) {
	existing, rerr := f.repo.GetSecretByID(ctx, s.ID)
	if rerr != nil {
		return nil, translateRepositoryError(resourceSecret, s.ID, rerr)
	}
	if err := authorizeRead(actx, resourceSecret, resourceSecret, s.ID, existing.Team); err != nil {
		return nil, err
	}
	if err := authorizeWrite(actx, resourceSecret, existing.Team); err != nil {
		return nil, err
	}
	if err := validate(s); err != nil {
		return nil, err
	}
	if rerr := f.repo.UpdateSecret(ctx, s); rerr != nil {
		return nil, translateRepositoryError(resourceSecret, s.Name, rerr)
	}
	if err := runRefresh(ctx, f.refresher, "update secret"); err != nil {
		return nil, err
	}
	return s, nil
}

func (f *Facade) DeleteSecret(ctx context.Context, actx *authctx.Context, id string) *Error {
	existing, rerr := f.repo.GetSecretByID(ctx, id)
	if rerr != nil {
		return translateRepositoryError(resourceSecret, id, rerr)
	}
	if err := authorizeRead(actx, resourceSecret, resourceSecret, id, existing.Team); err != nil {
		return err
	}
	if err := authorizeWrite(actx, resourceSecret, existing.Team); err != nil {
		return err
	}
	if rerr := f.repo.DeleteSecret(ctx, id); rerr != nil {
		return translateRepositoryError(resourceSecret, id, rerr)
	}
	return runRefresh(ctx, f.refresher, "delete secret")
}
