package ops

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/moonkev/flexds/internal/authctx"
	"github.com/moonkev/flexds/internal/model"
	"github.com/moonkev/flexds/internal/repository/memory"
)

type noopRefresher struct{ calls int }

func (r *noopRefresher) Run(ctx context.Context) error {
	r.calls++
	return nil
}

type failingRefresher struct{ err error }

func (r *failingRefresher) Run(ctx context.Context) error { return r.err }

func newTestFacade() (*Facade, *memory.Store, *noopRefresher) {
	store := memory.New()
	refresher := &noopRefresher{}
	return New(store, refresher, "default-gateway"), store, refresher
}

func adminCtx() *authctx.Context {
	return &authctx.Context{Subject: "root", Scopes: []string{"admin:all"}}
}

func teamCtx(team string, action string) *authctx.Context {
	return &authctx.Context{Subject: "u1", Scopes: []string{"team:" + team + ":cluster:" + action, "team:" + team + ":listener:" + action, "team:" + team + ":secret:" + action, "team:" + team + ":filter:" + action}}
}

func TestCreateClusterTriggersRefresh(t *testing.T) {
	f, _, refresher := newTestFacade()
	_, err := f.CreateCluster(context.Background(), adminCtx(), &model.Cluster{
		Name: "c1", ServiceName: "c1",
		Configuration: model.ClusterConfiguration{Endpoints: []string{"10.0.0.1:8080"}},
	})
	require.Nil(t, err)
	require.Equal(t, 1, refresher.calls)
}

func TestCreateClusterRejectsWithoutWriteScope(t *testing.T) {
	f, _, _ := newTestFacade()
	ctx := &authctx.Context{Scopes: []string{"team:payments:cluster:read"}}
	_, err := f.CreateCluster(context.Background(), ctx, &model.Cluster{
		Name: "c1", Team: "payments", ServiceName: "c1",
		Configuration: model.ClusterConfiguration{Endpoints: []string{"10.0.0.1:8080"}},
	})
	require.NotNil(t, err)
	require.Equal(t, KindForbidden, err.Kind)
}

func TestCreateClusterRejectsInvalidModel(t *testing.T) {
	f, _, _ := newTestFacade()
	_, err := f.CreateCluster(context.Background(), adminCtx(), &model.Cluster{Name: "bad"})
	require.NotNil(t, err)
	require.Equal(t, KindValidation, err.Kind)
}

func TestGetClusterCrossTenantReturnsNotFound(t *testing.T) {
	f, store, _ := newTestFacade()
	require.NoError(t, store.CreateCluster(context.Background(), &model.Cluster{
		Name: "c1", Team: "payments", ServiceName: "c1",
		Configuration: model.ClusterConfiguration{Endpoints: []string{"10.0.0.1:8080"}},
	}))
	c, getErr := store.GetClusterByName(context.Background(), "c1")
	require.NoError(t, getErr)

	outsider := teamCtx("checkout", "read")
	_, err := f.GetCluster(context.Background(), outsider, c.ID)
	require.NotNil(t, err)
	require.Equal(t, KindNotFound, err.Kind)
}

func TestDeleteListenerProtectsDefaultGateway(t *testing.T) {
	f, store, _ := newTestFacade()
	l := &model.Listener{Name: "default-gateway", Address: "0.0.0.0", Port: 10500}
	require.NoError(t, store.CreateListener(context.Background(), l))

	err := f.DeleteListener(context.Background(), adminCtx(), l.ID)
	require.NotNil(t, err)
	require.Equal(t, KindForbidden, err.Kind)
}

func TestDeleteListenerAllowsNonDefaultListener(t *testing.T) {
	f, store, _ := newTestFacade()
	l := &model.Listener{Name: "edge", Address: "0.0.0.0", Port: 10600}
	require.NoError(t, store.CreateListener(context.Background(), l))

	err := f.DeleteListener(context.Background(), adminCtx(), l.ID)
	require.Nil(t, err)
}

func TestListClustersWithNoTeamScopeReturnsEmpty(t *testing.T) {
	f, store, _ := newTestFacade()
	require.NoError(t, store.CreateCluster(context.Background(), &model.Cluster{
		Name: "c1", Team: "payments", ServiceName: "c1",
		Configuration: model.ClusterConfiguration{Endpoints: []string{"10.0.0.1:8080"}},
	}))
	noTeams := &authctx.Context{Scopes: []string{"org:acme:member"}}
	rows, err := f.ListClusters(context.Background(), noTeams)
	require.Nil(t, err)
	require.Empty(t, rows)
}

func TestCreateClusterAlreadyExistsTranslates(t *testing.T) {
	f, store, _ := newTestFacade()
	require.NoError(t, store.CreateCluster(context.Background(), &model.Cluster{
		Name: "dup", ServiceName: "dup",
		Configuration: model.ClusterConfiguration{Endpoints: []string{"10.0.0.1:8080"}},
	}))
	_, err := f.CreateCluster(context.Background(), adminCtx(), &model.Cluster{
		Name: "dup", ServiceName: "dup",
		Configuration: model.ClusterConfiguration{Endpoints: []string{"10.0.0.2:8080"}},
	})
	require.NotNil(t, err)
	require.Equal(t, KindAlreadyExists, err.Kind)
}

func TestRefreshDeadlineExceededSurfacesServiceUnavailable(t *testing.T) {
	store := memory.New()
	f := New(store, &failingRefresher{err: context.DeadlineExceeded}, "")
	_, err := f.CreateCluster(context.Background(), adminCtx(), &model.Cluster{
		Name: "c1", ServiceName: "c1",
		Configuration: model.ClusterConfiguration{Endpoints: []string{"10.0.0.1:8080"}},
	})
	require.NotNil(t, err)
	require.Equal(t, KindServiceUnavailable, err.Kind)
}

func TestRefreshOtherFailureIsToleratedAsSelfHealing(t *testing.T) {
	store := memory.New()
	f := New(store, &failingRefresher{err: errors.New("transient compile error")}, "")
	c, err := f.CreateCluster(context.Background(), adminCtx(), &model.Cluster{
		Name: "c1", ServiceName: "c1",
		Configuration: model.ClusterConfiguration{Endpoints: []string{"10.0.0.1:8080"}},
	})
	require.Nil(t, err)
	require.NotNil(t, c)
}

func TestCreateListenerAddressPortConflict(t *testing.T) {
	f, store, _ := newTestFacade()
	require.NoError(t, store.CreateListener(context.Background(), &model.Listener{
		Name: "l1", Address: "0.0.0.0", Port: 10700,
	}))
	_, err := f.CreateListener(context.Background(), adminCtx(), &model.Listener{
		Name: "l2", Address: "0.0.0.0", Port: 10700,
	})
	require.NotNil(t, err)
	require.Equal(t, KindConflict, err.Kind)
}

func TestCreateListenerRejectsReservedPort(t *testing.T) {
	f, _, _ := newTestFacade()
	f.SetReservedPorts([]uint32{18000})
	_, err := f.CreateListener(context.Background(), adminCtx(), &model.Listener{
		Name: "l1", Address: "0.0.0.0", Port: 18000,
	})
	require.NotNil(t, err)
	require.Equal(t, KindConflict, err.Kind)

	_, err = f.CreateListener(context.Background(), adminCtx(), &model.Listener{
		Name: "l2", Address: "0.0.0.0", Port: 18001,
	})
	require.Nil(t, err)
}

func TestUpdateListenerRejectsReservedPort(t *testing.T) {
	f, store, _ := newTestFacade()
	require.NoError(t, store.CreateListener(context.Background(), &model.Listener{
		ID: "l1", Name: "l1", Address: "0.0.0.0", Port: 10700,
	}))
	f.SetReservedPorts([]uint32{18000})
	_, err := f.UpdateListener(context.Background(), adminCtx(), &model.Listener{
		ID: "l1", Name: "l1", Address: "0.0.0.0", Port: 18000,
	})
	require.NotNil(t, err)
	require.Equal(t, KindConflict, err.Kind)
}
