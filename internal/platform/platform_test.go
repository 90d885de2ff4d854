package platform

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/moonkev/flexds/internal/cache"
	"github.com/moonkev/flexds/internal/filterreg"
	"github.com/moonkev/flexds/internal/filters"
	"github.com/moonkev/flexds/internal/idgen"
	"github.com/moonkev/flexds/internal/model"
	"github.com/moonkev/flexds/internal/refresh"
	"github.com/moonkev/flexds/internal/repository"
	"github.com/moonkev/flexds/internal/repository/memory"
)

type noopNotifier struct{}

func (noopNotifier) NotifyVersionBump() {}

func newTestMaterializer() (*Materializer, *memory.Store, *cache.Cache) {
	store := memory.New()
	m := filters.New(store, filterreg.New())
	c := cache.New()
	orch := refresh.New(store, m, c, noopNotifier{})
	return New(store, orch), store, c
}

func basicSpec() Spec {
	return Spec{
		Team:   "payments",
		Domain: "payments.example.com",
		Routes: []model.ApiDefinitionRoute{{
			MatchType:       model.MatchPrefix,
			MatchValue:      "/users",
			UpstreamTargets: model.UpstreamTargets{Targets: []model.UpstreamTarget{{Endpoint: "10.0.0.2:80"}}},
		}},
	}
}

func TestCreateProvisionsClusterAndRunsRefresh(t *testing.T) {
	m, store, c := newTestMaterializer()
	ctx := context.Background()

	d, err := m.Create(ctx, basicSpec())
	require.NoError(t, err)
	require.NotEmpty(t, d.ID)
	require.Equal(t, 1, d.BootstrapRevision)
	require.NotEmpty(t, d.BootstrapURI)

	clusterName := d.ClusterNameForEndpoint("10.0.0.2:80")
	cl, err := store.GetClusterByName(ctx, clusterName)
	require.NoError(t, err)
	require.Equal(t, model.SourcePlatformAPI, cl.Source)

	require.Equal(t, 1, c.ResourceCount(cache.ClusterTypeURL))
	require.Equal(t, 1, c.ResourceCount(cache.RouteTypeURL))
}

func TestCreateRejectsDuplicateTeamDomain(t *testing.T) {
	m, _, _ := newTestMaterializer()
	ctx := context.Background()

	_, err := m.Create(ctx, basicSpec())
	require.NoError(t, err)

	_, err = m.Create(ctx, basicSpec())
	require.Error(t, err)
}

func TestCreateDedupesClustersAcrossRoutes(t *testing.T) {
	m, store, _ := newTestMaterializer()
	ctx := context.Background()

	spec := basicSpec()
	spec.Routes = append(spec.Routes, model.ApiDefinitionRoute{
		MatchType:       model.MatchPrefix,
		MatchValue:      "/orders",
		UpstreamTargets: model.UpstreamTargets{Targets: []model.UpstreamTarget{{Endpoint: "10.0.0.2:80"}}},
	})

	d, err := m.Create(ctx, spec)
	require.NoError(t, err)

	rows, err := store.ListClusters(ctx, repository.TeamFilter{Teams: []string{d.Team}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestCreateWithIsolationProvisionsListener(t *testing.T) {
	m, store, c := newTestMaterializer()
	ctx := context.Background()

	spec := basicSpec()
	spec.ListenerIsolation = true

	d, err := m.Create(ctx, spec)
	require.NoError(t, err)
	require.NotEmpty(t, d.IsolationListener)

	l, err := store.GetListenerByName(ctx, d.IsolationListener)
	require.NoError(t, err)
	require.Equal(t, model.SourcePlatformAPI, l.Source)
	require.Equal(t, d.SyntheticRouteConfigName(), l.Configuration.FilterChains[0].Filters[0].HCM.RouteConfigName)

	require.Equal(t, 1, c.ResourceCount(cache.ListenerTypeURL))
	require.Equal(t, 1, c.ResourceCount(cache.RouteTypeURL))
}

func TestCreateWithIsolationRejectsPortCollision(t *testing.T) {
	m, store, _ := newTestMaterializer()
	ctx := context.Background()

	spec := basicSpec()
	spec.ListenerIsolation = true

	hashedPort := idgen.PortFromDomain(spec.Domain)
	require.NoError(t, store.CreateListener(ctx, &model.Listener{
		Name: "occupying", Address: "0.0.0.0", Port: hashedPort,
	}))

	_, err := m.Create(ctx, spec)
	require.Error(t, err)
}

func TestUpdateCleansUpOrphanedCluster(t *testing.T) {
	m, store, _ := newTestMaterializer()
	ctx := context.Background()

	d, err := m.Create(ctx, basicSpec())
	require.NoError(t, err)

	oldClusterName := d.ClusterNameForEndpoint("10.0.0.2:80")

	updated := basicSpec()
	updated.Routes = []model.ApiDefinitionRoute{{
		MatchType:       model.MatchPrefix,
		MatchValue:      "/users",
		UpstreamTargets: model.UpstreamTargets{Targets: []model.UpstreamTarget{{Endpoint: "10.0.0.3:80"}}},
	}}

	_, err = m.Update(ctx, d.ID, updated)
	require.NoError(t, err)

	_, err = store.GetClusterByName(ctx, oldClusterName)
	require.Error(t, err)

	newClusterName := d.ClusterNameForEndpoint("10.0.0.3:80")
	_, err = store.GetClusterByName(ctx, newClusterName)
	require.NoError(t, err)
}

func TestDeleteRemovesDefinitionAndClusters(t *testing.T) {
	m, store, _ := newTestMaterializer()
	ctx := context.Background()

	d, err := m.Create(ctx, basicSpec())
	require.NoError(t, err)

	clusterName := d.ClusterNameForEndpoint("10.0.0.2:80")

	require.NoError(t, m.Delete(ctx, d.ID))

	_, err = store.GetApiDefinitionByID(ctx, d.ID)
	require.Error(t, err)
	_, err = store.GetClusterByName(ctx, clusterName)
	require.Error(t, err)
}
