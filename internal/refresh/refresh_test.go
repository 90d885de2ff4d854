package refresh

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/moonkev/flexds/internal/cache"
	"github.com/moonkev/flexds/internal/filterreg"
	"github.com/moonkev/flexds/internal/filters"
	"github.com/moonkev/flexds/internal/model"
	"github.com/moonkev/flexds/internal/repository/memory"
)

type countingNotifier struct{ n int }

func (c *countingNotifier) NotifyVersionBump() { c.n++ }

func newTestOrchestrator() (*Orchestrator, *memory.Store, *cache.Cache, *countingNotifier) {
	store := memory.New()
	m := filters.New(store, filterreg.New())
	c := cache.New()
	notifier := &countingNotifier{}
	return New(store, m, c, notifier), store, c, notifier
}

func TestRunCompilesClusterAndBumpsVersion(t *testing.T) {
	o, store, c, notifier := newTestOrchestrator()
	ctx := context.Background()

	require.NoError(t, store.CreateCluster(ctx, &model.Cluster{
		Name: "c1", ServiceName: "c1",
		Configuration: model.ClusterConfiguration{Endpoints: []string{"10.0.0.1:8080"}},
	}))

	require.NoError(t, o.Run(ctx))
	require.Equal(t, 1, c.ResourceCount(cache.ClusterTypeURL))
	require.Equal(t, 1, notifier.n)
}

func TestRunOrdersClustersBeforeListenersReferencingThem(t *testing.T) {
	o, store, c, _ := newTestOrchestrator()
	ctx := context.Background()

	require.NoError(t, store.CreateCluster(ctx, &model.Cluster{
		Name: "upstream", ServiceName: "upstream",
		Configuration: model.ClusterConfiguration{Endpoints: []string{"10.0.0.1:8080"}},
	}))
	require.NoError(t, store.CreateRouteConfig(ctx, &model.RouteConfig{
		Name: "rc1",
		VirtualHosts: []model.VirtualHost{{
			Name:    "vh1",
			Domains: []string{"*"},
			Routes: []model.Route{{
				Name: "r1", MatchType: model.MatchPrefix, PathPattern: "/",
				Action: model.RouteAction{Cluster: &model.ClusterAction{Name: "upstream"}},
			}},
		}},
	}))
	require.NoError(t, store.CreateListener(ctx, &model.Listener{
		Name: "l1", Address: "0.0.0.0", Port: 10200,
		Configuration: model.ListenerConfiguration{FilterChains: []model.FilterChain{{
			Filters: []model.ListenerFilter{{Name: "http", HCM: &model.HTTPConnectionManagerConfig{RouteConfigName: "rc1"}}},
		}}},
	}))

	require.NoError(t, o.Run(ctx))
	require.Equal(t, 1, c.ResourceCount(cache.ClusterTypeURL))
	require.Equal(t, 1, c.ResourceCount(cache.RouteTypeURL))
	require.Equal(t, 1, c.ResourceCount(cache.ListenerTypeURL))
}

func TestRunSynthesizesPlatformOverlayRouteConfigAdditively(t *testing.T) {
	o, store, c, _ := newTestOrchestrator()
	ctx := context.Background()

	require.NoError(t, store.CreateRouteConfig(ctx, &model.RouteConfig{
		Name: "native-rc",
		VirtualHosts: []model.VirtualHost{{
			Name: "vh", Domains: []string{"*"},
			Routes: []model.Route{{Name: "r", MatchType: model.MatchPrefix, PathPattern: "/", Action: model.RouteAction{Redirect: &model.RedirectAction{Host: "x", Code: model.RedirectFound}}}},
		}},
	}))
	require.NoError(t, store.CreateApiDefinition(ctx, &model.ApiDefinition{
		ID: "def-1", Team: "payments", Domain: "payments.example.com",
		Routes: []model.ApiDefinitionRoute{{
			MatchType: model.MatchPrefix, MatchValue: "/users",
			UpstreamTargets: model.UpstreamTargets{Targets: []model.UpstreamTarget{{Endpoint: "10.0.0.2:80"}}},
		}},
	}))

	require.NoError(t, o.Run(ctx))
	// native route config + one synthesised overlay route config
	require.Equal(t, 2, c.ResourceCount(cache.RouteTypeURL))
}

func TestRunAutoProvisionsJWKSClusterFromListenerFilters(t *testing.T) {
	o, store, c, _ := newTestOrchestrator()
	ctx := context.Background()

	require.NoError(t, store.CreateRouteConfig(ctx, &model.RouteConfig{
		Name: "rc1",
		VirtualHosts: []model.VirtualHost{{
			Name: "vh", Domains: []string{"*"},
			Routes: []model.Route{{Name: "r", MatchType: model.MatchPrefix, PathPattern: "/", Action: model.RouteAction{Redirect: &model.RedirectAction{Host: "x", Code: model.RedirectFound}}}},
		}},
	}))
	l := &model.Listener{
		Name: "l1", Address: "0.0.0.0", Port: 10300,
		Configuration: model.ListenerConfiguration{FilterChains: []model.FilterChain{{
			Filters: []model.ListenerFilter{{Name: "http", HCM: &model.HTTPConnectionManagerConfig{
				RouteConfigName: "rc1",
				HTTPFilters:     []model.HTTPFilterRef{{Name: "jwt", Type: "jwt_auth"}},
			}}},
		}}},
	}
	require.NoError(t, store.CreateListener(ctx, l))
	require.NoError(t, store.CreateFilterRow(ctx, &model.FilterRow{
		Name: "jwt-row", FilterType: "jwt_auth",
		Attachments: []model.FilterAttachment{{Point: model.AttachListener, ResourceID: l.ID}},
		Configuration: map[string]interface{}{
			"providers": map[string]interface{}{
				"idp": map[string]interface{}{
					"issuer": "https://idp.example.com",
					"remote": map[string]interface{}{
						"uri":     "https://idp.example.com/.well-known/jwks.json",
						"cluster": "idp-jwks",
					},
				},
			},
		},
	}))

	require.NoError(t, o.Run(ctx))

	jwks, err := store.GetClusterByName(ctx, "idp-jwks")
	require.NoError(t, err)
	require.Equal(t, []string{"idp.example.com:443"}, jwks.Configuration.Endpoints)
	require.Equal(t, 1, c.ResourceCount(cache.ListenerTypeURL))
}

func TestRunCoalescesConcurrentCallersIntoOneExtraRun(t *testing.T) {
	o, _, _, notifier := newTestOrchestrator()
	ctx := context.Background()

	done := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() { done <- o.Run(ctx) }()
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, <-done)
	}
	// every goroutine's Run returned without error; the notifier fires twice
	// when two callers join the first run and share one extra run, up to
	// three times (no contention at all), but never more than the call count.
	require.LessOrEqual(t, notifier.n, 3)
	require.GreaterOrEqual(t, notifier.n, 1)
}
