package compiler

import (
	"testing"

	clusterpb "github.com/envoyproxy/go-control-plane/envoy/config/cluster/v3"
	listenerpb "github.com/envoyproxy/go-control-plane/envoy/config/listener/v3"
	routepb "github.com/envoyproxy/go-control-plane/envoy/config/route/v3"
	hcm "github.com/envoyproxy/go-control-plane/envoy/extensions/filters/network/http_connection_manager/v3"
	"github.com/stretchr/testify/require"

	"github.com/moonkev/flexds/internal/model"
)

func TestCompileClusterPreservesNameAndEndpointCount(t *testing.T) {
	c := &model.Cluster{
		Name: "payments",
		Configuration: model.ClusterConfiguration{
			Endpoints: []string{"10.0.0.1:8080", "10.0.0.2:8080", "10.0.0.3:8080"},
		},
	}
	res, err := CompileCluster(c)
	require.NoError(t, err)
	require.Equal(t, "payments", res.Name)

	var cl clusterpb.Cluster
	require.NoError(t, res.Any.UnmarshalTo(&cl))
	require.Equal(t, "payments", cl.Name)
	require.Len(t, cl.LoadAssignment.Endpoints[0].LbEndpoints, 3)
	require.Equal(t, clusterpb.Cluster_STATIC, cl.GetType())
}

func TestCompileClusterAllIPGetsStatic(t *testing.T) {
	c := &model.Cluster{
		Name: "internal-svc",
		Configuration: model.ClusterConfiguration{
			Endpoints: []string{"10.0.0.1:9000", "10.0.0.2:9000"},
		},
	}
	res, err := CompileCluster(c)
	require.NoError(t, err)
	var cl clusterpb.Cluster
	require.NoError(t, res.Any.UnmarshalTo(&cl))
	require.Equal(t, clusterpb.Cluster_STATIC, cl.GetType())
}

func TestCompileRouteConfigPreservesVirtualHostSet(t *testing.T) {
	rc := &model.RouteConfig{
		Name: "local_route",
		VirtualHosts: []model.VirtualHost{
			{
				Name:    "default",
				Domains: []string{"*"},
				Routes: []model.Route{
					{
						Name:        "root",
						PathPattern: "/",
						MatchType:   model.MatchPrefix,
						Action:      model.RouteAction{Cluster: &model.ClusterAction{Name: "payments"}},
					},
				},
			},
		},
	}
	res, err := CompileRouteConfig(rc, nil)
	require.NoError(t, err)

	var out routepb.RouteConfiguration
	require.NoError(t, res.Any.UnmarshalTo(&out))
	require.Len(t, out.VirtualHosts, 1)
	require.Equal(t, "default", out.VirtualHosts[0].Name)
	require.Len(t, out.VirtualHosts[0].Routes, 1)
}

func TestCompileListenerAlwaysAppendsRouterLast(t *testing.T) {
	l := &model.Listener{
		Name:    "ingress",
		Address: "0.0.0.0",
		Port:    10000,
		Configuration: model.ListenerConfiguration{
			FilterChains: []model.FilterChain{{
				Filters: []model.ListenerFilter{{
					Name: "http",
					HCM: &model.HTTPConnectionManagerConfig{
						RouteConfigName: "local_route",
						HTTPFilters: []model.HTTPFilterRef{
							{Name: "cors", Type: "cors"},
						},
					},
				}},
			}},
		},
	}
	built := func(ref model.HTTPFilterRef) (*hcm.HttpFilter, error) {
		return &hcm.HttpFilter{Name: "envoy.filters.http." + ref.Type}, nil
	}
	res, err := CompileListener(l, nil, built)
	require.NoError(t, err)

	var out listenerpb.Listener
	require.NoError(t, res.Any.UnmarshalTo(&out))

	var hcmOut hcm.HttpConnectionManager
	require.NoError(t, out.FilterChains[0].Filters[0].GetTypedConfig().UnmarshalTo(&hcmOut))
	require.Len(t, hcmOut.HttpFilters, 2)
	require.Equal(t, "envoy.filters.http.cors", hcmOut.HttpFilters[0].Name)
	require.Equal(t, "envoy.filters.http.router", hcmOut.HttpFilters[len(hcmOut.HttpFilters)-1].Name)
}
