package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRouteValidateRequiresExactlyOneActionKind(t *testing.T) {
	r := &Route{MatchType: MatchPrefix, PathPattern: "/"}
	require.Error(t, r.Validate())

	r.Action = RouteAction{
		Cluster:  &ClusterAction{Name: "c1"},
		Redirect: &RedirectAction{Host: "x", Code: RedirectFound},
	}
	require.Error(t, r.Validate())
}

func TestRouteValidateRejectsEmptyWeightedClusters(t *testing.T) {
	r := &Route{
		MatchType: MatchPrefix, PathPattern: "/",
		Action: RouteAction{WeightedClusters: &WeightedClustersAction{}},
	}
	require.Error(t, r.Validate())
}

func TestRouteValidateRejectsUnsupportedRedirectCode(t *testing.T) {
	r := &Route{
		MatchType: MatchPrefix, PathPattern: "/",
		Action: RouteAction{Redirect: &RedirectAction{Host: "x", Code: RedirectCode(599)}},
	}
	require.Error(t, r.Validate())
}

func TestRouteAutoNameFallsBackToMatchShape(t *testing.T) {
	r := &Route{MatchType: MatchPrefix, PathPattern: "/users"}
	require.Equal(t, "Prefix-/users", r.AutoName())
}

func TestVirtualHostValidateRejectsDuplicateRouteNames(t *testing.T) {
	vh := &VirtualHost{
		Name: "vh1", Domains: []string{"*"},
		Routes: []Route{
			{Name: "r1", MatchType: MatchPrefix, PathPattern: "/a", Action: RouteAction{Cluster: &ClusterAction{Name: "c1"}}},
			{Name: "r1", MatchType: MatchPrefix, PathPattern: "/b", Action: RouteAction{Cluster: &ClusterAction{Name: "c1"}}},
		},
	}
	require.Error(t, vh.Validate())
}

func TestRouteConfigValidateRejectsDuplicateVirtualHostNames(t *testing.T) {
	rc := &RouteConfig{
		Name: "rc1",
		VirtualHosts: []VirtualHost{
			{Name: "vh1", Domains: []string{"a.example.com"}},
			{Name: "vh1", Domains: []string{"b.example.com"}},
		},
	}
	require.Error(t, rc.Validate())
}

func TestRouteConfigValidateAcceptsWellFormedConfig(t *testing.T) {
	rc := &RouteConfig{
		Name: "rc1",
		VirtualHosts: []VirtualHost{{
			Name: "vh1", Domains: []string{"*"},
			Routes: []Route{{
				Name: "r1", MatchType: MatchPrefix, PathPattern: "/",
				Action: RouteAction{Cluster: &ClusterAction{Name: "c1"}},
			}},
		}},
	}
	require.NoError(t, rc.Validate())
}
