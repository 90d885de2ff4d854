package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestListenerValidateRequiresAddressAndPort(t *testing.T) {
	l := &Listener{Name: "l1"}
	require.Error(t, l.Validate())

	l = &Listener{Name: "l1", Address: "0.0.0.0", Port: 70000}
	require.Error(t, l.Validate())
}

func TestFilterChainValidateRejectsTwoHCMs(t *testing.T) {
	fc := &FilterChain{
		Filters: []ListenerFilter{
			{Name: "f1", HCM: &HTTPConnectionManagerConfig{RouteConfigName: "rc1"}},
			{Name: "f2", HCM: &HTTPConnectionManagerConfig{RouteConfigName: "rc2"}},
		},
	}
	require.Error(t, fc.Validate())
}

func TestListenerFilterValidateRequiresExactlyOneOfHCMOrTCP(t *testing.T) {
	f := &ListenerFilter{Name: "f1"}
	require.Error(t, f.Validate())

	f = &ListenerFilter{
		Name: "f1",
		HCM:  &HTTPConnectionManagerConfig{RouteConfigName: "rc1"},
		TCP:  &TCPProxyConfig{Cluster: "c1"},
	}
	require.Error(t, f.Validate())
}

func TestHCMValidateRequiresExactlyOneRouteSource(t *testing.T) {
	f := &ListenerFilter{Name: "f1", HCM: &HTTPConnectionManagerConfig{}}
	require.Error(t, f.Validate())

	f = &ListenerFilter{
		Name: "f1",
		HCM: &HTTPConnectionManagerConfig{
			RouteConfigName:   "rc1",
			InlineRouteConfig: &RouteConfig{Name: "inline"},
		},
	}
	require.Error(t, f.Validate())
}

func TestTCPProxyValidateRequiresCluster(t *testing.T) {
	f := &ListenerFilter{Name: "f1", TCP: &TCPProxyConfig{}}
	require.Error(t, f.Validate())
}

func TestListenerRouteConfigRefsDeduplicates(t *testing.T) {
	l := &Listener{
		Name: "l1", Address: "0.0.0.0", Port: 10500,
		Configuration: ListenerConfiguration{
			FilterChains: []FilterChain{
				{Filters: []ListenerFilter{{Name: "f1", HCM: &HTTPConnectionManagerConfig{RouteConfigName: "rc1"}}}},
				{Filters: []ListenerFilter{{Name: "f2", HCM: &HTTPConnectionManagerConfig{RouteConfigName: "rc1"}}}},
			},
		},
	}
	require.Equal(t, []string{"rc1"}, l.RouteConfigRefs())
}

func TestListenerClusterRefsFromTCPProxy(t *testing.T) {
	l := &Listener{
		Name: "l1", Address: "0.0.0.0", Port: 10500,
		Configuration: ListenerConfiguration{
			FilterChains: []FilterChain{
				{Filters: []ListenerFilter{{Name: "tcp", TCP: &TCPProxyConfig{Cluster: "backend"}}}},
			},
		},
	}
	require.Equal(t, []string{"backend"}, l.ClusterRefs())
}
