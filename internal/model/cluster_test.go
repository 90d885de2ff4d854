package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClusterValidateRequiresEndpoints(t *testing.T) {
	c := &Cluster{Name: "c1"}
	err := c.Validate()
	require.Error(t, err)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "endpoints", ve.Field)
}

func TestClusterValidateRejectsBadEndpoint(t *testing.T) {
	c := &Cluster{Name: "c1", Configuration: ClusterConfiguration{Endpoints: []string{"not-a-host-port"}}}
	require.Error(t, c.Validate())
}

func TestClusterValidateMultipleHostnameEndpointsUseStrictDNS(t *testing.T) {
	c := &Cluster{
		Name: "c1",
		Configuration: ClusterConfiguration{
			Endpoints: []string{"a.example.com:80", "b.example.com:80"},
		},
	}
	require.NoError(t, c.Validate())
	require.Equal(t, DiscoveryStrictDNS, c.Configuration.DiscoveryType())
}

func TestClusterValidateRejectsMultipleLbPolicyConfigs(t *testing.T) {
	c := &Cluster{
		Name: "c1",
		Configuration: ClusterConfiguration{
			Endpoints:    []string{"10.0.0.1:80"},
			LeastRequest: &LeastRequestConfig{ChoiceCount: 2},
			RingHash:     &RingHashConfig{MinRingSize: 1, MaxRingSize: 2},
		},
	}
	err := c.Validate()
	require.Error(t, err)
}

func TestClusterDiscoveryTypeAllIPIsStatic(t *testing.T) {
	cfg := ClusterConfiguration{Endpoints: []string{"10.0.0.1:80", "10.0.0.2:80"}}
	require.Equal(t, DiscoveryStatic, cfg.DiscoveryType())
}

func TestClusterDiscoveryTypeSingleHostnameIsLogicalDNS(t *testing.T) {
	cfg := ClusterConfiguration{Endpoints: []string{"upstream.example.com:443"}}
	require.Equal(t, DiscoveryLogicalDNS, cfg.DiscoveryType())
}

func TestClusterRequiresUpstreamTLSOn443(t *testing.T) {
	cfg := ClusterConfiguration{Endpoints: []string{"upstream.example.com:443"}}
	require.True(t, cfg.RequiresUpstreamTLS())
}

func TestClusterSNIHostPrefersExplicitOverride(t *testing.T) {
	cfg := ClusterConfiguration{Endpoints: []string{"10.0.0.1:443"}, TLSServerName: "override.example.com"}
	require.Equal(t, "override.example.com", cfg.SNIHost())
}

func TestClusterResolvedLbPolicyDefaultsToRoundRobin(t *testing.T) {
	cfg := ClusterConfiguration{}
	policy, ok := cfg.ResolvedLbPolicy()
	require.True(t, ok)
	require.Equal(t, LbRoundRobin, policy)
}

func TestClusterResolvedLbPolicyFallsBackOnUnknown(t *testing.T) {
	cfg := ClusterConfiguration{LbPolicy: LbPolicyKind("not_a_policy")}
	policy, ok := cfg.ResolvedLbPolicy()
	require.False(t, ok)
	require.Equal(t, LbRoundRobin, policy)
}

func TestClusterValidateRejectsHealthCheckMissingBothKinds(t *testing.T) {
	c := &Cluster{
		Name: "c1",
		Configuration: ClusterConfiguration{
			Endpoints:    []string{"10.0.0.1:80"},
			HealthChecks: []HealthCheck{{}},
		},
	}
	require.Error(t, c.Validate())
}
