package filterreg

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/moonkev/flexds/internal/model"
)

func TestNewRegistryKnowsAllBuiltinFilters(t *testing.T) {
	r := New()
	for _, name := range []string{
		"ext_authz", "compressor", "cors", "header_mutation", "local_rate_limit",
		"custom_response", "mcp", "rbac", "oauth2", "wasm", "jwt_auth",
	} {
		_, ok := r.Lookup(name)
		require.Truef(t, ok, "expected built-in schema for %q", name)
	}
	_, ok := r.Lookup("not_a_real_filter")
	require.False(t, ok)
}

func TestCORSAllowsRouteAttachment(t *testing.T) {
	r := New()
	schema, ok := r.Lookup("cors")
	require.True(t, ok)
	require.True(t, schema.AllowsAttachment(model.AttachRoute))
	require.False(t, schema.AllowsAttachment(model.AttachCluster))
}

func TestRegisterOverridesBuiltin(t *testing.T) {
	r := New()
	r.Register(Schema{FilterType: "cors", EnvoyFilterName: "envoy.filters.http.cors.v2"})
	schema, ok := r.Lookup("cors")
	require.True(t, ok)
	require.Equal(t, "envoy.filters.http.cors.v2", schema.EnvoyFilterName)
}
