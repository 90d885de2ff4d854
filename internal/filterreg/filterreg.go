// Package filterreg is the registry of known HTTP filter schemas consumed
// by the resource model and the filter materializer.
package filterreg

import "github.com/moonkev/flexds/internal/model"

// PerRouteBehavior restates model.PerRouteBehavior for registry entries so
// callers outside internal/model don't need to import it just to read a
// schema's behavior.
type PerRouteBehavior = model.PerRouteBehavior

// Schema describes one known filter type: where it may attach, whether it
// needs a listener-level HCM entry at all, how it behaves as a per-route
// override, and the envoy HTTP filter name used in the HCM filter chain.
type Schema struct {
	FilterType             string
	EnvoyFilterName        string
	AttachmentPoints        []model.AttachmentPoint
	RequiresListenerConfig bool
	PerRouteBehavior       PerRouteBehavior
}

// AllowsAttachment reports whether point is one of the schema's declared
// attachment points.
func (s Schema) AllowsAttachment(point model.AttachmentPoint) bool {
	for _, p := range s.AttachmentPoints {
		if p == point {
			return true
		}
	}
	return false
}

// Registry is a lookup from filter type name to Schema. Lookup of a type
// that was never registered reports false; internal/filters treats such a
// type as an error.
type Registry struct {
	schemas map[string]Schema
}

// New returns a registry pre-populated with every built-in filter schema.
func New() *Registry {
	r := &Registry{schemas: make(map[string]Schema, len(builtins))}
	for _, s := range builtins {
		r.schemas[s.FilterType] = s
	}
	return r
}

// Lookup returns the schema for filterType and whether it is known.
func (r *Registry) Lookup(filterType string) (Schema, bool) {
	s, ok := r.schemas[filterType]
	return s, ok
}

// Register adds or overrides a schema, used by tests and by callers that
// extend the registry with additional custom filter types.
func (r *Registry) Register(s Schema) {
	r.schemas[s.FilterType] = s
}

var builtins = []Schema{
	{
		FilterType:       "ext_authz",
		EnvoyFilterName:  "envoy.filters.http.ext_authz",
		AttachmentPoints: []model.AttachmentPoint{model.AttachListener, model.AttachRoute, model.AttachRouteConfig, model.AttachVirtualHost},
		PerRouteBehavior: model.PerRouteFullConfig,
	},
	{
		FilterType:             "compressor",
		EnvoyFilterName:        "envoy.filters.http.compressor",
		AttachmentPoints:        []model.AttachmentPoint{model.AttachListener},
		RequiresListenerConfig: true,
		PerRouteBehavior:       model.PerRouteNotSupported,
	},
	{
		FilterType:       "cors",
		EnvoyFilterName:  "envoy.filters.http.cors",
		AttachmentPoints: []model.AttachmentPoint{model.AttachListener, model.AttachRoute, model.AttachVirtualHost},
		PerRouteBehavior: model.PerRouteFullConfig,
	},
	{
		FilterType:       "header_mutation",
		EnvoyFilterName:  "envoy.filters.http.header_mutation",
		AttachmentPoints: []model.AttachmentPoint{model.AttachListener, model.AttachRoute, model.AttachRouteConfig, model.AttachVirtualHost},
		PerRouteBehavior: model.PerRouteFullConfig,
	},
	{
		FilterType:       "local_rate_limit",
		EnvoyFilterName:  "envoy.filters.http.local_ratelimit",
		AttachmentPoints: []model.AttachmentPoint{model.AttachListener, model.AttachRoute, model.AttachVirtualHost},
		PerRouteBehavior: model.PerRouteFullConfig,
	},
	{
		FilterType:       "custom_response",
		EnvoyFilterName:  "envoy.filters.http.custom_response",
		AttachmentPoints: []model.AttachmentPoint{model.AttachListener},
		PerRouteBehavior: model.PerRouteReferenceOnly,
	},
	{
		FilterType:       "mcp",
		EnvoyFilterName:  "envoy.filters.http.golang",
		AttachmentPoints: []model.AttachmentPoint{model.AttachListener, model.AttachRoute},
		PerRouteBehavior: model.PerRouteFullConfig,
	},
	{
		FilterType:       "rbac",
		EnvoyFilterName:  "envoy.filters.http.rbac",
		AttachmentPoints: []model.AttachmentPoint{model.AttachListener, model.AttachRoute, model.AttachVirtualHost},
		PerRouteBehavior: model.PerRouteFullConfig,
	},
	{
		FilterType:       "oauth2",
		EnvoyFilterName:  "envoy.filters.http.oauth2",
		AttachmentPoints: []model.AttachmentPoint{model.AttachListener, model.AttachRoute},
		PerRouteBehavior: model.PerRouteDisableOnly,
	},
	{
		FilterType:       "wasm",
		EnvoyFilterName:  "envoy.filters.http.wasm",
		AttachmentPoints: []model.AttachmentPoint{model.AttachListener, model.AttachRoute},
		PerRouteBehavior: model.PerRouteFullConfig,
	},
	{
		FilterType:       "jwt_auth",
		EnvoyFilterName:  "envoy.filters.http.jwt_authn",
		AttachmentPoints: []model.AttachmentPoint{model.AttachListener},
		PerRouteBehavior: model.PerRouteReferenceOnly,
	},
}
