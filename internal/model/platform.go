package model

import (
	"fmt"
	"strings"

	"github.com/moonkev/flexds/internal/idgen"
)

// UpstreamTarget is one weighted backend of a Platform API route.
type UpstreamTarget struct {
	Endpoint string // "host:port"
	Weight   *uint32
}

// UpstreamTargets is the route's full backend set.
type UpstreamTargets struct {
	Targets []UpstreamTarget
}

// ApiDefinitionRoute is one route entry of an API Definition overlay.
type ApiDefinitionRoute struct {
	MatchType        MatchType
	MatchValue       string
	CaseSensitive    bool
	Headers          map[string]string
	RewritePrefix    string
	RewriteRegex     string
	RewriteReplace   string
	UpstreamTargets  UpstreamTargets
	TimeoutSeconds   *uint32
	OverrideConfig   map[string]interface{} // raw filter overrides
	RouteOrder       int
	GeneratedRouteID string
	GeneratedClusterID string
}

func (r *ApiDefinitionRoute) Validate() error {
	switch r.MatchType {
	case MatchPrefix, MatchExact, MatchRegex, MatchPathTemplate:
	default:
		return invalid("match_type", "unknown match type %q", r.MatchType)
	}
	if r.MatchValue == "" {
		return invalid("match_value", "platform api route requires a match value")
	}
	if len(r.UpstreamTargets.Targets) == 0 {
		return invalid("upstream_targets", "platform api route requires at least one upstream target")
	}
	for _, t := range r.UpstreamTargets.Targets {
		if _, _, err := splitHostPort(t.Endpoint); err != nil {
			return invalid("upstream_targets", "upstream target %q must be host:port: %v", t.Endpoint, err)
		}
	}
	return nil
}

// TLSConfig names the secret backing an isolated listener's downstream TLS.
type TLSConfig struct {
	CertificateSecretName string
}

// ApiDefinition is the platform overlay entity: a team-owned, domain-scoped
// collection of routes materialized into clusters/routes/listeners.
type ApiDefinition struct {
	ID                  string
	Team                string
	Domain              string
	TLSConfig           *TLSConfig
	ListenerIsolation   bool
	IsolationListener   string
	Routes              []ApiDefinitionRoute
	GeneratedListenerID string
	GeneratedRouteIDs   []string
	GeneratedClusterIDs []string
	BootstrapRevision   int
	BootstrapURI        string
}

func (d *ApiDefinition) Validate() error {
	if d.Team == "" {
		return invalid("team", "api definition requires a team")
	}
	if d.Domain == "" {
		return invalid("domain", "api definition requires a domain")
	}
	for i := range d.Routes {
		if err := d.Routes[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// SyntheticRouteConfigName is the name the refresh orchestrator's overlay
// step gives this definition's synthesised route config:
// "platform-api-<short_id(id)>".
func (d *ApiDefinition) SyntheticRouteConfigName() string {
	return fmt.Sprintf("platform-api-%s", idgen.ShortID(d.ID, 12))
}

// ClusterNameForEndpoint is the deterministic name internal/platform gives
// the cluster backing one deduplicated upstream endpoint:
// "platform-<short_id(id)>-<endpoint, dots/colons replaced with dashes>".
func (d *ApiDefinition) ClusterNameForEndpoint(endpoint string) string {
	sanitized := strings.NewReplacer(".", "-", ":", "-").Replace(endpoint)
	return fmt.Sprintf("platform-%s-%s", idgen.ShortID(d.ID, 12), sanitized)
}

// UniqueEndpoints returns the deduplicated set of upstream endpoint strings
// across all routes, in first-seen order, for internal/platform's cluster
// dedup step.
func (d *ApiDefinition) UniqueEndpoints() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range d.Routes {
		for _, t := range r.UpstreamTargets.Targets {
			if _, ok := seen[t.Endpoint]; ok {
				continue
			}
			seen[t.Endpoint] = struct{}{}
			out = append(out, t.Endpoint)
		}
	}
	return out
}

// OpenAPIImportRecord is the provenance row recorded for each OpenAPI
// import. Parsing the OpenAPI document itself is out of scope; this model
// only carries the record the core persists once an ApiDefinition has been
// produced upstream.
type OpenAPIImportRecord struct {
	ID           string
	SpecName     string
	SpecVersion  string
	SpecChecksum string // sha-256 hex
	Team         string
	SourceContent string
	ListenerName string
	ImportedAt   string // RFC3339
	UpdatedAt    string // RFC3339
}

func (r *OpenAPIImportRecord) Validate() error {
	if r.SpecName == "" {
		return invalid("spec_name", "openapi import requires a spec name")
	}
	if r.SpecChecksum == "" {
		return invalid("spec_checksum", "openapi import requires a checksum")
	}
	return nil
}
