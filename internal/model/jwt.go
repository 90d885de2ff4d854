package model

// JWTAuthConfig is the typed shape of a jwt_auth filter row's configuration.
// Filter rows still store configuration generically as
// map[string]interface{}; internal/filters decodes into this shape before
// merging, and back into the HCM filter's typed config after.
type JWTAuthConfig struct {
	Providers            map[string]JWTProvider
	Rules                []JWTRule
	RequirementMap       map[string]JWTRequirement
	BypassCorsPreflight  bool
	StripFailureResponse bool
	StatPrefix           string
}

// JWTProvider is one named issuer configuration.
type JWTProvider struct {
	Issuer    string
	Audiences []string
	Remote    *RemoteJWKS
	Local     *LocalJWKS
}

// RemoteJWKS fetches keys over HTTP from a named upstream cluster.
type RemoteJWKS struct {
	URI                  string
	Cluster              string
	CacheDurationSeconds uint32
}

// LocalJWKS carries the JWKS document inline.
type LocalJWKS struct {
	InlineString string
}

// JWTRule matches requests by path prefix and names a requirement.
type JWTRule struct {
	MatchPrefix     string
	RequirementName string
}

// JWTRequirement is a leaf requirement_map entry; this model only needs the
// single-provider form that gets auto-populated when a requirement_map is
// absent.
type JWTRequirement struct {
	ProviderName string
}

// Merge combines other into c in place:
//   - provider maps are unioned, later (in row-id order) wins on collision
//   - rules are concatenated in listener-local order
//   - requirement_map is unioned
//   - bypass_cors_preflight / strip_failure_response OR across sources
//   - stat_prefix: last non-empty wins
//
// Callers must invoke Merge in ascending filter-row-id order: collisions
// are resolved by that order, not by insertion order.
func (c *JWTAuthConfig) Merge(other JWTAuthConfig) {
	if c.Providers == nil {
		c.Providers = make(map[string]JWTProvider, len(other.Providers))
	}
	for name, p := range other.Providers {
		c.Providers[name] = p // later (in caller's iteration order) wins
	}
	c.Rules = append(c.Rules, other.Rules...)
	if c.RequirementMap == nil {
		c.RequirementMap = make(map[string]JWTRequirement, len(other.RequirementMap))
	}
	for name, r := range other.RequirementMap {
		c.RequirementMap[name] = r
	}
	c.BypassCorsPreflight = c.BypassCorsPreflight || other.BypassCorsPreflight
	c.StripFailureResponse = c.StripFailureResponse || other.StripFailureResponse
	if other.StatPrefix != "" {
		c.StatPrefix = other.StatPrefix
	}
}

// FillDefaultRequirements auto-populates one ProviderName requirement per
// provider when the merged requirement_map is still empty but providers
// exist.
func (c *JWTAuthConfig) FillDefaultRequirements() {
	if len(c.RequirementMap) > 0 || len(c.Providers) == 0 {
		return
	}
	c.RequirementMap = make(map[string]JWTRequirement, len(c.Providers))
	for name := range c.Providers {
		c.RequirementMap[name] = JWTRequirement{ProviderName: name}
	}
}
