package model

import "fmt"

// MatchType is the path-matching discriminant of the Route entity.
type MatchType string

const (
	MatchPrefix      MatchType = "Prefix"
	MatchExact       MatchType = "Exact"
	MatchRegex       MatchType = "Regex"
	MatchPathTemplate MatchType = "PathTemplate"
)

// RedirectCode is one of the response codes a Redirect action may emit.
type RedirectCode int

const (
	RedirectMovedPermanently RedirectCode = 301
	RedirectFound            RedirectCode = 302
	RedirectSeeOther         RedirectCode = 303
	RedirectTemporary        RedirectCode = 307
	RedirectPermanent        RedirectCode = 308
)

// RetryPolicy is a per-route retry configuration.
type RetryPolicy struct {
	RetryOn       string
	NumRetries    uint32
	PerTryTimeout uint32 // seconds
}

// ClusterAction routes to a single named cluster.
type ClusterAction struct {
	Name               string
	TimeoutSeconds     *uint32
	PrefixRewrite      string
	PathTemplateRewrite string
	RetryPolicy        *RetryPolicy
}

// WeightedClusterEntry is one member of a WeightedClusters action.
type WeightedClusterEntry struct {
	Name                  string
	Weight                uint32
	TypedPerFilterConfig  map[string]FilterOverride
}

// WeightedClustersAction splits traffic across multiple clusters by weight.
type WeightedClustersAction struct {
	Entries     []WeightedClusterEntry
	TotalWeight *uint32
}

// RedirectAction issues an HTTP redirect instead of routing upstream.
type RedirectAction struct {
	Host string
	Path string
	Code RedirectCode
}

// RouteAction is exactly one of ClusterAction, WeightedClustersAction, or
// RedirectAction — enforced by Route.Validate, not by the Go type system.
type RouteAction struct {
	Cluster          *ClusterAction
	WeightedClusters *WeightedClustersAction
	Redirect         *RedirectAction
}

func (a *RouteAction) kindCount() int {
	n := 0
	if a.Cluster != nil {
		n++
	}
	if a.WeightedClusters != nil {
		n++
	}
	if a.Redirect != nil {
		n++
	}
	return n
}

// FilterOverride is a raw per-route/per-vhost/per-weighted-cluster filter
// config override, keyed by filter type name in Route/VirtualHost/
// WeightedClusterEntry.TypedPerFilterConfig.
type FilterOverride struct {
	FilterType    string
	Configuration map[string]interface{}
	Disabled      bool
}

// Route is one path-matched rule within a virtual host.
type Route struct {
	ID                   string
	VirtualHostID        string
	Name                 string
	PathPattern          string
	MatchType            MatchType
	RuleOrder            int
	TypedPerFilterConfig map[string]FilterOverride
	Action               RouteAction
}

// AutoName generates a deterministic route name from its match when Name is
// left blank.
func (r *Route) AutoName() string {
	if r.Name != "" {
		return r.Name
	}
	return fmt.Sprintf("%s-%s", r.MatchType, r.PathPattern)
}

func (r *Route) Validate() error {
	switch r.MatchType {
	case MatchPrefix, MatchExact, MatchRegex, MatchPathTemplate:
	default:
		return invalid("match_type", "unknown match type %q", r.MatchType)
	}
	if r.PathPattern == "" {
		return invalid("path_pattern", "route requires a non-empty path pattern")
	}
	if n := r.Action.kindCount(); n != 1 {
		return invalid("action", "route action must be exactly one of cluster/weighted_clusters/redirect, got %d", n)
	}
	if wc := r.Action.WeightedClusters; wc != nil {
		if len(wc.Entries) == 0 {
			return invalid("action.weighted_clusters", "weighted clusters action requires at least one entry")
		}
		for _, e := range wc.Entries {
			if e.Name == "" {
				return invalid("action.weighted_clusters.entries", "weighted cluster entry requires a name")
			}
		}
	}
	if rd := r.Action.Redirect; rd != nil {
		switch rd.Code {
		case RedirectMovedPermanently, RedirectFound, RedirectSeeOther, RedirectTemporary, RedirectPermanent:
		default:
			return invalid("action.redirect.code", "unsupported redirect code %d", rd.Code)
		}
	}
	return nil
}

// VirtualHost groups domain-matched routing rules within a route config.
type VirtualHost struct {
	ID                   string
	RouteConfigID        string
	Name                 string
	Domains              []string
	RuleOrder            int
	TypedPerFilterConfig map[string]FilterOverride
	Routes               []Route
}

func (v *VirtualHost) Validate() error {
	if v.Name == "" {
		return invalid("name", "virtual host name must not be empty")
	}
	if len(v.Domains) == 0 {
		return invalid("domains", "virtual host %q requires at least one domain", v.Name)
	}
	seen := make(map[string]struct{}, len(v.Routes))
	for i := range v.Routes {
		r := &v.Routes[i]
		if err := r.Validate(); err != nil {
			return err
		}
		name := r.AutoName()
		if _, dup := seen[name]; dup {
			return invalid("routes", "duplicate route name %q within virtual host %q", name, v.Name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

// RouteConfig is the RDS-addressable bundle of virtual hosts.
type RouteConfig struct {
	ID           string
	Name         string
	VirtualHosts []VirtualHost
}

func (rc *RouteConfig) Validate() error {
	if rc.Name == "" {
		return invalid("name", "route config name must not be empty")
	}
	seen := make(map[string]struct{}, len(rc.VirtualHosts))
	for i := range rc.VirtualHosts {
		vh := &rc.VirtualHosts[i]
		if err := vh.Validate(); err != nil {
			return err
		}
		if _, dup := seen[vh.Name]; dup {
			return invalid("virtual_hosts", "duplicate virtual host name %q within route config %q", vh.Name, rc.Name)
		}
		seen[vh.Name] = struct{}{}
	}
	return nil
}
