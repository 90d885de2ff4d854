package refresh

import (
	"fmt"

	"github.com/moonkev/flexds/internal/model"
)

// synthesizeOverlayRouteConfig builds the synthetic route config for one
// Platform API definition: a single virtual host named after the domain,
// one route per definition route, each routing to the cluster(s)
// internal/platform provisioned for its upstream targets.
func synthesizeOverlayRouteConfig(d *model.ApiDefinition) *model.RouteConfig {
	vh := model.VirtualHost{
		Name:    d.Domain,
		Domains: []string{d.Domain},
	}
	for i := range d.Routes {
		vh.Routes = append(vh.Routes, convertOverlayRoute(d, &d.Routes[i], i))
	}
	return &model.RouteConfig{
		Name:         d.SyntheticRouteConfigName(),
		VirtualHosts: []model.VirtualHost{vh},
	}
}

func convertOverlayRoute(d *model.ApiDefinition, r *model.ApiDefinitionRoute, order int) model.Route {
	return model.Route{
		Name:                 fmt.Sprintf("platform-route-%d", order),
		PathPattern:          r.MatchValue,
		MatchType:            r.MatchType,
		RuleOrder:            r.RouteOrder,
		TypedPerFilterConfig: convertOverrideConfig(r.OverrideConfig),
		Action:               convertOverlayAction(d, r),
	}
}

func convertOverlayAction(d *model.ApiDefinition, r *model.ApiDefinitionRoute) model.RouteAction {
	targets := r.UpstreamTargets.Targets
	if len(targets) == 1 {
		return model.RouteAction{Cluster: &model.ClusterAction{
			Name:           d.ClusterNameForEndpoint(targets[0].Endpoint),
			TimeoutSeconds: r.TimeoutSeconds,
			PrefixRewrite:  r.RewritePrefix,
		}}
	}

	entries := make([]model.WeightedClusterEntry, 0, len(targets))
	var total uint32
	for _, t := range targets {
		weight := uint32(1)
		if t.Weight != nil {
			weight = *t.Weight
		}
		total += weight
		entries = append(entries, model.WeightedClusterEntry{
			Name:   d.ClusterNameForEndpoint(t.Endpoint),
			Weight: weight,
		})
	}
	return model.RouteAction{WeightedClusters: &model.WeightedClustersAction{
		Entries:     entries,
		TotalWeight: &total,
	}}
}

// convertOverrideConfig adapts a Platform API route's raw filter-override
// blob (one entry per filter type, each an arbitrary config map) into the
// model.FilterOverride shape the compiler's PerFilterEncoder expects.
// Header matching and case sensitivity on ApiDefinitionRoute have no
// equivalent on model.Route today and are not carried through; prefix
// rewrite is, regex rewrite is not (model.ClusterAction has no
// regex-rewrite field).
func convertOverrideConfig(raw map[string]interface{}) map[string]model.FilterOverride {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]model.FilterOverride, len(raw))
	for filterType, v := range raw {
		cfg, _ := v.(map[string]interface{})
		out[filterType] = model.FilterOverride{FilterType: filterType, Configuration: cfg}
	}
	return out
}
