package compiler

import (
	"fmt"

	corepb "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	routepb "github.com/envoyproxy/go-control-plane/envoy/config/route/v3"
	pathmatch "github.com/envoyproxy/go-control-plane/envoy/extensions/path/match/uri_template/v3"
	pathrewrite "github.com/envoyproxy/go-control-plane/envoy/extensions/path/rewrite/uri_template/v3"
	matcherpb "github.com/envoyproxy/go-control-plane/envoy/type/matcher/v3"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/moonkev/flexds/internal/cache"
	"github.com/moonkev/flexds/internal/model"
)

// PerFilterEncoder turns a route/vhost/weighted-cluster's raw filter
// overrides into the typed_per_filter_config map Envoy expects. The
// compiler has no notion of filter schemas, so internal/filters supplies
// the encoder; when nil, overrides are dropped (used by tests that only
// care about routing shape).
type PerFilterEncoder func(overrides map[string]model.FilterOverride) (map[string]*anypb.Any, error)

// CompileRouteConfig compiles a validated model.RouteConfig into its
// envoy.config.route.v3.RouteConfiguration.
func CompileRouteConfig(rc *model.RouteConfig, enc PerFilterEncoder) (cache.BuiltResource, error) {
	msg, err := compileRouteConfigMessage(rc, enc)
	if err != nil {
		return cache.BuiltResource{}, fmt.Errorf("compile route config %q: %w", rc.Name, err)
	}
	return built(rc.Name, msg)
}

// compileRouteConfigMessage is the typed core shared by CompileRouteConfig
// (RDS-addressable resources) and the listener compiler's inline route
// config case, which needs the *routepb.RouteConfiguration directly rather
// than Any-wrapped.
func compileRouteConfigMessage(rc *model.RouteConfig, enc PerFilterEncoder) (*routepb.RouteConfiguration, error) {
	vhosts := make([]*routepb.VirtualHost, 0, len(rc.VirtualHosts))
	for i := range rc.VirtualHosts {
		vh, err := compileVirtualHost(&rc.VirtualHosts[i], enc)
		if err != nil {
			return nil, err
		}
		vhosts = append(vhosts, vh)
	}
	return &routepb.RouteConfiguration{
		Name:         rc.Name,
		VirtualHosts: vhosts,
	}, nil
}

func compileVirtualHost(vh *model.VirtualHost, enc PerFilterEncoder) (*routepb.VirtualHost, error) {
	routes := make([]*routepb.Route, 0, len(vh.Routes))
	for i := range vh.Routes {
		r, err := compileRoute(&vh.Routes[i], enc)
		if err != nil {
			return nil, err
		}
		routes = append(routes, r)
	}
	perFilter, err := encodeOrEmpty(enc, vh.TypedPerFilterConfig)
	if err != nil {
		return nil, fmt.Errorf("virtual host %q: %w", vh.Name, err)
	}
	return &routepb.VirtualHost{
		Name:                 vh.Name,
		Domains:              vh.Domains,
		Routes:               routes,
		TypedPerFilterConfig: perFilter,
	}, nil
}

func compileRoute(r *model.Route, enc PerFilterEncoder) (*routepb.Route, error) {
	match, err := compileRouteMatch(r)
	if err != nil {
		return nil, fmt.Errorf("route %q: %w", r.AutoName(), err)
	}
	perFilter, err := encodeOrEmpty(enc, r.TypedPerFilterConfig)
	if err != nil {
		return nil, fmt.Errorf("route %q: %w", r.AutoName(), err)
	}

	out := &routepb.Route{
		Name:                 r.AutoName(),
		Match:                match,
		TypedPerFilterConfig: perFilter,
	}

	switch {
	case r.Action.Cluster != nil:
		ra, err := compileClusterAction(r.Action.Cluster)
		if err != nil {
			return nil, fmt.Errorf("route %q: %w", r.AutoName(), err)
		}
		out.Action = &routepb.Route_Route{Route: ra}
	case r.Action.WeightedClusters != nil:
		ra, err := compileWeightedClustersAction(r.Action.WeightedClusters, enc)
		if err != nil {
			return nil, fmt.Errorf("route %q: %w", r.AutoName(), err)
		}
		out.Action = &routepb.Route_Route{Route: ra}
	case r.Action.Redirect != nil:
		out.Action = &routepb.Route_Redirect{Redirect: compileRedirectAction(r.Action.Redirect)}
	}
	return out, nil
}

func compileRouteMatch(r *model.Route) (*routepb.RouteMatch, error) {
	match := &routepb.RouteMatch{}
	switch r.MatchType {
	case model.MatchPrefix:
		match.PathSpecifier = &routepb.RouteMatch_Prefix{Prefix: r.PathPattern}
	case model.MatchExact:
		match.PathSpecifier = &routepb.RouteMatch_Path{Path: r.PathPattern}
	case model.MatchRegex:
		match.PathSpecifier = &routepb.RouteMatch_SafeRegex{SafeRegex: &matcherpb.RegexMatcher{
			EngineType: &matcherpb.RegexMatcher_GoogleRe2{GoogleRe2: &matcherpb.RegexMatcher_GoogleRE2{}},
			Regex:      r.PathPattern,
		}}
	case model.MatchPathTemplate:
		cfgAny, err := anypb.New(&pathmatch.UriTemplateMatchConfig{PathTemplate: r.PathPattern})
		if err != nil {
			return nil, fmt.Errorf("uri template match config: %w", err)
		}
		match.PathSpecifier = nil
		match.PathMatchPolicy = &corepb.TypedExtensionConfig{
			Name:        "envoy.path.match.uri_template.uri_template_matcher",
			TypedConfig: cfgAny,
		}
	default:
		return nil, fmt.Errorf("unknown match type %q", r.MatchType)
	}
	return match, nil
}

func compileClusterAction(a *model.ClusterAction) (*routepb.RouteAction, error) {
	ra := &routepb.RouteAction{
		ClusterSpecifier: &routepb.RouteAction_Cluster{Cluster: a.Name},
	}
	if a.TimeoutSeconds != nil {
		ra.Timeout = durationpb.New(secToDur(*a.TimeoutSeconds))
	}
	if a.RetryPolicy != nil {
		ra.RetryPolicy = &routepb.RetryPolicy{
			RetryOn:       a.RetryPolicy.RetryOn,
			NumRetries:    wrapperspb.UInt32(a.RetryPolicy.NumRetries),
			PerTryTimeout: durationpb.New(secToDur(a.RetryPolicy.PerTryTimeout)),
		}
	}
	switch {
	case a.PathTemplateRewrite != "":
		cfgAny, err := anypb.New(&pathrewrite.UriTemplateRewriteConfig{PathTemplateRewrite: a.PathTemplateRewrite})
		if err != nil {
			return nil, fmt.Errorf("uri template rewrite config: %w", err)
		}
		ra.PathRewritePolicy = &corepb.TypedExtensionConfig{
			Name:        "envoy.path.rewrite.uri_template.uri_template_rewriter",
			TypedConfig: cfgAny,
		}
	case a.PrefixRewrite != "":
		ra.PrefixRewrite = a.PrefixRewrite
	}
	return ra, nil
}

func compileWeightedClustersAction(a *model.WeightedClustersAction, enc PerFilterEncoder) (*routepb.RouteAction, error) {
	entries := make([]*routepb.WeightedCluster_ClusterWeight, 0, len(a.Entries))
	for _, e := range a.Entries {
		perFilter, err := encodeOrEmpty(enc, e.TypedPerFilterConfig)
		if err != nil {
			return nil, fmt.Errorf("weighted cluster %q: %w", e.Name, err)
		}
		entries = append(entries, &routepb.WeightedCluster_ClusterWeight{
			Name:                 e.Name,
			Weight:               wrapperspb.UInt32(e.Weight),
			TypedPerFilterConfig: perFilter,
		})
	}
	wc := &routepb.WeightedCluster{Clusters: entries}
	if a.TotalWeight != nil {
		wc.TotalWeight = wrapperspb.UInt32(*a.TotalWeight)
	}
	return &routepb.RouteAction{
		ClusterSpecifier: &routepb.RouteAction_WeightedClusters{WeightedClusters: wc},
	}, nil
}

func compileRedirectAction(a *model.RedirectAction) *routepb.RedirectAction {
	return &routepb.RedirectAction{
		HostRedirect: a.Host,
		PathRewriteSpecifier: &routepb.RedirectAction_PathRedirect{
			PathRedirect: a.Path,
		},
		ResponseCode: redirectCode(a.Code),
	}
}

func redirectCode(c model.RedirectCode) routepb.RedirectAction_RedirectResponseCode {
	switch c {
	case model.RedirectFound:
		return routepb.RedirectAction_FOUND
	case model.RedirectSeeOther:
		return routepb.RedirectAction_SEE_OTHER
	case model.RedirectTemporary:
		return routepb.RedirectAction_TEMPORARY_REDIRECT
	case model.RedirectPermanent:
		return routepb.RedirectAction_PERMANENT_REDIRECT
	default:
		return routepb.RedirectAction_MOVED_PERMANENTLY
	}
}

func encodeOrEmpty(enc PerFilterEncoder, overrides map[string]model.FilterOverride) (map[string]*anypb.Any, error) {
	if enc == nil || len(overrides) == 0 {
		return nil, nil
	}
	return enc(overrides)
}
