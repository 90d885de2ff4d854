package filters

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	xdscorev3 "github.com/cncf/xds/go/xds/core/v3"
	xdsmatcherv3 "github.com/cncf/xds/go/xds/type/matcher/v3"
	mutationrulesv3 "github.com/envoyproxy/go-control-plane/envoy/config/common/mutation_rules/v3"
	corepb "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	routepb "github.com/envoyproxy/go-control-plane/envoy/config/route/v3"
	gzipv3 "github.com/envoyproxy/go-control-plane/envoy/extensions/compression/gzip/compressor/v3"
	compressorv3 "github.com/envoyproxy/go-control-plane/envoy/extensions/filters/http/compressor/v3"
	corsv3 "github.com/envoyproxy/go-control-plane/envoy/extensions/filters/http/cors/v3"
	customresponsev3 "github.com/envoyproxy/go-control-plane/envoy/extensions/filters/http/custom_response/v3"
	headermutationv3 "github.com/envoyproxy/go-control-plane/envoy/extensions/filters/http/header_mutation/v3"
	jwtauthn "github.com/envoyproxy/go-control-plane/envoy/extensions/filters/http/jwt_authn/v3"
	ratelimitv3 "github.com/envoyproxy/go-control-plane/envoy/extensions/filters/http/local_ratelimit/v3"
	localresponsepolicyv3 "github.com/envoyproxy/go-control-plane/envoy/extensions/http/custom_response/local_response_policy/v3"
	typematcherv3 "github.com/envoyproxy/go-control-plane/envoy/type/matcher/v3"
	typev3 "github.com/envoyproxy/go-control-plane/envoy/type/v3"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/moonkev/flexds/internal/model"
)

// structToAny wraps an arbitrary configuration map as a google.protobuf.Struct
// Any (type URL type.googleapis.com/google.protobuf.Struct); filterType is
// used only in error messages. This is the fallback path for filter types this module does not give an explicit
// typed encoder to (see genericSchemaEncode); it still round-trips through
// Envoy's struct-valued extension config support.
func structToAny(filterType string, cfg map[string]interface{}) (*anypb.Any, error) {
	st, err := structpb.NewStruct(cfg)
	if err != nil {
		return nil, fmt.Errorf("build struct for %q: %w", filterType, err)
	}
	any, err := anypb.New(st)
	if err != nil {
		return nil, fmt.Errorf("marshal struct any for %q: %w", filterType, err)
	}
	return any, nil
}

// disabledRouteFilterConfig returns the typed_per_filter_config marker
// envoy uses to disable an installed filter for one route/vhost, via
// envoy.config.route.v3.FilterConfig{disabled: true}.
func disabledRouteFilterConfig() (*anypb.Any, error) {
	return anypb.New(&routepb.FilterConfig{
		Config:   nil,
		Disabled: true,
	})
}

// encodeJWTAuthn converts a merged model.JWTAuthConfig into its
// envoy.extensions.filters.http.jwt_authn.v3.JwtAuthentication typed config.
func encodeJWTAuthn(cfg *model.JWTAuthConfig) (*anypb.Any, error) {
	providers := make(map[string]*jwtauthn.JwtProvider, len(cfg.Providers))
	for name, p := range cfg.Providers {
		jp := &jwtauthn.JwtProvider{
			Issuer:    p.Issuer,
			Audiences: p.Audiences,
		}
		switch {
		case p.Remote != nil:
			remote := &jwtauthn.RemoteJwks{
				HttpUri: &corepb.HttpUri{
					Uri:               p.Remote.URI,
					HttpUpstreamType:  &corepb.HttpUri_Cluster{Cluster: p.Remote.Cluster},
				},
			}
			if p.Remote.CacheDurationSeconds > 0 {
				remote.CacheDuration = durationpb.New(time.Duration(p.Remote.CacheDurationSeconds) * time.Second)
			}
			jp.JwksSourceSpecifier = &jwtauthn.JwtProvider_RemoteJwks{RemoteJwks: remote}
		case p.Local != nil:
			jp.JwksSourceSpecifier = &jwtauthn.JwtProvider_LocalJwks{
				LocalJwks: &corepb.DataSource{
					Specifier: &corepb.DataSource_InlineString{InlineString: p.Local.InlineString},
				},
			}
		}
		providers[name] = jp
	}

	rules := make([]*jwtauthn.RequirementRule, 0, len(cfg.Rules))
	for _, r := range cfg.Rules {
		rules = append(rules, &jwtauthn.RequirementRule{
			Match: &routepb.RouteMatch{
				PathSpecifier: &routepb.RouteMatch_Prefix{Prefix: r.MatchPrefix},
			},
			RequirementType: &jwtauthn.RequirementRule_RequiresName{RequiresName: r.RequirementName},
		})
	}

	requirementMap := make(map[string]*jwtauthn.JwtRequirement, len(cfg.RequirementMap))
	for name, req := range cfg.RequirementMap {
		requirementMap[name] = &jwtauthn.JwtRequirement{
			RequiresType: &jwtauthn.JwtRequirement_ProviderName{ProviderName: req.ProviderName},
		}
	}

	msg := &jwtauthn.JwtAuthentication{
		Providers:            providers,
		Rules:                rules,
		RequirementMap:       requirementMap,
		BypassCorsPreflight:  cfg.BypassCorsPreflight,
		StripFailureResponse: cfg.StripFailureResponse,
		StatPrefix:           cfg.StatPrefix,
	}
	return anypb.New(msg)
}

// encodeCORSMarker returns the empty CORS filter marker installed at the
// HCM level; the actual policy always lives in typed_per_filter_config.
func encodeCORSMarker() (*anypb.Any, error) {
	return anypb.New(&corsv3.Cors{})
}

// encodeCompressorConfig converts a model.CompressorGzipConfig into its
// envoy.extensions.filters.http.compressor.v3.Compressor typed config, with
// the gzip library wrapped as the filter's compressor_library extension.
func encodeCompressorConfig(cfg *model.CompressorGzipConfig) (*anypb.Any, error) {
	gzip := &gzipv3.Gzip{
		MemoryLevel: wrapperspb.UInt32(uint32(cfg.MemoryLevel)),
		WindowBits:  wrapperspb.UInt32(uint32(cfg.WindowBits)),
	}
	gzipAny, err := anypb.New(gzip)
	if err != nil {
		return nil, fmt.Errorf("marshal gzip compressor library: %w", err)
	}
	msg := &compressorv3.Compressor{
		CompressorLibrary: &corepb.TypedExtensionConfig{
			Name:        "gzip",
			TypedConfig: gzipAny,
		},
	}
	return anypb.New(msg)
}

// encodeLocalRateLimitConfig converts a model.LocalRateLimitConfig into its
// envoy.extensions.filters.http.local_ratelimit.v3.LocalRateLimit typed
// config. filter_enabled/filter_enforced are always populated (defaulting
// to 100% via EnabledPercent/EnforcedPercent) since envoy requires both for
// the rate limit to actually take effect.
func encodeLocalRateLimitConfig(cfg *model.LocalRateLimitConfig) (*anypb.Any, error) {
	fillSeconds := cfg.FillIntervalMillis / 1000
	fillNanos := (cfg.FillIntervalMillis % 1000) * 1_000_000
	msg := &ratelimitv3.LocalRateLimit{
		StatPrefix: cfg.StatPrefix,
		TokenBucket: &typev3.TokenBucket{
			MaxTokens:     cfg.MaxTokens,
			TokensPerFill: wrapperspb.UInt32(cfg.TokensPerFill),
			FillInterval:  durationpb.New(time.Duration(fillSeconds)*time.Second + time.Duration(fillNanos)*time.Nanosecond),
		},
		FilterEnabled: &corepb.RuntimeFractionalPercent{
			DefaultValue: &typev3.FractionalPercent{
				Numerator:   cfg.EnabledPercent(),
				Denominator: typev3.FractionalPercent_HUNDRED,
			},
		},
		FilterEnforced: &corepb.RuntimeFractionalPercent{
			DefaultValue: &typev3.FractionalPercent{
				Numerator:   cfg.EnforcedPercent(),
				Denominator: typev3.FractionalPercent_HUNDRED,
			},
		},
	}
	return anypb.New(msg)
}

// encodeHeaderMutationConfig converts a model.HeaderMutationConfig into its
// envoy.extensions.filters.http.header_mutation.v3.HeaderMutation typed
// config. Configured mutations apply on the request path; envoy.config.
// common.mutation_rules.v3.HeaderMutation models each add/remove as a
// distinct oneof entry.
func encodeHeaderMutationConfig(cfg *model.HeaderMutationConfig) (*anypb.Any, error) {
	keys := make([]string, 0, len(cfg.SetHeaders))
	for k := range cfg.SetHeaders {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var mutations []*mutationrulesv3.HeaderMutation
	for _, k := range keys {
		mutations = append(mutations, &mutationrulesv3.HeaderMutation{
			Action: &mutationrulesv3.HeaderMutation_Append{
				Append: &mutationrulesv3.HeaderAppend{
					Header: &corepb.HeaderValueOption{
						Header: &corepb.HeaderValue{Key: k, Value: cfg.SetHeaders[k]},
						AppendAction: corepb.HeaderValueOption_OVERWRITE_IF_EXISTS_OR_ADD,
					},
				},
			},
		})
	}
	for _, h := range cfg.RemoveHeaders {
		mutations = append(mutations, &mutationrulesv3.HeaderMutation{
			Action: &mutationrulesv3.HeaderMutation_Remove{Remove: h},
		})
	}

	msg := &headermutationv3.HeaderMutation{
		Mutations: &headermutationv3.Mutations{
			RequestMutations: mutations,
		},
	}
	return anypb.New(msg)
}

// customResponseExactMatcher builds a single xds matcher FieldMatcher that
// dispatches to a LocalResponsePolicy action when the response status code
// exactly equals code. Envoy's matcher API supports only exact string
// matching against HttpResponseStatusCodeMatchInput today; range/list
// matchers expand into one exact FieldMatcher per code.
func customResponseExactMatcher(code int, body string) (*xdsmatcherv3.Matcher_MatcherList_FieldMatcher, error) {
	policy := &localresponsepolicyv3.LocalResponsePolicy{}
	if body != "" {
		policy.Body = &corepb.DataSource{
			Specifier: &corepb.DataSource_InlineString{InlineString: body},
		}
	}
	policyAny, err := anypb.New(policy)
	if err != nil {
		return nil, fmt.Errorf("marshal local response policy: %w", err)
	}

	inputAny, err := anypb.New(&typematcherv3.HttpResponseStatusCodeMatchInput{})
	if err != nil {
		return nil, fmt.Errorf("marshal status code match input: %w", err)
	}

	return &xdsmatcherv3.Matcher_MatcherList_FieldMatcher{
		Predicate: &xdsmatcherv3.Matcher_MatcherList_Predicate{
			MatchType: &xdsmatcherv3.Matcher_MatcherList_Predicate_SinglePredicate_{
				SinglePredicate: &xdsmatcherv3.Matcher_MatcherList_Predicate_SinglePredicate{
					Input: &xdscorev3.TypedExtensionConfig{
						Name:        "response_code_input",
						TypedConfig: inputAny,
					},
					Matcher: &xdsmatcherv3.Matcher_MatcherList_Predicate_SinglePredicate_ValueMatch{
						ValueMatch: &xdsmatcherv3.StringMatcher{
							MatchPattern: &xdsmatcherv3.StringMatcher_Exact{Exact: strconv.Itoa(code)},
						},
					},
				},
			},
		},
		OnMatch: &xdsmatcherv3.Matcher_OnMatch{
			OnMatch: &xdsmatcherv3.Matcher_OnMatch_Action{
				Action: &xdscorev3.TypedExtensionConfig{
					Name:        "custom_response_action",
					TypedConfig: policyAny,
				},
			},
		},
	}, nil
}

// encodeCustomResponseConfig converts a model.CustomResponseConfig into its
// envoy.extensions.filters.http.custom_response.v3.CustomResponse typed
// config, expanding each matcher's [MinStatus,MaxStatus] range into one
// exact-match FieldMatcher per status code.
func encodeCustomResponseConfig(cfg *model.CustomResponseConfig) (*anypb.Any, error) {
	matchers := cfg.Matchers
	if cfg.LegacyMatcher != nil {
		matchers = []model.CustomResponseMatcher{*cfg.LegacyMatcher}
	}

	var fieldMatchers []*xdsmatcherv3.Matcher_MatcherList_FieldMatcher
	for _, m := range matchers {
		for code := m.MinStatus; code <= m.MaxStatus; code++ {
			fm, err := customResponseExactMatcher(code, m.Body)
			if err != nil {
				return nil, err
			}
			fieldMatchers = append(fieldMatchers, fm)
		}
	}

	msg := &customresponsev3.CustomResponse{
		CustomResponseMatcher: &xdsmatcherv3.Matcher{
			MatcherType: &xdsmatcherv3.Matcher_MatcherList_{
				MatcherList: &xdsmatcherv3.Matcher_MatcherList{
					Matchers: fieldMatchers,
				},
			},
		},
	}
	return anypb.New(msg)
}
