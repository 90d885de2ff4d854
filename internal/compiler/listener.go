package compiler

import (
	"fmt"

	accesslogpb "github.com/envoyproxy/go-control-plane/envoy/config/accesslog/v3"
	corepb "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	listenerpb "github.com/envoyproxy/go-control-plane/envoy/config/listener/v3"
	filelog "github.com/envoyproxy/go-control-plane/envoy/extensions/access_loggers/file/v3"
	routerpb "github.com/envoyproxy/go-control-plane/envoy/extensions/filters/http/router/v3"
	hcm "github.com/envoyproxy/go-control-plane/envoy/extensions/filters/network/http_connection_manager/v3"
	tcpproxy "github.com/envoyproxy/go-control-plane/envoy/extensions/filters/network/tcp_proxy/v3"
	tlspb "github.com/envoyproxy/go-control-plane/envoy/extensions/transport_sockets/tls/v3"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/moonkev/flexds/internal/cache"
	"github.com/moonkev/flexds/internal/model"
)

// HTTPFilterBuilder materializes one listener-local filter reference into
// its typed envoy.extensions.filters.network.http_connection_manager.v3.HttpFilter.
// Compiled here by internal/filters, which owns the schema registry and the
// row lookup; the compiler only knows the Router filter must come last.
type HTTPFilterBuilder func(ref model.HTTPFilterRef) (*hcm.HttpFilter, error)

// CompileListener compiles a validated model.Listener into its
// envoy.config.listener.v3.Listener.
func CompileListener(l *model.Listener, routeEnc PerFilterEncoder, buildFilter HTTPFilterBuilder) (cache.BuiltResource, error) {
	chains := make([]*listenerpb.FilterChain, 0, len(l.Configuration.FilterChains))
	for i := range l.Configuration.FilterChains {
		fc, err := compileFilterChain(&l.Configuration.FilterChains[i], routeEnc, buildFilter)
		if err != nil {
			return cache.BuiltResource{}, fmt.Errorf("compile listener %q: %w", l.Name, err)
		}
		chains = append(chains, fc)
	}

	return built(l.Name, &listenerpb.Listener{
		Name: l.Name,
		Address: &corepb.Address{
			Address: &corepb.Address_SocketAddress{
				SocketAddress: &corepb.SocketAddress{
					Address:       l.Address,
					PortSpecifier: &corepb.SocketAddress_PortValue{PortValue: l.Port},
				},
			},
		},
		FilterChains: chains,
	})
}

func compileFilterChain(fc *model.FilterChain, routeEnc PerFilterEncoder, buildFilter HTTPFilterBuilder) (*listenerpb.FilterChain, error) {
	out := &listenerpb.FilterChain{}
	for i := range fc.Filters {
		nf, err := compileNetworkFilter(&fc.Filters[i], routeEnc, buildFilter)
		if err != nil {
			return nil, err
		}
		out.Filters = append(out.Filters, nf)
	}
	if fc.TLSContext != nil {
		ts, err := compileDownstreamTLS(fc.TLSContext)
		if err != nil {
			return nil, fmt.Errorf("filter chain tls context: %w", err)
		}
		out.TransportSocket = ts
	}
	return out, nil
}

func compileNetworkFilter(f *model.ListenerFilter, routeEnc PerFilterEncoder, buildFilter HTTPFilterBuilder) (*listenerpb.Filter, error) {
	switch {
	case f.HCM != nil:
		hcmAny, err := compileHCM(f.HCM, routeEnc, buildFilter)
		if err != nil {
			return nil, fmt.Errorf("filter %q: %w", f.Name, err)
		}
		return &listenerpb.Filter{
			Name:       "envoy.filters.network.http_connection_manager",
			ConfigType: &listenerpb.Filter_TypedConfig{TypedConfig: hcmAny},
		}, nil
	case f.TCP != nil:
		tcpAny, err := anypb.New(&tcpproxy.TcpProxy{
			StatPrefix:       f.TCP.Cluster,
			ClusterSpecifier: &tcpproxy.TcpProxy_Cluster{Cluster: f.TCP.Cluster},
			AccessLog:        compileAccessLogs(f.TCP.AccessLog),
		})
		if err != nil {
			return nil, fmt.Errorf("filter %q: tcp proxy: %w", f.Name, err)
		}
		return &listenerpb.Filter{
			Name:       "envoy.filters.network.tcp_proxy",
			ConfigType: &listenerpb.Filter_TypedConfig{TypedConfig: tcpAny},
		}, nil
	default:
		return nil, fmt.Errorf("filter %q: neither HttpConnectionManager nor TcpProxy set", f.Name)
	}
}

func compileHCM(cfg *model.HTTPConnectionManagerConfig, routeEnc PerFilterEncoder, buildFilter HTTPFilterBuilder) (*anypb.Any, error) {
	h := &hcm.HttpConnectionManager{
		StatPrefix: "ingress_http",
		CodecType:  hcm.HttpConnectionManager_AUTO,
	}

	switch {
	case cfg.RouteConfigName != "":
		h.RouteSpecifier = &hcm.HttpConnectionManager_Rds{
			Rds: &hcm.Rds{
				ConfigSource:    adsConfigSource(),
				RouteConfigName: cfg.RouteConfigName,
			},
		}
	case cfg.InlineRouteConfig != nil:
		rc, err := compileRouteConfigMessage(cfg.InlineRouteConfig, routeEnc)
		if err != nil {
			return nil, err
		}
		h.RouteSpecifier = &hcm.HttpConnectionManager_RouteConfig{RouteConfig: rc}
	default:
		return nil, fmt.Errorf("http connection manager requires route_config_name or inline_route_config")
	}

	for i := range cfg.HTTPFilters {
		hf, err := buildFilter(cfg.HTTPFilters[i])
		if err != nil {
			return nil, fmt.Errorf("http filter %q: %w", cfg.HTTPFilters[i].Name, err)
		}
		h.HttpFilters = append(h.HttpFilters, hf)
	}
	// Router must always be last: it terminates the chain by forwarding
	// upstream, and any filter registered after it would never run.
	routerAny, err := anypb.New(&routerpb.Router{})
	if err != nil {
		return nil, fmt.Errorf("router filter: %w", err)
	}
	h.HttpFilters = append(h.HttpFilters, &hcm.HttpFilter{
		Name:       "envoy.filters.http.router",
		ConfigType: &hcm.HttpFilter_TypedConfig{TypedConfig: routerAny},
	})

	if cfg.AccessLog != nil {
		h.AccessLog = compileAccessLogs(cfg.AccessLog)
	}
	return anypb.New(h)
}

func compileAccessLogs(cfg *model.AccessLogConfig) []*accesslogpb.AccessLog {
	if cfg == nil || cfg.Path == "" {
		return nil
	}
	fileAny, err := anypb.New(&filelog.FileAccessLog{Path: cfg.Path})
	if err != nil {
		log.Warn("failed to marshal file access log config", "error", err)
		return nil
	}
	return []*accesslogpb.AccessLog{{
		Name:       "envoy.access_loggers.file",
		ConfigType: &accesslogpb.AccessLog_TypedConfig{TypedConfig: fileAny},
	}}
}

func compileDownstreamTLS(tls *model.DownstreamTLS) (*corepb.TransportSocket, error) {
	ctx := &tlspb.DownstreamTlsContext{
		CommonTlsContext: &tlspb.CommonTlsContext{
			TlsCertificateSdsSecretConfigs: []*tlspb.SdsSecretConfig{{
				Name:      tls.CertificateSecretName,
				SdsConfig: adsConfigSource(),
			}},
		},
		RequireClientCertificate: wrapperspb.Bool(tls.RequireClientCert),
	}
	if tls.ValidationSecretName != "" {
		ctx.CommonTlsContext.ValidationContextType = &tlspb.CommonTlsContext_ValidationContextSdsSecretConfig{
			ValidationContextSdsSecretConfig: &tlspb.SdsSecretConfig{
				Name:      tls.ValidationSecretName,
				SdsConfig: adsConfigSource(),
			},
		}
	}
	any, err := anypb.New(ctx)
	if err != nil {
		return nil, err
	}
	return &corepb.TransportSocket{
		Name:       "envoy.transport_sockets.tls",
		ConfigType: &corepb.TransportSocket_TypedConfig{TypedConfig: any},
	}, nil
}

func adsConfigSource() *corepb.ConfigSource {
	return &corepb.ConfigSource{
		ResourceApiVersion:    corepb.ApiVersion_V3,
		ConfigSourceSpecifier: &corepb.ConfigSource_Ads{Ads: &corepb.AggregatedConfigSource{}},
	}
}
