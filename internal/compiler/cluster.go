package compiler

import (
	"fmt"
	"log/slog"
	"net"
	"time"

	clusterpb "github.com/envoyproxy/go-control-plane/envoy/config/cluster/v3"
	corepb "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	endpointpb "github.com/envoyproxy/go-control-plane/envoy/config/endpoint/v3"
	tlspb "github.com/envoyproxy/go-control-plane/envoy/extensions/transport_sockets/tls/v3"
	upstreamhttp "github.com/envoyproxy/go-control-plane/envoy/extensions/upstreams/http/v3"
	typev3 "github.com/envoyproxy/go-control-plane/envoy/type/v3"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/moonkev/flexds/internal/cache"
	"github.com/moonkev/flexds/internal/model"
)

// CompileCluster is a pure function from a validated model.Cluster to its
// compiled envoy.config.cluster.v3.Cluster.
func CompileCluster(c *model.Cluster) (cache.BuiltResource, error) {
	cfg := c.Configuration

	cl := &clusterpb.Cluster{
		Name: c.Name,
	}
	if cfg.ConnectTimeoutSeconds > 0 {
		cl.ConnectTimeout = durationpb.New(secToDur(cfg.ConnectTimeoutSeconds))
	}

	switch cfg.DiscoveryType() {
	case model.DiscoveryStatic:
		cl.ClusterDiscoveryType = &clusterpb.Cluster_Type{Type: clusterpb.Cluster_STATIC}
	case model.DiscoveryLogicalDNS:
		cl.ClusterDiscoveryType = &clusterpb.Cluster_Type{Type: clusterpb.Cluster_LOGICAL_DNS}
	default:
		cl.ClusterDiscoveryType = &clusterpb.Cluster_Type{Type: clusterpb.Cluster_STRICT_DNS}
	}
	cl.DnsLookupFamily = dnsLookupFamily(cfg.DNSLookupFamily)

	cl.LoadAssignment = buildLoadAssignment(c.Name, cfg.Endpoints)
	cl.LbPolicy = lbPolicy(&cfg)
	applyLbPolicyConfig(cl, &cfg)

	if cfg.CircuitBreakers != nil {
		cl.CircuitBreakers = buildCircuitBreakers(cfg.CircuitBreakers)
	}
	for _, hc := range cfg.HealthChecks {
		cl.HealthChecks = append(cl.HealthChecks, buildHealthCheck(hc))
	}
	if cfg.OutlierDetection != nil {
		cl.OutlierDetection = buildOutlierDetection(cfg.OutlierDetection)
	}

	if cfg.RequiresUpstreamTLS() {
		tlsAny, err := anypb.New(&tlspb.UpstreamTlsContext{
			Sni: cfg.SNIHost(),
			CommonTlsContext: &tlspb.CommonTlsContext{
				AlpnProtocols: alpnFor(cfg.ProtocolType),
			},
		})
		if err != nil {
			return cache.BuiltResource{}, fmt.Errorf("compile cluster %q: tls context: %w", c.Name, err)
		}
		cl.TransportSocket = &corepb.TransportSocket{
			Name:       "envoy.transport_sockets.tls",
			ConfigType: &corepb.TransportSocket_TypedConfig{TypedConfig: tlsAny},
		}
	}

	if cfg.ProtocolType == model.ProtocolHTTP2 || cfg.ProtocolType == model.ProtocolGRPC {
		httpOptsAny, err := anypb.New(&upstreamhttp.HttpProtocolOptions{
			UpstreamProtocolOptions: &upstreamhttp.HttpProtocolOptions_ExplicitHttpConfig_{
				ExplicitHttpConfig: &upstreamhttp.HttpProtocolOptions_ExplicitHttpConfig{
					ProtocolConfig: &upstreamhttp.HttpProtocolOptions_ExplicitHttpConfig_Http2ProtocolOptions{
						Http2ProtocolOptions: &corepb.Http2ProtocolOptions{},
					},
				},
			},
		})
		if err != nil {
			return cache.BuiltResource{}, fmt.Errorf("compile cluster %q: http2 options: %w", c.Name, err)
		}
		cl.TypedExtensionProtocolOptions = map[string]*anypb.Any{
			"envoy.extensions.upstreams.http.v3.HttpProtocolOptions": httpOptsAny,
		}
	}

	return built(c.Name, cl)
}

func secToDur(s uint32) time.Duration {
	return time.Duration(s) * time.Second
}

func buildLoadAssignment(clusterName string, endpoints []string) *endpointpb.ClusterLoadAssignment {
	lbs := make([]*endpointpb.LbEndpoint, 0, len(endpoints))
	for _, ep := range endpoints {
		host, port, err := net.SplitHostPort(ep)
		if err != nil {
			continue
		}
		portNum := parsePortOrZero(port)
		lbs = append(lbs, &endpointpb.LbEndpoint{
			HostIdentifier: &endpointpb.LbEndpoint_Endpoint{
				Endpoint: &endpointpb.Endpoint{
					Address: &corepb.Address{
						Address: &corepb.Address_SocketAddress{
							SocketAddress: &corepb.SocketAddress{
								Address:       host,
								PortSpecifier: &corepb.SocketAddress_PortValue{PortValue: portNum},
							},
						},
					},
				},
			},
		})
	}
	return &endpointpb.ClusterLoadAssignment{
		ClusterName: clusterName,
		Endpoints:   []*endpointpb.LocalityLbEndpoints{{LbEndpoints: lbs}},
	}
}

func parsePortOrZero(s string) uint32 {
	var n uint32
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + uint32(r-'0')
	}
	return n
}

func lbPolicy(cfg *model.ClusterConfiguration) clusterpb.Cluster_LbPolicy {
	resolved, known := cfg.ResolvedLbPolicy()
	if !known {
		slog.Warn("unknown lb policy, falling back to round robin", "lb_policy", cfg.LbPolicy)
	}
	switch resolved {
	case model.LbLeastRequest:
		return clusterpb.Cluster_LEAST_REQUEST
	case model.LbRingHash:
		return clusterpb.Cluster_RING_HASH
	case model.LbMaglev:
		return clusterpb.Cluster_MAGLEV
	case model.LbRandom:
		return clusterpb.Cluster_RANDOM
	case model.LbClusterProvided:
		return clusterpb.Cluster_CLUSTER_PROVIDED
	default:
		return clusterpb.Cluster_ROUND_ROBIN
	}
}

func applyLbPolicyConfig(cl *clusterpb.Cluster, cfg *model.ClusterConfiguration) {
	switch {
	case cfg.LeastRequest != nil && cl.LbPolicy == clusterpb.Cluster_LEAST_REQUEST:
		cl.LbConfig = &clusterpb.Cluster_LeastRequestLbConfig_{
			LeastRequestLbConfig: &clusterpb.Cluster_LeastRequestLbConfig{
				ChoiceCount: wrapperspb.UInt32(cfg.LeastRequest.ChoiceCount),
			},
		}
	case cfg.RingHash != nil && cl.LbPolicy == clusterpb.Cluster_RING_HASH:
		cl.LbConfig = &clusterpb.Cluster_RingHashLbConfig_{
			RingHashLbConfig: &clusterpb.Cluster_RingHashLbConfig{
				MinimumRingSize: wrapperspb.UInt64(cfg.RingHash.MinRingSize),
				MaximumRingSize: wrapperspb.UInt64(cfg.RingHash.MaxRingSize),
				HashFunction:    clusterpb.Cluster_RingHashLbConfig_XX_HASH,
			},
		}
	case cfg.Maglev != nil && cl.LbPolicy == clusterpb.Cluster_MAGLEV:
		cl.LbConfig = &clusterpb.Cluster_MaglevLbConfig_{
			MaglevLbConfig: &clusterpb.Cluster_MaglevLbConfig{
				TableSize: wrapperspb.UInt64(cfg.Maglev.TableSize),
			},
		}
	}
}

func buildCircuitBreakers(cb *model.CircuitBreakers) *clusterpb.CircuitBreakers {
	def := &clusterpb.CircuitBreakers_Thresholds{
		Priority:           corepb.RoutingPriority_DEFAULT,
		MaxConnections:     wrapperspb.UInt32(cb.MaxConnections),
		MaxPendingRequests: wrapperspb.UInt32(cb.MaxPendingRequests),
		MaxRequests:        wrapperspb.UInt32(cb.MaxRequests),
		MaxRetries:         wrapperspb.UInt32(cb.MaxRetries),
	}
	thresholds := []*clusterpb.CircuitBreakers_Thresholds{def}
	if cb.HighPriority != nil {
		thresholds = append(thresholds, &clusterpb.CircuitBreakers_Thresholds{
			Priority:           corepb.RoutingPriority_HIGH,
			MaxConnections:     wrapperspb.UInt32(cb.HighPriority.MaxConnections),
			MaxPendingRequests: wrapperspb.UInt32(cb.HighPriority.MaxPendingRequests),
			MaxRequests:        wrapperspb.UInt32(cb.HighPriority.MaxRequests),
			MaxRetries:         wrapperspb.UInt32(cb.HighPriority.MaxRetries),
		})
	}
	return &clusterpb.CircuitBreakers{Thresholds: thresholds}
}

func buildHealthCheck(hc model.HealthCheck) *corepb.HealthCheck {
	out := &corepb.HealthCheck{
		Interval:           durationpb.New(secToDur(hc.IntervalSeconds)),
		Timeout:            durationpb.New(secToDur(hc.TimeoutSeconds)),
		UnhealthyThreshold: wrapperspb.UInt32(hc.UnhealthyThreshold),
		HealthyThreshold:   wrapperspb.UInt32(hc.HealthyThreshold),
	}
	switch {
	case hc.HTTP != nil:
		ranges := make([]*typev3.Int64Range, 0, len(hc.HTTP.ExpectedStatuses))
		for _, code := range hc.HTTP.ExpectedStatuses {
			ranges = append(ranges, &typev3.Int64Range{Start: int64(code), End: int64(code) + 1})
		}
		out.HealthChecker = &corepb.HealthCheck_HttpHealthCheck_{
			HttpHealthCheck: &corepb.HealthCheck_HttpHealthCheck{
				Path:             hc.HTTP.Path,
				Host:             hc.HTTP.Host,
				ExpectedStatuses: ranges,
			},
		}
	case hc.TCP != nil:
		var send *corepb.HealthCheck_Payload
		if len(hc.TCP.SendBytes) > 0 {
			send = &corepb.HealthCheck_Payload{Payload: &corepb.HealthCheck_Payload_Binary{Binary: hc.TCP.SendBytes}}
		}
		out.HealthChecker = &corepb.HealthCheck_TcpHealthCheck_{
			TcpHealthCheck: &corepb.HealthCheck_TcpHealthCheck{Send: send},
		}
	}
	return out
}

func buildOutlierDetection(od *model.OutlierDetection) *clusterpb.OutlierDetection {
	return &clusterpb.OutlierDetection{
		Consecutive_5Xx:    wrapperspb.UInt32(od.Consecutive5xx),
		Interval:           durationpb.New(secToDur(od.IntervalSeconds)),
		BaseEjectionTime:   durationpb.New(secToDur(od.BaseEjectionTimeSeconds)),
		MaxEjectionPercent: wrapperspb.UInt32(od.MaxEjectionPercent),
	}
}

func dnsLookupFamily(f model.DNSLookupFamily) clusterpb.Cluster_DnsLookupFamily {
	switch f {
	case model.DNSLookupV4Only:
		return clusterpb.Cluster_V4_ONLY
	case model.DNSLookupV6Only:
		return clusterpb.Cluster_V6_ONLY
	default:
		return clusterpb.Cluster_AUTO
	}
}

func alpnFor(p model.ProtocolType) []string {
	if p == model.ProtocolHTTP2 || p == model.ProtocolGRPC {
		return []string{"h2", "http/1.1"}
	}
	return []string{"http/1.1"}
}
