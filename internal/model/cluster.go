package model

import (
	"net"
	"strconv"
)

// ResourceSource records where a row originated, for provenance and for
// source-specific deletion/update policy (e.g. platform_api-generated rows
// are cleaned up by internal/platform, not by a direct client call).
type ResourceSource string

const (
	SourceNativeAPI      ResourceSource = "native_api"
	SourcePlatformAPI    ResourceSource = "platform_api"
	SourceOpenAPIImport  ResourceSource = "openapi_import"
)

// DiscoveryType mirrors envoy's Cluster discovery type choice, decided by
// ClusterConfiguration.DiscoveryType() from the shape of its endpoints.
type DiscoveryType int

const (
	DiscoveryStatic DiscoveryType = iota
	DiscoveryLogicalDNS
	DiscoveryStrictDNS
)

// LbPolicyKind is the subset of envoy load-balancing policies this model
// tracks explicitly; anything else compiles down to ROUND_ROBIN with a log.
type LbPolicyKind string

const (
	LbRoundRobin      LbPolicyKind = "round_robin"
	LbLeastRequest    LbPolicyKind = "least_request"
	LbRingHash        LbPolicyKind = "ring_hash"
	LbMaglev          LbPolicyKind = "maglev"
	LbRandom          LbPolicyKind = "random"
	LbClusterProvided LbPolicyKind = "cluster_provided"
)

type LeastRequestConfig struct {
	ChoiceCount uint32
}

type RingHashConfig struct {
	MinRingSize uint64
	MaxRingSize uint64
}

type MaglevConfig struct {
	TableSize uint64
}

type CircuitBreakers struct {
	MaxConnections     uint32
	MaxPendingRequests uint32
	MaxRequests        uint32
	MaxRetries         uint32
	HighPriority       *CircuitBreakerThresholds
}

type CircuitBreakerThresholds struct {
	MaxConnections     uint32
	MaxPendingRequests uint32
	MaxRequests        uint32
	MaxRetries         uint32
}

type HealthCheck struct {
	IntervalSeconds    uint32
	TimeoutSeconds     uint32
	UnhealthyThreshold uint32
	HealthyThreshold   uint32
	HTTP               *HTTPHealthCheck
	TCP                *TCPHealthCheck
}

type HTTPHealthCheck struct {
	Path            string
	Host            string
	ExpectedStatuses []int
}

type TCPHealthCheck struct {
	SendBytes []byte
}

type OutlierDetection struct {
	Consecutive5xx                     uint32
	IntervalSeconds                    uint32
	BaseEjectionTimeSeconds            uint32
	MaxEjectionPercent                 uint32
}

type DNSLookupFamily string

const (
	DNSLookupAuto   DNSLookupFamily = "auto"
	DNSLookupV4Only DNSLookupFamily = "v4_only"
	DNSLookupV6Only DNSLookupFamily = "v6_only"
)

type ProtocolType string

const (
	ProtocolHTTP1 ProtocolType = ""
	ProtocolHTTP2 ProtocolType = "HTTP2"
	ProtocolGRPC  ProtocolType = "GRPC"
)

// ClusterConfiguration is Cluster.configuration.
type ClusterConfiguration struct {
	Endpoints            []string // "host:port"
	LbPolicy             LbPolicyKind
	ConnectTimeoutSeconds uint32
	LeastRequest         *LeastRequestConfig
	RingHash             *RingHashConfig
	Maglev               *MaglevConfig
	CircuitBreakers      *CircuitBreakers
	HealthChecks         []HealthCheck
	OutlierDetection     *OutlierDetection
	UseTLS               bool
	TLSServerName        string
	DNSLookupFamily      DNSLookupFamily
	ProtocolType         ProtocolType
}

// DiscoveryType classifies the cluster's discovery mode: all-IP endpoints
// get STATIC; a single non-IP endpoint gets LOGICAL_DNS; more than one
// non-IP endpoint gets STRICT_DNS.
func (c *ClusterConfiguration) DiscoveryType() DiscoveryType {
	allIP := true
	for _, ep := range c.Endpoints {
		host, _, err := splitHostPort(ep)
		if err != nil || net.ParseIP(host) == nil {
			allIP = false
			break
		}
	}
	if allIP {
		return DiscoveryStatic
	}
	if len(c.Endpoints) <= 1 {
		return DiscoveryLogicalDNS
	}
	return DiscoveryStrictDNS
}

// RequiresUpstreamTLS reports whether an UpstreamTlsContext must be attached:
// UseTLS is set, or any endpoint uses port 443.
func (c *ClusterConfiguration) RequiresUpstreamTLS() bool {
	if c.UseTLS {
		return true
	}
	for _, ep := range c.Endpoints {
		_, port, err := splitHostPort(ep)
		if err == nil && port == 443 {
			return true
		}
	}
	return false
}

// SNIHost returns the SNI hostname inferred from the first endpoint's host,
// or the explicit TLSServerName override if set.
func (c *ClusterConfiguration) SNIHost() string {
	if c.TLSServerName != "" {
		return c.TLSServerName
	}
	if len(c.Endpoints) == 0 {
		return ""
	}
	host, _, err := splitHostPort(c.Endpoints[0])
	if err != nil {
		return ""
	}
	return host
}

func splitHostPort(ep string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(ep)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}

// Cluster is the upstream group entity.
type Cluster struct {
	ID            string
	Name          string
	ServiceName   string
	Team          string
	Source        ResourceSource
	Configuration ClusterConfiguration
	Version       int64
}

func (c *Cluster) Validate() error {
	if c.Name == "" {
		return invalid("name", "cluster name must not be empty")
	}
	if len(c.Configuration.Endpoints) == 0 {
		return invalid("endpoints", "cluster %q must declare at least one endpoint", c.Name)
	}
	for _, ep := range c.Configuration.Endpoints {
		if _, _, err := splitHostPort(ep); err != nil {
			return invalid("endpoints", "endpoint %q must be host:port: %v", ep, err)
		}
	}
	if c.Configuration.DiscoveryType() == DiscoveryLogicalDNS && len(c.Configuration.Endpoints) > 1 {
		return invalid("endpoints", "logical dns clusters accept at most one endpoint")
	}
	switch c.Configuration.ProtocolType {
	case ProtocolHTTP1, ProtocolHTTP2, ProtocolGRPC:
	default:
		return invalid("protocol_type", "unknown protocol type %q", c.Configuration.ProtocolType)
	}
	exclusive := 0
	if c.Configuration.LeastRequest != nil {
		exclusive++
	}
	if c.Configuration.RingHash != nil {
		exclusive++
	}
	if c.Configuration.Maglev != nil {
		exclusive++
	}
	if exclusive > 1 {
		return invalid("lb_policy", "at most one of least_request/ring_hash/maglev may be set")
	}
	for i, hc := range c.Configuration.HealthChecks {
		if hc.HTTP == nil && hc.TCP == nil {
			return invalid("health_checks", "health check %d must declare http or tcp", i)
		}
	}
	return nil
}

// ResolvedLbPolicy returns the effective lb policy, defaulting to
// ROUND_ROBIN when unset or unrecognized (the compiler logs the fallback).
func (c *ClusterConfiguration) ResolvedLbPolicy() (LbPolicyKind, bool) {
	switch c.LbPolicy {
	case LbRoundRobin, LbLeastRequest, LbRingHash, LbMaglev, LbRandom, LbClusterProvided:
		return c.LbPolicy, true
	case "":
		return LbRoundRobin, true
	default:
		return LbRoundRobin, false
	}
}
