package model

// AccessLogConfig is a minimal stdout/file access-log attachment; envoy
// supports many sinks, this model carries the one the compiler emits.
type AccessLogConfig struct {
	Path   string
	Format string
}

// TracingConfig enables per-listener tracing with a provider name.
type TracingConfig struct {
	Provider         string
	RandomSampling   float64
}

// HTTPFilterRef is how a listener filter chain names the HTTP filters it
// wants materialized; actual filter configuration lives in the Filter row
// and is assembled by internal/filters.
type HTTPFilterRef struct {
	Name string
	Type string
}

// HTTPConnectionManagerConfig is one network filter entry's HCM shape.
// Exactly one of RouteConfigName / InlineRouteConfig is set, enforced by
// FilterChain.Validate.
type HTTPConnectionManagerConfig struct {
	RouteConfigName   string
	InlineRouteConfig *RouteConfig
	AccessLog         *AccessLogConfig
	Tracing           *TracingConfig
	HTTPFilters       []HTTPFilterRef
}

// TCPProxyConfig is the alternative non-HTTP network filter.
type TCPProxyConfig struct {
	Cluster   string
	AccessLog *AccessLogConfig
}

// ListenerFilter is exactly one of HCM or TCPProxy.
type ListenerFilter struct {
	Name string
	HCM  *HTTPConnectionManagerConfig
	TCP  *TCPProxyConfig
}

func (f *ListenerFilter) Validate() error {
	hasHCM := f.HCM != nil
	hasTCP := f.TCP != nil
	if hasHCM == hasTCP {
		return invalid("filter", "filter %q must be exactly one of HttpConnectionManager or TcpProxy", f.Name)
	}
	if hasHCM {
		named := f.HCM.RouteConfigName != ""
		inline := f.HCM.InlineRouteConfig != nil
		if named == inline {
			return invalid("filter.hcm", "http connection manager %q must use exactly one of route_config_name or inline_route_config", f.Name)
		}
		if inline {
			if err := f.HCM.InlineRouteConfig.Validate(); err != nil {
				return err
			}
		}
	}
	if hasTCP && f.TCP.Cluster == "" {
		return invalid("filter.tcp", "tcp proxy %q requires a cluster", f.Name)
	}
	return nil
}

// FilterChain is one entry in Listener.configuration.filter_chains.
type FilterChain struct {
	Filters    []ListenerFilter
	TLSContext *DownstreamTLS
}

// DownstreamTLS names the secret backing a filter chain's TLS termination.
type DownstreamTLS struct {
	CertificateSecretName string
	ValidationSecretName  string
	RequireClientCert     bool
}

func (fc *FilterChain) Validate() error {
	hcmCount := 0
	for i := range fc.Filters {
		if err := fc.Filters[i].Validate(); err != nil {
			return err
		}
		if fc.Filters[i].HCM != nil {
			hcmCount++
		}
	}
	if hcmCount > 1 {
		return invalid("filter_chain", "at most one HttpConnectionManager is allowed per filter chain")
	}
	return nil
}

// ListenerConfiguration is Listener.configuration.
type ListenerConfiguration struct {
	FilterChains []FilterChain
}

// Listener is the address/port-bound entity accepting connections.
type Listener struct {
	ID            string
	Name          string
	Address       string
	Port          uint32
	Protocol      string
	Team          string
	Source        ResourceSource
	Configuration ListenerConfiguration
	Version       int64
}

func (l *Listener) Validate() error {
	if l.Name == "" {
		return invalid("name", "listener name must not be empty")
	}
	if l.Address == "" {
		return invalid("address", "listener %q requires an address", l.Name)
	}
	if l.Port == 0 || l.Port > 65535 {
		return invalid("port", "listener %q port %d out of range", l.Name, l.Port)
	}
	for i := range l.Configuration.FilterChains {
		if err := l.Configuration.FilterChains[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// RouteConfigRefs returns every named route config this listener's HCMs
// reference via RDS, used by the filter materializer and the refresh
// orchestrator's ordering check.
func (l *Listener) RouteConfigRefs() []string {
	var names []string
	seen := make(map[string]struct{})
	for _, fc := range l.Configuration.FilterChains {
		for _, f := range fc.Filters {
			if f.HCM == nil || f.HCM.RouteConfigName == "" {
				continue
			}
			if _, ok := seen[f.HCM.RouteConfigName]; ok {
				continue
			}
			seen[f.HCM.RouteConfigName] = struct{}{}
			names = append(names, f.HCM.RouteConfigName)
		}
	}
	return names
}

// ClusterRefs returns every cluster name this listener's TCP proxies
// reference, used by the refresh orchestrator's existence check.
func (l *Listener) ClusterRefs() []string {
	var names []string
	for _, fc := range l.Configuration.FilterChains {
		for _, f := range fc.Filters {
			if f.TCP != nil && f.TCP.Cluster != "" {
				names = append(names, f.TCP.Cluster)
			}
		}
	}
	return names
}
