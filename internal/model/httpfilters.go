package model

import "regexp"

// CORSPolicy is the per-route CORS configuration. The CORS network filter
// itself is installed as an empty marker at the HCM level; the policy
// always lives in typed_per_filter_config on the route.
type CORSPolicy struct {
	AllowOrigins     []StringMatcher
	AllowCredentials bool
	AllowMethods     []string
	AllowHeaders     []string
	MaxAgeSeconds    int64
}

// StringMatcher is envoy's exact/prefix/suffix/regex matcher shape.
type StringMatcher struct {
	Exact  string
	Prefix string
	Suffix string
	Regex  string
}

func (m *StringMatcher) compileIfRegex() error {
	if m.Regex == "" {
		return nil
	}
	_, err := regexp.Compile(m.Regex)
	return err
}

var validHTTPMethods = map[string]struct{}{
	"GET": {}, "HEAD": {}, "POST": {}, "PUT": {}, "PATCH": {}, "DELETE": {}, "OPTIONS": {}, "TRACE": {}, "CONNECT": {},
}

func (p *CORSPolicy) Validate() error {
	if len(p.AllowOrigins) == 0 {
		return invalid("cors.allow_origins", "cors policy requires at least one origin matcher")
	}
	for i := range p.AllowOrigins {
		m := &p.AllowOrigins[i]
		if p.AllowCredentials && m.Exact == "*" {
			return invalid("cors.allow_origins", "allow_credentials cannot be combined with an exact \"*\" origin")
		}
		if err := m.compileIfRegex(); err != nil {
			return invalid("cors.allow_origins", "invalid regex matcher: %v", err)
		}
	}
	for _, method := range p.AllowMethods {
		if _, ok := validHTTPMethods[method]; !ok {
			return invalid("cors.allow_methods", "unknown http method %q", method)
		}
	}
	for _, h := range p.AllowHeaders {
		if h == "" {
			return invalid("cors.allow_headers", "header name must not be empty")
		}
	}
	const maxAge = 315576000000
	if p.MaxAgeSeconds > maxAge {
		return invalid("cors.max_age", "max_age %d exceeds limit %d", p.MaxAgeSeconds, maxAge)
	}
	return nil
}

// LocalRateLimitConfig is the local_rate_limit filter's configuration.
type LocalRateLimitConfig struct {
	StatPrefix           string
	FillIntervalMillis   int64
	MaxTokens            uint32
	TokensPerFill        uint32
	FilterEnabledPercent *uint32 // nil => default 100
	FilterEnforcedPercent *uint32
}

func (c *LocalRateLimitConfig) Validate() error {
	if c.FillIntervalMillis <= 0 {
		return invalid("local_rate_limit.token_bucket.fill_interval", "fill_interval must be > 0")
	}
	return nil
}

// EnabledPercent returns the configured value or the 100%-runtime-fractional
// default.
func (c *LocalRateLimitConfig) EnabledPercent() uint32 {
	if c.FilterEnabledPercent != nil {
		return *c.FilterEnabledPercent
	}
	return 100
}

func (c *LocalRateLimitConfig) EnforcedPercent() uint32 {
	if c.FilterEnforcedPercent != nil {
		return *c.FilterEnforcedPercent
	}
	return 100
}

// CompressorGzipConfig configures the gzip compressor filter.
type CompressorGzipConfig struct {
	MemoryLevel int
	WindowBits  int
}

func (c *CompressorGzipConfig) Validate() error {
	if c.MemoryLevel < 1 || c.MemoryLevel > 9 {
		return invalid("compressor.memory_level", "memory_level %d out of range [1,9]", c.MemoryLevel)
	}
	if c.WindowBits < 9 || c.WindowBits > 15 {
		return invalid("compressor.window_bits", "window_bits %d out of range [9,15]", c.WindowBits)
	}
	return nil
}

// CustomResponseMatcher maps a status code range to a replacement body.
type CustomResponseMatcher struct {
	MinStatus int
	MaxStatus int
	Body      string
}

// CustomResponseConfig is the custom_response filter's configuration.
type CustomResponseConfig struct {
	Matchers              []CustomResponseMatcher
	LegacyMatcher         *CustomResponseMatcher
}

func (c *CustomResponseConfig) Validate() error {
	hasMatchers := len(c.Matchers) > 0
	hasLegacy := c.LegacyMatcher != nil
	if hasMatchers == hasLegacy {
		return invalid("custom_response", "exactly one of matchers or legacy custom_response_matcher must be set")
	}
	check := func(m CustomResponseMatcher) error {
		if m.MinStatus < 100 || m.MinStatus > 599 || m.MaxStatus < 100 || m.MaxStatus > 599 {
			return invalid("custom_response.matchers", "status codes must be within [100,599]")
		}
		if m.MinStatus > m.MaxStatus {
			return invalid("custom_response.matchers", "min status %d exceeds max status %d", m.MinStatus, m.MaxStatus)
		}
		return nil
	}
	for _, m := range c.Matchers {
		if err := check(m); err != nil {
			return err
		}
	}
	if hasLegacy {
		if err := check(*c.LegacyMatcher); err != nil {
			return err
		}
	}
	return nil
}

// HeaderMutationConfig adds/removes request or response headers.
type HeaderMutationConfig struct {
	SetHeaders    map[string]string
	RemoveHeaders []string
}

func (c *HeaderMutationConfig) Validate() error {
	for k := range c.SetHeaders {
		if k == "" {
			return invalid("header_mutation.set_headers", "header key must not be empty")
		}
	}
	for _, k := range c.RemoveHeaders {
		if k == "" {
			return invalid("header_mutation.remove_headers", "remove-list entries must not be empty")
		}
	}
	return nil
}

// numberToInt64 coerces a decoded config value to int64, accepting the shapes
// a JSON or YAML decoder actually produces (float64 from encoding/json,
// int/int64 from go.yaml.in/yaml).
func numberToInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case uint32:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}

func stringSlice(v interface{}) []string {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// DecodeCORSPolicy decodes a FilterRow's raw configuration into a CORSPolicy.
func DecodeCORSPolicy(raw map[string]interface{}) *CORSPolicy {
	p := &CORSPolicy{}
	if raw == nil {
		return p
	}
	if origins, ok := raw["allow_origins"].([]interface{}); ok {
		for _, o := range origins {
			m, ok := o.(map[string]interface{})
			if !ok {
				continue
			}
			sm := StringMatcher{}
			if s, ok := m["exact"].(string); ok {
				sm.Exact = s
			}
			if s, ok := m["prefix"].(string); ok {
				sm.Prefix = s
			}
			if s, ok := m["suffix"].(string); ok {
				sm.Suffix = s
			}
			if s, ok := m["regex"].(string); ok {
				sm.Regex = s
			}
			p.AllowOrigins = append(p.AllowOrigins, sm)
		}
	}
	if b, ok := raw["allow_credentials"].(bool); ok {
		p.AllowCredentials = b
	}
	p.AllowMethods = stringSlice(raw["allow_methods"])
	p.AllowHeaders = stringSlice(raw["allow_headers"])
	if n, ok := numberToInt64(raw["max_age_seconds"]); ok {
		p.MaxAgeSeconds = n
	}
	return p
}

// DecodeLocalRateLimitConfig decodes a FilterRow's raw configuration into a
// LocalRateLimitConfig.
func DecodeLocalRateLimitConfig(raw map[string]interface{}) *LocalRateLimitConfig {
	c := &LocalRateLimitConfig{}
	if raw == nil {
		return c
	}
	if s, ok := raw["stat_prefix"].(string); ok {
		c.StatPrefix = s
	}
	if n, ok := numberToInt64(raw["fill_interval_ms"]); ok {
		c.FillIntervalMillis = n
	}
	if n, ok := numberToInt64(raw["max_tokens"]); ok {
		c.MaxTokens = uint32(n)
	}
	if n, ok := numberToInt64(raw["tokens_per_fill"]); ok {
		c.TokensPerFill = uint32(n)
	}
	if n, ok := numberToInt64(raw["filter_enabled_percent"]); ok {
		v := uint32(n)
		c.FilterEnabledPercent = &v
	}
	if n, ok := numberToInt64(raw["filter_enforced_percent"]); ok {
		v := uint32(n)
		c.FilterEnforcedPercent = &v
	}
	return c
}

// DecodeCompressorGzipConfig decodes a FilterRow's raw configuration into a
// CompressorGzipConfig.
func DecodeCompressorGzipConfig(raw map[string]interface{}) *CompressorGzipConfig {
	c := &CompressorGzipConfig{}
	if raw == nil {
		return c
	}
	if n, ok := numberToInt64(raw["memory_level"]); ok {
		c.MemoryLevel = int(n)
	}
	if n, ok := numberToInt64(raw["window_bits"]); ok {
		c.WindowBits = int(n)
	}
	return c
}

func decodeCustomResponseMatcher(raw map[string]interface{}) CustomResponseMatcher {
	m := CustomResponseMatcher{}
	if n, ok := numberToInt64(raw["min_status"]); ok {
		m.MinStatus = int(n)
	}
	if n, ok := numberToInt64(raw["max_status"]); ok {
		m.MaxStatus = int(n)
	}
	if s, ok := raw["body"].(string); ok {
		m.Body = s
	}
	return m
}

// DecodeCustomResponseConfig decodes a FilterRow's raw configuration into a
// CustomResponseConfig.
func DecodeCustomResponseConfig(raw map[string]interface{}) *CustomResponseConfig {
	c := &CustomResponseConfig{}
	if raw == nil {
		return c
	}
	if matchers, ok := raw["matchers"].([]interface{}); ok {
		for _, m := range matchers {
			mm, ok := m.(map[string]interface{})
			if !ok {
				continue
			}
			c.Matchers = append(c.Matchers, decodeCustomResponseMatcher(mm))
		}
	}
	if legacy, ok := raw["legacy_matcher"].(map[string]interface{}); ok {
		m := decodeCustomResponseMatcher(legacy)
		c.LegacyMatcher = &m
	}
	return c
}

// DecodeHeaderMutationConfig decodes a FilterRow's raw configuration into a
// HeaderMutationConfig.
func DecodeHeaderMutationConfig(raw map[string]interface{}) *HeaderMutationConfig {
	c := &HeaderMutationConfig{}
	if raw == nil {
		return c
	}
	if set, ok := raw["set_headers"].(map[string]interface{}); ok {
		c.SetHeaders = make(map[string]string, len(set))
		for k, v := range set {
			if s, ok := v.(string); ok {
				c.SetHeaders[k] = s
			}
		}
	}
	c.RemoveHeaders = stringSlice(raw["remove_headers"])
	return c
}
