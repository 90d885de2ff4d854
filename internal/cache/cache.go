// Package cache implements the process-wide xDS resource cache: a map from
// type URL to name to compiled Any, a monotonic version, and the snapshot
// read path used by internal/xds.
package cache

import (
	"bytes"
	"strconv"
	"sync"
	"sync/atomic"

	"google.golang.org/protobuf/types/known/anypb"
)

// Canonical xDS type URLs.
const (
	ClusterTypeURL  = "type.googleapis.com/envoy.config.cluster.v3.Cluster"
	RouteTypeURL    = "type.googleapis.com/envoy.config.route.v3.RouteConfiguration"
	ListenerTypeURL = "type.googleapis.com/envoy.config.listener.v3.Listener"
	SecretTypeURL   = "type.googleapis.com/envoy.extensions.transport_sockets.tls.v3.Secret"
)

// BuiltResource is the compiler's output shape: a name paired with its
// canonical Any-wrapped payload.
type BuiltResource struct {
	Name string
	Any  *anypb.Any
}

// Cache is the single process-wide resource cache. Reads take the read
// lock; Apply takes the write lock; Version is independent atomic state
// read after the map read.
type Cache struct {
	mu      sync.RWMutex
	byType  map[string]map[string]*anypb.Any
	version atomic.Uint64
}

// New constructs an empty cache starting at version 1.
func New() *Cache {
	c := &Cache{byType: make(map[string]map[string]*anypb.Any)}
	c.version.Store(1)
	return c
}

// Apply replaces all resources of typeURL with resources (full-state xDS
// semantics). It bumps the version iff the encoded payload of any resource
// differs from the prior snapshot for that type — including a change in
// which names are present. Returns the new version and whether it changed.
func (c *Cache) Apply(typeURL string, resources []BuiltResource) (version uint64, changed bool) {
	next := make(map[string]*anypb.Any, len(resources))
	for _, r := range resources {
		next[r.Name] = r.Any
	}

	c.mu.Lock()
	prev := c.byType[typeURL]
	changed = !sameResourceSet(prev, next)
	if changed {
		c.byType[typeURL] = next
	}
	c.mu.Unlock()

	if changed {
		version = c.version.Add(1)
	} else {
		version = c.version.Load()
	}
	return version, changed
}

func sameResourceSet(prev, next map[string]*anypb.Any) bool {
	if len(prev) != len(next) {
		return false
	}
	for name, any := range next {
		old, ok := prev[name]
		if !ok {
			return false
		}
		if old.GetTypeUrl() != any.GetTypeUrl() || !bytes.Equal(old.GetValue(), any.GetValue()) {
			return false
		}
	}
	return true
}

// Snapshot is the only read path used by internal/xds: the current decimal
// version string and the resources of typeURL whose names are in names
// (all resources of that type if names is empty).
func (c *Cache) Snapshot(typeURL string, names map[string]struct{}) (version string, resources []*anypb.Any) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	byName := c.byType[typeURL]
	if len(names) == 0 {
		resources = make([]*anypb.Any, 0, len(byName))
		for _, any := range byName {
			resources = append(resources, any)
		}
		return strconv.FormatUint(c.version.Load(), 10), resources
	}
	resources = make([]*anypb.Any, 0, len(names))
	for name := range names {
		if any, ok := byName[name]; ok {
			resources = append(resources, any)
		}
	}
	return strconv.FormatUint(c.version.Load(), 10), resources
}

// Version returns the current version without touching the resource map.
func (c *Cache) Version() uint64 {
	return c.version.Load()
}

// ResourceCount returns how many resources are cached under typeURL, used
// by tests and admin/health reporting.
func (c *Cache) ResourceCount(typeURL string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byType[typeURL])
}
