package memory

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"go.yaml.in/yaml/v2"

	"github.com/moonkev/flexds/internal/common/config"
	"github.com/moonkev/flexds/internal/model"
)

// SeedDocument is the top-level shape of a YAML fixture file loaded at
// startup to pre-populate a Store, one field per resource kind.
type SeedDocument struct {
	Organizations []model.Organization `yaml:"organizations"`
	Teams         []model.Team         `yaml:"teams"`
	Clusters      []model.Cluster      `yaml:"clusters"`
	Listeners     []model.Listener     `yaml:"listeners"`
	RouteConfigs  []model.RouteConfig  `yaml:"route_configs"`
	Secrets       []model.Secret       `yaml:"secrets"`
	FilterRows    []model.FilterRow    `yaml:"filter_rows"`

	// RefreshInterval, when set, tells the caller how often to re-run the
	// refresh orchestrator against an unchanged repository, so external
	// state the repository doesn't model directly (cluster health, secret
	// rotation) still reaches envoy on a bound cadence. Zero/omitted means
	// refresh only happens on writes.
	RefreshInterval *config.Duration `yaml:"refresh_interval,omitempty"`
}

// LoadSeedFile reads a YAML fixture from path and populates store with its
// contents, assigning IDs to any row that arrives without one. reservedPorts
// names ports (typically the control plane's own ADS/admin ports) no seeded
// listener may bind; pass nil to disable the check. It returns the parsed
// document (so callers can act on fields like RefreshInterval) and the
// first validation error encountered, identifying the offending row.
func LoadSeedFile(ctx context.Context, store *Store, path string, reservedPorts []uint32) (*SeedDocument, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("memory: read seed file: %w", err)
	}
	var doc SeedDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("memory: parse seed file: %w", err)
	}
	if err := checkReservedListenerPorts(doc.Listeners, reservedPorts); err != nil {
		return nil, err
	}
	if err := LoadSeedDocument(ctx, store, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func checkReservedListenerPorts(listeners []model.Listener, reservedPorts []uint32) error {
	if len(reservedPorts) == 0 {
		return nil
	}
	reserved := make(map[uint32]struct{}, len(reservedPorts))
	for _, p := range reservedPorts {
		reserved[p] = struct{}{}
	}
	for _, l := range listeners {
		if _, ok := reserved[l.Port]; ok {
			return fmt.Errorf("memory: seed listener %q binds reserved port %d", l.Name, l.Port)
		}
	}
	return nil
}

// LoadSeedDocument populates store from an already-parsed SeedDocument.
func LoadSeedDocument(ctx context.Context, store *Store, doc *SeedDocument) error {
	for i := range doc.Organizations {
		org := doc.Organizations[i]
		if err := org.Validate(); err != nil {
			return fmt.Errorf("memory: seed organization %q: %w", org.Name, err)
		}
		store.PutOrganization(&org)
	}
	for i := range doc.Teams {
		team := doc.Teams[i]
		if err := team.Validate(); err != nil {
			return fmt.Errorf("memory: seed team %q: %w", team.Name, err)
		}
		store.PutTeam(&team)
	}
	for i := range doc.Clusters {
		c := doc.Clusters[i]
		if err := c.Validate(); err != nil {
			return fmt.Errorf("memory: seed cluster %q: %w", c.Name, err)
		}
		if err := store.CreateCluster(ctx, &c); err != nil {
			return fmt.Errorf("memory: seed cluster %q: %w", c.Name, err)
		}
	}
	for i := range doc.RouteConfigs {
		rc := doc.RouteConfigs[i]
		if err := rc.Validate(); err != nil {
			return fmt.Errorf("memory: seed route config %q: %w", rc.Name, err)
		}
		if err := store.CreateRouteConfig(ctx, &rc); err != nil {
			return fmt.Errorf("memory: seed route config %q: %w", rc.Name, err)
		}
	}
	for i := range doc.Listeners {
		l := doc.Listeners[i]
		if err := l.Validate(); err != nil {
			return fmt.Errorf("memory: seed listener %q: %w", l.Name, err)
		}
		if err := store.CreateListener(ctx, &l); err != nil {
			return fmt.Errorf("memory: seed listener %q: %w", l.Name, err)
		}
	}
	for i := range doc.Secrets {
		sec := doc.Secrets[i]
		if err := sec.Validate(); err != nil {
			return fmt.Errorf("memory: seed secret %q: %w", sec.Name, err)
		}
		if err := store.CreateSecret(ctx, &sec); err != nil {
			return fmt.Errorf("memory: seed secret %q: %w", sec.Name, err)
		}
	}
	for i := range doc.FilterRows {
		f := doc.FilterRows[i]
		if err := f.Validate(); err != nil {
			return fmt.Errorf("memory: seed filter row %q: %w", f.Name, err)
		}
		if err := store.CreateFilterRow(ctx, &f); err != nil {
			return fmt.Errorf("memory: seed filter row %q: %w", f.Name, err)
		}
	}
	slog.Info("loaded seed fixture",
		"organizations", len(doc.Organizations),
		"teams", len(doc.Teams),
		"clusters", len(doc.Clusters),
		"listeners", len(doc.Listeners),
		"route_configs", len(doc.RouteConfigs),
		"secrets", len(doc.Secrets),
		"filter_rows", len(doc.FilterRows),
	)
	return nil
}
