// Package platform implements the Platform API materializer: it turns a
// team-owned, domain-scoped ApiDefinitionSpec into the clusters and
// (optionally) isolated listener that back it, then drives the refresh
// orchestrator so routes and the xDS cache catch up.
//
// Native route configs and listeners are compiled directly from their own
// repository rows by internal/compiler; a Platform API definition instead
// produces its route config and the filter wiring for its listener
// dynamically, at refresh time, from internal/refresh's overlay step. This
// package only ever persists the definition row and its clusters (and, in
// isolated mode, the listener shell).
package platform

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/moonkev/flexds/internal/idgen"
	"github.com/moonkev/flexds/internal/model"
	"github.com/moonkev/flexds/internal/repository"
)

var log = slog.Default()

// Refresher is the subset of internal/refresh.Orchestrator this package
// needs.
type Refresher interface {
	Run(ctx context.Context) error
}

// Materializer owns the Platform API lifecycle.
type Materializer struct {
	repo      repository.Repository
	refresher Refresher
}

func New(repo repository.Repository, refresher Refresher) *Materializer {
	return &Materializer{repo: repo, refresher: refresher}
}

// Spec is the input to Create: the team-facing shape of an API definition
// before any generated ids exist.
type Spec struct {
	Team              string
	Domain            string
	Routes            []model.ApiDefinitionRoute
	ListenerIsolation bool
	IsolationListener string // optional existing listener name to reuse
	TLSConfig         *model.TLSConfig
	BootstrapURIFunc  func(team, domain string) string
}

// Create materializes a new ApiDefinition: uniqueness and listener-collision
// checks, cluster dedup/provisioning, optional isolated listener creation,
// definition persistence, bootstrap metadata stamping, and a full ordered
// refresh (clusters -> routes -> platform overlays -> listeners).
func (m *Materializer) Create(ctx context.Context, spec Spec) (*model.ApiDefinition, error) {
	if _, err := m.repo.GetApiDefinitionByTeamDomain(ctx, spec.Team, spec.Domain); err == nil {
		return nil, fmt.Errorf("platform: api definition for team %q domain %q already exists", spec.Team, spec.Domain)
	} else if err != repository.ErrNotFound {
		return nil, fmt.Errorf("platform: checking existing definition: %w", err)
	}

	address, port, err := m.resolveIsolationAddressPort(ctx, spec)
	if err != nil {
		return nil, err
	}

	d := &model.ApiDefinition{
		ID:                idgen.New(),
		Team:              spec.Team,
		Domain:            spec.Domain,
		TLSConfig:         spec.TLSConfig,
		ListenerIsolation: spec.ListenerIsolation,
		IsolationListener: spec.IsolationListener,
		Routes:            spec.Routes,
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("platform: %w", err)
	}

	if err := m.repo.CreateApiDefinition(ctx, d); err != nil {
		return nil, fmt.Errorf("platform: persisting api definition: %w", err)
	}

	if err := m.provisionClusters(ctx, d); err != nil {
		return nil, fmt.Errorf("platform: provisioning clusters: %w", err)
	}

	if spec.ListenerIsolation {
		if err := m.ensureIsolationListener(ctx, d, address, port); err != nil {
			return nil, fmt.Errorf("platform: provisioning isolation listener: %w", err)
		}
	}

	revision := d.BootstrapRevision + 1
	uri := ""
	if spec.BootstrapURIFunc != nil {
		uri = spec.BootstrapURIFunc(spec.Team, spec.Domain)
	} else {
		uri = defaultBootstrapURI(spec.Team, spec.Domain)
	}
	if err := m.repo.UpdateBootstrapMetadata(ctx, d.ID, revision, uri); err != nil {
		return nil, fmt.Errorf("platform: stamping bootstrap metadata: %w", err)
	}
	d.BootstrapRevision = revision
	d.BootstrapURI = uri

	if err := m.refresh(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// Update replaces an existing definition's routes/tls/isolation settings,
// re-provisions clusters (and the isolation listener if newly requested),
// best-effort cleans up clusters orphaned by the edit, and runs a full
// refresh.
func (m *Materializer) Update(ctx context.Context, id string, spec Spec) (*model.ApiDefinition, error) {
	existing, err := m.repo.GetApiDefinitionByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("platform: loading existing definition: %w", err)
	}

	before := existing.UniqueEndpoints()

	address, port, err := m.resolveIsolationAddressPort(ctx, spec)
	if err != nil {
		return nil, err
	}

	existing.Routes = spec.Routes
	existing.TLSConfig = spec.TLSConfig
	existing.ListenerIsolation = spec.ListenerIsolation
	existing.IsolationListener = spec.IsolationListener
	if err := existing.Validate(); err != nil {
		return nil, fmt.Errorf("platform: %w", err)
	}
	if err := m.repo.UpdateApiDefinition(ctx, existing); err != nil {
		return nil, fmt.Errorf("platform: persisting updated definition: %w", err)
	}

	if err := m.provisionClusters(ctx, existing); err != nil {
		return nil, fmt.Errorf("platform: provisioning clusters: %w", err)
	}
	m.cleanupOrphanedClusters(ctx, existing, before)

	if spec.ListenerIsolation {
		if err := m.ensureIsolationListener(ctx, existing, address, port); err != nil {
			return nil, fmt.Errorf("platform: provisioning isolation listener: %w", err)
		}
	}

	revision := existing.BootstrapRevision + 1
	uri := existing.BootstrapURI
	if spec.BootstrapURIFunc != nil {
		uri = spec.BootstrapURIFunc(spec.Team, spec.Domain)
	}
	if err := m.repo.UpdateBootstrapMetadata(ctx, existing.ID, revision, uri); err != nil {
		return nil, fmt.Errorf("platform: stamping bootstrap metadata: %w", err)
	}
	existing.BootstrapRevision = revision
	existing.BootstrapURI = uri

	if err := m.refresh(ctx); err != nil {
		return nil, err
	}
	return existing, nil
}

// Delete removes a definition and best-effort deletes its now-orphaned
// clusters, logging and continuing past individual cleanup failures so a
// partially-broken cluster set never blocks the delete itself.
func (m *Materializer) Delete(ctx context.Context, id string) error {
	existing, err := m.repo.GetApiDefinitionByID(ctx, id)
	if err != nil {
		return fmt.Errorf("platform: loading definition: %w", err)
	}
	if err := m.repo.DeleteApiDefinition(ctx, id); err != nil {
		return fmt.Errorf("platform: deleting definition: %w", err)
	}
	before := existing.UniqueEndpoints()
	existing.Routes = nil
	m.cleanupOrphanedClusters(ctx, existing, before)
	return m.refresh(ctx)
}

// resolveIsolationAddressPort implements the listener-collision pre-check:
// reusing a named isolation listener requires its existing address/port to
// match (there is none to match on create, so an explicit name with no
// existing listener is an error); otherwise a port is hashed from the domain
// and its address/port pair must be unused.
func (m *Materializer) resolveIsolationAddressPort(ctx context.Context, spec Spec) (address string, port uint32, err error) {
	if !spec.ListenerIsolation {
		return "", 0, nil
	}
	const defaultAddress = "0.0.0.0"
	if spec.IsolationListener != "" {
		existing, err := m.repo.GetListenerByName(ctx, spec.IsolationListener)
		if err != nil {
			return "", 0, fmt.Errorf("platform: isolation listener %q does not exist", spec.IsolationListener)
		}
		return existing.Address, existing.Port, nil
	}
	port = idgen.PortFromDomain(spec.Domain)
	if _, err := m.repo.FindListenerByAddressPort(ctx, defaultAddress, port); err == nil {
		return "", 0, fmt.Errorf("platform: hashed port %d for domain %q is already bound", port, spec.Domain)
	} else if err != repository.ErrNotFound {
		return "", 0, fmt.Errorf("platform: checking listener collision: %w", err)
	}
	return defaultAddress, port, nil
}

// provisionClusters deduplicates upstream targets across all of d's routes
// by endpoint string and creates exactly one cluster per unique endpoint not
// already present, tagged source=platform_api.
func (m *Materializer) provisionClusters(ctx context.Context, d *model.ApiDefinition) error {
	for _, endpoint := range d.UniqueEndpoints() {
		name := d.ClusterNameForEndpoint(endpoint)
		if _, err := m.repo.GetClusterByName(ctx, name); err == nil {
			continue
		} else if err != repository.ErrNotFound {
			return err
		}
		c := &model.Cluster{
			Name:        name,
			ServiceName: name,
			Team:        d.Team,
			Source:      model.SourcePlatformAPI,
			Configuration: model.ClusterConfiguration{
				Endpoints: []string{endpoint},
				LbPolicy:  model.LbRoundRobin,
			},
		}
		if err := c.Validate(); err != nil {
			return fmt.Errorf("synthesized cluster %q: %w", name, err)
		}
		if err := m.repo.CreateCluster(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

// cleanupOrphanedClusters deletes platform_api clusters named for an
// endpoint no longer referenced by d's current routes. Failures are logged
// and skipped rather than returned, matching the best-effort cleanup policy
// for updates/deletes.
func (m *Materializer) cleanupOrphanedClusters(ctx context.Context, d *model.ApiDefinition, previousEndpoints []string) {
	current := make(map[string]struct{})
	for _, ep := range d.UniqueEndpoints() {
		current[ep] = struct{}{}
	}
	for _, ep := range previousEndpoints {
		if _, stillUsed := current[ep]; stillUsed {
			continue
		}
		name := d.ClusterNameForEndpoint(ep)
		c, err := m.repo.GetClusterByName(ctx, name)
		if err != nil {
			if err != repository.ErrNotFound {
				log.Warn("platform: looking up orphaned cluster for cleanup", "cluster", name, "error", err)
			}
			continue
		}
		if c.Source != model.SourcePlatformAPI {
			continue
		}
		if err := m.repo.DeleteCluster(ctx, c.ID); err != nil {
			log.Warn("platform: failed to delete orphaned cluster, will retry on next edit", "cluster", name, "error", err)
		}
	}
}

// ensureIsolationListener creates the dedicated listener for isolated mode
// if it does not already exist, wired to RDS with
// route_config_name=d.SyntheticRouteConfigName(); the route config itself is
// produced later by the refresh orchestrator's overlay step.
func (m *Materializer) ensureIsolationListener(ctx context.Context, d *model.ApiDefinition, address string, port uint32) error {
	name := d.IsolationListener
	if name == "" {
		name = fmt.Sprintf("platform-api-%s", idgen.ShortID(d.ID, 12))
	}
	if _, err := m.repo.GetListenerByName(ctx, name); err == nil {
		d.IsolationListener = name
		return nil
	} else if err != repository.ErrNotFound {
		return err
	}

	chain := model.FilterChain{
		Filters: []model.ListenerFilter{{
			Name: "envoy.filters.network.http_connection_manager",
			HCM: &model.HTTPConnectionManagerConfig{
				RouteConfigName: d.SyntheticRouteConfigName(),
			},
		}},
	}
	if d.TLSConfig != nil {
		chain.TLSContext = &model.DownstreamTLS{CertificateSecretName: d.TLSConfig.CertificateSecretName}
	}

	l := &model.Listener{
		Name:    name,
		Address: address,
		Port:    port,
		Team:    d.Team,
		Source:  model.SourcePlatformAPI,
		Configuration: model.ListenerConfiguration{
			FilterChains: []model.FilterChain{chain},
		},
	}
	if err := l.Validate(); err != nil {
		return fmt.Errorf("synthesized isolation listener %q: %w", name, err)
	}
	if err := m.repo.CreateListener(ctx, l); err != nil {
		return err
	}
	d.IsolationListener = name
	return nil
}

func (m *Materializer) refresh(ctx context.Context) error {
	if err := m.refresher.Run(ctx); err != nil {
		return fmt.Errorf("platform: refresh after write: %w", err)
	}
	return nil
}

func defaultBootstrapURI(team, domain string) string {
	return fmt.Sprintf("/bootstrap/%s/%s", team, domain)
}
