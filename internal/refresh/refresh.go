// Package refresh implements the dependency-ordered rebuild of the xDS
// cache from the repository: clusters, then route configs (native plus
// synthesised Platform API overlays), then listeners (which may provision
// JWKS clusters along the way), then secrets. It is invoked after every
// successful write operation and once at startup.
package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	hcm "github.com/envoyproxy/go-control-plane/envoy/extensions/filters/network/http_connection_manager/v3"

	"github.com/moonkev/flexds/internal/cache"
	"github.com/moonkev/flexds/internal/compiler"
	"github.com/moonkev/flexds/internal/filters"
	"github.com/moonkev/flexds/internal/model"
	"github.com/moonkev/flexds/internal/repository"
	"github.com/moonkev/flexds/internal/telemetry"
)

var log = slog.Default()

// VersionNotifier is the subset of internal/xds.Server the orchestrator
// needs: a way to wake every live ADS stream after a cache version bump.
// Kept as an interface so this package does not depend on the gRPC
// transport.
type VersionNotifier interface {
	NotifyVersionBump()
}

// Orchestrator serialises refresh runs behind a single mutex and coalesces
// concurrent callers into at most one in-flight run plus one pending
// re-run, never a queue.
type Orchestrator struct {
	repo      repository.Repository
	materializer *filters.Materializer
	cache     *cache.Cache
	notifier  VersionNotifier

	mu       sync.Mutex
	running  bool
	waiters  []chan error
}

// New constructs an Orchestrator over the given repository, filter
// materializer, cache, and stream notifier.
func New(repo repository.Repository, materializer *filters.Materializer, c *cache.Cache, notifier VersionNotifier) *Orchestrator {
	return &Orchestrator{repo: repo, materializer: materializer, cache: c, notifier: notifier}
}

// Run executes (or joins) a refresh. If a run is already in flight, the
// caller is coalesced: it blocks until the run that was in flight when it
// arrived, plus at most one further run picking up anything written while
// that run was executing, has completed — never a queue of individual
// re-runs.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		ch := make(chan error, 1)
		o.waiters = append(o.waiters, ch)
		o.mu.Unlock()
		select {
		case err := <-ch:
			return err
		case <-ctx.Done():
			return fmt.Errorf("refresh: deadline exceeded waiting for coalesced run: %w", ctx.Err())
		}
	}
	o.running = true
	o.mu.Unlock()

	return o.runAndDrainPending(ctx)
}

func (o *Orchestrator) runAndDrainPending(ctx context.Context) error {
	err := o.execute(ctx)

	for {
		o.mu.Lock()
		waiters := o.waiters
		o.waiters = nil
		if len(waiters) == 0 {
			o.running = false
			o.mu.Unlock()
			return err
		}
		o.mu.Unlock()

		// At least one caller arrived while the previous run was executing;
		// run once more so their writes are reflected, then hand every
		// waiter that result instead of each re-running independently.
		extraErr := o.execute(context.Background())
		for _, w := range waiters {
			w <- extraErr
		}
	}
}

// execute runs the five ordered phases. A failure in any phase stops the
// sequence immediately; resources committed by earlier phases in this run
// remain cached (the next refresh converges).
func (o *Orchestrator) execute(ctx context.Context) error {
	start := time.Now()
	telemetry.MetricRefreshRunsTotal.Inc()
	err := o.executePhases(ctx)
	telemetry.MetricRefreshDurationSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		telemetry.MetricRefreshFailuresTotal.Inc()
		return err
	}
	telemetry.MetricCacheVersion.Set(float64(o.cache.Version()))
	for _, typeURL := range []string{cache.ClusterTypeURL, cache.RouteTypeURL, cache.ListenerTypeURL, cache.SecretTypeURL} {
		telemetry.MetricCacheResourceCount.WithLabelValues(typeURL).Set(float64(o.cache.ResourceCount(typeURL)))
	}
	return nil
}

func (o *Orchestrator) executePhases(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	if err := o.refreshClusters(ctx); err != nil {
		return fmt.Errorf("refresh: clusters phase: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	if err := o.refreshRoutes(ctx); err != nil {
		return fmt.Errorf("refresh: routes phase: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	if err := o.refreshListeners(ctx); err != nil {
		return fmt.Errorf("refresh: listeners phase: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	if err := o.refreshSecrets(ctx); err != nil {
		return fmt.Errorf("refresh: secrets phase: %w", err)
	}
	o.notifier.NotifyVersionBump()
	return nil
}

// refreshClusters is phase 1. It is also invoked standalone by the
// listeners phase when JWKS auto-provisioning adds a cluster mid-refresh.
func (o *Orchestrator) refreshClusters(ctx context.Context) error {
	clusters, err := o.repo.ListClusters(ctx, repository.TeamFilter{})
	if err != nil {
		return fmt.Errorf("list clusters: %w", err)
	}
	built := make([]cache.BuiltResource, 0, len(clusters))
	for _, c := range clusters {
		res, err := compiler.CompileCluster(c)
		if err != nil {
			return fmt.Errorf("compile cluster %q: %w", c.Name, err)
		}
		built = append(built, res)
	}
	version, changed := o.cache.Apply(cache.ClusterTypeURL, built)
	if changed {
		log.Info("cache updated", "type", "cluster", "count", len(built), "version", version)
	}
	return nil
}

// refreshRoutes is phases 2 and 3 combined into a single cache.Apply call:
// Cache.Apply replaces the entire snapshot for a type, so native route
// configs and synthesised Platform API overlays must be compiled together
// and applied once for the overlays to be additive rather than clobber the
// native set.
func (o *Orchestrator) refreshRoutes(ctx context.Context) error {
	routeConfigs, err := o.repo.ListRouteConfigs(ctx, repository.TeamFilter{})
	if err != nil {
		return fmt.Errorf("list route configs: %w", err)
	}
	built := make([]cache.BuiltResource, 0, len(routeConfigs))
	for _, rc := range routeConfigs {
		res, err := compiler.CompileRouteConfig(rc, o.materializer.EncodePerRouteOverrides)
		if err != nil {
			return fmt.Errorf("compile route config %q: %w", rc.Name, err)
		}
		built = append(built, res)
	}

	definitions, err := o.repo.ListApiDefinitions(ctx, repository.TeamFilter{})
	if err != nil {
		return fmt.Errorf("list api definitions: %w", err)
	}
	for _, d := range definitions {
		overlay := synthesizeOverlayRouteConfig(d)
		res, err := compiler.CompileRouteConfig(overlay, o.materializer.EncodePerRouteOverrides)
		if err != nil {
			return fmt.Errorf("compile platform overlay %q: %w", overlay.Name, err)
		}
		built = append(built, res)
	}

	version, changed := o.cache.Apply(cache.RouteTypeURL, built)
	if changed {
		log.Info("cache updated", "type", "route", "count", len(built), "version", version)
	}
	return nil
}

// refreshListeners is phase 4: compile every listener, materializing its
// filter chain via internal/filters. Any remote-JWKS provider that names a
// cluster absent from the repository is auto-provisioned, and the cluster
// phase is re-run once to commit it before listeners referencing it are
// applied.
func (o *Orchestrator) refreshListeners(ctx context.Context) error {
	listeners, err := o.repo.ListListeners(ctx, repository.TeamFilter{})
	if err != nil {
		return fmt.Errorf("list listeners: %w", err)
	}

	builders := make([]func(model.HTTPFilterRef) (*hcm.HttpFilter, error), len(listeners))
	provisionedAny := false
	for i, l := range listeners {
		builder, jwksReqs, err := o.materializer.BuildForListener(ctx, l)
		if err != nil {
			return fmt.Errorf("materialize filters for listener %q: %w", l.Name, err)
		}
		builders[i] = builder
		for _, req := range jwksReqs {
			created, err := o.ensureJWKSCluster(ctx, req)
			if err != nil {
				return fmt.Errorf("provision jwks cluster %q: %w", req.ClusterName, err)
			}
			provisionedAny = provisionedAny || created
		}
	}

	if provisionedAny {
		if err := o.refreshClusters(ctx); err != nil {
			return fmt.Errorf("re-apply clusters after jwks provisioning: %w", err)
		}
	}

	built := make([]cache.BuiltResource, 0, len(listeners))
	for i, l := range listeners {
		res, err := compiler.CompileListener(l, o.materializer.EncodePerRouteOverrides, builders[i])
		if err != nil {
			return fmt.Errorf("compile listener %q: %w", l.Name, err)
		}
		built = append(built, res)
	}
	version, changed := o.cache.Apply(cache.ListenerTypeURL, built)
	if changed {
		log.Info("cache updated", "type", "listener", "count", len(built), "version", version)
	}
	return nil
}

// refreshSecrets is phase 5.
func (o *Orchestrator) refreshSecrets(ctx context.Context) error {
	secrets, err := o.repo.ListSecrets(ctx, repository.TeamFilter{})
	if err != nil {
		return fmt.Errorf("list secrets: %w", err)
	}
	built := make([]cache.BuiltResource, 0, len(secrets))
	for _, s := range secrets {
		res, err := compiler.CompileSecret(s)
		if err != nil {
			return fmt.Errorf("compile secret %q: %w", s.Name, err)
		}
		built = append(built, res)
	}
	version, changed := o.cache.Apply(cache.SecretTypeURL, built)
	if changed {
		log.Info("cache updated", "type", "secret", "count", len(built), "version", version)
	}
	return nil
}

// ensureJWKSCluster creates the named cluster, pointed at the provider's
// JWKS host, if it does not already exist. The discovery type (STATIC vs
// LOGICAL_DNS vs STRICT_DNS) and any upstream TLS follow from
// ClusterConfiguration.DiscoveryType/RequiresUpstreamTLS the same as any
// other cluster; nothing JWKS-specific needs to be set beyond the endpoint
// and TLS/SNI.
func (o *Orchestrator) ensureJWKSCluster(ctx context.Context, req filters.JWKSClusterRequest) (created bool, err error) {
	_, err = o.repo.GetClusterByName(ctx, req.ClusterName)
	if err == nil {
		return false, nil
	}
	if err != repository.ErrNotFound {
		return false, err
	}

	c := &model.Cluster{
		Name:        req.ClusterName,
		ServiceName: req.ClusterName,
		Source:      model.SourceNativeAPI,
		Configuration: model.ClusterConfiguration{
			Endpoints:     []string{fmt.Sprintf("%s:%d", req.Host, req.Port)},
			LbPolicy:      model.LbRoundRobin,
			UseTLS:        req.UseTLS,
			TLSServerName: req.Host,
		},
	}
	if err := c.Validate(); err != nil {
		return false, fmt.Errorf("auto-provisioned jwks cluster %q is invalid: %w", req.ClusterName, err)
	}
	if err := o.repo.CreateCluster(ctx, c); err != nil {
		return false, err
	}
	telemetry.MetricJWKSClustersProvisionedTotal.Inc()
	log.Info("auto-provisioned jwks cluster", "cluster", req.ClusterName, "host", req.Host, "port", req.Port)
	return true, nil
}
