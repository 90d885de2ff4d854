// Package ops implements the operations facade: the only path by which
// resources are created, read, updated, or deleted. Every method
// authorizes the call against an authctx.Context, translates repository
// errors into the ops error taxonomy, and on a successful write triggers
// the refresh orchestrator so the xDS cache converges.
package ops

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/moonkev/flexds/internal/authctx"
	"github.com/moonkev/flexds/internal/authz"
	"github.com/moonkev/flexds/internal/model"
	"github.com/moonkev/flexds/internal/refresh"
	"github.com/moonkev/flexds/internal/repository"
	"github.com/moonkev/flexds/internal/telemetry"
)

var log = slog.Default()

// Refresher is the subset of internal/refresh.Orchestrator the facade
// needs, kept as an interface so tests can substitute a no-op.
type Refresher interface {
	Run(ctx context.Context) error
}

var _ Refresher = (*refresh.Orchestrator)(nil)

// Facade is the operations facade over one repository and refresh
// orchestrator. defaultGatewayListenerName names the listener that may
// never be deleted through this facade.
type Facade struct {
	repo                       repository.Repository
	refresher                  Refresher
	defaultGatewayListenerName string
	reservedPorts              map[uint32]struct{}
}

// New constructs a Facade. defaultGatewayListenerName is the
// deletion-protected listener name (§4.G step 5); pass "" to disable the
// protection.
func New(repo repository.Repository, refresher Refresher, defaultGatewayListenerName string) *Facade {
	return &Facade{repo: repo, refresher: refresher, defaultGatewayListenerName: defaultGatewayListenerName}
}

// SetReservedPorts marks ports (typically the control plane's own ADS and
// admin ports) as unavailable to CreateListener/UpdateListener, so an
// operator cannot accidentally configure envoy to bind a port the control
// plane process itself already owns.
func (f *Facade) SetReservedPorts(ports []uint32) {
	if len(ports) == 0 {
		f.reservedPorts = nil
		return
	}
	f.reservedPorts = make(map[uint32]struct{}, len(ports))
	for _, p := range ports {
		f.reservedPorts[p] = struct{}{}
	}
}

// checkReservedPort rejects a listener port reserved for the control plane
// process itself.
func (f *Facade) checkReservedPort(port uint32) *Error {
	if f.reservedPorts == nil {
		return nil
	}
	if _, reserved := f.reservedPorts[port]; reserved {
		return conflict(fmt.Sprintf("port %d is reserved for the control plane process", port))
	}
	return nil
}

// resolveListFilter decides the team scope a list call runs under: an
// admin or team-agnostic-scoped caller sees everything (empty filter,
// repository.TeamFilter{} with no Teams meaning "unrestricted" in this
// module's repository contract); anyone else is restricted to exactly the
// teams their scopes name, and a caller with no team-scoped permission for
// this resource/action gets no rows at all rather than an unrestricted
// list — list_by_teams([]) must mean "nothing", not "everything".
func resolveListFilter(ctx *authctx.Context, resource string, action authz.Action) (filter repository.TeamFilter, skip bool) {
	if ctx.HasScope("admin:all") || ctx.HasScope(fmt.Sprintf("%s:%s", resource, action)) {
		return repository.TeamFilter{}, false
	}
	if !authz.CheckResourceAccess(ctx, resource, action, "") {
		return repository.TeamFilter{}, true
	}
	teams := authz.ExtractTeamScopes(ctx)
	if len(teams) == 0 {
		return repository.TeamFilter{}, true
	}
	return repository.TeamFilter{Teams: teams}, false
}

// authorizeRead applies the cross-tenant-hides-existence rule: a caller
// without read access to team is told the resource doesn't exist at all,
// not that they lack permission.
func authorizeRead(ctx *authctx.Context, resource, kind, key, team string) *Error {
	if !authz.CheckResourceAccess(ctx, resource, authz.ActionRead, team) {
		telemetry.MetricOpsRequestsTotal.WithLabelValues(resource, string(authz.ActionRead), "denied").Inc()
		return notFound(kind, key)
	}
	telemetry.MetricOpsRequestsTotal.WithLabelValues(resource, string(authz.ActionRead), "allowed").Inc()
	return nil
}

// authorizeWrite reports a missing write permission as Forbidden. Update and
// delete paths call it after authorizeRead has passed, so existence was
// already disclosed; create paths call it on its own.
func authorizeWrite(ctx *authctx.Context, resource, team string) *Error {
	if !authz.CheckResourceAccess(ctx, resource, authz.ActionWrite, team) {
		telemetry.MetricOpsRequestsTotal.WithLabelValues(resource, string(authz.ActionWrite), "denied").Inc()
		return forbidden(fmt.Sprintf("write access to %s %q denied", resource, team))
	}
	telemetry.MetricOpsRequestsTotal.WithLabelValues(resource, string(authz.ActionWrite), "allowed").Inc()
	return nil
}

// runRefresh invokes the refresh orchestrator after a successful write. A
// deadline/cancellation failure is surfaced to the caller as
// ServiceUnavailable; any other refresh failure is logged and tolerated —
// the write already committed, and the next refresh converges.
func runRefresh(ctx context.Context, refresher Refresher, op string) *Error {
	err := refresher.Run(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return serviceUnavailable(fmt.Sprintf("refresh after %s did not complete in time", op), err)
	}
	log.Warn("refresh failed after write, will self-heal on next run", "op", op, "error", err)
	return nil
}

func validate(v interface{ Validate() error }) *Error {
	if err := v.Validate(); err != nil {
		var ve *model.ValidationError
		if errors.As(err, &ve) {
			return validationErr(ve)
		}
		return internal("validation failed", err)
	}
	return nil
}
