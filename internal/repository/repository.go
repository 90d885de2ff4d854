// Package repository defines the durable-storage contract the core
// consumes. The core never talks to a database directly; it only depends
// on these interfaces, satisfied in this module by internal/repository/memory
// and, in a production deployment, by a real SQL-backed implementation.
package repository

import (
	"context"
	"errors"

	"github.com/moonkev/flexds/internal/model"
)

// ErrNotFound is returned by get/update/delete when no row matches.
var ErrNotFound = errors.New("repository: not found")

// ErrAlreadyExists is returned by create when a uniqueness constraint would
// be violated.
var ErrAlreadyExists = errors.New("repository: already exists")

// TeamFilter narrows list operations to a set of team names; a nil or empty
// filter means "no team restriction" (callers apply authorization
// separately).
type TeamFilter struct {
	Teams []string
}

// ClusterRepository stores Cluster rows.
type ClusterRepository interface {
	GetClusterByID(ctx context.Context, id string) (*model.Cluster, error)
	GetClusterByName(ctx context.Context, name string) (*model.Cluster, error)
	ListClusters(ctx context.Context, filter TeamFilter) ([]*model.Cluster, error)
	CreateCluster(ctx context.Context, c *model.Cluster) error
	UpdateCluster(ctx context.Context, c *model.Cluster) error
	DeleteCluster(ctx context.Context, id string) error
}

// ListenerRepository stores Listener rows.
type ListenerRepository interface {
	GetListenerByID(ctx context.Context, id string) (*model.Listener, error)
	GetListenerByName(ctx context.Context, name string) (*model.Listener, error)
	ListListeners(ctx context.Context, filter TeamFilter) ([]*model.Listener, error)
	FindListenerByAddressPort(ctx context.Context, address string, port uint32) (*model.Listener, error)
	CreateListener(ctx context.Context, l *model.Listener) error
	UpdateListener(ctx context.Context, l *model.Listener) error
	DeleteListener(ctx context.Context, id string) error
}

// RouteConfigRepository stores RouteConfig rows.
type RouteConfigRepository interface {
	GetRouteConfigByID(ctx context.Context, id string) (*model.RouteConfig, error)
	GetRouteConfigByName(ctx context.Context, name string) (*model.RouteConfig, error)
	ListRouteConfigs(ctx context.Context, filter TeamFilter) ([]*model.RouteConfig, error)
	CreateRouteConfig(ctx context.Context, rc *model.RouteConfig) error
	UpdateRouteConfig(ctx context.Context, rc *model.RouteConfig) error
	DeleteRouteConfig(ctx context.Context, id string) error
}

// SecretRepository stores Secret rows.
type SecretRepository interface {
	GetSecretByID(ctx context.Context, id string) (*model.Secret, error)
	GetSecretByName(ctx context.Context, name string) (*model.Secret, error)
	ListSecrets(ctx context.Context, filter TeamFilter) ([]*model.Secret, error)
	CreateSecret(ctx context.Context, s *model.Secret) error
	UpdateSecret(ctx context.Context, s *model.Secret) error
	DeleteSecret(ctx context.Context, id string) error
}

// FilterRowRepository stores FilterRow rows, keyed by attachment for the
// filter materializer's gather step.
type FilterRowRepository interface {
	GetFilterRowByID(ctx context.Context, id string) (*model.FilterRow, error)
	ListFilterRows(ctx context.Context, filter TeamFilter) ([]*model.FilterRow, error)
	ListFilterRowsByAttachment(ctx context.Context, point model.AttachmentPoint, resourceID string) ([]*model.FilterRow, error)
	CreateFilterRow(ctx context.Context, f *model.FilterRow) error
	UpdateFilterRow(ctx context.Context, f *model.FilterRow) error
	DeleteFilterRow(ctx context.Context, id string) error
	GetWasmBinary(ctx context.Context, binaryID string) ([]byte, error)
}

// ApiDefinitionRepository stores the platform overlay aggregate.
type ApiDefinitionRepository interface {
	GetApiDefinitionByID(ctx context.Context, id string) (*model.ApiDefinition, error)
	GetApiDefinitionByTeamDomain(ctx context.Context, team, domain string) (*model.ApiDefinition, error)
	ListApiDefinitions(ctx context.Context, filter TeamFilter) ([]*model.ApiDefinition, error)
	CreateApiDefinition(ctx context.Context, d *model.ApiDefinition) error
	UpdateApiDefinition(ctx context.Context, d *model.ApiDefinition) error
	DeleteApiDefinition(ctx context.Context, id string) error
	UpdateBootstrapMetadata(ctx context.Context, id string, revision int, uri string) error
}

// TenancyRepository stores Organization/Team/Membership rows, consumed by
// the authorization core's extraction helpers and last-owner invariant.
type TenancyRepository interface {
	GetOrganizationByName(ctx context.Context, name string) (*model.Organization, error)
	GetTeamByName(ctx context.Context, org, name string) (*model.Team, error)
	ListMemberships(ctx context.Context, orgID string) ([]model.Membership, error)
	UpdateMembership(ctx context.Context, m model.Membership) error
	DeleteMembership(ctx context.Context, orgID, userID string) error
}

// Repository is the full consumed contract: every per-kind sub-interface
// plus OpenAPI import provenance, composed so internal/ops can depend on a
// single value.
type Repository interface {
	ClusterRepository
	ListenerRepository
	RouteConfigRepository
	SecretRepository
	FilterRowRepository
	ApiDefinitionRepository
	TenancyRepository

	CreateOpenAPIImportRecord(ctx context.Context, r *model.OpenAPIImportRecord) error
	ListOpenAPIImportRecords(ctx context.Context, team string) ([]*model.OpenAPIImportRecord, error)
}
