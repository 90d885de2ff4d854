// Package memory is the in-memory reference implementation of
// internal/repository.Repository, backed by plain maps under a single
// mutex. It exists so the control plane boots and is end-to-end testable
// without a real database; a production deployment swaps this for a
// SQL-backed Repository without the rest of the module noticing.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/moonkev/flexds/internal/model"
	"github.com/moonkev/flexds/internal/repository"
)

// Store is the in-memory Repository. The zero value is not usable; use New.
type Store struct {
	mu sync.RWMutex

	clusters      map[string]*model.Cluster
	listeners     map[string]*model.Listener
	routeConfigs  map[string]*model.RouteConfig
	secrets       map[string]*model.Secret
	filterRows    map[string]*model.FilterRow
	wasmBinaries  map[string][]byte
	apiDefs       map[string]*model.ApiDefinition
	orgs          map[string]*model.Organization
	teams         map[string]*model.Team
	memberships   map[string]model.Membership // key: orgID+"/"+userID
	openapiImport map[string]*model.OpenAPIImportRecord

	nextSeq int
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		clusters:      make(map[string]*model.Cluster),
		listeners:     make(map[string]*model.Listener),
		routeConfigs:  make(map[string]*model.RouteConfig),
		secrets:       make(map[string]*model.Secret),
		filterRows:    make(map[string]*model.FilterRow),
		wasmBinaries:  make(map[string][]byte),
		apiDefs:       make(map[string]*model.ApiDefinition),
		orgs:          make(map[string]*model.Organization),
		teams:         make(map[string]*model.Team),
		memberships:   make(map[string]model.Membership),
		openapiImport: make(map[string]*model.OpenAPIImportRecord),
	}
}

var _ repository.Repository = (*Store)(nil)

func (s *Store) nextID(prefix string) string {
	s.nextSeq++
	return fmt.Sprintf("%s-%06d", prefix, s.nextSeq)
}

func matchesTeam(filter repository.TeamFilter, team string) bool {
	if len(filter.Teams) == 0 {
		return true
	}
	for _, t := range filter.Teams {
		if t == team {
			return true
		}
	}
	return false
}

// --- Clusters ---

func (s *Store) GetClusterByID(_ context.Context, id string) (*model.Cluster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clusters[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *Store) GetClusterByName(_ context.Context, name string) (*model.Cluster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clusters {
		if c.Name == name {
			cp := *c
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) ListClusters(_ context.Context, filter repository.TeamFilter) ([]*model.Cluster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Cluster
	for _, c := range s.clusters {
		if !matchesTeam(filter, c.Team) {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) CreateCluster(_ context.Context, c *model.Cluster) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.clusters {
		if existing.Name == c.Name {
			return repository.ErrAlreadyExists
		}
	}
	if c.ID == "" {
		c.ID = s.nextID("cluster")
	}
	cp := *c
	s.clusters[c.ID] = &cp
	return nil
}

func (s *Store) UpdateCluster(_ context.Context, c *model.Cluster) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clusters[c.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *c
	s.clusters[c.ID] = &cp
	return nil
}

func (s *Store) DeleteCluster(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clusters[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.clusters, id)
	return nil
}

// --- Listeners ---

func (s *Store) GetListenerByID(_ context.Context, id string) (*model.Listener, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.listeners[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	lp := *l
	return &lp, nil
}

func (s *Store) GetListenerByName(_ context.Context, name string) (*model.Listener, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, l := range s.listeners {
		if l.Name == name {
			lp := *l
			return &lp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) ListListeners(_ context.Context, filter repository.TeamFilter) ([]*model.Listener, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Listener
	for _, l := range s.listeners {
		if !matchesTeam(filter, l.Team) {
			continue
		}
		lp := *l
		out = append(out, &lp)
	}
	return out, nil
}

func (s *Store) FindListenerByAddressPort(_ context.Context, address string, port uint32) (*model.Listener, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, l := range s.listeners {
		if l.Address == address && l.Port == port {
			lp := *l
			return &lp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) CreateListener(_ context.Context, l *model.Listener) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.listeners {
		if existing.Name == l.Name {
			return repository.ErrAlreadyExists
		}
		if existing.Address == l.Address && existing.Port == l.Port {
			return repository.ErrAlreadyExists
		}
	}
	if l.ID == "" {
		l.ID = s.nextID("listener")
	}
	lp := *l
	s.listeners[l.ID] = &lp
	return nil
}

func (s *Store) UpdateListener(_ context.Context, l *model.Listener) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.listeners[l.ID]; !ok {
		return repository.ErrNotFound
	}
	lp := *l
	s.listeners[l.ID] = &lp
	return nil
}

func (s *Store) DeleteListener(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.listeners[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.listeners, id)
	return nil
}

// --- RouteConfigs ---

func (s *Store) GetRouteConfigByID(_ context.Context, id string) (*model.RouteConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rc, ok := s.routeConfigs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *rc
	return &cp, nil
}

func (s *Store) GetRouteConfigByName(_ context.Context, name string) (*model.RouteConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rc := range s.routeConfigs {
		if rc.Name == name {
			cp := *rc
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) ListRouteConfigs(_ context.Context, filter repository.TeamFilter) ([]*model.RouteConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.RouteConfig
	for _, rc := range s.routeConfigs {
		_ = filter // route configs carry no team of their own; filtering happens via owning listeners
		cp := *rc
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) CreateRouteConfig(_ context.Context, rc *model.RouteConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.routeConfigs {
		if existing.Name == rc.Name {
			return repository.ErrAlreadyExists
		}
	}
	if rc.ID == "" {
		rc.ID = s.nextID("routeconfig")
	}
	cp := *rc
	s.routeConfigs[rc.ID] = &cp
	return nil
}

func (s *Store) UpdateRouteConfig(_ context.Context, rc *model.RouteConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.routeConfigs[rc.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *rc
	s.routeConfigs[rc.ID] = &cp
	return nil
}

func (s *Store) DeleteRouteConfig(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.routeConfigs[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.routeConfigs, id)
	return nil
}

// --- Secrets ---

func (s *Store) GetSecretByID(_ context.Context, id string) (*model.Secret, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sec, ok := s.secrets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *sec
	return &cp, nil
}

func (s *Store) GetSecretByName(_ context.Context, name string) (*model.Secret, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sec := range s.secrets {
		if sec.Name == name {
			cp := *sec
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) ListSecrets(_ context.Context, filter repository.TeamFilter) ([]*model.Secret, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Secret
	for _, sec := range s.secrets {
		if !matchesTeam(filter, sec.Team) {
			continue
		}
		cp := *sec
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) CreateSecret(_ context.Context, sec *model.Secret) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.secrets {
		if existing.Name == sec.Name {
			return repository.ErrAlreadyExists
		}
	}
	if sec.ID == "" {
		sec.ID = s.nextID("secret")
	}
	cp := *sec
	s.secrets[sec.ID] = &cp
	return nil
}

func (s *Store) UpdateSecret(_ context.Context, sec *model.Secret) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.secrets[sec.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *sec
	s.secrets[sec.ID] = &cp
	return nil
}

func (s *Store) DeleteSecret(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.secrets[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.secrets, id)
	return nil
}

// --- FilterRows ---

func (s *Store) GetFilterRowByID(_ context.Context, id string) (*model.FilterRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.filterRows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (s *Store) ListFilterRows(_ context.Context, filter repository.TeamFilter) ([]*model.FilterRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.FilterRow
	for _, f := range s.filterRows {
		if !matchesTeam(filter, f.Team) {
			continue
		}
		cp := *f
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) ListFilterRowsByAttachment(_ context.Context, point model.AttachmentPoint, resourceID string) ([]*model.FilterRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.FilterRow
	for _, f := range s.filterRows {
		for _, a := range f.Attachments {
			if a.Point == point && a.ResourceID == resourceID {
				cp := *f
				out = append(out, &cp)
				break
			}
		}
	}
	return out, nil
}

func (s *Store) CreateFilterRow(_ context.Context, f *model.FilterRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.ID == "" {
		f.ID = s.nextID("filter")
	}
	cp := *f
	s.filterRows[f.ID] = &cp
	return nil
}

func (s *Store) UpdateFilterRow(_ context.Context, f *model.FilterRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.filterRows[f.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *f
	s.filterRows[f.ID] = &cp
	return nil
}

func (s *Store) DeleteFilterRow(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.filterRows[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.filterRows, id)
	return nil
}

func (s *Store) GetWasmBinary(_ context.Context, binaryID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.wasmBinaries[binaryID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return b, nil
}

// PutWasmBinary registers a WASM binary under id, for seeding and tests;
// the repository interface only exposes reads since uploads go through a
// dedicated out-of-scope artifact store in production.
func (s *Store) PutWasmBinary(id string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wasmBinaries[id] = content
}

// --- ApiDefinitions ---

func (s *Store) GetApiDefinitionByID(_ context.Context, id string) (*model.ApiDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.apiDefs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *Store) GetApiDefinitionByTeamDomain(_ context.Context, team, domain string) (*model.ApiDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.apiDefs {
		if d.Team == team && d.Domain == domain {
			cp := *d
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) ListApiDefinitions(_ context.Context, filter repository.TeamFilter) ([]*model.ApiDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.ApiDefinition
	for _, d := range s.apiDefs {
		if !matchesTeam(filter, d.Team) {
			continue
		}
		cp := *d
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) CreateApiDefinition(_ context.Context, d *model.ApiDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.apiDefs {
		if existing.Team == d.Team && existing.Domain == d.Domain {
			return repository.ErrAlreadyExists
		}
	}
	if d.ID == "" {
		d.ID = s.nextID("apidef")
	}
	cp := *d
	s.apiDefs[d.ID] = &cp
	return nil
}

func (s *Store) UpdateApiDefinition(_ context.Context, d *model.ApiDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.apiDefs[d.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *d
	s.apiDefs[d.ID] = &cp
	return nil
}

func (s *Store) DeleteApiDefinition(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.apiDefs[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.apiDefs, id)
	return nil
}

func (s *Store) UpdateBootstrapMetadata(_ context.Context, id string, revision int, uri string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.apiDefs[id]
	if !ok {
		return repository.ErrNotFound
	}
	d.BootstrapRevision = revision
	d.BootstrapURI = uri
	return nil
}

// --- Tenancy ---

func (s *Store) GetOrganizationByName(_ context.Context, name string) (*model.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.orgs {
		if o.Name == name {
			cp := *o
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) GetTeamByName(_ context.Context, org, name string) (*model.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.teams {
		if t.Name == name && t.OrgID == org {
			cp := *t
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) ListMemberships(_ context.Context, orgID string) ([]model.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Membership
	for _, m := range s.memberships {
		if m.OrgID == orgID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Store) UpdateMembership(_ context.Context, m model.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memberships[m.OrgID+"/"+m.UserID] = m
	return nil
}

func (s *Store) DeleteMembership(_ context.Context, orgID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := orgID + "/" + userID
	if _, ok := s.memberships[key]; !ok {
		return repository.ErrNotFound
	}
	delete(s.memberships, key)
	return nil
}

// --- OpenAPI import provenance ---

func (s *Store) CreateOpenAPIImportRecord(_ context.Context, r *model.OpenAPIImportRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = s.nextID("openapi-import")
	}
	cp := *r
	s.openapiImport[r.ID] = &cp
	return nil
}

func (s *Store) ListOpenAPIImportRecords(_ context.Context, team string) ([]*model.OpenAPIImportRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.OpenAPIImportRecord, 0)
	for _, r := range s.openapiImport {
		if r.Team != team {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

// PutOrganization registers an organization for seeding and tests; there is
// no repository-facing create/update for organizations since tenancy
// bootstrap is an operator action, not a core operation.
func (s *Store) PutOrganization(o *model.Organization) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orgs[o.ID] = o
}

// PutTeam registers a team for seeding and tests; see PutOrganization.
func (s *Store) PutTeam(t *model.Team) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teams[t.ID] = t
}
