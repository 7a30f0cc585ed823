package registry

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/ssogate/internal/model"
	"github.com/hitoshi/ssogate/internal/repository"
)

// memStore はリポジトリ群が共有するメモリ上のデータ。
type memStore struct {
	mu         sync.Mutex
	identities map[string]*model.Identity
	apps       map[string]*model.Application
	grants     map[string]*model.AuthorizationGrant // key: appID + "|" + email
	removals   []*model.RemovalLogEntry
	revoked    map[string]int // identityID -> RevokeByIdentity呼び出し回数
	failAppend bool
}

func newMemStore() *memStore {
	return &memStore{
		identities: make(map[string]*model.Identity),
		apps:       make(map[string]*model.Application),
		grants:     make(map[string]*model.AuthorizationGrant),
		revoked:    make(map[string]int),
	}
}

func grantKey(appID, email string) string {
	return appID + "|" + strings.ToLower(email)
}

// --- identities ---

type memIdentities struct{ s *memStore }

func (m memIdentities) Create(_ context.Context, identity *model.Identity) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, i := range m.s.identities {
		if strings.EqualFold(i.Email, identity.Email) {
			return repository.ErrDuplicate
		}
	}
	cp := *identity
	m.s.identities[cp.ID] = &cp
	return nil
}

func (m memIdentities) FindByID(_ context.Context, id string) (*model.Identity, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if i, ok := m.s.identities[id]; ok {
		cp := *i
		return &cp, nil
	}
	return nil, nil
}

func (m memIdentities) FindByEmail(_ context.Context, email string) (*model.Identity, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, i := range m.s.identities {
		if strings.EqualFold(i.Email, email) {
			cp := *i
			return &cp, nil
		}
	}
	return nil, nil
}

func (m memIdentities) List(_ context.Context) ([]*model.Identity, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []*model.Identity
	for _, i := range m.s.identities {
		cp := *i
		out = append(out, &cp)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Email < out[b].Email })
	return out, nil
}

func (m memIdentities) UpdateProfile(_ context.Context, id, name, email string, updatedAt time.Time) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	i, ok := m.s.identities[id]
	if !ok {
		return repository.ErrNotFound
	}
	i.Name = name
	i.Email = strings.ToLower(email)
	return nil
}

func (m memIdentities) UpdateRole(_ context.Context, id string, role model.Role, updatedAt time.Time) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	i, ok := m.s.identities[id]
	if !ok {
		return repository.ErrNotFound
	}
	i.Role = role
	return nil
}

func (m memIdentities) UpdateStatus(_ context.Context, id string, status model.Status, updatedAt time.Time) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	i, ok := m.s.identities[id]
	if !ok {
		return repository.ErrNotFound
	}
	i.Status = status
	return nil
}

// --- applications ---

type memApplications struct{ s *memStore }

func (m memApplications) Create(_ context.Context, app *model.Application) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	cp := *app
	m.s.apps[cp.ID] = &cp
	return nil
}

func (m memApplications) FindByID(_ context.Context, id string) (*model.Application, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if a, ok := m.s.apps[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, nil
}

func (m memApplications) ListWithGrants(_ context.Context) ([]model.ApplicationWithGrants, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []model.ApplicationWithGrants
	for _, a := range m.s.apps {
		entry := model.ApplicationWithGrants{Application: *a, Grants: []model.AuthorizationGrant{}}
		for _, g := range m.s.grants {
			if g.ApplicationID == a.ID {
				entry.Grants = append(entry.Grants, *g)
			}
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m memApplications) Update(_ context.Context, app *model.Application) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	a, ok := m.s.apps[app.ID]
	if !ok {
		return repository.ErrNotFound
	}
	a.Name, a.URL, a.RedirectURIs, a.UpdatedAt = app.Name, app.URL, app.RedirectURIs, app.UpdatedAt
	return nil
}

func (m memApplications) UpdateClientCredentials(_ context.Context, id, clientID, secretHash string, updatedAt time.Time) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	a, ok := m.s.apps[id]
	if !ok {
		return repository.ErrNotFound
	}
	a.ClientID, a.ClientSecretHash = &clientID, &secretHash
	return nil
}

func (m memApplications) SetBlocked(_ context.Context, id string, blocked bool, updatedAt time.Time) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	a, ok := m.s.apps[id]
	if !ok {
		return repository.ErrNotFound
	}
	a.Blocked = blocked
	return nil
}

func (m memApplications) Delete(_ context.Context, id string) ([]model.AuthorizationGrant, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.apps[id]; !ok {
		return nil, repository.ErrNotFound
	}
	removed := []model.AuthorizationGrant{}
	for k, g := range m.s.grants {
		if g.ApplicationID == id {
			removed = append(removed, *g)
			delete(m.s.grants, k)
		}
	}
	delete(m.s.apps, id)
	return removed, nil
}

// --- grants ---

type memGrants struct{ s *memStore }

func (m memGrants) Upsert(_ context.Context, grant *model.AuthorizationGrant) (*model.AuthorizationGrant, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	key := grantKey(grant.ApplicationID, grant.Email)
	if g, ok := m.s.grants[key]; ok {
		g.Blocked = false
		cp := *g
		return &cp, nil
	}
	g := &model.AuthorizationGrant{
		ApplicationID: grant.ApplicationID,
		Email:         strings.ToLower(grant.Email),
		GrantedAt:     grant.GrantedAt,
	}
	m.s.grants[key] = g
	cp := *g
	return &cp, nil
}

func (m memGrants) Find(_ context.Context, applicationID, email string) (*model.AuthorizationGrant, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if g, ok := m.s.grants[grantKey(applicationID, email)]; ok {
		cp := *g
		return &cp, nil
	}
	return nil, nil
}

func (m memGrants) SetBlocked(_ context.Context, applicationID, email string, blocked bool) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	g, ok := m.s.grants[grantKey(applicationID, email)]
	if !ok {
		return repository.ErrNotFound
	}
	g.Blocked = blocked
	return nil
}

func (m memGrants) DeleteWithRemovalLog(_ context.Context, applicationID, email string, entry *model.RemovalLogEntry) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	key := grantKey(applicationID, email)
	if _, ok := m.s.grants[key]; !ok {
		return repository.ErrNotFound
	}
	delete(m.s.grants, key)
	cp := *entry
	m.s.removals = append(m.s.removals, &cp)
	return nil
}

func (m memGrants) ListAuthorizedApplications(_ context.Context, email string) ([]*model.Application, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []*model.Application
	for _, g := range m.s.grants {
		if !strings.EqualFold(g.Email, email) || g.Blocked {
			continue
		}
		a, ok := m.s.apps[g.ApplicationID]
		if !ok || a.Blocked {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// --- removal logs ---

type memRemovals struct{ s *memStore }

func (m memRemovals) Append(_ context.Context, entry *model.RemovalLogEntry) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.failAppend {
		return errFakeAppend
	}
	cp := *entry
	m.s.removals = append(m.s.removals, &cp)
	return nil
}

func (m memRemovals) List(_ context.Context, limit int) ([]*model.RemovalLogEntry, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	out := make([]*model.RemovalLogEntry, 0, len(m.s.removals))
	for i := len(m.s.removals) - 1; i >= 0; i-- {
		out = append(out, m.s.removals[i])
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- refresh credentials ---

type memRefresh struct{ s *memStore }

func (m memRefresh) Create(context.Context, *model.RefreshCredential) error { return nil }
func (m memRefresh) FindByID(context.Context, string) (*model.RefreshCredential, error) {
	return nil, nil
}
func (m memRefresh) Rotate(context.Context, string, *model.RefreshCredential) error { return nil }
func (m memRefresh) RevokeChain(context.Context, string, time.Time) (int64, error) {
	return 0, nil
}
func (m memRefresh) RevokeByIdentity(_ context.Context, identityID string, _ time.Time) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.revoked[identityID]++
	return 1, nil
}

// --- compile-time interface checks ---
var (
	_ repository.IdentityRepository          = memIdentities{}
	_ repository.ApplicationRepository       = memApplications{}
	_ repository.GrantRepository             = memGrants{}
	_ repository.RemovalLogRepository        = memRemovals{}
	_ repository.RefreshCredentialRepository = memRefresh{}
)
