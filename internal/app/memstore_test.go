package app

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/openctemio/authz/pkg/domain/accesscontrol"
	"github.com/openctemio/authz/pkg/domain/collaboration"
	"github.com/openctemio/authz/pkg/domain/grant"
	"github.com/openctemio/authz/pkg/domain/organization"
	"github.com/openctemio/authz/pkg/domain/permission"
	"github.com/openctemio/authz/pkg/domain/role"
	"github.com/openctemio/authz/pkg/domain/shared"
	"github.com/openctemio/authz/pkg/domain/user"
	"github.com/openctemio/authz/pkg/pagination"
)

// ============================================================================
// In-memory store
// ============================================================================

// memStore is an in-memory rendition of the authoritative store. Each
// repository interface is served by a thin view type over it, and the
// authority reader answers from the same rows, so service tests observe
// the resolver exactly as the database would answer.
type memStore struct {
	mu sync.Mutex

	users       map[shared.ID]*user.User
	orgs        map[shared.ID]*organization.Organization
	perms       map[shared.ID]*permission.Permission
	roles       map[shared.ID]*role.Role
	assignments []*grant.SystemRoleAssignment
	grants      []*grant.DirectGrant
	issuedBy    map[shared.ID]shared.ID // direct grant id -> collaboration id
	collabs     map[shared.ID]*collaboration.Collaboration
	attachments []*grant.RoleAttachment
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[shared.ID]*user.User),
		orgs:     make(map[shared.ID]*organization.Organization),
		perms:    make(map[shared.ID]*permission.Permission),
		roles:    make(map[shared.ID]*role.Role),
		issuedBy: make(map[shared.ID]shared.ID),
		collabs:  make(map[shared.ID]*collaboration.Collaboration),
	}
}

func (m *memStore) Users() *memUsers         { return &memUsers{m} }
func (m *memStore) Orgs() *memOrgs           { return &memOrgs{m} }
func (m *memStore) Perms() *memPerms         { return &memPerms{m} }
func (m *memStore) Roles() *memRoles         { return &memRoles{m} }
func (m *memStore) Grants() *memGrants       { return &memGrants{m} }
func (m *memStore) Collabs() *memCollabs     { return &memCollabs{m} }
func (m *memStore) Authority() *memAuthority { return &memAuthority{m} }

func (m *memStore) permByID(id shared.ID) *permission.Permission { return m.perms[id] }

func paginate[T any](items []T, page pagination.Pagination) pagination.Result[T] {
	total := int64(len(items))
	if page.PerPage < 1 {
		page = pagination.New(page.Page, page.PerPage)
	}
	start := min(page.Offset(), len(items))
	end := min(start+page.Limit(), len(items))
	return pagination.NewResult(items[start:end], total, page)
}

// ============================================================================
// Users
// ============================================================================

type memUsers struct{ *memStore }

func (r *memUsers) Create(_ context.Context, u *user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email() == u.Email() {
			return user.ErrEmailTaken
		}
	}
	r.users[u.ID()] = u
	return nil
}

func (r *memUsers) GetByID(_ context.Context, id shared.ID) (*user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	return u, nil
}

func (r *memUsers) GetByEmail(_ context.Context, email string) (*user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email() == user.NormalizeEmail(email) {
			return u, nil
		}
	}
	return nil, user.ErrUserNotFound
}

func (r *memUsers) GetByIDs(_ context.Context, ids []shared.ID) ([]*user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*user.User
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *memUsers) UpsertFromIdentity(_ context.Context, externalID, email, name string) (*user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	for id, u := range r.users {
		if u.ExternalID() != nil && *u.ExternalID() == externalID {
			return u, nil
		}
		if u.Email() != email {
			continue
		}
		if !u.IsPlaceholder() {
			return nil, user.ErrIdentityTaken
		}
		claimed := user.Reconstitute(id, &externalID, email, name, false, u.CreatedAt(), now)
		r.users[id] = claimed
		return claimed, nil
	}
	u := user.Reconstitute(shared.NewID(), &externalID, email, name, false, now, now)
	r.users[u.ID()] = u
	return u, nil
}

// ============================================================================
// Organizations
// ============================================================================

type memOrgs struct{ *memStore }

func (r *memOrgs) Create(_ context.Context, o *organization.Organization, seed []*permission.Permission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.orgs {
		if existing.Slug() == o.Slug() {
			return organization.ErrSlugExists
		}
	}
	r.orgs[o.ID()] = o
	for _, p := range seed {
		r.perms[p.ID()] = p
	}
	return nil
}

func (r *memOrgs) GetByID(_ context.Context, id shared.ID) (*organization.Organization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orgs[id]
	if !ok {
		return nil, organization.ErrOrganizationNotFound
	}
	return o, nil
}

func (r *memOrgs) GetBySlug(_ context.Context, slug string) (*organization.Organization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orgs {
		if o.Slug() == slug {
			return o, nil
		}
	}
	return nil, organization.ErrOrganizationNotFound
}

func (r *memOrgs) UpdateOwner(_ context.Context, o *organization.Organization) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orgs[o.ID()]; !ok {
		return organization.ErrOrganizationNotFound
	}
	r.orgs[o.ID()] = o
	return nil
}

func (r *memOrgs) OwnerOf(_ context.Context, id shared.ID) (shared.ID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orgs[id]
	if !ok {
		return shared.ID{}, organization.ErrOrganizationNotFound
	}
	return o.OwnerUserID(), nil
}

// ============================================================================
// Permissions
// ============================================================================

type memPerms struct{ *memStore }

func sameScope(p *permission.Permission, orgID *shared.ID) bool {
	if orgID == nil {
		return p.IsSystem()
	}
	return p.BelongsTo(*orgID)
}

func (r *memPerms) Create(_ context.Context, p *permission.Permission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.perms {
		if existing.Type() == p.Type() && sameScope(existing, p.OrganizationID()) {
			return permission.ErrPermissionTypeExists
		}
	}
	r.perms[p.ID()] = p
	return nil
}

func (r *memPerms) GetByID(_ context.Context, id shared.ID) (*permission.Permission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.perms[id]
	if !ok {
		return nil, permission.ErrPermissionNotFound
	}
	return p, nil
}

func (r *memPerms) GetByIDs(_ context.Context, ids []shared.ID) ([]*permission.Permission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*permission.Permission
	for _, id := range ids {
		if p, ok := r.perms[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memPerms) GetByType(_ context.Context, orgID *shared.ID, t permission.Type) (*permission.Permission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.perms {
		if p.Type() == t && sameScope(p, orgID) {
			return p, nil
		}
	}
	return nil, permission.ErrPermissionNotFound
}

func (r *memPerms) list(orgID *shared.ID, filter permission.Filter, page pagination.Pagination) pagination.Result[*permission.Permission] {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*permission.Permission
	for _, p := range r.perms {
		if !sameScope(p, orgID) {
			continue
		}
		if filter.IsActive != nil && p.IsActive() != *filter.IsActive {
			continue
		}
		if filter.Search != "" && !strings.Contains(string(p.Type()), strings.ToLower(filter.Search)) {
			continue
		}
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b *permission.Permission) int { return strings.Compare(string(a.Type()), string(b.Type())) })
	return paginate(out, page)
}

func (r *memPerms) ListSystem(_ context.Context, filter permission.Filter, page pagination.Pagination) (pagination.Result[*permission.Permission], error) {
	return r.list(nil, filter, page), nil
}

func (r *memPerms) ListForOrganization(_ context.Context, orgID shared.ID, filter permission.Filter, page pagination.Pagination) (pagination.Result[*permission.Permission], error) {
	return r.list(&orgID, filter, page), nil
}

func (r *memPerms) ListActiveTypes(_ context.Context, orgID shared.ID) ([]permission.Type, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []permission.Type
	for _, p := range r.perms {
		if p.IsActive() && p.BelongsTo(orgID) {
			out = append(out, p.Type())
		}
	}
	slices.Sort(out)
	return out, nil
}

func (r *memPerms) Update(_ context.Context, p *permission.Permission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.perms[p.ID()]; !ok {
		return permission.ErrPermissionNotFound
	}
	r.perms[p.ID()] = p
	return nil
}

// ============================================================================
// Roles
// ============================================================================

type memRoles struct{ *memStore }

func roleInScope(r *role.Role, orgID *shared.ID) bool {
	if orgID == nil {
		return r.IsSystem()
	}
	return r.BelongsTo(*orgID)
}

func (r *memRoles) Create(_ context.Context, ro *role.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.roles {
		if existing.Type() == ro.Type() && roleInScope(existing, ro.OrganizationID()) {
			return role.ErrRoleTypeExists
		}
	}
	r.roles[ro.ID()] = ro
	return nil
}

func (r *memRoles) GetByID(_ context.Context, id shared.ID) (*role.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ro, ok := r.roles[id]
	if !ok {
		return nil, role.ErrRoleNotFound
	}
	return ro, nil
}

func (r *memRoles) GetByType(_ context.Context, orgID *shared.ID, t role.Type) (*role.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ro := range r.roles {
		if ro.Type() == t && roleInScope(ro, orgID) {
			return ro, nil
		}
	}
	return nil, role.ErrRoleNotFound
}

func (r *memRoles) list(orgID *shared.ID, filter role.Filter, page pagination.Pagination) pagination.Result[*role.Role] {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*role.Role
	for _, ro := range r.roles {
		if !roleInScope(ro, orgID) {
			continue
		}
		if filter.IsActive != nil && ro.IsActive() != *filter.IsActive {
			continue
		}
		out = append(out, ro)
	}
	slices.SortFunc(out, func(a, b *role.Role) int { return strings.Compare(string(a.Type()), string(b.Type())) })
	return paginate(out, page)
}

func (r *memRoles) ListSystem(_ context.Context, filter role.Filter, page pagination.Pagination) (pagination.Result[*role.Role], error) {
	return r.list(nil, filter, page), nil
}

func (r *memRoles) ListForOrganization(_ context.Context, orgID shared.ID, filter role.Filter, page pagination.Pagination) (pagination.Result[*role.Role], error) {
	return r.list(&orgID, filter, page), nil
}

func (r *memRoles) Update(_ context.Context, ro *role.Role, _ bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.roles[ro.ID()]; !ok {
		return role.ErrRoleNotFound
	}
	r.roles[ro.ID()] = ro
	return nil
}

func (r *memRoles) Delete(ctx context.Context, id shared.ID) error {
	n, err := r.CountActiveAssignments(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return role.ErrRoleInUse
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.roles[id]; !ok {
		return role.ErrRoleNotFound
	}
	delete(r.roles, id)
	return nil
}

func (r *memRoles) ListPermissions(_ context.Context, roleID shared.ID) ([]*permission.Permission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ro, ok := r.roles[roleID]
	if !ok {
		return nil, role.ErrRoleNotFound
	}
	var out []*permission.Permission
	for _, id := range ro.PermissionIDs() {
		if p := r.permByID(id); p != nil {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memRoles) ListAssignees(_ context.Context, roleID shared.ID) ([]role.Assignee, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	var out []role.Assignee
	for _, a := range r.assignments {
		if a.RoleID().Equals(roleID) && a.IsEffective(now) {
			out = append(out, role.Assignee{
				UserID:     a.UserID(),
				Source:     role.AssignedDirectly,
				AssignedBy: a.AssignedBy(),
				AssignedAt: a.AssignedAt(),
				ExpiresAt:  a.ExpiresAt(),
			})
		}
	}
	for _, at := range r.attachments {
		c := r.collabs[at.CollaborationID()]
		if !at.RoleID().Equals(roleID) || !at.IsActive() || c == nil || !c.IsActive() {
			continue
		}
		id := c.ID()
		out = append(out, role.Assignee{
			UserID:          c.CollaboratorID(),
			Email:           c.Email(),
			Source:          role.AssignedViaCollaboration,
			CollaborationID: &id,
			AssignedBy:      at.AssignedBy(),
			AssignedAt:      at.AssignedAt(),
		})
	}
	return out, nil
}

func (r *memRoles) CountActiveAssignments(ctx context.Context, roleID shared.ID) (int, error) {
	assignees, err := r.ListAssignees(ctx, roleID)
	return len(assignees), err
}

// ============================================================================
// Grants
// ============================================================================

type memGrants struct{ *memStore }

func (r *memGrants) AssignSystemRole(_ context.Context, a *grant.SystemRoleAssignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.assignments {
		if !existing.UserID().Equals(a.UserID()) || !existing.RoleID().Equals(a.RoleID()) {
			continue
		}
		if existing.IsEffective(a.AssignedAt()) {
			return grant.ErrAssignmentExists
		}
		a.SetID(existing.ID())
		r.assignments[i] = a
		return nil
	}
	r.assignments = append(r.assignments, a)
	return nil
}

func (r *memGrants) RevokeSystemRole(_ context.Context, userID, roleID shared.ID, revokedBy *shared.ID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, a := range r.assignments {
		if a.UserID().Equals(userID) && a.RoleID().Equals(roleID) && a.IsActive() {
			r.assignments[i] = grant.ReconstituteSystemRoleAssignment(
				a.ID(), a.UserID(), a.RoleID(), a.AssignedBy(), a.AssignedAt(), a.ExpiresAt(), false, revokedBy, &at)
			return nil
		}
	}
	return grant.ErrAssignmentNotFound
}

func (r *memGrants) ListSystemRoleAssignments(_ context.Context, userID shared.ID) ([]*grant.SystemRoleAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*grant.SystemRoleAssignment
	for _, a := range r.assignments {
		if a.UserID().Equals(userID) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memGrants) GrantPermission(_ context.Context, g *grant.DirectGrant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insertGrant(g, true, nil)
}

// insertGrant stores a grant, reviving a stale row of the same pair, and
// records the collaboration that issued it.
func (m *memStore) insertGrant(g *grant.DirectGrant, conflict bool, collaborationID *shared.ID) error {
	stored := false
	for i, existing := range m.grants {
		if !existing.UserID().Equals(g.UserID()) || !existing.PermissionID().Equals(g.PermissionID()) {
			continue
		}
		if conflict && existing.IsEffective(g.GrantedAt()) {
			return grant.ErrGrantExists
		}
		g.SetID(existing.ID())
		m.grants[i] = g
		stored = true
		break
	}
	if !stored {
		m.grants = append(m.grants, g)
	}
	if collaborationID != nil {
		m.issuedBy[g.ID()] = *collaborationID
	} else {
		delete(m.issuedBy, g.ID())
	}
	return nil
}

func revokedGrant(g *grant.DirectGrant, revokedBy *shared.ID, at time.Time) *grant.DirectGrant {
	return grant.ReconstituteDirectGrant(
		g.ID(), g.UserID(), g.SystemPermissionID(), g.OrganizationPermissionID(), g.OrganizationID(),
		g.GrantedBy(), g.GrantedAt(), g.ExpiresAt(), false, revokedBy, &at)
}

func (r *memGrants) RevokePermission(_ context.Context, userID, permissionID shared.ID, revokedBy *shared.ID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, g := range r.grants {
		if g.UserID().Equals(userID) && g.PermissionID().Equals(permissionID) && g.IsActive() {
			r.grants[i] = revokedGrant(g, revokedBy, at)
			return nil
		}
	}
	return grant.ErrGrantNotFound
}

func (r *memGrants) ListDirectGrants(_ context.Context, userID shared.ID) ([]*grant.DirectGrant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*grant.DirectGrant
	for _, g := range r.grants {
		if g.UserID().Equals(userID) {
			out = append(out, g)
		}
	}
	return out, nil
}

// ============================================================================
// Collaborations
// ============================================================================

type memCollabs struct{ *memStore }

func (r *memCollabs) apply(c *collaboration.Collaboration, changes collaboration.GrantChanges) error {
	at := c.UpdatedAt()
	if changes.ReplaceRole {
		for i, a := range r.attachments {
			if a.CollaborationID().Equals(c.ID()) && a.IsActive() {
				r.attachments[i] = grant.ReconstituteRoleAttachment(
					a.ID(), a.CollaborationID(), a.RoleID(), a.AssignedBy(), a.AssignedAt(), false)
			}
		}
		if changes.Role != nil {
			r.attachments = append(r.attachments, changes.Role)
		}
	}
	switch {
	case changes.ReplaceDirectGrants:
		for i, g := range r.grants {
			orgID := g.OrganizationID()
			if g.UserID().Equals(c.CollaboratorID()) && g.IsActive() && orgID != nil && orgID.Equals(c.OrganizationID()) {
				r.grants[i] = revokedGrant(g, changes.Actor, at)
			}
		}
	case changes.RevokeIssuedGrants:
		for i, g := range r.grants {
			if issuer, ok := r.issuedBy[g.ID()]; ok && issuer.Equals(c.ID()) && g.IsActive() {
				r.grants[i] = revokedGrant(g, changes.Actor, at)
			}
		}
	}
	collaborationID := c.ID()
	for _, g := range changes.DirectGrants {
		err := r.insertGrant(g, !changes.ReplaceDirectGrants, &collaborationID)
		if err != nil && !errors.Is(err, grant.ErrGrantExists) {
			return err
		}
	}
	return nil
}

func (r *memCollabs) Create(_ context.Context, c *collaboration.Collaboration, changes collaboration.GrantChanges) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.collabs {
		if existing.CollaboratorID().Equals(c.CollaboratorID()) && existing.OrganizationID().Equals(c.OrganizationID()) {
			return collaboration.ErrCollaborationExists
		}
	}
	r.collabs[c.ID()] = c
	return r.apply(c, changes)
}

func (r *memCollabs) Revive(_ context.Context, c *collaboration.Collaboration, changes collaboration.GrantChanges) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collabs[c.ID()] = c
	return r.apply(c, changes)
}

func (r *memCollabs) Update(_ context.Context, c *collaboration.Collaboration, changes collaboration.GrantChanges) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.collabs[c.ID()]; !ok {
		return collaboration.ErrCollaborationNotFound
	}
	r.collabs[c.ID()] = c
	return r.apply(c, changes)
}

func (r *memCollabs) GetByID(_ context.Context, id shared.ID) (*collaboration.Collaboration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.collabs[id]
	if !ok {
		return nil, collaboration.ErrCollaborationNotFound
	}
	return c, nil
}

func (r *memCollabs) GetByPair(_ context.Context, collaboratorID, orgID shared.ID) (*collaboration.Collaboration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.collabs {
		if c.CollaboratorID().Equals(collaboratorID) && c.OrganizationID().Equals(orgID) {
			return c, nil
		}
	}
	return nil, collaboration.ErrCollaborationNotFound
}

func (r *memCollabs) List(_ context.Context, orgID shared.ID, filter collaboration.Filter, page pagination.Pagination) (pagination.Result[*collaboration.Collaboration], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*collaboration.Collaboration
	for _, c := range r.collabs {
		if !c.OrganizationID().Equals(orgID) {
			continue
		}
		if filter.Status != nil && c.Status() != *filter.Status {
			continue
		}
		if filter.IsActive != nil && c.IsActive() != *filter.IsActive {
			continue
		}
		if filter.Search != "" && !strings.Contains(c.Email(), strings.ToLower(filter.Search)) {
			continue
		}
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b *collaboration.Collaboration) int { return strings.Compare(a.Email(), b.Email()) })
	return paginate(out, page), nil
}

func (r *memCollabs) ListRoleAttachments(_ context.Context, collaborationID shared.ID) ([]*grant.RoleAttachment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*grant.RoleAttachment
	for i := len(r.attachments) - 1; i >= 0; i-- {
		if r.attachments[i].CollaborationID().Equals(collaborationID) {
			out = append(out, r.attachments[i])
		}
	}
	return out, nil
}

// ============================================================================
// Authority reader
// ============================================================================

type memAuthority struct{ *memStore }

var _ accesscontrol.AuthorityReader = (*memAuthority)(nil)

func (r *memAuthority) systemRoleSources(userID shared.ID, at time.Time) []accesscontrol.PermissionSource {
	var out []accesscontrol.PermissionSource
	for _, a := range r.assignments {
		ro := r.roles[a.RoleID()]
		if !a.UserID().Equals(userID) || !a.IsEffective(at) || ro == nil || !ro.IsActive() {
			continue
		}
		for _, pid := range ro.PermissionIDs() {
			p := r.permByID(pid)
			if p == nil || !p.IsActive() || !p.IsSystem() {
				continue
			}
			out = append(out, accesscontrol.PermissionSource{
				Type: p.Type(), Source: accesscontrol.SourceSystemRole, SourceID: ro.ID(), SourceName: ro.Name(),
			})
		}
	}
	return out
}

func (r *memAuthority) directSources(userID shared.ID, orgID *shared.ID, at time.Time) []accesscontrol.PermissionSource {
	var out []accesscontrol.PermissionSource
	for _, g := range r.grants {
		if !g.UserID().Equals(userID) || !g.IsEffective(at) {
			continue
		}
		p := r.permByID(g.PermissionID())
		if p == nil || !p.IsActive() {
			continue
		}
		if orgID == nil && !p.IsSystem() {
			continue
		}
		if orgID != nil && (g.OrganizationID() == nil || !g.OrganizationID().Equals(*orgID) || !p.BelongsTo(*orgID)) {
			continue
		}
		out = append(out, accesscontrol.PermissionSource{
			Type: p.Type(), Source: accesscontrol.SourceDirect, SourceID: g.ID(), SourceName: p.Name(),
		})
	}
	return out
}

func (r *memAuthority) collaborationSources(userID, orgID shared.ID) []accesscontrol.PermissionSource {
	var out []accesscontrol.PermissionSource
	for _, c := range r.collabs {
		if !c.CollaboratorID().Equals(userID) || !c.OrganizationID().Equals(orgID) || !c.GrantsAuthority() {
			continue
		}
		for _, a := range r.attachments {
			ro := r.roles[a.RoleID()]
			if !a.CollaborationID().Equals(c.ID()) || !a.IsActive() || ro == nil || !ro.IsActive() {
				continue
			}
			for _, pid := range ro.PermissionIDs() {
				p := r.permByID(pid)
				if p == nil || !p.IsActive() {
					continue
				}
				out = append(out, accesscontrol.PermissionSource{
					Type: p.Type(), Source: accesscontrol.SourceOrganizationRole, SourceID: ro.ID(), SourceName: ro.Name(),
				})
			}
		}
	}
	return out
}

func hasType(sources []accesscontrol.PermissionSource, t permission.Type) bool {
	return slices.ContainsFunc(sources, func(s accesscontrol.PermissionSource) bool { return s.Type == t })
}

func (r *memAuthority) HasSystemRolePermission(_ context.Context, userID shared.ID, t permission.Type, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return hasType(r.systemRoleSources(userID, at), t), nil
}

func (r *memAuthority) HasDirectSystemPermission(_ context.Context, userID shared.ID, t permission.Type, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return hasType(r.directSources(userID, nil, at), t), nil
}

func (r *memAuthority) HasOrganizationRolePermission(_ context.Context, userID, orgID shared.ID, t permission.Type) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return hasType(r.collaborationSources(userID, orgID), t), nil
}

func (r *memAuthority) HasDirectOrganizationPermission(_ context.Context, userID, orgID shared.ID, t permission.Type, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return hasType(r.directSources(userID, &orgID, at), t), nil
}

func (r *memAuthority) SystemPermissionSources(_ context.Context, userID shared.ID, at time.Time) ([]accesscontrol.PermissionSource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append(r.systemRoleSources(userID, at), r.directSources(userID, nil, at)...), nil
}

func (r *memAuthority) OrganizationPermissionSources(_ context.Context, userID, orgID shared.ID, at time.Time) ([]accesscontrol.PermissionSource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append(r.collaborationSources(userID, orgID), r.directSources(userID, &orgID, at)...), nil
}

// ============================================================================
// Recording notifier
// ============================================================================

type recordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

func (n *recordingNotifier) Send(_ context.Context, msg Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return n.err
}

func (n *recordingNotifier) Sent() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.sent)
}
