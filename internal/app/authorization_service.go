package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openctemio/authz/internal/metrics"
	"github.com/openctemio/authz/pkg/domain/accesscontrol"
	"github.com/openctemio/authz/pkg/domain/organization"
	"github.com/openctemio/authz/pkg/domain/permission"
	"github.com/openctemio/authz/pkg/domain/shared"
	"github.com/openctemio/authz/pkg/logger"
)

// OwnerLookup resolves the owner of an organization.
type OwnerLookup interface {
	OwnerOf(ctx context.Context, id shared.ID) (shared.ID, error)
}

// PermissionCatalog answers which permission types exist in a scope.
type PermissionCatalog interface {
	GetByType(ctx context.Context, organizationID *shared.ID, t permission.Type) (*permission.Permission, error)
	ListActiveTypes(ctx context.Context, organizationID shared.ID) ([]permission.Type, error)
}

// AuthorizationService is the unified resolver. Every entry point
// OR-combines the sources of its scope:
//
//	system:       role-sourced grants, direct system grants
//	organization: owner bypass, roles of an accepted live collaboration,
//	              direct grants bound to the organization
//
// Reads go to the authoritative store, or to the decision cache when one
// is configured. Absence of authority is a false result, never an error.
type AuthorizationService struct {
	reader accesscontrol.AuthorityReader
	owners OwnerLookup
	types  PermissionCatalog
	cache  *DecisionCache
	now    Clock
	logger *logger.Logger
}

// AuthorizationServiceOption is a functional option for AuthorizationService.
type AuthorizationServiceOption func(*AuthorizationService)

// WithAuthorizationCache puts a decision cache in front of the store.
func WithAuthorizationCache(cache *DecisionCache) AuthorizationServiceOption {
	return func(s *AuthorizationService) {
		s.cache = cache
	}
}

// WithAuthorizationClock sets the clock used for expiry checks.
func WithAuthorizationClock(clock Clock) AuthorizationServiceOption {
	return func(s *AuthorizationService) {
		s.now = clock
	}
}

// NewAuthorizationService creates a new AuthorizationService.
func NewAuthorizationService(
	reader accesscontrol.AuthorityReader,
	owners OwnerLookup,
	types PermissionCatalog,
	log *logger.Logger,
	opts ...AuthorizationServiceOption,
) *AuthorizationService {
	s := &AuthorizationService{
		reader: reader,
		owners: owners,
		types:  types,
		now:    systemClock,
		logger: log.With("service", "authorization"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HasSystemPermission reports whether the user holds a system permission.
func (s *AuthorizationService) HasSystemPermission(ctx context.Context, userID shared.ID, t permission.Type) (bool, error) {
	d, err := s.Check(ctx, userID, accesscontrol.System(t))
	if err != nil {
		return false, err
	}
	return d.Allowed, nil
}

// HasOrganizationPermission reports whether the user holds a permission
// within an organization.
func (s *AuthorizationService) HasOrganizationPermission(ctx context.Context, userID, organizationID shared.ID, t permission.Type) (bool, error) {
	d, err := s.Check(ctx, userID, accesscontrol.Organization(organizationID, t))
	if err != nil {
		return false, err
	}
	return d.Allowed, nil
}

// RequireSystemPermission returns a ForbiddenError unless the user holds
// the system permission.
func (s *AuthorizationService) RequireSystemPermission(ctx context.Context, userID shared.ID, t permission.Type) error {
	return s.Require(ctx, userID, accesscontrol.System(t))
}

// RequireOrganizationPermission returns a ForbiddenError unless the user
// holds the permission within the organization.
func (s *AuthorizationService) RequireOrganizationPermission(ctx context.Context, userID, organizationID shared.ID, t permission.Type) error {
	return s.Require(ctx, userID, accesscontrol.Organization(organizationID, t))
}

// Require evaluates a requirement and converts a denial into a ForbiddenError.
func (s *AuthorizationService) Require(ctx context.Context, userID shared.ID, req accesscontrol.Requirement) error {
	d, err := s.Check(ctx, userID, req)
	if err != nil {
		return err
	}
	if !d.Allowed {
		return req.Forbidden()
	}
	return nil
}

// Check evaluates a requirement. AnyOf alternatives are tried in order
// and the first satisfied one is reported.
func (s *AuthorizationService) Check(ctx context.Context, userID shared.ID, req accesscontrol.Requirement) (accesscontrol.Decision, error) {
	if err := req.Validate(); err != nil {
		return accesscontrol.Decision{}, err
	}
	if userID.IsZero() {
		return accesscontrol.Deny(req), nil
	}
	return s.check(ctx, userID, req)
}

// CheckKnown is Check for requirements that come from API callers rather
// than from code. Every type the requirement names must exist in the
// catalog of its scope, otherwise it fails with a validation error naming
// the type. A known but inactive type is not an error; it denies.
func (s *AuthorizationService) CheckKnown(ctx context.Context, userID shared.ID, req accesscontrol.Requirement) (accesscontrol.Decision, error) {
	if err := req.Validate(); err != nil {
		return accesscontrol.Decision{}, err
	}
	if err := s.requireCatalogued(ctx, req); err != nil {
		return accesscontrol.Decision{}, err
	}
	return s.Check(ctx, userID, req)
}

func (s *AuthorizationService) requireCatalogued(ctx context.Context, req accesscontrol.Requirement) error {
	var orgID *shared.ID
	switch req.Kind() {
	case accesscontrol.KindAnyOf:
		for _, alt := range req.Alternatives() {
			if err := s.requireCatalogued(ctx, alt); err != nil {
				return err
			}
		}
		return nil
	case accesscontrol.KindOrganization:
		org := req.OrganizationID()
		orgID = &org
	}

	t := req.PermissionType()
	_, err := s.types.GetByType(ctx, orgID, t)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, permission.ErrPermissionNotFound):
		if orgID != nil {
			return fmt.Errorf("%w: unknown permission type %s in organization %s", shared.ErrValidation, t, orgID.String())
		}
		return fmt.Errorf("%w: unknown permission type %s", shared.ErrValidation, t)
	default:
		return fmt.Errorf("failed to look up permission type: %w", err)
	}
}

func (s *AuthorizationService) check(ctx context.Context, userID shared.ID, req accesscontrol.Requirement) (accesscontrol.Decision, error) {
	switch req.Kind() {
	case accesscontrol.KindAnyOf:
		for _, alt := range req.Alternatives() {
			d, err := s.check(ctx, userID, alt)
			if err != nil {
				return accesscontrol.Decision{}, err
			}
			if d.Allowed {
				d.Requirement = req
				return d, nil
			}
		}
		return accesscontrol.Deny(req), nil

	case accesscontrol.KindOrganization:
		org := req.OrganizationID()
		d, err := s.resolve(ctx, userID, &org, req.PermissionType())
		if err != nil {
			return accesscontrol.Decision{}, err
		}
		return decisionFor(req, d), nil

	default:
		d, err := s.resolve(ctx, userID, nil, req.PermissionType())
		if err != nil {
			return accesscontrol.Decision{}, err
		}
		return decisionFor(req, d), nil
	}
}

func decisionFor(req accesscontrol.Requirement, d CachedDecision) accesscontrol.Decision {
	if !d.Allowed {
		return accesscontrol.Deny(req)
	}
	return accesscontrol.Allow(req, d.Source)
}

// resolve answers one single-scope question, through the cache if any.
func (s *AuthorizationService) resolve(ctx context.Context, userID shared.ID, organizationID *shared.ID, t permission.Type) (CachedDecision, error) {
	start := time.Now()
	scope := string(accesscontrol.KindSystem)
	load := func(ctx context.Context) (CachedDecision, error) {
		return s.resolveSystem(ctx, userID, t)
	}
	if organizationID != nil {
		scope = string(accesscontrol.KindOrganization)
		org := *organizationID
		load = func(ctx context.Context) (CachedDecision, error) {
			return s.resolveOrganization(ctx, userID, org, t)
		}
	}

	var (
		d   CachedDecision
		err error
	)
	if s.cache != nil {
		d, err = s.cache.Resolve(ctx, userID, organizationID, t, load)
	} else {
		d, err = load(ctx)
	}
	if err != nil {
		return CachedDecision{}, err
	}

	metrics.RecordDecision(scope, d.Allowed, string(d.Source), time.Since(start))
	s.logger.Debug("authorization decision",
		"user_id", userID.String(),
		"scope", scope,
		"permission", t.String(),
		"allowed", d.Allowed,
		"source", d.Source,
	)
	return d, nil
}

func (s *AuthorizationService) resolveSystem(ctx context.Context, userID shared.ID, t permission.Type) (CachedDecision, error) {
	at := s.now()

	ok, err := s.reader.HasSystemRolePermission(ctx, userID, t, at)
	if err != nil {
		return CachedDecision{}, fmt.Errorf("failed to resolve system permission: %w", err)
	}
	if ok {
		return CachedDecision{Allowed: true, Source: accesscontrol.SourceSystemRole}, nil
	}

	ok, err = s.reader.HasDirectSystemPermission(ctx, userID, t, at)
	if err != nil {
		return CachedDecision{}, fmt.Errorf("failed to resolve system permission: %w", err)
	}
	if ok {
		return CachedDecision{Allowed: true, Source: accesscontrol.SourceDirect}, nil
	}
	return CachedDecision{}, nil
}

func (s *AuthorizationService) resolveOrganization(ctx context.Context, userID, organizationID shared.ID, t permission.Type) (CachedDecision, error) {
	owner, err := s.owners.OwnerOf(ctx, organizationID)
	switch {
	case err == nil:
		if owner.Equals(userID) {
			return CachedDecision{Allowed: true, Source: accesscontrol.SourceOwner}, nil
		}
	case errors.Is(err, shared.ErrNotFound):
		return CachedDecision{}, nil
	default:
		return CachedDecision{}, fmt.Errorf("failed to resolve organization owner: %w", err)
	}

	ok, err := s.reader.HasOrganizationRolePermission(ctx, userID, organizationID, t)
	if err != nil {
		return CachedDecision{}, fmt.Errorf("failed to resolve organization permission: %w", err)
	}
	if ok {
		return CachedDecision{Allowed: true, Source: accesscontrol.SourceOrganizationRole}, nil
	}

	ok, err = s.reader.HasDirectOrganizationPermission(ctx, userID, organizationID, t, s.now())
	if err != nil {
		return CachedDecision{}, fmt.Errorf("failed to resolve organization permission: %w", err)
	}
	if ok {
		return CachedDecision{Allowed: true, Source: accesscontrol.SourceDirect}, nil
	}
	return CachedDecision{}, nil
}

// EffectivePermissions lists what a user holds in one scope together with
// where each permission comes from. A nil organization selects system scope.
func (s *AuthorizationService) EffectivePermissions(ctx context.Context, userID shared.ID, organizationID *shared.ID) (*accesscontrol.EffectivePermissions, error) {
	at := s.now()

	if organizationID == nil {
		sources, err := s.reader.SystemPermissionSources(ctx, userID, at)
		if err != nil {
			return nil, fmt.Errorf("failed to list system permissions: %w", err)
		}
		return accesscontrol.NewEffectivePermissions(sources), nil
	}

	org := *organizationID
	owner, err := s.owners.OwnerOf(ctx, org)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, organization.ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("failed to resolve organization owner: %w", err)
	}

	sources, err := s.reader.OrganizationPermissionSources(ctx, userID, org, at)
	if err != nil {
		return nil, fmt.Errorf("failed to list organization permissions: %w", err)
	}

	if owner.Equals(userID) {
		types, err := s.types.ListActiveTypes(ctx, org)
		if err != nil {
			return nil, fmt.Errorf("failed to list organization permission types: %w", err)
		}
		for _, t := range types {
			sources = append(sources, accesscontrol.PermissionSource{
				Type:       t,
				Source:     accesscontrol.SourceOwner,
				SourceID:   org,
				SourceName: "owner",
			})
		}
	}

	return accesscontrol.NewEffectivePermissions(sources), nil
}
