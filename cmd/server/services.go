package main

import (
	"fmt"

	"github.com/openctemio/authz/internal/app"
	"github.com/openctemio/authz/internal/config"
	"github.com/openctemio/authz/internal/infra/redis"
	"github.com/openctemio/authz/pkg/logger"
)

// Services holds all application service instances.
type Services struct {
	Authorization *app.AuthorizationService
	Permission    *app.PermissionService
	Role          *app.RoleService
	Grant         *app.GrantService
	Organization  *app.OrganizationService
	User          *app.UserService
	Collaboration *app.CollaborationService
	Catalog       *app.CatalogService

	// Cache is nil when the decision cache is disabled.
	Cache *app.DecisionCache
}

// ServiceDeps contains dependencies needed to create services.
type ServiceDeps struct {
	Config      *config.Config
	Log         *logger.Logger
	Repos       *Repositories
	RedisClient *redis.Client
	Notifier    app.Notifier
}

// NewServices wires every service. Each mutating service shares the
// decision cache so it can invalidate what it changes.
func NewServices(deps *ServiceDeps) (*Services, error) {
	cfg := deps.Config
	log := deps.Log
	repos := deps.Repos

	notifier := deps.Notifier
	if notifier == nil {
		notifier = app.NopNotifier{}
	}

	s := &Services{}
	if cfg.Cache.Enabled {
		cache, err := app.NewDecisionCache(deps.RedisClient, cfg.Cache.DecisionTTL, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create decision cache: %w", err)
		}
		s.Cache = cache
		log.Info("decision cache enabled", "ttl", cfg.Cache.DecisionTTL)
	}

	s.Authorization = app.NewAuthorizationService(repos.AccessControl, repos.Organization, repos.Permission, log,
		app.WithAuthorizationCache(s.Cache),
	)
	s.Permission = app.NewPermissionService(repos.Permission, log,
		app.WithPermissionDecisionCache(s.Cache),
	)
	s.Role = app.NewRoleService(repos.Role, repos.Permission, log,
		app.WithRoleDecisionCache(s.Cache),
	)
	s.Grant = app.NewGrantService(repos.Grant, repos.Role, repos.Permission, repos.User, log,
		app.WithGrantDecisionCache(s.Cache),
		app.WithGrantNotifier(notifier),
	)
	s.Organization = app.NewOrganizationService(repos.Organization, repos.User, log,
		app.WithOrganizationDecisionCache(s.Cache),
	)
	s.User = app.NewUserService(repos.User, log)
	s.Collaboration = app.NewCollaborationService(
		repos.Collaboration, repos.User, repos.Organization, repos.Role, repos.Permission,
		s.Authorization, log,
		app.WithCollaborationDecisionCache(s.Cache),
		app.WithCollaborationNotifier(notifier),
		app.WithCollaborationBaseURL(cfg.App.BaseURL),
	)
	s.Catalog = app.NewCatalogService(repos.Permission, repos.Role, s.Cache, log)

	return s, nil
}
