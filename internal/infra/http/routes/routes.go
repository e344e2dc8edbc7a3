// Package routes registers all HTTP routes of the authorization API.
package routes

import (
	infrahttp "github.com/openctemio/authz/internal/infra/http"
	"github.com/openctemio/authz/internal/infra/http/handler"
	"github.com/openctemio/authz/internal/infra/http/middleware"
	"github.com/openctemio/authz/pkg/domain/permission"
	"github.com/openctemio/authz/pkg/logger"
)

// Middleware is an alias to the http package's Middleware type.
type Middleware = infrahttp.Middleware

// Router is an alias to the http package's Router interface.
type Router = infrahttp.Router

// Handlers holds all HTTP handlers for route registration.
type Handlers struct {
	Health        *handler.HealthHandler
	Permission    *handler.PermissionHandler
	Role          *handler.RoleHandler
	Grant         *handler.GrantHandler
	Collaboration *handler.CollaborationHandler
	Organization  *handler.OrganizationHandler
	Authz         *handler.AuthzHandler
}

// Dependencies are the collaborators route guards need.
type Dependencies struct {
	Verifier   middleware.TokenVerifier
	Users      middleware.IdentitySyncer
	Authorizer middleware.Authorizer
	// CheckRateLimit throttles POST /authz/check per caller. Nil disables it.
	CheckRateLimit Middleware
}

// Register registers all application routes.
//
// Routes are organized across files by domain:
//   - access_control.go: permissions, roles and grants
//   - organization.go: organizations and collaborations
//   - misc.go: health, metrics and authorization queries
func Register(router Router, h Handlers, deps Dependencies, log *logger.Logger) {
	registerHealthRoutes(router, h.Health)

	auth := middleware.Authenticate(deps.Verifier, deps.Users, log)
	g := guards{authz: deps.Authorizer}

	router.Group("/api/v1", func(r Router) {
		registerPermissionRoutes(r, h.Permission, g)
		registerRoleRoutes(r, h.Role, g)
		registerGrantRoutes(r, h.Grant, g)
		registerOrganizationRoutes(r, h.Organization, g)
		registerCollaborationRoutes(r, h.Collaboration, g)
		registerAuthzRoutes(r, h.Authz, deps.CheckRateLimit)
	}, auth)
}

// guards builds the permission middleware of a route.
type guards struct {
	authz middleware.Authorizer
}

func (g guards) system(t permission.Type) Middleware {
	return middleware.Require(g.authz, middleware.System(t))
}

// org checks t in the organization named by the {orgId} parameter.
func (g guards) org(t permission.Type) Middleware {
	return middleware.Require(g.authz, middleware.Organization("orgId", t))
}
