package main

import (
	"github.com/openctemio/authz/internal/infra/http/handler"
	"github.com/openctemio/authz/internal/infra/http/routes"
	"github.com/openctemio/authz/internal/infra/postgres"
	"github.com/openctemio/authz/internal/infra/redis"
	"github.com/openctemio/authz/pkg/logger"
	"github.com/openctemio/authz/pkg/validator"
)

// HandlerDeps contains dependencies needed to create handlers.
type HandlerDeps struct {
	Log         *logger.Logger
	Validator   *validator.Validator
	DB          *postgres.DB
	RedisClient *redis.Client
	Services    *Services
}

// NewHandlers creates all HTTP handlers.
func NewHandlers(deps *HandlerDeps) routes.Handlers {
	log := deps.Log
	v := deps.Validator
	svc := deps.Services

	healthOpts := []handler.HealthHandlerOption{handler.WithDependency("database", deps.DB)}
	if deps.RedisClient != nil {
		healthOpts = append(healthOpts, handler.WithDependency("redis", deps.RedisClient))
	}

	return routes.Handlers{
		Health:        handler.NewHealthHandler(healthOpts...),
		Permission:    handler.NewPermissionHandler(svc.Permission, v, log),
		Role:          handler.NewRoleHandler(svc.Role, v, log),
		Grant:         handler.NewGrantHandler(svc.Grant, v, log),
		Collaboration: handler.NewCollaborationHandler(svc.Collaboration, v, log),
		Organization:  handler.NewOrganizationHandler(svc.Organization, v, log),
		Authz:         handler.NewAuthzHandler(svc.Authorization, v, log),
	}
}
