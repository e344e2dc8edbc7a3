package routes

import (
	"github.com/openctemio/authz/internal/infra/http/handler"
	"github.com/openctemio/authz/pkg/domain/permission"
)

// registerPermissionRoutes registers the permission catalog.
// System permissions need the platform permission_manage; organization
// permissions need permission_manage in that organization.
func registerPermissionRoutes(r Router, h *handler.PermissionHandler, g guards) {
	sys := g.system(permission.PermissionManage)
	r.POST("/system/permissions", h.CreateSystem, sys)
	r.GET("/system/permissions", h.ListSystem, sys)
	r.PATCH("/permissions/{id}", h.UpdateSystem, sys)

	org := g.org(permission.PermissionManage)
	r.POST("/organizations/{orgId}/permissions", h.CreateForOrganization, org)
	r.GET("/organizations/{orgId}/permissions", h.ListForOrganization, org)
	r.PATCH("/organizations/{orgId}/permissions/{id}", h.UpdateForOrganization, org)
}

// registerRoleRoutes registers system and organization roles. Get, Update
// and Delete resolve their scope from the presence of {orgId}.
func registerRoleRoutes(r Router, h *handler.RoleHandler, g guards) {
	sys := g.system(permission.RoleManage)
	r.POST("/system/roles", h.CreateSystem, sys)
	r.GET("/system/roles", h.ListSystem, sys)
	r.GET("/roles/{id}", h.Get, sys)
	r.PATCH("/roles/{id}", h.Update, sys)
	r.DELETE("/roles/{id}", h.Delete, sys)

	org := g.org(permission.RoleManage)
	r.POST("/organizations/{orgId}/roles", h.CreateForOrganization, org)
	r.GET("/organizations/{orgId}/roles", h.ListForOrganization, org)
	r.GET("/organizations/{orgId}/roles/{id}", h.Get, org)
	r.PATCH("/organizations/{orgId}/roles/{id}", h.Update, org)
	r.DELETE("/organizations/{orgId}/roles/{id}", h.Delete, org)
}

// registerGrantRoutes registers role assignment and direct grants.
func registerGrantRoutes(r Router, h *handler.GrantHandler, g guards) {
	sys := g.system(permission.GrantManage)
	r.POST("/users/{userId}/system-roles", h.AssignSystemRole, sys)
	r.DELETE("/users/{userId}/system-roles/{roleId}", h.RevokeSystemRole, sys)
	r.POST("/users/{userId}/permissions", h.GrantPermission, sys)
	r.DELETE("/users/{userId}/permissions/{permissionId}", h.RevokePermission, sys)
	r.GET("/users/{userId}/grants", h.ListUserGrants, sys)
	r.POST("/bulk/system-roles", h.BulkAssignRoles, sys)

	r.POST("/organizations/{orgId}/bulk/permissions", h.BulkAssignPermissions, g.org(permission.CollaboratorManage))
}
