package routes

import (
	"github.com/openctemio/authz/internal/infra/http/handler"
	"github.com/openctemio/authz/pkg/domain/permission"
)

// registerOrganizationRoutes registers organization endpoints. Any
// authenticated user may create one; transfer is checked against the
// current owner by the service.
func registerOrganizationRoutes(r Router, h *handler.OrganizationHandler, g guards) {
	r.POST("/organizations", h.Create)
	r.GET("/organizations/{orgId}", h.Get, g.org(permission.OrganizationView))
	r.POST("/organizations/{orgId}/transfer", h.Transfer)
}

// registerCollaborationRoutes registers collaborator management.
// Routes keyed by collaboration id check collaborator_manage inside the
// service; accept and reject are reserved to the invitee.
func registerCollaborationRoutes(r Router, h *handler.CollaborationHandler, g guards) {
	r.POST("/organizations/{orgId}/collaborations", h.Invite, g.org(permission.CollaboratorManage))
	r.GET("/organizations/{orgId}/collaborations", h.List)

	r.PATCH("/collaborations/{id}", h.Update)
	r.DELETE("/collaborations/{id}", h.Remove)
	r.GET("/collaborations/{id}/roles", h.Roles)
	r.POST("/collaborations/{id}/accept", h.Accept)
	r.POST("/collaborations/{id}/reject", h.Reject)
}
