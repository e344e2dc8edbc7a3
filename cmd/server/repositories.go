package main

import (
	"github.com/openctemio/authz/internal/infra/postgres"
)

// Repositories holds all repository instances.
type Repositories struct {
	User          *postgres.UserRepository
	Organization  *postgres.OrganizationRepository
	Permission    *postgres.PermissionRepository
	Role          *postgres.RoleRepository
	Grant         *postgres.GrantRepository
	Collaboration *postgres.CollaborationRepository

	// AccessControl is the read side the resolver queries.
	AccessControl *postgres.AccessControlRepository
}

// NewRepositories creates all repositories over one connection pool.
func NewRepositories(db *postgres.DB) *Repositories {
	return &Repositories{
		User:          postgres.NewUserRepository(db),
		Organization:  postgres.NewOrganizationRepository(db),
		Permission:    postgres.NewPermissionRepository(db),
		Role:          postgres.NewRoleRepository(db),
		Grant:         postgres.NewGrantRepository(db),
		Collaboration: postgres.NewCollaborationRepository(db),
		AccessControl: postgres.NewAccessControlRepository(db),
	}
}
