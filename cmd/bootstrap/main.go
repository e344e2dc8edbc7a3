// Package main prepares a fresh database: it applies migrations, seeds the
// platform catalog and makes a first user platform administrator.
//
// Usage:
//
//	./bootstrap -db=$DATABASE_URL -email=admin@example.com
//
//	# Or via environment variables
//	DATABASE_URL=postgres://... ADMIN_EMAIL=admin@example.com ./bootstrap
//
// The admin is created as a placeholder user and claimed on first login
// through the identity provider. Running it again is a no-op.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/openctemio/authz/internal/app"
	"github.com/openctemio/authz/internal/infra/postgres"
	"github.com/openctemio/authz/migrations"
	"github.com/openctemio/authz/pkg/catalog"
	"github.com/openctemio/authz/pkg/domain/grant"
	"github.com/openctemio/authz/pkg/domain/role"
	"github.com/openctemio/authz/pkg/logger"
	pkgmigrations "github.com/openctemio/authz/pkg/migrations"
)

func main() {
	dbURL := flag.String("db", "", "Database URL (or set DATABASE_URL env)")
	email := flag.String("email", "", "Admin email (or set ADMIN_EMAIL env)")
	name := flag.String("name", "", "Admin name (defaults to email prefix)")
	catalogFile := flag.String("catalog", "", "Extra system catalog YAML to apply after the platform catalog")
	skipMigrations := flag.Bool("skip-migrations", false, "Do not apply pending migrations")
	flag.Parse()

	databaseURL := firstNonEmpty(*dbURL, os.Getenv("DATABASE_URL"), databaseURLFromParts())
	if databaseURL == "" {
		fatal("Database URL required. Use -db flag, set DATABASE_URL, or set DB_HOST/DB_USER/DB_PASSWORD/DB_NAME env vars")
	}

	adminEmail := strings.TrimSpace(firstNonEmpty(*email, os.Getenv("ADMIN_EMAIL")))
	if adminEmail == "" {
		fatal("Admin email required. Use -email flag or set ADMIN_EMAIL env")
	}
	adminName := firstNonEmpty(*name, os.Getenv("ADMIN_NAME"), strings.Split(adminEmail, "@")[0])

	log := logger.New(logger.Config{Level: "info", Format: "text", Output: os.Stderr})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	sqlDB, err := sql.Open("postgres", databaseURL)
	if err != nil {
		fatal("Error connecting to database: %v", err)
	}
	defer sqlDB.Close()
	if err := sqlDB.PingContext(ctx); err != nil {
		fatal("Error pinging database: %v", err)
	}

	if !*skipMigrations {
		runner := pkgmigrations.NewRunner(sqlDB, migrations.FS, log)
		if err := runner.Up(ctx); err != nil {
			fatal("Error applying migrations: %v", err)
		}
	}

	db := postgres.Wrap(sqlDB)
	users := postgres.NewUserRepository(db)
	perms := postgres.NewPermissionRepository(db)
	roles := postgres.NewRoleRepository(db)

	admin, created, err := app.NewUserService(users, log).FindOrCreatePlaceholder(ctx, adminEmail, adminName)
	if err != nil {
		fatal("Error creating admin user: %v", err)
	}

	catalogs := []*catalog.Catalog{catalog.Platform()}
	if *catalogFile != "" {
		extra, err := catalog.LoadFile(*catalogFile)
		if err != nil {
			fatal("Error loading catalog: %v", err)
		}
		catalogs = append(catalogs, extra)
	}

	catalogSvc := app.NewCatalogService(perms, roles, nil, log)
	for _, c := range catalogs {
		result, err := catalogSvc.Apply(ctx, c, nil, admin.ID())
		if err != nil {
			fatal("Error applying catalog: %v", err)
		}
		fmt.Printf("Catalog: %d permissions created, %d skipped; %d roles created, %d skipped\n",
			result.PermissionsCreated, result.PermissionsSkipped, result.RolesCreated, result.RolesSkipped)
	}

	adminRole, err := app.NewRoleService(roles, perms, log).GetSystemRoleByType(ctx, catalog.PlatformAdminRole)
	if err != nil {
		fatal("Error loading %s role: %v", catalog.PlatformAdminRole, err)
	}

	grants := app.NewGrantService(postgres.NewGrantRepository(db), roles, perms, users, log)
	_, err = grants.AssignSystemRole(ctx, app.AssignSystemRoleInput{
		UserID: admin.ID().String(),
		RoleID: adminRole.ID().String(),
	}, admin.ID())
	switch {
	case errors.Is(err, grant.ErrAssignmentExists):
		fmt.Printf("%s already holds %s\n", adminEmail, roleLabel(adminRole))
	case err != nil:
		fatal("Error assigning %s: %v", catalog.PlatformAdminRole, err)
	default:
		fmt.Printf("Assigned %s to %s\n", roleLabel(adminRole), adminEmail)
	}

	fmt.Println()
	fmt.Println("=== Bootstrap complete ===")
	fmt.Printf("Admin:   %s (%s)\n", adminEmail, admin.ID())
	if created {
		fmt.Println("The account is a placeholder until the admin signs in through the identity provider.")
	}
}

func roleLabel(r *role.Role) string {
	return fmt.Sprintf("%s (%s)", r.Name(), r.Type())
}

// databaseURLFromParts builds a URL from the DB_* variables the server uses.
func databaseURLFromParts() string {
	host, user, password, name := os.Getenv("DB_HOST"), os.Getenv("DB_USER"), os.Getenv("DB_PASSWORD"), os.Getenv("DB_NAME")
	if host == "" || user == "" || password == "" || name == "" {
		return ""
	}
	port := firstNonEmpty(os.Getenv("DB_PORT"), "5432")
	sslMode := firstNonEmpty(os.Getenv("DB_SSLMODE"), "disable")
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, password, host, port, name, sslMode)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
