package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a resource",
}

var createPermissionCmd = &cobra.Command{
	Use:     "permission",
	Aliases: []string{"perm"},
	Short:   "Create a system permission, or an organization's with --org",
	RunE:    runCreatePermission,
}

var createRoleCmd = &cobra.Command{
	Use:   "role",
	Short: "Create a system role, or an organization's with --org",
	RunE:  runCreateRole,
}

var createOrganizationCmd = &cobra.Command{
	Use:     "organization",
	Aliases: []string{"org"},
	Short:   "Create an organization owned by the caller",
	RunE:    runCreateOrganization,
}

func init() {
	createPermissionCmd.Flags().String("type", "", "Permission type, lower snake case (required)")
	createPermissionCmd.Flags().String("name", "", "Display name (required)")
	createPermissionCmd.Flags().String("resource", "", "Resource the permission applies to")
	createPermissionCmd.Flags().String("action", "", "Action the permission allows")
	createPermissionCmd.Flags().String("description", "", "Description")
	createPermissionCmd.Flags().String("org", "", "Organization ID")

	createRoleCmd.Flags().String("type", "", "Role type, lower snake case (required)")
	createRoleCmd.Flags().String("name", "", "Display name (required)")
	createRoleCmd.Flags().String("description", "", "Description")
	createRoleCmd.Flags().StringSlice("permissions", nil, "Permission types to bundle (comma separated)")
	createRoleCmd.Flags().String("org", "", "Organization ID")

	createOrganizationCmd.Flags().String("name", "", "Organization name (required)")
	createOrganizationCmd.Flags().String("slug", "", "URL slug (derived from the name when empty)")

	createCmd.AddCommand(createPermissionCmd)
	createCmd.AddCommand(createRoleCmd)
	createCmd.AddCommand(createOrganizationCmd)
}

func runCreatePermission(cmd *cobra.Command, args []string) error {
	permType, _ := cmd.Flags().GetString("type")
	name, _ := cmd.Flags().GetString("name")
	resource, _ := cmd.Flags().GetString("resource")
	action, _ := cmd.Flags().GetString("action")
	description, _ := cmd.Flags().GetString("description")
	orgID, _ := cmd.Flags().GetString("org")

	if permType == "" {
		return fmt.Errorf("--type is required")
	}
	if name == "" {
		return fmt.Errorf("--name is required")
	}

	client := mustClient()
	data, err := client.Post(permissionsPath(orgID), map[string]string{
		"type":        permType,
		"name":        name,
		"resource":    resource,
		"action":      action,
		"description": description,
	})
	if err != nil {
		return err
	}

	var resp PermissionResponse
	if err := unmarshal(data, &resp); err != nil {
		return err
	}
	if printStructured(resp) {
		return nil
	}

	fmt.Fprintf(stdout, "Permission created.\n")
	fmt.Fprintf(stdout, "  ID:    %s\n", resp.ID)
	fmt.Fprintf(stdout, "  Type:  %s\n", resp.Type)
	fmt.Fprintf(stdout, "  Scope: %s\n", resp.Scope)
	return nil
}

func runCreateRole(cmd *cobra.Command, args []string) error {
	roleType, _ := cmd.Flags().GetString("type")
	name, _ := cmd.Flags().GetString("name")
	description, _ := cmd.Flags().GetString("description")
	permTypes, _ := cmd.Flags().GetStringSlice("permissions")
	orgID, _ := cmd.Flags().GetString("org")

	if roleType == "" {
		return fmt.Errorf("--type is required")
	}
	if name == "" {
		return fmt.Errorf("--name is required")
	}

	client := mustClient()
	permIDs, err := resolvePermissionTypes(client, orgID, permTypes)
	if err != nil {
		return err
	}

	data, err := client.Post(rolesPath(orgID), map[string]any{
		"type":           roleType,
		"name":           name,
		"description":    description,
		"permission_ids": permIDs,
	})
	if err != nil {
		return err
	}

	var resp RoleResponse
	if err := unmarshal(data, &resp); err != nil {
		return err
	}
	if printStructured(resp) {
		return nil
	}

	fmt.Fprintf(stdout, "Role created.\n")
	fmt.Fprintf(stdout, "  ID:          %s\n", resp.ID)
	fmt.Fprintf(stdout, "  Type:        %s\n", resp.Type)
	fmt.Fprintf(stdout, "  Scope:       %s\n", resp.Scope)
	fmt.Fprintf(stdout, "  Permissions: %d\n", len(resp.PermissionIDs))
	return nil
}

func runCreateOrganization(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("name")
	slug, _ := cmd.Flags().GetString("slug")
	if name == "" {
		return fmt.Errorf("--name is required")
	}

	body := map[string]string{"name": name}
	if slug != "" {
		body["slug"] = slug
	}

	client := mustClient()
	data, err := client.Post("/api/v1/organizations", body)
	if err != nil {
		return err
	}

	var resp OrganizationResponse
	if err := unmarshal(data, &resp); err != nil {
		return err
	}
	if printStructured(resp) {
		return nil
	}

	fmt.Fprintf(stdout, "Organization created.\n")
	fmt.Fprintf(stdout, "  ID:    %s\n", resp.ID)
	fmt.Fprintf(stdout, "  Name:  %s\n", resp.Name)
	fmt.Fprintf(stdout, "  Slug:  %s\n", resp.Slug)
	fmt.Fprintf(stdout, "  Owner: %s\n", resp.OwnerUserID)
	return nil
}

// resolvePermissionTypes maps permission types of a scope to their ids.
func resolvePermissionTypes(client *Client, orgID string, types []string) ([]string, error) {
	if len(types) == 0 {
		return []string{}, nil
	}
	byType, err := permissionIDsByType(client, orgID)
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}

	ids := make([]string, 0, len(types))
	var missing []string
	for _, t := range types {
		id, ok := byType[strings.TrimSpace(t)]
		if !ok {
			missing = append(missing, t)
			continue
		}
		ids = append(ids, id)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("unknown permission types: %s", strings.Join(missing, ", "))
	}
	return ids, nil
}
