package cmd

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/openctemio/authz/pkg/catalog"
)

var applyCmd = &cobra.Command{
	Use:   "apply -f FILE",
	Short: "Create the permissions and roles of a YAML catalog",
	Long: `Apply a catalog of permissions and roles. Types that already exist are
skipped, so applying the same file twice is a no-op.

Without --org the catalog is applied to the system scope; with --org it is
applied to that organization.

Example catalog:

  permissions:
    - type: report_view
      name: View reports
      resource: report
      action: view
  roles:
    - type: auditor
      name: Auditor
      permissions: [report_view]`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "Catalog YAML file (required)")
	applyCmd.Flags().String("org", "", "Apply to this organization instead of the system scope")
	applyCmd.Flags().Bool("dry-run", false, "Show what would be created without creating it")
}

// ApplyResult counts what an apply created and skipped.
type ApplyResult struct {
	PermissionsCreated int  `json:"permissions_created"`
	PermissionsSkipped int  `json:"permissions_skipped"`
	RolesCreated       int  `json:"roles_created"`
	RolesSkipped       int  `json:"roles_skipped"`
	DryRun             bool `json:"dry_run,omitempty"`
}

func runApply(cmd *cobra.Command, args []string) error {
	file, _ := cmd.Flags().GetString("file")
	if file == "" {
		return fmt.Errorf("--file is required")
	}
	orgID, _ := cmd.Flags().GetString("org")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	c, err := catalog.LoadFile(file)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	result, err := applyCatalog(mustClient(), c, orgID, dryRun)
	if err != nil {
		return err
	}
	if printStructured(result) {
		return nil
	}

	verb := "created"
	if dryRun {
		verb = "to create"
	}
	fmt.Fprintf(stdout, "Permissions: %d %s, %d unchanged\n", result.PermissionsCreated, verb, result.PermissionsSkipped)
	fmt.Fprintf(stdout, "Roles:       %d %s, %d unchanged\n", result.RolesCreated, verb, result.RolesSkipped)
	return nil
}

// applyCatalog creates the missing permissions first, then the missing
// roles with their permission types resolved to ids. A 409 on create means
// another writer got there first and counts as skipped.
func applyCatalog(client *Client, c *catalog.Catalog, orgID string, dryRun bool) (*ApplyResult, error) {
	result := &ApplyResult{DryRun: dryRun}

	perms, err := listAll[PermissionResponse](client, permissionsPath(orgID))
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	permIDs := make(map[string]string, len(perms))
	for _, p := range perms {
		permIDs[p.Type] = p.ID
	}

	raced := false
	for _, def := range c.Permissions {
		t := def.Type.String()
		if _, ok := permIDs[t]; ok {
			result.PermissionsSkipped++
			continue
		}
		if dryRun {
			permIDs[t] = ""
			result.PermissionsCreated++
			continue
		}

		data, err := client.Post(permissionsPath(orgID), map[string]string{
			"type":        t,
			"name":        def.Name,
			"description": def.Description,
			"resource":    def.Resource,
			"action":      def.Action,
		})
		if isConflict(err) {
			raced = true
			result.PermissionsSkipped++
			continue
		}
		if err != nil {
			return result, fmt.Errorf("create permission %s: %w", t, err)
		}
		var created PermissionResponse
		if err := unmarshal(data, &created); err != nil {
			return result, err
		}
		permIDs[t] = created.ID
		result.PermissionsCreated++
	}

	if raced {
		if permIDs, err = permissionIDsByType(client, orgID); err != nil {
			return result, fmt.Errorf("list permissions: %w", err)
		}
	}

	roles, err := listAll[RoleResponse](client, rolesPath(orgID))
	if err != nil {
		return result, fmt.Errorf("list roles: %w", err)
	}
	existingRoles := make(map[string]bool, len(roles))
	for _, r := range roles {
		existingRoles[r.Type] = true
	}

	for _, def := range c.Roles {
		t := def.Type.String()
		if existingRoles[t] {
			result.RolesSkipped++
			continue
		}
		if dryRun {
			result.RolesCreated++
			continue
		}

		ids := make([]string, 0, len(def.Permissions))
		for _, pt := range def.Permissions {
			id, ok := permIDs[pt.String()]
			if !ok || id == "" {
				return result, fmt.Errorf("role %s: permission %s does not exist", t, pt)
			}
			ids = append(ids, id)
		}

		_, err := client.Post(rolesPath(orgID), map[string]any{
			"type":           t,
			"name":           def.Name,
			"description":    def.Description,
			"permission_ids": ids,
		})
		if isConflict(err) {
			result.RolesSkipped++
			continue
		}
		if err != nil {
			return result, fmt.Errorf("create role %s: %w", t, err)
		}
		result.RolesCreated++
	}

	return result, nil
}

func permissionIDsByType(client *Client, orgID string) (map[string]string, error) {
	perms, err := listAll[PermissionResponse](client, permissionsPath(orgID))
	if err != nil {
		return nil, err
	}
	ids := make(map[string]string, len(perms))
	for _, p := range perms {
		ids[p.Type] = p.ID
	}
	return ids, nil
}

// listAll walks every page of a paginated collection.
func listAll[T any](client *Client, path string) ([]T, error) {
	var all []T
	for page := 1; ; page++ {
		params := url.Values{}
		params.Set("page", strconv.Itoa(page))
		params.Set("per_page", "100")

		data, err := client.Get(withQuery(path, params))
		if err != nil {
			return nil, err
		}
		var resp ListResponse[T]
		if err := unmarshal(data, &resp); err != nil {
			return nil, err
		}
		all = append(all, resp.Data...)
		if page >= resp.TotalPages || len(resp.Data) == 0 {
			return all, nil
		}
	}
}

func isConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.IsConflict()
}
