package cmd

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "List resources",
}

var getPermissionsCmd = &cobra.Command{
	Use:     "permissions",
	Aliases: []string{"permission", "perms"},
	Short:   "List system permissions, or an organization's with --org",
	RunE:    runGetPermissions,
}

var getRolesCmd = &cobra.Command{
	Use:     "roles",
	Aliases: []string{"role"},
	Short:   "List system roles, or an organization's with --org",
	RunE:    runGetRoles,
}

var getGrantsCmd = &cobra.Command{
	Use:     "grants USER_ID",
	Aliases: []string{"grant"},
	Short:   "List every system role and direct grant of a user",
	Args:    cobra.ExactArgs(1),
	RunE:    runGetGrants,
}

var getCollaborationsCmd = &cobra.Command{
	Use:     "collaborations",
	Aliases: []string{"collaboration", "collabs"},
	Short:   "List the collaborations of an organization",
	RunE:    runGetCollaborations,
}

func init() {
	getPermissionsCmd.Flags().String("org", "", "Organization ID")
	getPermissionsCmd.Flags().String("search", "", "Search by name or type")
	getPermissionsCmd.Flags().String("resource", "", "Filter by resource")
	getPermissionsCmd.Flags().String("active", "", "Filter by active status (true/false)")
	addPageFlags(getPermissionsCmd)

	getRolesCmd.Flags().String("org", "", "Organization ID")
	getRolesCmd.Flags().String("search", "", "Search by name or type")
	getRolesCmd.Flags().String("active", "", "Filter by active status (true/false)")
	addPageFlags(getRolesCmd)

	getCollaborationsCmd.Flags().String("org", "", "Organization ID (required)")
	getCollaborationsCmd.Flags().String("status", "", "Filter by status (pending, accepted, rejected)")
	getCollaborationsCmd.Flags().String("search", "", "Search by email or name")
	getCollaborationsCmd.Flags().String("role", "", "Filter by attached role ID")
	addPageFlags(getCollaborationsCmd)

	getCmd.AddCommand(getPermissionsCmd)
	getCmd.AddCommand(getRolesCmd)
	getCmd.AddCommand(getGrantsCmd)
	getCmd.AddCommand(getCollaborationsCmd)
}

func addPageFlags(c *cobra.Command) {
	c.Flags().Int("page", 1, "Page number")
	c.Flags().Int("per-page", 20, "Items per page")
}

// listParams copies the named string flags into query parameters, plus the
// paging flags.
func listParams(cmd *cobra.Command, flagToParam map[string]string) url.Values {
	params := url.Values{}
	for flag, param := range flagToParam {
		if v, _ := cmd.Flags().GetString(flag); v != "" {
			params.Set(param, v)
		}
	}
	if v, _ := cmd.Flags().GetInt("page"); v > 0 {
		params.Set("page", strconv.Itoa(v))
	}
	if v, _ := cmd.Flags().GetInt("per-page"); v > 0 {
		params.Set("per_page", strconv.Itoa(v))
	}
	return params
}

func withQuery(path string, params url.Values) string {
	if q := params.Encode(); q != "" {
		return path + "?" + q
	}
	return path
}

// permissionsPath and rolesPath select the system or organization
// collection.
func permissionsPath(orgID string) string {
	if orgID == "" {
		return "/api/v1/system/permissions"
	}
	return "/api/v1/organizations/" + url.PathEscape(orgID) + "/permissions"
}

func rolesPath(orgID string) string {
	if orgID == "" {
		return "/api/v1/system/roles"
	}
	return "/api/v1/organizations/" + url.PathEscape(orgID) + "/roles"
}

func runGetPermissions(cmd *cobra.Command, args []string) error {
	client := mustClient()
	orgID, _ := cmd.Flags().GetString("org")

	params := listParams(cmd, map[string]string{"search": "search", "resource": "resource", "active": "is_active"})
	data, err := client.Get(withQuery(permissionsPath(orgID), params))
	if err != nil {
		return err
	}

	var resp ListResponse[PermissionResponse]
	if err := unmarshal(data, &resp); err != nil {
		return err
	}
	if printStructured(resp) {
		return nil
	}

	if flagOutput == outputWide {
		t := newTable("ID", "TYPE", "NAME", "RESOURCE", "ACTION", "SCOPE", "ACTIVE", "CREATED")
		for _, p := range resp.Data {
			t.AddRow(p.ID, p.Type, p.Name, p.Resource, p.Action, p.Scope, boolToStr(p.IsActive), shortTime(p.CreatedAt))
		}
		t.Flush()
	} else {
		t := newTable("ID", "TYPE", "NAME", "ACTIVE")
		for _, p := range resp.Data {
			t.AddRow(truncate(p.ID, 12), p.Type, p.Name, boolToStr(p.IsActive))
		}
		t.Flush()
	}
	printPagination(resp.Total, resp.Page, resp.PerPage, resp.TotalPages)
	return nil
}

func runGetRoles(cmd *cobra.Command, args []string) error {
	client := mustClient()
	orgID, _ := cmd.Flags().GetString("org")

	params := listParams(cmd, map[string]string{"search": "search", "active": "is_active"})
	data, err := client.Get(withQuery(rolesPath(orgID), params))
	if err != nil {
		return err
	}

	var resp ListResponse[RoleResponse]
	if err := unmarshal(data, &resp); err != nil {
		return err
	}
	if printStructured(resp) {
		return nil
	}

	if flagOutput == outputWide {
		t := newTable("ID", "TYPE", "NAME", "SCOPE", "PERMISSIONS", "ACTIVE", "CREATED")
		for _, r := range resp.Data {
			t.AddRow(r.ID, r.Type, r.Name, r.Scope, strconv.Itoa(len(r.PermissionIDs)), boolToStr(r.IsActive), shortTime(r.CreatedAt))
		}
		t.Flush()
	} else {
		t := newTable("ID", "TYPE", "NAME", "PERMISSIONS", "ACTIVE")
		for _, r := range resp.Data {
			t.AddRow(truncate(r.ID, 12), r.Type, r.Name, strconv.Itoa(len(r.PermissionIDs)), boolToStr(r.IsActive))
		}
		t.Flush()
	}
	printPagination(resp.Total, resp.Page, resp.PerPage, resp.TotalPages)
	return nil
}

func runGetGrants(cmd *cobra.Command, args []string) error {
	client := mustClient()
	data, err := client.Get("/api/v1/users/" + url.PathEscape(args[0]) + "/grants")
	if err != nil {
		return err
	}

	var resp UserGrantsResponse
	if err := unmarshal(data, &resp); err != nil {
		return err
	}
	if printStructured(resp) {
		return nil
	}

	t := newTable("KIND", "ID", "TARGET", "ORGANIZATION", "ACTIVE", "EXPIRES", "GRANTED")
	for _, a := range resp.SystemRoles {
		t.AddRow("system-role", truncate(a.ID, 12), a.RoleID, "-", boolToStr(a.IsActive), ptrStr(a.ExpiresAt), shortTime(a.AssignedAt))
	}
	for _, g := range resp.DirectGrants {
		t.AddRow("permission", truncate(g.ID, 12), g.PermissionID, ptrStr(g.OrganizationID), boolToStr(g.IsActive), ptrStr(g.ExpiresAt), shortTime(g.GrantedAt))
	}
	t.Flush()
	if len(resp.SystemRoles)+len(resp.DirectGrants) == 0 {
		fmt.Fprintln(stdout, "No grants found.")
	}
	return nil
}

func runGetCollaborations(cmd *cobra.Command, args []string) error {
	orgID, _ := cmd.Flags().GetString("org")
	if orgID == "" {
		return fmt.Errorf("--org is required")
	}

	client := mustClient()
	params := listParams(cmd, map[string]string{"status": "status", "search": "search", "role": "role_id"})
	data, err := client.Get(withQuery("/api/v1/organizations/"+url.PathEscape(orgID)+"/collaborations", params))
	if err != nil {
		return err
	}

	var resp ListResponse[CollaborationResponse]
	if err := unmarshal(data, &resp); err != nil {
		return err
	}
	if printStructured(resp) {
		return nil
	}

	if flagOutput == outputWide {
		t := newTable("ID", "EMAIL", "NAME", "STATUS", "ACTIVE", "INVITED", "ACCEPTED", "EXPIRES")
		for _, c := range resp.Data {
			t.AddRow(c.ID, c.Email, c.CollaboratorName, c.Status, boolToStr(c.IsActive),
				shortTime(c.InvitedAt), ptrStr(c.AcceptedAt), ptrStr(c.ExpiresAt))
		}
		t.Flush()
	} else {
		t := newTable("ID", "EMAIL", "STATUS", "ACTIVE")
		for _, c := range resp.Data {
			t.AddRow(truncate(c.ID, 12), c.Email, c.Status, boolToStr(c.IsActive))
		}
		t.Flush()
	}
	printPagination(resp.Total, resp.Page, resp.PerPage, resp.TotalPages)
	return nil
}
