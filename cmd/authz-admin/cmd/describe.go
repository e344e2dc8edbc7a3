package cmd

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

var describeCmd = &cobra.Command{
	Use:   "describe",
	Short: "Show detailed information about a resource",
}

var describeRoleCmd = &cobra.Command{
	Use:   "role ID",
	Short: "Show a role with its permissions and assignees",
	Args:  cobra.ExactArgs(1),
	RunE:  runDescribeRole,
}

var describeOrganizationCmd = &cobra.Command{
	Use:     "organization ID",
	Aliases: []string{"org"},
	Short:   "Show details of an organization",
	Args:    cobra.ExactArgs(1),
	RunE:    runDescribeOrganization,
}

var describeMeCmd = &cobra.Command{
	Use:   "me",
	Short: "Show the caller's effective permissions and where they come from",
	Args:  cobra.NoArgs,
	RunE:  runDescribeMe,
}

func init() {
	describeRoleCmd.Flags().String("org", "", "Organization ID of an organization role")
	describeMeCmd.Flags().String("org", "", "Resolve within this organization")

	describeCmd.AddCommand(describeRoleCmd)
	describeCmd.AddCommand(describeOrganizationCmd)
	describeCmd.AddCommand(describeMeCmd)
}

func runDescribeRole(cmd *cobra.Command, args []string) error {
	orgID, _ := cmd.Flags().GetString("org")
	path := "/api/v1/roles/" + url.PathEscape(args[0])
	if orgID != "" {
		path = rolesPath(orgID) + "/" + url.PathEscape(args[0])
	}

	client := mustClient()
	data, err := client.Get(path)
	if err != nil {
		return err
	}

	var resp RoleDetailsResponse
	if err := unmarshal(data, &resp); err != nil {
		return err
	}
	if printStructured(resp) {
		return nil
	}

	fmt.Fprintf(stdout, "ID:           %s\n", resp.ID)
	fmt.Fprintf(stdout, "Type:         %s\n", resp.Type)
	fmt.Fprintf(stdout, "Name:         %s\n", resp.Name)
	fmt.Fprintf(stdout, "Scope:        %s\n", resp.Scope)
	fmt.Fprintf(stdout, "Organization: %s\n", ptrStr(resp.OrganizationID))
	fmt.Fprintf(stdout, "Description:  %s\n", resp.Description)
	fmt.Fprintf(stdout, "Active:       %s\n", boolToStr(resp.IsActive))
	fmt.Fprintf(stdout, "Created At:   %s\n", resp.CreatedAt)
	fmt.Fprintf(stdout, "Updated At:   %s\n", resp.UpdatedAt)

	fmt.Fprintf(stdout, "\nPermissions:\n")
	if len(resp.Permissions) == 0 {
		fmt.Fprintln(stdout, "  (none)")
	} else {
		t := newTable("  TYPE", "NAME", "ACTIVE")
		for _, p := range resp.Permissions {
			t.AddRow("  "+p.Type, p.Name, boolToStr(p.IsActive))
		}
		t.Flush()
	}

	fmt.Fprintf(stdout, "\nAssignees:\n")
	if len(resp.Assignees) == 0 {
		fmt.Fprintln(stdout, "  (none)")
	} else {
		t := newTable("  USER", "EMAIL", "SOURCE", "ASSIGNED", "EXPIRES")
		for _, a := range resp.Assignees {
			t.AddRow("  "+a.UserID, a.Email, a.Source, shortTime(a.AssignedAt), ptrStr(a.ExpiresAt))
		}
		t.Flush()
	}
	return nil
}

func runDescribeOrganization(cmd *cobra.Command, args []string) error {
	client := mustClient()
	data, err := client.Get("/api/v1/organizations/" + url.PathEscape(args[0]))
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

	fmt.Fprintf(stdout, "ID:          %s\n", resp.ID)
	fmt.Fprintf(stdout, "Name:        %s\n", resp.Name)
	fmt.Fprintf(stdout, "Slug:        %s\n", resp.Slug)
	fmt.Fprintf(stdout, "Owner:       %s\n", resp.OwnerUserID)
	fmt.Fprintf(stdout, "Created At:  %s\n", resp.CreatedAt)
	fmt.Fprintf(stdout, "Updated At:  %s\n", resp.UpdatedAt)
	return nil
}

func runDescribeMe(cmd *cobra.Command, args []string) error {
	params := url.Values{}
	if orgID, _ := cmd.Flags().GetString("org"); orgID != "" {
		params.Set("organization_id", orgID)
	}

	client := mustClient()
	data, err := client.Get(withQuery("/api/v1/me/permissions", params))
	if err != nil {
		return err
	}

	var resp EffectivePermissionsResponse
	if err := unmarshal(data, &resp); err != nil {
		return err
	}
	if printStructured(resp) {
		return nil
	}

	fmt.Fprintf(stdout, "Organization: %s\n\n", ptrStr(resp.OrganizationID))
	if len(resp.Permissions) == 0 {
		fmt.Fprintln(stdout, "No permissions.")
		return nil
	}

	perms := append([]string(nil), resp.Permissions...)
	sort.Strings(perms)
	t := newTable("PERMISSION", "SOURCES")
	for _, p := range perms {
		t.AddRow(p, formatSources(resp.Sources[p]))
	}
	t.Flush()
	return nil
}

func formatSources(sources []PermissionSourceResponse) string {
	if len(sources) == 0 {
		return "-"
	}
	parts := make([]string, len(sources))
	for i, s := range sources {
		name := s.SourceName
		if name == "" {
			name = truncate(s.SourceID, 12)
		}
		parts[i] = s.Source + "(" + name + ")"
	}
	return strings.Join(parts, ", ")
}
