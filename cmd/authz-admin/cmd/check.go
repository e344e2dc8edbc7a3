package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check [PERMISSION]",
	Short: "Ask whether a user holds a permission",
	Long: `Ask the resolver whether a user holds a permission, like
"kubectl auth can-i". Prints yes or no and exits 1 on no.

  authz-admin check grant_manage
  authz-admin check collaborator_manage --org ORG_ID --user USER_ID
  authz-admin check --any-of role_manage,permission_manage`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().String("user", "", "Check this user instead of the caller (needs grant_manage)")
	checkCmd.Flags().String("org", "", "Organization ID for an organization permission")
	checkCmd.Flags().StringSlice("any-of", nil, "Allow when any of these permissions is held")
}

type checkRequirement struct {
	Permission     string  `json:"permission"`
	OrganizationID *string `json:"organization_id,omitempty"`
}

type checkRequest struct {
	UserID         *string            `json:"user_id,omitempty"`
	Permission     string             `json:"permission,omitempty"`
	OrganizationID *string            `json:"organization_id,omitempty"`
	AnyOf          []checkRequirement `json:"any_of,omitempty"`
}

// buildCheckRequest turns the positional permission or --any-of into a
// check body. Every alternative of --any-of shares --org.
func buildCheckRequest(args []string, userID, orgID string, anyOf []string) (checkRequest, error) {
	var req checkRequest
	if userID != "" {
		req.UserID = &userID
	}
	var org *string
	if orgID != "" {
		org = &orgID
	}

	switch {
	case len(args) == 1 && len(anyOf) > 0:
		return req, fmt.Errorf("use either a permission argument or --any-of, not both")
	case len(args) == 1:
		req.Permission = args[0]
		req.OrganizationID = org
	case len(anyOf) > 0:
		for _, p := range anyOf {
			req.AnyOf = append(req.AnyOf, checkRequirement{Permission: p, OrganizationID: org})
		}
	default:
		return req, fmt.Errorf("a permission argument or --any-of is required")
	}
	return req, nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	userID, _ := cmd.Flags().GetString("user")
	orgID, _ := cmd.Flags().GetString("org")
	anyOf, _ := cmd.Flags().GetStringSlice("any-of")

	req, err := buildCheckRequest(args, userID, orgID, anyOf)
	if err != nil {
		return err
	}

	client := mustClient()
	data, err := client.Post("/api/v1/authz/check", req)
	if err != nil {
		return err
	}

	var resp DecisionResponse
	if err := unmarshal(data, &resp); err != nil {
		return err
	}

	if !printStructured(resp) {
		fmt.Fprintln(stdout, allowedStr(resp.Allowed))
		if flagVerbose || flagOutput == outputWide {
			fmt.Fprintf(stdout, "  Permission:   %s\n", resp.Permission)
			fmt.Fprintf(stdout, "  Organization: %s\n", ptrStr(resp.OrganizationID))
			if resp.Source != "" {
				fmt.Fprintf(stdout, "  Source:       %s\n", resp.Source)
			}
		}
	}
	if !resp.Allowed {
		os.Exit(1)
	}
	return nil
}
