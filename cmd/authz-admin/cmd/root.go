package cmd

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
)

var (
	version string

	// Global flags
	flagAPIURL  string
	flagToken   string
	flagContext string
	flagOutput  string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "authz-admin",
	Short: "Authorization service administration CLI",
	Long: `authz-admin is a kubectl-style CLI for the authorization service.

It lists and inspects permissions, roles and grants, assigns roles and
permissions to users, answers "can user X do Y" questions and applies
YAML catalogs of permissions and roles.

Use "authz-admin config set-context" to configure your connection.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the CLI version from build flags.
func SetVersion(v string) {
	version = v
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&flagAPIURL, "api-url", "", "Override API URL (env: AUTHZ_API_URL)")
	rootCmd.PersistentFlags().StringVar(&flagToken, "token", "", "Override bearer token (env: AUTHZ_TOKEN)")
	rootCmd.PersistentFlags().StringVarP(&flagContext, "context", "c", "", "Use specific context (env: AUTHZ_CONTEXT)")
	rootCmd.PersistentFlags().StringVarP(&flagOutput, "output", "o", "table", "Output format: table, wide, json, yaml")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable verbose output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(clusterInfoCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(describeCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(assignCmd)
	rootCmd.AddCommand(revokeCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(applyCmd)
}

func initConfig() {
	if flagAPIURL == "" {
		flagAPIURL = os.Getenv("AUTHZ_API_URL")
	}
	if flagToken == "" {
		flagToken = os.Getenv("AUTHZ_TOKEN")
	}

	if flagAPIURL == "" || flagToken == "" {
		u, t := resolveFromConfigFile()
		if flagAPIURL == "" {
			flagAPIURL = u
		}
		if flagToken == "" {
			flagToken = t
		}
	}
}

func resolveFromConfigFile() (string, string) {
	ctxName := flagContext
	if ctxName == "" {
		ctxName = os.Getenv("AUTHZ_CONTEXT")
	}

	cfg, err := loadConfig()
	if err != nil {
		return "", ""
	}

	if ctxName == "" {
		ctxName = cfg.CurrentContext
	}

	ctx := cfg.GetContext(ctxName)
	if ctx == nil {
		return "", ""
	}

	token := ctx.Context.Token
	if token == "" && ctx.Context.TokenFile != "" {
		data, err := os.ReadFile(expandPath(ctx.Context.TokenFile))
		if err == nil {
			token = strings.TrimSpace(string(data))
		}
	}

	return ctx.Context.APIURL, token
}

func mustClient() *Client {
	if flagAPIURL == "" {
		fmt.Fprintln(os.Stderr, "Error: API URL not configured. Use --api-url, AUTHZ_API_URL, or 'authz-admin config set-context'")
		os.Exit(1)
	}
	if flagToken == "" {
		fmt.Fprintln(os.Stderr, "Error: token not configured. Use --token, AUTHZ_TOKEN, or 'authz-admin config set-context'")
		os.Exit(1)
	}
	return NewClient(flagAPIURL, flagToken, flagVerbose)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("authz-admin version %s\n", version)
		fmt.Printf("  Go:       %s\n", runtime.Version())
		fmt.Printf("  OS/Arch:  %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

var clusterInfoCmd = &cobra.Command{
	Use:   "cluster-info",
	Short: "Display connection status and the caller's system permissions",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := mustClient()
		data, err := client.Get("/api/v1/me/permissions")
		if err != nil {
			return fmt.Errorf("connection failed: %w", err)
		}

		var resp EffectivePermissionsResponse
		if err := unmarshal(data, &resp); err != nil {
			return err
		}

		switch flagOutput {
		case outputJSON:
			printJSON(resp)
			return nil
		case outputYAML:
			printYAML(resp)
			return nil
		}

		fmt.Printf("Authorization Service\n")
		fmt.Printf("  API URL:  %s\n", flagAPIURL)
		fmt.Printf("  Status:   connected\n")
		fmt.Printf("\nSystem permissions of the caller:\n")
		if len(resp.Permissions) == 0 {
			fmt.Println("  (none)")
		}
		for _, p := range resp.Permissions {
			fmt.Printf("  %s\n", p)
		}
		return nil
	},
}
