// FlowStudio
//
// A design copilot for business automations. Describe how a process works
// today, get a structured blueprint ready to quote and build.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	serverURL string
)

var rootCmd = &cobra.Command{
	Use:   "flowstudio",
	Short: "FlowStudio - automation blueprint copilot",
	Long: `FlowStudio turns a conversation about a business process into an
automation blueprint.

  flowstudio serve                                   Start the server
  flowstudio new "Invoice intake"                    Start an automation
  flowstudio list                                    List automations
  flowstudio chat <id> "we get invoices by email"    Talk to the copilot
  flowstudio blueprint <id> [--yaml]                 Show the blueprint
  flowstudio events <id> [--follow]                  Show design events
  flowstudio handoff <id> --repo owner/repo          Open a build issue`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("FLOWSTUDIO_SERVER", "http://localhost:7080"), "FlowStudio server URL")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
