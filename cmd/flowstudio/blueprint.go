package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jxucoder/flowstudio/internal/blueprint"
	"github.com/jxucoder/flowstudio/internal/studio"
)

var (
	blueprintYAML bool
	handoffRepo   string
	statusValue   string
)

var blueprintCmd = &cobra.Command{
	Use:   "blueprint [automation-id]",
	Short: "Show the current blueprint of an automation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Version   int                  `json:"version"`
			Blueprint *blueprint.Blueprint `json:"blueprint"`
		}
		if err := newAPIClient(serverURL).do(http.MethodGet, "/api/automations/"+args[0]+"/blueprint", nil, http.StatusOK, &resp); err != nil {
			return err
		}
		if blueprintYAML {
			out, err := blueprint.MarshalYAML(resp.Blueprint)
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(out)
			return err
		}
		renderBlueprint(os.Stdout, resp.Version, resp.Blueprint)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status [automation-id]",
	Short: "Set the blueprint status (Draft, ReadyForQuote, ReadyToBuild)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Version int `json:"version"`
		}
		body := map[string]string{"status": statusValue}
		if err := newAPIClient(serverURL).do(http.MethodPost, "/api/automations/"+args[0]+"/status", body, http.StatusOK, &resp); err != nil {
			return err
		}
		fmt.Printf("Blueprint v%d is now %s.\n", resp.Version, statusValue)
		return nil
	},
}

var handoffCmd = &cobra.Command{
	Use:   "handoff [automation-id]",
	Short: "Open a GitHub issue to build a ready blueprint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var res studio.HandoffResult
		body := map[string]string{"repo": handoffRepo}
		if err := newAPIClient(serverURL).do(http.MethodPost, "/api/automations/"+args[0]+"/handoff", body, http.StatusCreated, &res); err != nil {
			return err
		}
		fmt.Printf("\033[32m✓ Issue #%d created:\033[0m %s\n", res.Number, res.URL)
		return nil
	},
}

func init() {
	blueprintCmd.Flags().BoolVar(&blueprintYAML, "yaml", false, "print the blueprint as YAML")
	statusCmd.Flags().StringVar(&statusValue, "set", "", "new status")
	_ = statusCmd.MarkFlagRequired("set")
	handoffCmd.Flags().StringVarP(&handoffRepo, "repo", "r", "", "GitHub repository (owner/repo)")
	_ = handoffCmd.MarkFlagRequired("repo")
	rootCmd.AddCommand(blueprintCmd, statusCmd, handoffCmd)
}

func renderBlueprint(w io.Writer, version int, bp *blueprint.Blueprint) {
	fmt.Fprintf(w, "Status:   %s (v%d)\n", bp.Status, version)
	if bp.Summary != "" {
		fmt.Fprintf(w, "Summary:  %s\n", bp.Summary)
	}
	fmt.Fprintln(w)

	if len(bp.Steps) == 0 {
		fmt.Fprintln(w, "No steps yet.")
	} else {
		tw := table.NewWriter()
		tw.SetOutputMirror(w)
		tw.AppendHeader(table.Row{"#", "ID", "Title", "Type", "Systems", "Depends on"})
		for i, s := range bp.Steps {
			tw.AppendRow(table.Row{
				i + 1, s.ID, blueprint.Truncate(s.Title, 50), s.Type,
				strings.Join(s.SystemsInvolved, ", "),
				strings.Join(s.DependsOnIDs, ", "),
			})
		}
		tw.Render()
	}

	var filled []blueprint.SectionKey
	for _, k := range blueprint.SectionKeys {
		if !bp.Sections.Blank(k) {
			filled = append(filled, k)
		}
	}
	if len(filled) == 0 {
		return
	}
	fmt.Fprintln(w)
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Section", "Notes"})
	for _, k := range filled {
		tw.AppendRow(table.Row{k, blueprint.Truncate(strings.TrimSpace(bp.Sections[k]), 80)})
	}
	tw.Render()
}
