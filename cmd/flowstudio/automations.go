package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jxucoder/flowstudio/internal/blueprint"
	"github.com/jxucoder/flowstudio/internal/store"
	"github.com/jxucoder/flowstudio/internal/studio"
)

var listJSON bool

var newCmd = &cobra.Command{
	Use:   "new [name]",
	Short: "Start a new automation",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		var created struct {
			ID string `json:"id"`
		}
		if err := newAPIClient(serverURL).do(http.MethodPost, "/api/automations", map[string]string{"name": name}, http.StatusCreated, &created); err != nil {
			return err
		}
		fmt.Printf("Automation %s created.\n", created.ID)
		fmt.Printf("Describe the process with: flowstudio chat %s \"...\"\n", created.ID)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all automations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var automations []store.Automation
		if err := newAPIClient(serverURL).do(http.MethodGet, "/api/automations", nil, http.StatusOK, &automations); err != nil {
			return err
		}
		if listJSON {
			return printJSON(os.Stdout, automations)
		}
		if len(automations) == 0 {
			fmt.Println("No automations found.")
			return nil
		}
		renderAutomations(os.Stdout, automations)
		return nil
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat [automation-id] [message]",
	Short: "Send one message to the copilot",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var turn studio.Turn
		path := "/api/automations/" + args[0] + "/messages"
		if err := newAPIClient(serverURL).do(http.MethodPost, path, map[string]string{"content": args[1]}, http.StatusOK, &turn); err != nil {
			return err
		}
		printTurn(os.Stdout, &turn)
		return nil
	},
}

var eventsFollow bool

var eventsCmd = &cobra.Command{
	Use:   "events [automation-id]",
	Short: "Show an automation's design events",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return streamEvents(args[0], eventsFollow)
	},
}

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "print JSON")
	eventsCmd.Flags().BoolVarP(&eventsFollow, "follow", "f", false, "keep streaming new events")
	rootCmd.AddCommand(newCmd, listCmd, chatCmd, eventsCmd)
}

func renderAutomations(w io.Writer, automations []store.Automation) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"ID", "Name", "Version", "Updated"})
	for _, a := range automations {
		name := a.Name
		if name == "" {
			name = "-"
		}
		tw.AppendRow(table.Row{a.ID, blueprint.Truncate(name, 50), a.Version, a.UpdatedAt.Format(time.DateTime)})
	}
	tw.Render()
}

func printTurn(w io.Writer, turn *studio.Turn) {
	for _, step := range turn.Result.ThinkingSteps {
		fmt.Fprintf(w, "\033[2m… %s\033[0m\n", step)
	}
	fmt.Fprintf(w, "\n%s\n\n", turn.Result.AssistantDisplayText)
	fmt.Fprintf(w, "\033[36m[%s]\033[0m blueprint v%d, %d steps\n",
		turn.Result.ConversationPhase, turn.Version, len(turn.Blueprint.Steps))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// streamEvents prints the SSE event stream of an automation. Without follow
// it stops once the stored history has been replayed.
func streamEvents(automationID string, follow bool) error {
	req, err := http.NewRequest(http.MethodGet, strings.TrimRight(serverURL, "/")+"/api/automations/"+automationID+"/events", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	client := http.DefaultClient
	if !follow {
		client = &http.Client{Timeout: 2 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("connecting to event stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server error (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event store.Event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			continue
		}
		printEvent(os.Stdout, &event)
	}
	if err := scanner.Err(); err != nil && follow {
		return err
	}
	return nil
}

func printEvent(w io.Writer, e *store.Event) {
	ts := e.CreatedAt.Format(time.TimeOnly)
	switch e.Type {
	case store.EventError:
		fmt.Fprintf(w, "%s \033[31m[error]\033[0m %s\n", ts, e.Data)
	case store.EventHandoff:
		fmt.Fprintf(w, "%s \033[32m[handoff]\033[0m %s\n", ts, e.Data)
	default:
		fmt.Fprintf(w, "%s \033[36m[%s]\033[0m %s\n", ts, e.Type, e.Data)
	}
}
