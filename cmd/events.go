package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Ramtinhoss/vibekit/internal/audit"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Display the session event log of the project",
	Args:  cobra.NoArgs,
	RunE:  runEvents,
}

var eventsSession string

func init() {
	eventsCmd.Flags().StringVar(&eventsSession, "session", "", "Only show events of this session")
	rootCmd.AddCommand(eventsCmd)
}

func runEvents(cmd *cobra.Command, args []string) error {
	paths, _, err := loadProject()
	if err != nil {
		return err
	}

	logger := audit.NewLogger(paths.EventsFile)
	var events []audit.Event
	if eventsSession != "" {
		events, err = logger.SessionEvents(eventsSession)
	} else {
		events, err = logger.Events()
	}
	if err != nil {
		return fmt.Errorf("failed to read event log: %w", err)
	}

	if len(events) == 0 {
		logInfo("No events recorded for %s", paths.ProjectDir)
		return nil
	}

	out := cmd.OutOrStdout()
	for _, e := range events {
		if jsonOutput {
			data, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("failed to marshal event: %w", err)
			}
			fmt.Fprintln(out, string(data))
			continue
		}

		ts := e.Timestamp.Local().Format("2006-01-02 15:04:05")
		line := fmt.Sprintf("[%s] %-13s %s", ts, e.Type, shortID(e.Session))
		if e.Details != "" {
			line += " (" + e.Details + ")"
		}
		if len(e.Paths) > 0 {
			line += " " + strings.Join(e.Paths, ", ")
		}
		fmt.Fprintln(out, line)
	}

	return nil
}

// shortID abbreviates a session ID for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
