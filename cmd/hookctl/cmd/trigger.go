package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var (
	triggerData string
	triggerSync bool
)

var triggerCmd = &cobra.Command{
	Use:   "trigger <form-id> <event-type>",
	Short: "Fire a domain event for a form",
	Long: `Fire a domain event for a form. By default the event is accepted and
dispatched asynchronously; --sync waits for fan-out and prints the per-
subscriber delivery results.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var data map[string]any
		if triggerData != "" {
			if err := json.Unmarshal([]byte(triggerData), &data); err != nil {
				return fmt.Errorf("--data must be a JSON object: %w", err)
			}
		}

		path := "/forms/" + args[0] + "/events"
		if triggerSync {
			path += "?sync=true"
		}
		status, raw, err := doRequest(http.MethodPost, path, map[string]any{
			"event_type": args[1],
			"data":       data,
		})
		if err != nil {
			return err
		}
		if status != http.StatusOK && status != http.StatusAccepted {
			return fail(status, raw)
		}
		printOutput(raw)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(triggerCmd)
	triggerCmd.Flags().StringVar(&triggerData, "data", "", "event data as a JSON object")
	triggerCmd.Flags().BoolVar(&triggerSync, "sync", false, "wait for fan-out and print delivery results")
}
