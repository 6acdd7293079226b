package cmd

import (
	"net/http"

	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List subscribable event types and the wire-protocol guide",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, raw, err := doRequest(http.MethodGet, "/webhooks/events", nil)
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			return fail(status, raw)
		}
		printOutput(raw)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
}
