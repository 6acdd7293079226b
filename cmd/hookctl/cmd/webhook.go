package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var (
	webhookURL    string
	webhookEvents []string
	webhookSecret string
	webhookActive bool
)

var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Manage webhook subscriptions",
}

var webhookCreateCmd = &cobra.Command{
	Use:   "create <form-id>",
	Short: "Register a webhook subscription on a form",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]any{
			"url":    webhookURL,
			"events": webhookEvents,
			"active": webhookActive,
		}
		if webhookSecret != "" {
			body["secret"] = webhookSecret
		}
		status, raw, err := doRequest(http.MethodPost, "/forms/"+args[0]+"/webhooks", body)
		if err != nil {
			return err
		}
		if status != http.StatusCreated {
			return fail(status, raw)
		}
		printOutput(raw)
		return nil
	},
}

var webhookListCmd = &cobra.Command{
	Use:   "list <form-id>",
	Short: "List webhook subscriptions for a form",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, raw, err := doRequest(http.MethodGet, "/forms/"+args[0]+"/webhooks", nil)
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

var webhookUpdateCmd = &cobra.Command{
	Use:   "update <webhook-id>",
	Short: "Update a webhook subscription (only flags you pass are changed)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]any{}
		if cmd.Flags().Changed("url") {
			body["url"] = webhookURL
		}
		if cmd.Flags().Changed("event") {
			body["events"] = webhookEvents
		}
		if cmd.Flags().Changed("secret") {
			body["secret"] = webhookSecret
		}
		if cmd.Flags().Changed("active") {
			body["active"] = webhookActive
		}
		if len(body) == 0 {
			return fmt.Errorf("nothing to update: pass at least one of --url, --event, --secret, --active")
		}
		status, raw, err := doRequest(http.MethodPatch, "/webhooks/"+args[0], body)
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

var webhookDeleteCmd = &cobra.Command{
	Use:   "delete <webhook-id>",
	Short: "Delete a webhook subscription",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, raw, err := doRequest(http.MethodDelete, "/webhooks/"+args[0], nil)
		if err != nil {
			return err
		}
		if status != http.StatusNoContent {
			return fail(status, raw)
		}
		fmt.Println("deleted", args[0])
		return nil
	},
}

var webhookTestCmd = &cobra.Command{
	Use:   "test <webhook-id>",
	Short: "Fire a test delivery and show the result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, raw, err := doRequest(http.MethodPost, "/webhooks/"+args[0]+"/test", map[string]any{})
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
	rootCmd.AddCommand(webhookCmd)
	webhookCmd.AddCommand(webhookCreateCmd, webhookListCmd, webhookUpdateCmd, webhookDeleteCmd, webhookTestCmd)

	for _, c := range []*cobra.Command{webhookCreateCmd, webhookUpdateCmd} {
		c.Flags().StringVar(&webhookURL, "url", "", "target endpoint URL")
		c.Flags().StringSliceVar(&webhookEvents, "event", nil, "subscribed event type (repeatable)")
		c.Flags().StringVar(&webhookSecret, "secret", "", "signing secret (generated when omitted)")
		c.Flags().BoolVar(&webhookActive, "active", true, "whether the subscription is active")
	}
	webhookCreateCmd.MarkFlagRequired("url")
	webhookCreateCmd.MarkFlagRequired("event")
}
