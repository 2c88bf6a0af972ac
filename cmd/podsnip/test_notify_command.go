package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			var resp struct {
				Sent bool `json:"sent"`
			}
			if err := client.post("/api/notifications/test", nil, &resp); err != nil {
				return err
			}
			if resp.Sent {
				fmt.Fprintln(cmd.OutOrStdout(), "Test notification sent")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Notification not sent")
			}
			return nil
		},
	}
}
