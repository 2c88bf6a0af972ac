package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon health and episode counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			var resp struct {
				Healthy  bool `json:"healthy"`
				Database struct {
					Healthy bool   `json:"healthy"`
					Detail  string `json:"detail"`
				} `json:"database"`
				Episodes struct {
					Total       int `json:"total"`
					Unprocessed int `json:"unprocessed"`
					Processing  int `json:"processing"`
					Completed   int `json:"completed"`
					Failed      int `json:"failed"`
				} `json:"episodes"`
				Stages []struct {
					Name   string `json:"name"`
					Ready  bool   `json:"ready"`
					Detail string `json:"detail"`
				} `json:"stages"`
			}
			if err := client.health(&resp); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			overall := "healthy"
			if !resp.Healthy {
				overall = "degraded"
			}
			fmt.Fprintf(out, "podsnipd: %s\n\n", overall)

			rows := [][]string{
				{"total", fmt.Sprintf("%d", resp.Episodes.Total)},
				{"unprocessed", fmt.Sprintf("%d", resp.Episodes.Unprocessed)},
				{"processing", fmt.Sprintf("%d", resp.Episodes.Processing)},
				{"completed", fmt.Sprintf("%d", resp.Episodes.Completed)},
				{"failed", fmt.Sprintf("%d", resp.Episodes.Failed)},
			}
			fmt.Fprintln(out, renderTable(
				[]string{"EPISODES", "COUNT"},
				rows,
				[]columnAlignment{alignLeft, alignRight},
			))

			if len(resp.Stages) > 0 {
				stageRows := make([][]string, 0, len(resp.Stages))
				for _, stage := range resp.Stages {
					state := "ready"
					if !stage.Ready {
						state = "unavailable"
					}
					stageRows = append(stageRows, []string{stage.Name, state, stage.Detail})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"STAGE", "STATE", "DETAIL"},
					stageRows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft},
				))
			}

			if !resp.Database.Healthy && resp.Database.Detail != "" {
				fmt.Fprintf(out, "database: %s\n", resp.Database.Detail)
			}
			return nil
		},
	}
}
