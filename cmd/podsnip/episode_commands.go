package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

type episodeListView struct {
	EpisodeKey      string  `json:"episode_key"`
	Title           string  `json:"title"`
	Status          string  `json:"status"`
	PublishedAt     string  `json:"published_at"`
	Attempts        int     `json:"attempts"`
	Error           string  `json:"error"`
	DurationSeconds float64 `json:"duration_seconds"`
	EditedSeconds   float64 `json:"edited_seconds"`
}

func newEpisodeCommand(ctx *commandContext) *cobra.Command {
	episodeCmd := &cobra.Command{
		Use:   "episode",
		Short: "Inspect and reprocess episodes",
	}
	episodeCmd.AddCommand(newEpisodeListCommand(ctx))
	episodeCmd.AddCommand(newEpisodeReprocessCommand(ctx))
	return episodeCmd
}

func newEpisodeListCommand(ctx *commandContext) *cobra.Command {
	var statusFilter string

	cmd := &cobra.Command{
		Use:   "list <slug>",
		Short: "List a podcast's episodes and processing state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			var resp struct {
				Episodes []episodeListView `json:"episodes"`
			}
			if err := client.get("/api/feeds/"+strings.TrimSpace(args[0])+"/episodes", &resp); err != nil {
				return err
			}

			filter := strings.TrimSpace(strings.ToLower(statusFilter))
			rows := make([][]string, 0, len(resp.Episodes))
			for _, episode := range resp.Episodes {
				if filter != "" && episode.Status != filter {
					continue
				}
				detail := ""
				switch {
				case episode.Error != "":
					detail = episode.Error
				case episode.Status == "completed":
					removed := episode.DurationSeconds - episode.EditedSeconds
					if removed > 0 {
						detail = fmt.Sprintf("%.0fs of ads removed", removed)
					} else {
						detail = "no ads detected"
					}
				}
				rows = append(rows, []string{
					episode.EpisodeKey,
					truncate(episode.Title, 48),
					episode.Status,
					fmt.Sprintf("%d", episode.Attempts),
					truncate(detail, 60),
				})
			}
			if len(rows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No matching episodes.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"KEY", "TITLE", "STATUS", "ATTEMPTS", "DETAIL"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&statusFilter, "status", "", "Filter by status (unprocessed, processing, completed, failed)")
	return cmd
}

func newEpisodeReprocessCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reprocess <slug> <episode-key>",
		Short: "Discard an episode's results and process it again",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			path := "/api/feeds/" + strings.TrimSpace(args[0]) + "/episodes/" + strings.TrimSpace(args[1]) + "/reprocess"
			if err := client.post(path, nil, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reprocessing %s/%s\n", args[0], args[1])
			return nil
		},
	}
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	if max <= 3 {
		return value[:max]
	}
	return value[:max-3] + "..."
}
