package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

type feedView struct {
	Slug             string `json:"slug"`
	Title            string `json:"title"`
	FeedURL          string `json:"feed_url"`
	Model            string `json:"model"`
	LastRefreshedAt  string `json:"last_refreshed_at"`
	LastRefreshError string `json:"last_refresh_error"`
}

func newFeedCommand(ctx *commandContext) *cobra.Command {
	feedCmd := &cobra.Command{
		Use:   "feed",
		Short: "Manage podcast subscriptions",
	}
	feedCmd.AddCommand(newFeedAddCommand(ctx))
	feedCmd.AddCommand(newFeedListCommand(ctx))
	feedCmd.AddCommand(newFeedRemoveCommand(ctx))
	feedCmd.AddCommand(newFeedRefreshCommand(ctx))
	return feedCmd
}

func newFeedAddCommand(ctx *commandContext) *cobra.Command {
	var slug string
	var title string
	var model string
	var prompt string

	cmd := &cobra.Command{
		Use:   "add <feed-url>",
		Short: "Subscribe to a podcast feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			var resp struct {
				Slug         string `json:"slug"`
				Title        string `json:"title"`
				Episodes     int    `json:"episodes"`
				RefreshError string `json:"refresh_error"`
			}
			body := map[string]string{
				"url":    strings.TrimSpace(args[0]),
				"slug":   slug,
				"title":  title,
				"model":  model,
				"prompt": prompt,
			}
			if err := client.post("/api/feeds", body, &resp); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if resp.RefreshError != "" {
				fmt.Fprintf(out, "Subscribed %s (initial refresh failed: %s)\n", resp.Slug, resp.RefreshError)
				return nil
			}
			fmt.Fprintf(out, "Subscribed %s (%q, %d episodes)\n", resp.Slug, resp.Title, resp.Episodes)
			return nil
		},
	}

	cmd.Flags().StringVar(&slug, "slug", "", "Slug for the rewritten feed URL (derived from title when omitted)")
	cmd.Flags().StringVar(&title, "title", "", "Display title override")
	cmd.Flags().StringVar(&model, "model", "", "Ad detection model override for this podcast")
	cmd.Flags().StringVar(&prompt, "prompt", "", "Ad detection prompt override for this podcast")
	return cmd
}

func newFeedListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List subscribed podcasts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			var resp struct {
				Feeds []feedView `json:"feeds"`
			}
			if err := client.get("/api/feeds", &resp); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(resp.Feeds) == 0 {
				fmt.Fprintln(out, "No subscriptions. Add one with: podsnip feed add <feed-url>")
				return nil
			}
			rows := make([][]string, 0, len(resp.Feeds))
			for _, feed := range resp.Feeds {
				status := "ok"
				if feed.LastRefreshError != "" {
					status = "error: " + feed.LastRefreshError
				} else if feed.LastRefreshedAt == "" {
					status = "never refreshed"
				}
				rows = append(rows, []string{feed.Slug, feed.Title, feed.FeedURL, status})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"SLUG", "TITLE", "FEED", "STATUS"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}
}

func newFeedRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <slug>",
		Short: "Unsubscribe and forget a podcast",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			if err := client.delete("/api/feeds/"+strings.TrimSpace(args[0]), nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
			return nil
		},
	}
}

func newFeedRefreshCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh <slug>",
		Short: "Fetch a feed now and sync its episodes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			var resp struct {
				Episodes    int `json:"episodes"`
				NewEpisodes int `json:"new_episodes"`
			}
			if err := client.post("/api/feeds/"+strings.TrimSpace(args[0])+"/refresh", nil, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Refreshed %s: %d episodes (%d new)\n", args[0], resp.Episodes, resp.NewEpisodes)
			return nil
		},
	}
}
