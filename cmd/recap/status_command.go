package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"recap/internal/session"
)

const (
	ansiReset  = "\x1b[0m"
	ansiGreen  = "\x1b[32m"
	ansiRed    = "\x1b[31m"
	ansiYellow = "\x1b[33m"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var limitFlag int
	var episodeFlag string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recent pipeline sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := session.Open(cfg)
			if err != nil {
				return fmt.Errorf("open session store: %w", err)
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			if episodeFlag != "" {
				return renderEpisodeStatus(cmd, store, episodeFlag)
			}

			sessions, err := store.Recent(cmd.Context(), limitFlag)
			if err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}
			if len(sessions) == 0 {
				fmt.Fprintln(out, "No pipeline sessions recorded yet")
				return nil
			}

			colorize := shouldColorize(out)
			headers := []string{"Episode", "Status", "Stages", "Updated", "Root"}
			rows := make([][]string, 0, len(sessions))
			for _, s := range sessions {
				rows = append(rows, []string{
					s.EpisodeID,
					colorStatus(s.Status, colorize),
					formatStageList(s.RequestedStages),
					s.UpdatedAt.Local().Format(time.RFC3339),
					s.Root,
				})
			}
			fmt.Fprintln(out, renderTable(headers, rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft}))
			return nil
		},
	}

	cmd.Flags().IntVar(&limitFlag, "limit", 20, "Maximum number of sessions to list")
	cmd.Flags().StringVar(&episodeFlag, "episode", "", "Show per-stage records for one episode id")
	return cmd
}

func renderEpisodeStatus(cmd *cobra.Command, store *session.Store, episodeID string) error {
	out := cmd.OutOrStdout()
	sess, err := store.ByEpisode(cmd.Context(), episodeID)
	if err != nil {
		return fmt.Errorf("load session %s: %w", episodeID, err)
	}
	records, err := store.StageRecords(cmd.Context(), episodeID)
	if err != nil {
		return fmt.Errorf("load stage records: %w", err)
	}

	colorize := shouldColorize(out)
	fmt.Fprintf(out, "Episode: %s (%s)\n", sess.EpisodeID, colorStatus(sess.Status, colorize))
	fmt.Fprintf(out, "Root:    %s\n", sess.Root)
	if sess.Source != "" {
		fmt.Fprintf(out, "Source:  %s\n", sess.Source)
	}

	headers := []string{"#", "Stage", "Status", "Finished", "Message"}
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		finished := ""
		if rec.FinishedAt != nil {
			finished = rec.FinishedAt.Local().Format(time.RFC3339)
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", rec.Stage),
			rec.Label,
			colorStatus(rec.Status, colorize),
			finished,
			rec.Message,
		})
	}
	fmt.Fprintln(out, renderTable(headers, rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft}))
	return nil
}

func colorStatus(status string, colorize bool) string {
	if !colorize {
		return status
	}
	switch status {
	case "succeeded", "completed":
		return ansiGreen + status + ansiReset
	case "failed":
		return ansiRed + status + ansiReset
	case "running", "pending":
		return ansiYellow + status + ansiReset
	default:
		return status
	}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
