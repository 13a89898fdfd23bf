package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"recap/internal/pipeline"
)

// consoleReporter prints one line per stage transition and a closing summary.
type consoleReporter struct {
	out     io.Writer
	started time.Time
}

func newConsoleReporter(out io.Writer) *consoleReporter {
	return &consoleReporter{out: out, started: time.Now()}
}

func (r *consoleReporter) StageProgress(_ context.Context, event pipeline.Event) {
	switch event.Status {
	case pipeline.StatusRunning:
		fmt.Fprintf(r.out, "[%d/%d] %s...\n", event.Index, event.TotalStages, event.Label)
	case pipeline.StatusSucceeded:
		fmt.Fprintf(r.out, "[%d/%d] %s done\n", event.Index, event.TotalStages, event.Label)
	case pipeline.StatusSkipped:
		fmt.Fprintf(r.out, "[%d/%d] %s already complete, skipping\n", event.Index, event.TotalStages, event.Label)
	case pipeline.StatusFailed:
		fmt.Fprintf(r.out, "[%d/%d] %s FAILED: %s\n", event.Index, event.TotalStages, event.Label, event.Message)
	}
}

func (r *consoleReporter) RunFinished(_ context.Context, manifest *pipeline.Manifest) {
	elapsed := time.Since(r.started).Round(time.Second)
	switch manifest.Status {
	case pipeline.RunSucceeded:
		fmt.Fprintf(r.out, "Pipeline complete in %s\n", elapsed)
	case pipeline.RunCanceled:
		fmt.Fprintf(r.out, "Pipeline canceled after %s\n", elapsed)
	default:
		fmt.Fprintf(r.out, "Pipeline failed after %s\n", elapsed)
	}
	fmt.Fprintf(r.out, "Episode root: %s\n", manifest.Root)
}

func renderManifest(manifest *pipeline.Manifest) string {
	headers := []string{"#", "Stage", "Status", "Detail"}
	rows := make([][]string, 0, len(manifest.Records))
	for _, rec := range manifest.Records {
		detail := rec.Message
		if detail == "" && rec.Status == pipeline.StatusSucceeded && !rec.FinishedAt.IsZero() {
			detail = rec.FinishedAt.Sub(rec.StartedAt).Round(time.Second).String()
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", rec.Stage),
			rec.Label,
			string(rec.Status),
			detail,
		})
	}
	var b strings.Builder
	b.WriteString(renderTable(headers, rows, []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft}))
	b.WriteString("\n")
	return b.String()
}
