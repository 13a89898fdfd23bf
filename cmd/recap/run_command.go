package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"recap/internal/deps"
	"recap/internal/pipeline"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var stagesFlag string

	cmd := &cobra.Command{
		Use:   "run <url>",
		Short: "Run the pipeline against a source video URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stages, err := parseStageSpec(stagesFlag)
			if err != nil {
				return err
			}
			return executePipeline(cmd, ctx, pipeline.RunRequest{
				Stages: stages,
				Source: strings.TrimSpace(args[0]),
			})
		},
	}

	cmd.Flags().StringVar(&stagesFlag, "stages", "all", "Stages to run (e.g. all, 3, 1-4, 1,3,5)")
	return cmd
}

func newResumeCommand(ctx *commandContext) *cobra.Command {
	var stagesFlag string

	cmd := &cobra.Command{
		Use:   "resume <episode-root>",
		Short: "Resume a pipeline run from an existing episode directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stages, err := parseStageSpec(stagesFlag)
			if err != nil {
				return err
			}
			root, err := filepath.Abs(strings.TrimSpace(args[0]))
			if err != nil {
				return fmt.Errorf("resolve episode root: %w", err)
			}
			if info, err := os.Stat(root); err != nil || !info.IsDir() {
				return fmt.Errorf("episode root %s is not a directory", root)
			}
			return executePipeline(cmd, ctx, pipeline.RunRequest{
				Stages:     stages,
				ResumeRoot: root,
			})
		},
	}

	cmd.Flags().StringVar(&stagesFlag, "stages", "all", "Stages to run (e.g. all, 3, 1-4, 1,3,5)")
	return cmd
}

func executePipeline(cmd *cobra.Command, cmdCtx *commandContext, req pipeline.RunRequest) error {
	cfg, err := cmdCtx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := cmdCtx.ensureLogger()
	if err != nil {
		return err
	}

	if missing := deps.MissingForStages(cfg, req.Stages); len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for _, status := range missing {
			names = append(names, fmt.Sprintf("%s (%s)", status.Name, status.Detail))
		}
		return fmt.Errorf("missing external binaries: %s", strings.Join(names, ", "))
	}

	out := cmd.OutOrStdout()
	env, err := buildPipeline(cfg, logger, newConsoleReporter(out))
	if err != nil {
		return err
	}
	defer env.Close()

	runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(out, "Running stages: %s\n", formatStageList(req.Stages))
	manifest, err := env.controller.Run(runCtx, req)
	if manifest != nil {
		fmt.Fprint(out, renderManifest(manifest))
	}
	if err != nil {
		var depErr *pipeline.DependencyError
		if errors.As(err, &depErr) && len(depErr.Result.MissingDependencies) > 0 {
			return fmt.Errorf("%w (add stages %s or resume an episode root that already has their outputs)",
				err, formatStageList(depErr.Result.MissingDependencies))
		}
		return err
	}
	return nil
}
