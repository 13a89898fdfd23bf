package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"recap/internal/pipeline"
)

func newValidateCommand(ctx *commandContext) *cobra.Command {
	var stagesFlag string
	var rootFlag string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check whether a stage selection is runnable",
		RunE: func(cmd *cobra.Command, args []string) error {
			stages, err := parseStageSpec(stagesFlag)
			if err != nil {
				return err
			}

			root := strings.TrimSpace(rootFlag)
			if root != "" {
				if root, err = filepath.Abs(root); err != nil {
					return fmt.Errorf("resolve episode root: %w", err)
				}
			}

			result, err := pipeline.Validate(stages, root)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Stages:     %s\n", formatStageList(stages))
			fmt.Fprintf(out, "Validation: %s\n", result.Type)
			if result.Valid {
				fmt.Fprintln(out, "Result:     runnable")
				return nil
			}
			fmt.Fprintf(out, "Result:     not runnable\n")
			fmt.Fprintf(out, "Reason:     %s\n", result.Message)
			if len(result.MissingDependencies) > 0 {
				fmt.Fprintf(out, "Missing:    %s\n", formatStageList(result.MissingDependencies))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&stagesFlag, "stages", "all", "Stages to validate (e.g. all, 3, 1-4, 1,3,5)")
	cmd.Flags().StringVar(&rootFlag, "root", "", "Episode root; enables artifact-aware validation")
	return cmd
}
