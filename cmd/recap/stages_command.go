package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"recap/internal/pipeline"
)

func newStagesCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "stages",
		Short:       "List pipeline stages and their dependencies",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			headers := []string{"#", "Name", "Label", "Depends on", "Outputs"}
			rows := make([][]string, 0, pipeline.TotalStages)
			for _, desc := range pipeline.Stages() {
				depends := "-"
				if len(desc.Predecessors) > 0 {
					depends = formatStageList(desc.Predecessors)
				}
				rows = append(rows, []string{
					fmt.Sprintf("%d", desc.Number),
					desc.Name,
					desc.Label,
					depends,
					strings.Join(desc.OutputPatterns, ", "),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(headers, rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft}))
			return nil
		},
	}
}
