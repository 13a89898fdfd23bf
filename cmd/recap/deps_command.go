package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"recap/internal/deps"
)

func newDepsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "deps",
		Short: "Check availability of external stage binaries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			statuses := deps.CheckBinaries(deps.Requirements(cfg))
			headers := []string{"Tool", "Command", "Stages", "Available", "Detail"}
			rows := make([][]string, 0, len(statuses))
			allAvailable := true
			for _, status := range statuses {
				if !status.Available {
					allAvailable = false
				}
				rows = append(rows, []string{
					status.Name,
					status.Command,
					formatStageList(status.Stages),
					yesNo(status.Available),
					status.Detail,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(headers, rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft}))
			if !allAvailable {
				return fmt.Errorf("one or more external binaries are missing")
			}
			return nil
		},
	}
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
