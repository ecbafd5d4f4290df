package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yungbote/hypermind-backend/internal/app"
	"github.com/yungbote/hypermind-backend/internal/services"
)

func newPipelinesCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "pipelines",
		Short: "List registered pipelines and their steps",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), app.Options{}, func(a *app.App) error {
				infos := a.Runs.Pipelines()
				if asJSON {
					return writeJSON(cmd, infos)
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderPipelines(infos))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func renderPipelines(infos []services.PipelineInfo) string {
	rows := make([][]string, 0, len(infos))
	for _, p := range infos {
		steps := make([]string, 0, len(p.Steps))
		for _, s := range p.Steps {
			steps = append(steps, fmt.Sprintf("%s(%d)", s.Name, s.MaxAttempts))
		}
		rows = append(rows, []string{
			p.ID,
			strings.Join(p.Events, ","),
			strconv.Itoa(p.Concurrency),
			strings.Join(steps, " → "),
		})
	}
	return renderTable([]string{"Pipeline", "Events", "Concurrency", "Steps (attempts)"}, rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft})
}
