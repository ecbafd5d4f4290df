package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yungbote/hypermind-backend/internal/app"
	"github.com/yungbote/hypermind-backend/internal/data/repos/pipelines"
	"github.com/yungbote/hypermind-backend/internal/domain/pipeline"
	"github.com/yungbote/hypermind-backend/internal/jobs/orchestrator"
	"github.com/yungbote/hypermind-backend/internal/platform/dbctx"
	"github.com/yungbote/hypermind-backend/internal/realtime"
	"github.com/yungbote/hypermind-backend/internal/realtime/bus"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect pipeline runs",
	}
	runsCmd.AddCommand(newRunsListCommand(ctx))
	runsCmd.AddCommand(newRunsShowCommand(ctx))
	runsCmd.AddCommand(newRunsWatchCommand(ctx))
	return runsCmd
}

func newRunsListCommand(ctx *commandContext) *cobra.Command {
	var f pipelines.RunFilter
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), app.Options{}, func(a *app.App) error {
				runs, err := a.Runs.ListRuns(dbctx.Context{Ctx: cmd.Context()}, f)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, runs)
				}
				if len(runs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No runs")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderRuns(runs))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.PipelineID, "pipeline", "", "Only runs of this pipeline")
	cmd.Flags().StringVar(&f.Status, "status", "", "Only runs in this status (pending, running, succeeded, failed)")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "Maximum runs to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newRunsShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a run and its step records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid run id %q", args[0])
			}
			return ctx.withApp(cmd.Context(), app.Options{}, func(a *app.App) error {
				dbc := dbctx.Context{Ctx: cmd.Context()}
				run, err := a.Runs.GetRun(dbc, runID)
				if err != nil {
					return err
				}
				steps, err := a.Runs.ListSteps(dbc, runID)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, map[string]any{"run": run, "steps": steps})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Run:      %s\n", run.ID)
				fmt.Fprintf(out, "Pipeline: %s\n", run.PipelineID)
				fmt.Fprintf(out, "Event:    %s (%s)\n", run.EventName, run.EventID)
				fmt.Fprintf(out, "Status:   %s\n", run.Status)
				if run.Error != "" {
					fmt.Fprintf(out, "Error:    [%s] %s\n", run.ErrorKind, run.Error)
				}
				if len(run.Output) > 0 {
					fmt.Fprintf(out, "Output:   %s\n", compactJSON(run.Output))
				}
				if len(steps) > 0 {
					fmt.Fprintln(out, renderSteps(steps))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newRunsWatchCommand(ctx *commandContext) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch [run-id]",
		Short: "Follow run updates; without Redis a run id is required and the database is polled",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var runID uuid.UUID
			if len(args) == 1 {
				id, err := uuid.Parse(args[0])
				if err != nil {
					return fmt.Errorf("invalid run id %q", args[0])
				}
				runID = id
			}
			return ctx.withApp(cmd.Context(), app.Options{}, func(a *app.App) error {
				b, err := bus.NewRedisBus(cmd.Context(), a.Log)
				if err != nil {
					return err
				}
				if b != nil {
					defer b.Close()
					return watchBus(cmd, b, runID)
				}
				if runID == uuid.Nil {
					return fmt.Errorf("REDIS_ADDR is not set; pass a run id to poll the database")
				}
				return pollRun(cmd, a, runID, interval)
			})
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "Poll interval without Redis")
	return cmd
}

func watchBus(cmd *cobra.Command, b bus.Bus, runID uuid.UUID) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	out := cmd.OutOrStdout()
	err := b.StartForwarder(ctx, func(m realtime.Message) {
		u, ok := m.Data.(orchestrator.Update)
		if !ok || (runID != uuid.Nil && u.RunID != runID) {
			return
		}
		fmt.Fprintln(out, formatUpdate(u))
		if runID != uuid.Nil && u.Step == "" && (u.RunStatus == pipeline.RunSucceeded || u.RunStatus == pipeline.RunFailed) {
			cancel()
		}
	})
	if err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

func pollRun(cmd *cobra.Command, a *app.App, runID uuid.UUID, interval time.Duration) error {
	dbc := dbctx.Context{Ctx: cmd.Context()}
	seen := map[string]string{}
	last := ""
	for {
		run, err := a.Runs.GetRun(dbc, runID)
		if err != nil {
			return err
		}
		steps, err := a.Runs.ListSteps(dbc, runID)
		if err != nil {
			return err
		}
		for _, s := range steps {
			key := s.Status + "/" + strconv.Itoa(s.Attempts)
			if seen[s.StepName] != key {
				seen[s.StepName] = key
				fmt.Fprintf(cmd.OutOrStdout(), "%s  step %-22s %s (attempt %d)\n", run.PipelineID, s.StepName, s.Status, s.Attempts)
			}
		}
		if run.Status != last {
			last = run.Status
			fmt.Fprintf(cmd.OutOrStdout(), "%s  run  %s\n", run.PipelineID, run.Status)
		}
		if run.Terminal() {
			return nil
		}
		select {
		case <-cmd.Context().Done():
			return nil
		case <-time.After(interval):
		}
	}
}

func formatUpdate(u orchestrator.Update) string {
	ts := u.At.Local().Format("15:04:05")
	if u.Step == "" {
		line := fmt.Sprintf("%s  %s  %s  run %s", ts, u.RunID.String()[:8], u.PipelineID, u.RunStatus)
		if u.Error != "" {
			line += ": " + u.Error
		}
		return line
	}
	line := fmt.Sprintf("%s  %s  %s  step %s %s (attempt %d)", ts, u.RunID.String()[:8], u.PipelineID, u.Step, u.StepStatus, u.Attempt)
	if u.Error != "" {
		line += ": " + u.Error
	}
	return line
}

func renderRuns(runs []*pipeline.PipelineRun) string {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			r.ID.String(),
			r.PipelineID,
			r.EventName,
			r.Status,
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			durationOf(r.StartedAt, r.CompletedAt),
		})
	}
	return renderTable([]string{"Run", "Pipeline", "Event", "Status", "Created", "Duration"}, rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight})
}

func renderSteps(steps []*pipeline.StepRecord) string {
	rows := make([][]string, 0, len(steps))
	for _, s := range steps {
		errText := s.ErrorMessage
		if s.ErrorKind != "" {
			errText = "[" + s.ErrorKind + "] " + errText
		}
		rows = append(rows, []string{
			strconv.Itoa(s.StepIndex + 1),
			s.StepName,
			s.Status,
			strconv.Itoa(s.Attempts),
			durationOf(s.StartedAt, s.FinishedAt),
			errText,
		})
	}
	return renderTable([]string{"#", "Step", "Status", "Attempts", "Duration", "Error"}, rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignLeft})
}

func durationOf(start, end *time.Time) string {
	if start == nil || end == nil {
		return "-"
	}
	return end.Sub(*start).Round(time.Millisecond).String()
}

func compactJSON(raw []byte) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	b, _ := json.Marshal(v)
	if len(b) > 400 {
		return string(b[:400]) + "…"
	}
	return string(b)
}
