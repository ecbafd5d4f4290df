package main

import (
	"github.com/spf13/cobra"

	"github.com/yungbote/hypermind-backend/internal/app"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var addr string
	var noWorker bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, with an in-process dispatcher unless --no-worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := app.Options{HTTP: true, Worker: !noWorker, Connect: true}
			return ctx.withApp(cmd.Context(), opts, func(a *app.App) error {
				if err := a.Start(cmd.Context()); err != nil {
					return err
				}
				errc := make(chan error, 1)
				go func() { errc <- a.Run(addr) }()
				select {
				case err := <-errc:
					return err
				case <-cmd.Context().Done():
					a.Log.Info("Shutting down")
					return nil
				}
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default HTTP_ADDR or :8080)")
	cmd.Flags().BoolVar(&noWorker, "no-worker", false, "Serve the API only; runs execute in separate worker processes")
	return cmd
}

func newWorkerCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the dispatcher only",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), app.Options{Worker: true}, func(a *app.App) error {
				if err := a.Start(cmd.Context()); err != nil {
					return err
				}
				<-cmd.Context().Done()
				a.Log.Info("Shutting down")
				return nil
			})
		},
	}
}
