package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yungbote/hypermind-backend/internal/app"
	"github.com/yungbote/hypermind-backend/internal/platform/logger"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := app.LoadConfig()
			if ctx.options().Memory {
				cfg.DB.SQLitePath = ":memory:"
			}
			log, err := logger.New(cfg.LogMode)
			if err != nil {
				return err
			}
			defer log.Sync()
			store, err := app.OpenDB(log, cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}
