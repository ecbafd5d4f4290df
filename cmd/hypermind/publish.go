package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yungbote/hypermind-backend/internal/app"
	"github.com/yungbote/hypermind-backend/internal/platform/dbctx"
)

func newPublishCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "publish <event> [json|-]",
		Short: "Publish an event; '-' reads the payload from stdin",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(cmd.InOrStdin(), args[1:])
			if err != nil {
				return err
			}
			return ctx.withApp(cmd.Context(), app.Options{}, func(a *app.App) error {
				id, err := a.Runs.Publish(dbctx.Context{Ctx: cmd.Context()}, args[0], payload)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id.String())
				return nil
			})
		},
	}
}

func readPayload(stdin io.Reader, args []string) (json.RawMessage, error) {
	raw := "{}"
	if len(args) > 0 {
		raw = args[0]
	}
	if raw == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		raw = string(b)
	} else if strings.HasPrefix(raw, "@") {
		b, err := os.ReadFile(strings.TrimPrefix(raw, "@"))
		if err != nil {
			return nil, err
		}
		raw = string(b)
	}
	raw = strings.TrimSpace(raw)
	if !json.Valid([]byte(raw)) {
		return nil, fmt.Errorf("payload is not valid JSON")
	}
	return json.RawMessage(raw), nil
}
