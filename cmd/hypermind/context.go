package main

import (
	"context"

	"github.com/yungbote/hypermind-backend/internal/app"
)

type commandContext struct {
	memory *bool
}

func (c *commandContext) options() app.Options {
	return app.Options{Memory: c.memory != nil && *c.memory}
}

// withApp builds an App for one command and closes it afterwards.
func (c *commandContext) withApp(ctx context.Context, opts app.Options, fn func(a *app.App) error) error {
	opts.Memory = c.options().Memory
	a, err := app.New(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
