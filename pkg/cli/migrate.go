package cli

import (
	"context"
	"flag"
	"fmt"
)

func newMigrateCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "migrate",
		Description: "Create or upgrade the directory schema",
		Flags:       flag.NewFlagSet("migrate", flag.ContinueOnError),
	}

	cmd.Run = func(ctx context.Context, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if err := env.Backend.Migrate(ctx); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		fmt.Fprintln(env.Out, "migrations applied")
		return nil
	}
	return cmd
}
