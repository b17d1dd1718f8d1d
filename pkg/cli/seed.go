package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/platinummonkey/fuelops/pkg/seed"
)

func newSeedCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "seed",
		Description: "Create or update stations and users from a YAML file",
		Flags:       flag.NewFlagSet("seed", flag.ContinueOnError),
	}
	file := cmd.Flags.String("file", "", "Seed file (YAML)")
	dryRun := cmd.Flags.Bool("dry-run", false, "Validate the file without writing anything")

	cmd.Run = func(ctx context.Context, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *file == "" {
			return errors.New("-file is required")
		}
		return runSeed(ctx, env, *file, *dryRun)
	}
	return cmd
}

func runSeed(ctx context.Context, env *Env, path string, dryRun bool) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()

	doc, err := seed.Load(f)
	if err != nil {
		return err
	}
	if dryRun {
		fmt.Fprintf(env.Out, "%s: %d stations, %d users OK\n", path, len(doc.Stations), len(doc.Users))
		return nil
	}

	store, closeStore, err := env.Backend.OpenStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	provider, err := env.Backend.OpenProvider(ctx)
	if err != nil {
		return err
	}

	report := seed.NewSeeder(store, provider, env.Logger).Apply(ctx, doc)
	fmt.Fprintf(env.Out, "stations: %d created, %d updated\n", report.StationsCreated, report.StationsUpdated)
	fmt.Fprintf(env.Out, "users:    %d created, %d updated\n", report.UsersCreated, report.UsersUpdated)
	for _, failure := range report.Failures {
		fmt.Fprintf(env.Out, "  FAILED %v\n", failure)
	}

	if err := report.Err(); err != nil {
		return fmt.Errorf("%d seed entries failed", len(report.Failures))
	}
	return nil
}
