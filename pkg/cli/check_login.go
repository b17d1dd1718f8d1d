package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/platinummonkey/fuelops/pkg/auth"
)

// newCheckLoginCommand signs in as a user and prints where the web app
// would send them, for verifying seeded accounts
func newCheckLoginCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "check-login",
		Description: "Sign in with a seeded account and print its role and landing route",
		Flags:       flag.NewFlagSet("check-login", flag.ContinueOnError),
	}
	email := cmd.Flags.String("email", "", "Account email")
	password := cmd.Flags.String("password", "", "Account password")

	cmd.Run = func(ctx context.Context, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *email == "" || *password == "" {
			return errors.New("-email and -password are required")
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

		result, err := auth.NewLoginService(provider, store, nil).Login(ctx, *email, *password)
		if err != nil {
			return fmt.Errorf("login failed for %s: %w", *email, err)
		}

		station := "-"
		if result.User.StationID != nil {
			station = *result.User.StationID
		}
		fmt.Fprintf(env.Out, "id:       %s\n", result.User.ID)
		fmt.Fprintf(env.Out, "role:     %s\n", result.User.Role)
		fmt.Fprintf(env.Out, "name:     %s\n", result.User.Name)
		fmt.Fprintf(env.Out, "phone:    %s\n", result.User.Phone)
		fmt.Fprintf(env.Out, "station:  %s\n", station)
		fmt.Fprintf(env.Out, "redirect: %s\n", result.RedirectTo)
		return nil
	}
	return cmd
}
