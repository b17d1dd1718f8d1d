package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/platinummonkey/fuelops/pkg/directory"
	"github.com/platinummonkey/fuelops/pkg/identity"
	"github.com/platinummonkey/fuelops/pkg/observability"
)

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Run         func(ctx context.Context, args []string) error
	Subcommands map[string]*Command
	Flags       *flag.FlagSet
}

// Backend opens the systems commands act on. Each opener returns a close
// function the command calls when done.
type Backend struct {
	OpenStore    func(ctx context.Context) (directory.Store, func() error, error)
	Migrate      func(ctx context.Context) error
	OpenProvider func(ctx context.Context) (identity.Provider, error)
}

// Env is what commands share: the backend, a logger and the output stream
type Env struct {
	Backend Backend
	Logger  *observability.Logger
	Out     io.Writer
}

// NewRootCommand creates the root command
func NewRootCommand(env *Env) *Command {
	if env.Out == nil {
		env.Out = os.Stdout
	}
	if env.Logger == nil {
		env.Logger = observability.NewLogger(observability.InfoLevel, os.Stderr)
	}

	root := &Command{
		Name:        "fuelops-seed",
		Description: "FuelOps - directory seeding and maintenance",
		Subcommands: make(map[string]*Command),
		Flags:       flag.NewFlagSet("fuelops-seed", flag.ContinueOnError),
	}

	root.Subcommands["seed"] = newSeedCommand(env)
	root.Subcommands["migrate"] = newMigrateCommand(env)
	root.Subcommands["check-login"] = newCheckLoginCommand(env)

	return root
}

// Execute runs the subcommand named by args[0]
func (c *Command) Execute(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return c.usage(os.Stdout)
	}

	// Check for help flag
	if args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		return c.usage(os.Stdout)
	}

	if subcmd, ok := c.Subcommands[args[0]]; ok {
		return subcmd.Run(ctx, args[1:])
	}

	return fmt.Errorf("unknown command: %s", args[0])
}

// usage prints the command usage
func (c *Command) usage(w io.Writer) error {
	fmt.Fprintf(w, "Usage: %s <command> [args]\n\n", c.Name)
	fmt.Fprintf(w, "Commands:\n")

	names := make([]string, 0, len(c.Subcommands))
	for name := range c.Subcommands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-15s %s\n", name, c.Subcommands[name].Description)
	}
	return nil
}
