package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/platinummonkey/fuelops/pkg/cli"
	"github.com/platinummonkey/fuelops/pkg/config"
	"github.com/platinummonkey/fuelops/pkg/directory"
	"github.com/platinummonkey/fuelops/pkg/identity"
	"github.com/platinummonkey/fuelops/pkg/observability"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stderr).
		WithField("service", "fuelops-seed")

	env := cli.Env{
		Backend: backend(cfg),
		Logger:  logger,
		Out:     os.Stdout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand(&env).Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func backend(cfg *config.Config) cli.Backend {
	open := func(ctx context.Context) (*sql.DB, error) {
		connCfg := directory.DefaultConnectionConfig(cfg.Database.URL)
		connCfg.MaxConns = 4
		connCfg.MinConns = 1
		connCfg.Timeout = cfg.Database.Timeout
		return directory.Open(ctx, connCfg)
	}

	return cli.Backend{
		OpenStore: func(ctx context.Context) (directory.Store, func() error, error) {
			db, err := open(ctx)
			if err != nil {
				return nil, nil, err
			}
			return directory.NewPostgresStore(db), db.Close, nil
		},
		Migrate: func(ctx context.Context) error {
			db, err := open(ctx)
			if err != nil {
				return err
			}
			defer db.Close()
			return directory.Migrate(ctx, db)
		},
		OpenProvider: func(ctx context.Context) (identity.Provider, error) {
			if cfg.Identity.Driver == config.IdentityDriverMemory {
				return identity.NewMemoryProvider(true), nil
			}
			identityLog := logrus.New()
			identityLog.SetFormatter(&logrus.JSONFormatter{})
			identityLog.SetOutput(os.Stderr)
			client, err := identity.NewGoTrueClient(identity.GoTrueConfig{
				URL:            cfg.Identity.URL,
				AnonKey:        cfg.Identity.AnonKey,
				ServiceRoleKey: cfg.Identity.ServiceRoleKey,
				Timeout:        cfg.Identity.Timeout,
			}, identityLog)
			if err != nil {
				return nil, err
			}
			return client, nil
		},
	}
}
