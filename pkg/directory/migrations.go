package directory

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration is a versioned schema change
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations returns the directory schema migrations in order
func Migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create Station table",
			SQL: `
				CREATE TABLE IF NOT EXISTS "Station" (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					location TEXT NOT NULL,
					"createdAt" TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					"updatedAt" TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
			`,
		},
		{
			Version:     2,
			Description: "Create User table",
			SQL: `
				CREATE TABLE IF NOT EXISTS "User" (
					id TEXT PRIMARY KEY,
					email TEXT NOT NULL,
					name TEXT NOT NULL DEFAULT '',
					phone TEXT NOT NULL DEFAULT '',
					role TEXT NOT NULL CHECK (role IN (
						'SERVICE_PROVIDER', 'OWNER', 'MANAGER', 'ACCOUNTANT',
						'EMPLOYEE', 'CUSTOMER', 'ADMIN', 'SUPERADMIN'
					)),
					"stationId" TEXT REFERENCES "Station"(id) ON DELETE RESTRICT,
					"createdAt" TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					"updatedAt" TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE UNIQUE INDEX IF NOT EXISTS "User_email_key" ON "User"(email);
				CREATE INDEX IF NOT EXISTS "User_role_idx" ON "User"(role);
				CREATE INDEX IF NOT EXISTS "User_stationId_idx" ON "User"("stationId");
			`,
		},
	}
}

// Migrate applies pending migrations, recording each in directory_migrations
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS directory_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM directory_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	rows.Close()

	for _, migration := range Migrations() {
		if applied[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO directory_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
