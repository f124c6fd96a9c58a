package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/urfave/cli/v2"
)

func migrateCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "postgres connection string",
			EnvVars: []string{"DB_URL"},
		},
		&cli.StringFlag{
			Name:  "path",
			Usage: "directory holding the migration files",
			Value: "./services/checkout/migrations",
		},
	}

	return &cli.Command{
		Name:  "migrate",
		Usage: "apply or roll back database migrations",
		Subcommands: []*cli.Command{
			{
				Name:  "up",
				Usage: "apply all pending migrations",
				Flags: flags,
				Action: func(c *cli.Context) error {
					m, err := newMigrate(c)
					if err != nil {
						return err
					}
					defer closeMigrate(m)

					if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
						return fmt.Errorf("migrate up: %w", err)
					}

					return printVersion(c, m)
				},
			},
			{
				Name:  "down",
				Usage: "roll back the last migration, or all of them with --all",
				Flags: append(flags, &cli.BoolFlag{Name: "all", Usage: "roll back every migration"}),
				Action: func(c *cli.Context) error {
					m, err := newMigrate(c)
					if err != nil {
						return err
					}
					defer closeMigrate(m)

					if c.Bool("all") {
						err = m.Down()
					} else {
						err = m.Steps(-1)
					}
					if err != nil && !errors.Is(err, migrate.ErrNoChange) {
						return fmt.Errorf("migrate down: %w", err)
					}

					return printVersion(c, m)
				},
			},
		},
	}
}

func newMigrate(c *cli.Context) (*migrate.Migrate, error) {
	dbURL := c.String("database-url")
	if dbURL == "" {
		return nil, errors.New("database url is required (--database-url or DB_URL)")
	}

	absPath, err := filepath.Abs(c.String("path"))
	if err != nil {
		return nil, fmt.Errorf("resolve migrations path: %w", err)
	}

	m, err := migrate.New("file://"+absPath, dbURL)
	if err != nil {
		return nil, fmt.Errorf("init migrate: %w", err)
	}

	return m, nil
}

func closeMigrate(m *migrate.Migrate) {
	_, _ = m.Close()
}

func printVersion(c *cli.Context, m *migrate.Migrate) error {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		_, err = fmt.Fprintln(c.App.Writer, "schema version: none")
		return err
	}
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	_, err = fmt.Fprintf(c.App.Writer, "schema version: %d (dirty: %t)\n", version, dirty)
	return err
}
