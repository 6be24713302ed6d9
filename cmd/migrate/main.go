package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/vladislavdragonenkov/commerce/internal/storage/postgres"
)

const (
	defaultTimeout = 30 * time.Second
	envPostgresDSN = "COMMERCE_POSTGRES_DSN"
)

// migrationStore описывает операции хранилища, нужные командам миграций.
type migrationStore interface {
	MigrateUp(ctx context.Context, steps int) error
	MigrateDown(ctx context.Context, steps int) error
	MigrationStatus(ctx context.Context) (int64, int, error)
	Migrations(ctx context.Context) ([]postgres.MigrationInfo, error)
	Close() error
}

type storeOpener func(ctx context.Context, dsn, driver string) (migrationStore, error)

func openPostgres(ctx context.Context, dsn, driver string) (migrationStore, error) {
	store, err := postgres.Open(ctx, dsn, postgres.WithDriver(driver))
	if err != nil {
		return nil, err
	}
	return store, nil
}

func main() {
	if err := newApp(os.Stdout, openPostgres).Run(os.Args); err != nil {
		fail("%v", err)
	}
}

// newApp собирает CLI с командами up, down, status и list.
func newApp(out io.Writer, open storeOpener) *cli.App {
	return &cli.App{
		Name:   "migrate",
		Usage:  "manage commerce PostgreSQL schema",
		Writer: out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "dsn",
				Usage:   "PostgreSQL DSN",
				EnvVars: []string{envPostgresDSN},
			},
			&cli.StringFlag{
				Name:  "driver",
				Usage: "database/sql driver: pgx|postgres",
				Value: postgres.DriverPgx,
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "overall command timeout",
				Value: defaultTimeout,
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "up",
				Usage: "apply pending migrations (all by default)",
				Flags: []cli.Flag{stepsFlag()},
				Action: withStore(open, func(ctx context.Context, c *cli.Context, store migrationStore) error {
					steps := c.Int("steps")
					if steps < 0 {
						return fmt.Errorf("steps must be >= 0, got %d", steps)
					}
					if err := store.MigrateUp(ctx, steps); err != nil {
						return fmt.Errorf("migrate up failed: %w", err)
					}
					return printStatus(ctx, out, store, "migrate up ok")
				}),
			},
			{
				Name:  "down",
				Usage: "roll back applied migrations (one by default)",
				Flags: []cli.Flag{stepsFlag()},
				Action: withStore(open, func(ctx context.Context, c *cli.Context, store migrationStore) error {
					steps := c.Int("steps")
					if steps < 0 {
						return fmt.Errorf("steps must be >= 0, got %d", steps)
					}
					if steps == 0 {
						steps = 1
					}
					if err := store.MigrateDown(ctx, steps); err != nil {
						return fmt.Errorf("migrate down failed: %w", err)
					}
					return printStatus(ctx, out, store, "migrate down ok")
				}),
			},
			{
				Name:  "status",
				Usage: "print current schema version",
				Action: withStore(open, func(ctx context.Context, _ *cli.Context, store migrationStore) error {
					return printStatus(ctx, out, store, "migration status")
				}),
			},
			{
				Name:  "list",
				Usage: "list known migrations and when they were applied",
				Action: withStore(open, func(ctx context.Context, _ *cli.Context, store migrationStore) error {
					migrations, err := store.Migrations(ctx)
					if err != nil {
						return fmt.Errorf("list migrations failed: %w", err)
					}
					return printMigrations(out, migrations)
				}),
			},
		},
	}
}

func stepsFlag() *cli.IntFlag {
	return &cli.IntFlag{
		Name:  "steps",
		Usage: "number of migrations to apply or roll back",
	}
}

// withStore открывает хранилище по глобальным флагам и закрывает его после команды.
func withStore(open storeOpener, action func(ctx context.Context, c *cli.Context, store migrationStore) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		dsn := strings.TrimSpace(c.String("dsn"))
		if dsn == "" {
			return errors.New(envPostgresDSN + " (or --dsn) is required")
		}

		ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
		defer cancel()

		store, err := open(ctx, dsn, strings.ToLower(strings.TrimSpace(c.String("driver"))))
		if err != nil {
			return fmt.Errorf("open postgres store: %w", err)
		}
		defer store.Close()

		return action(ctx, c, store)
	}
}

func printStatus(ctx context.Context, out io.Writer, store migrationStore, prefix string) error {
	version, count, err := store.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("migration status failed: %w", err)
	}
	_, err = fmt.Fprintf(out, "%s: version=%d applied=%d\n", prefix, version, count)
	return err
}

func printMigrations(out io.Writer, migrations []postgres.MigrationInfo) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED AT")
	for _, m := range migrations {
		appliedAt := "pending"
		if m.Applied {
			appliedAt = m.AppliedAt.UTC().Format(time.RFC3339)
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\n", m.Version, m.Name, appliedAt)
	}
	return w.Flush()
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
