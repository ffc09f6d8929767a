package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/angelmondragon/tradeledger/pkg/config"
	"github.com/angelmondragon/tradeledger/pkg/db"
	"github.com/angelmondragon/tradeledger/pkg/logger"
	"github.com/angelmondragon/tradeledger/pkg/migrate"
)

func newMigrateCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply, inspect or author goose schema migrations",
		Long: `migrate drives goose against the configured store. The default directory
resolves to the migrations embedded in the binary, so a packaged build can
upgrade its data file without the source tree.`,
	}
	cmd.PersistentFlags().StringVar(&dir, "dir", migrate.DefaultDir, "goose migrations directory")

	withDB := func(run func(ctx context.Context, sqlDB *sql.DB, driver string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			_ = godotenv.Load()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logg := logger.New(logger.Options{
				ServiceName: "migrate",
				Level:       logger.ParseLevel(cfg.App.LogLevel),
				Output:      os.Stderr,
			})
			ctx := logg.WithFields(cmd.Context(), map[string]any{
				"cmd":    cmd.Name(),
				"dir":    dir,
				"driver": cfg.DB.Driver,
			})
			client, err := db.New(ctx, cfg.DB, logg)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer client.Close()

			sqlDB, err := client.DB().DB()
			if err != nil {
				return fmt.Errorf("extracting sql.DB: %w", err)
			}
			if err := run(ctx, sqlDB, client.Driver()); err != nil {
				logg.Error(ctx, "migration command failed", err)
				return err
			}
			return nil
		}
	}

	for _, command := range []struct{ use, short string }{
		{"up", "Apply every pending migration"},
		{"down", "Roll back the most recent migration"},
		{"status", "List applied and pending migrations"},
	} {
		cmd.AddCommand(&cobra.Command{
			Use:   command.use,
			Short: command.short,
			Args:  cobra.NoArgs,
			RunE: withDB(func(ctx context.Context, sqlDB *sql.DB, driver string) error {
				return migrate.Run(ctx, sqlDB, driver, dir, command.use)
			}),
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "to <version>",
		Short: "Migrate up or down to a YYYYMMDDHHMMSS version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(ctx context.Context, sqlDB *sql.DB, driver string) error {
				return migrate.MigrateToVersion(ctx, sqlDB, driver, dir, args[0])
			})(cmd, args)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "create <name>",
		Short: "Write an empty migration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := migrate.CreateSQLMigration(dir, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "created migration:", path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Check migration names, goose markers and driver portability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := migrate.ValidateDir(dir); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migration validation passed")
			return nil
		},
	})
	return cmd
}
