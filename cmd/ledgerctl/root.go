package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/angelmondragon/tradeledger/internal/app"
	"github.com/angelmondragon/tradeledger/pkg/config"
	"github.com/angelmondragon/tradeledger/pkg/db"
	"github.com/angelmondragon/tradeledger/pkg/logger"
	"github.com/angelmondragon/tradeledger/pkg/migrate"
	"github.com/angelmondragon/tradeledger/pkg/redis"
)

// session holds the resources one command invocation opened.
type session struct {
	services *app.Services
	logg     *logger.Logger
	closers  []func() error
}

func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i]()
	}
}

type openFunc func(ctx context.Context) (*session, error)

func newRootCmd() *cobra.Command {
	return newRootCmdWith(openSession, os.Stdout)
}

func newRootCmdWith(open openFunc, out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Operator tools for the trade ledger store",
		Long: `ledgerctl runs maintenance tasks against the same store the API uses.

Configuration is read from TRADELEDGER_* environment variables and an
optional .env file in the working directory.`,
		SilenceUsage: true,
	}
	root.SetOut(out)

	root.AddCommand(
		newAuditCmd(open),
		newSummaryCmd(open),
		newJournalCmd(open),
		newMigrateCmd(),
	)
	return root
}

func openSession(ctx context.Context) (*session, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logg := logger.New(logger.Options{
		ServiceName: "ledgerctl",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Output:      os.Stderr,
	})

	s := &session{logg: logg}
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s.closers = append(s.closers, dbClient.Close)

	if err := migrate.MaybeAutoRun(ctx, cfg, logg, dbClient); err != nil {
		s.Close()
		return nil, err
	}

	var redisClient *redis.Client
	if cfg.Locks.Backend == config.LockBackendRedis {
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("open redis: %w", err)
		}
		s.closers = append(s.closers, redisClient.Close)
	}
	locks, err := app.NewLocker(cfg.Locks, redisClient)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.services, err = app.NewServices(app.Deps{
		Client:    dbClient,
		Locks:     locks,
		Logger:    logg,
		Numbering: cfg.Numbering,
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
