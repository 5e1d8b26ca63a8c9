// Command maintenance runs one-off data repairs against the configured
// databases.
package main

import (
	"context"
	"fmt"
	"os"
	"slices"

	"github.com/urfave/cli/v3"

	"github.com/anonto42/circle/backend/internal/repositories"
	"github.com/anonto42/circle/backend/internal/services"
	"github.com/anonto42/circle/backend/pkg/config"
	"github.com/anonto42/circle/backend/pkg/logging"
)

var validLogLevels = []string{"debug", "info", "warn", "error"}

var logLevelFlag = &cli.StringFlag{
	Name:    "log-level",
	Aliases: []string{"l"},
	Usage:   "The level of the logs",
	Value:   "info",
	Sources: cli.EnvVars("LOG_LEVEL"),
	Validator: func(value string) error {
		if !slices.Contains(validLogLevels, value) {
			return fmt.Errorf("invalid log level: %s, allowed values are: %s", value, validLogLevels)
		}
		return nil
	},
}

var cmd = &cli.Command{
	Name:  "maintenance",
	Usage: "One-off repairs for the social feed databases",
	Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
		logging.Init(logging.Config{Level: c.String("log-level"), Format: "console"})
		return ctx, nil
	},
	Flags: []cli.Flag{
		logLevelFlag,
	},
	Commands: []*cli.Command{
		{
			Name:  "fix-posts",
			Usage: "Write a structured media field for posts that only have the legacy image URL",
			Action: func(ctx context.Context, c *cli.Command) error {
				return withStore(ctx, func(store *repositories.Store) error {
					report, err := services.NewPostService(store.Posts, store.Users).BackfillMedia(ctx)
					if err != nil {
						return err
					}
					fmt.Printf("Fixed %d of %d posts\n", report.FixedPosts, report.TotalPosts)
					return nil
				})
			},
		},
		{
			Name:  "repair-follows",
			Usage: "Rebuild every user's followers and following lists from the follow edges",
			Action: func(ctx context.Context, c *cli.Command) error {
				return withStore(ctx, func(store *repositories.Store) error {
					report, err := services.NewFollowService(store.Users, store.Follows).Repair(ctx)
					if err != nil {
						return err
					}
					fmt.Printf("Repaired %d of %d users\n", report.UsersRepaired, report.UsersScanned)
					return nil
				})
			},
		},
	},
}

// withStore opens the database-backed store for the duration of fn.
func withStore(ctx context.Context, fn func(*repositories.Store) error) error {
	cfg := config.Load()
	cfg.StoreDriver = config.StoreDatabase
	if cfg.PostgresURL == "" || cfg.MongoURI == "" {
		return fmt.Errorf("POSTGRES_CONN_STR and MONGO_URI must be set")
	}

	db, err := config.InitDB(cfg)
	if err != nil {
		return err
	}
	defer db.CloseDB()

	mdb := db.Mongo.Database(cfg.MongoDatabase)
	return fn(repositories.NewDatabaseStore(db.Postgres, mdb, cfg.MongoTransactions))
}

func main() {
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logging.Error().Err(err).Msg("maintenance failed")
		os.Exit(1)
	}
}
