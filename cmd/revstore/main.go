// revstore manages revisioned page rows: schema migrations, fixture seeding,
// listing by revision and the publish cycle.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rpattn/revstore/internal/config"
	"github.com/rpattn/revstore/internal/db"
	"github.com/rpattn/revstore/internal/logger"
	"github.com/rpattn/revstore/internal/metrics"
	"github.com/rpattn/revstore/internal/repository"
	"github.com/rpattn/revstore/internal/uow"
)

var (
	// Flags
	configPath string
	verbose    bool
)

// app holds everything a command needs once config is loaded
type app struct {
	cfg   *config.Config
	log   *zap.Logger
	conn  *db.Connection
	units *uow.Manager
	pages *repository.PageRepositories
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	level := cfg.App.LogLevel
	if verbose {
		level = "debug"
	}
	log, err := logger.New(cfg.App.Env, level)
	if err != nil {
		return nil, nil, err
	}

	if cfg.Source != "" {
		log.Info("loaded config", zap.String("file", cfg.Source))
	} else {
		log.Info("no config.yaml found, using defaults and env vars")
	}
	return cfg, log, nil
}

// openApp connects to the database and wires the page repositories
func openApp(ctx context.Context) (*app, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}

	conn, err := db.Open(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}

	repoMetrics, err := metrics.NewRepositoryMetrics(metrics.Options{Namespace: cfg.Metrics.Namespace})
	if err != nil {
		conn.Close()
		return nil, err
	}

	opts := []repository.Option{
		repository.WithLogger(log),
		repository.WithObserver(repoMetrics),
	}
	if cfg.Repository.OptimisticRevisionCheck {
		opts = append(opts, repository.WithOptimisticRevisionCheck())
	}

	units := uow.NewManager(conn.DB, uow.WithLogger(log))
	pages, err := repository.NewPageRepositories(units, conn.Dialect, opts...)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &app{cfg: cfg, log: log, conn: conn, units: units, pages: pages}, nil
}

func (a *app) Close() {
	if err := a.conn.Close(); err != nil {
		a.log.Warn("failed to close database", zap.Error(err))
	}
	_ = a.log.Sync()
}

var rootCmd = &cobra.Command{
	Use:   "revstore",
	Short: "Revision-scoped page store",
	Long: `revstore stores page rows as revisions. Each owner has at most one
draft and one live row; older rows stay queryable by revision number.

Environment variables:
  REVSTORE_DATABASE_DRIVER   postgres, mysql or sqlite (default: postgres)
  REVSTORE_DATABASE_HOST     database host (default: localhost)
  REVSTORE_DATABASE_PATH     sqlite file (default: revstore.db)
  REVSTORE_APP_ENV           production switches to JSON logs
`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		defer log.Sync()

		return db.RunMigrations(cmd.Context(), cfg.Database, log)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", ".", "Directory containing config.yaml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	listCmd.Flags().StringSlice("owner", nil, "Owner (page) ids, repeatable")
	listCmd.Flags().String("revision", "latest", "Revision: latest, draft or a number")
	_ = listCmd.MarkFlagRequired("owner")

	publishCmd.Flags().String("owner", "", "Owner (page) id")
	publishCmd.Flags().Int64("revision", 0, "Revision to publish as (default: next revision)")
	_ = publishCmd.MarkFlagRequired("owner")

	purgeCmd.Flags().String("owner", "", "Owner (page) id")
	_ = purgeCmd.MarkFlagRequired("owner")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(purgeCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
