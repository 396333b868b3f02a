package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"wayfarer/config"
	"wayfarer/database"
	"wayfarer/logger"

	"github.com/spf13/cobra"
)

const (
	connectAttempts = 3
	connectBackoff  = 2 * time.Second
)

var rootCmd = &cobra.Command{
	Use:   "wayfarer",
	Short: "Wayfarer travel blog API",
	Long: `Wayfarer serves the travel blog REST API and runs its background jobs.

Running without a subcommand starts the HTTP server.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bootstrap loads configuration, configures logging and connects to MongoDB.
func bootstrap() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Env, cfg.LogLevel)

	var dbErr error
	for i := 1; i <= connectAttempts; i++ {
		if dbErr = database.ConnectMongo(cfg.MongoURI, cfg.MongoDB); dbErr == nil {
			break
		}
		logger.Log.WithError(dbErr).WithField("attempt", i).Warn("MongoDB connection attempt failed")
		if i < connectAttempts {
			time.Sleep(connectBackoff)
		}
	}
	if dbErr != nil {
		return nil, fmt.Errorf("connect to MongoDB: %w", dbErr)
	}
	return cfg, nil
}

func shutdownDatabase() {
	if err := database.DisconnectMongo(); err != nil {
		logger.Log.WithError(err).Warn("MongoDB disconnect failed")
	}
}

func commandContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}
