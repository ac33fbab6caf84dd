// Package cli provides the datactl command-line interface.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/coremodel/coremodel/internal/app"
	"github.com/coremodel/coremodel/internal/config"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
)

// skipConfig marks commands that run without DATABASE_URL.
const skipConfig = "skip-config"

type configKey struct{}

// globalFlags override the matching environment variables.
type globalFlags struct {
	backend     string
	databaseURL string
	gormDialect string
	redisURL    string
	logLevel    string
	logFormat   string
}

func (f *globalFlags) overrides() map[string]string {
	return map[string]string{
		"STORE_BACKEND": f.backend,
		"DATABASE_URL":  f.databaseURL,
		"GORM_DIALECT":  f.gormDialect,
		"REDIS_URL":     f.redisURL,
		"LOG_LEVEL":     f.logLevel,
		"LOG_FORMAT":    f.logFormat,
	}
}

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "datactl",
		Short: "Manage the users / core entities data model",
		Long: `datactl applies the schema migrations, prints the schema contract,
seeds records and runs the operational HTTP server.

Configuration comes from the same environment variables as the server
(DATABASE_URL, STORE_BACKEND, ...); the global flags override them.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[skipConfig] == "true" || cmd.Name() == "help" || cmd.Name() == "__complete" {
				return nil
			}

			cfg, err := config.LoadWithOverrides(flags.overrides())
			if err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), configKey{}, cfg))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.backend, "backend", "", "store backend: postgres, sqlite or gorm (env STORE_BACKEND)")
	pf.StringVar(&flags.databaseURL, "database-url", "", "database URL or sqlite file path (env DATABASE_URL)")
	pf.StringVar(&flags.gormDialect, "gorm-dialect", "", "gorm dialect: postgres or sqlite (env GORM_DIALECT)")
	pf.StringVar(&flags.redisURL, "redis-url", "", "Redis URL for cache and events (env REDIS_URL)")
	pf.StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error (env LOG_LEVEL)")
	pf.StringVar(&flags.logFormat, "log-format", "", "json or text (env LOG_FORMAT)")

	_ = rootCmd.RegisterFlagCompletionFunc("backend", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{config.BackendPostgres, config.BackendSQLite, config.BackendGorm}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(newVersionCommand())
	rootCmd.AddCommand(newSchemaCommand())
	rootCmd.AddCommand(newMigrateCommand())
	rootCmd.AddCommand(newSeedCommand())
	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newEventsCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

func getConfig(cmd *cobra.Command) *config.Config {
	cfg, _ := cmd.Context().Value(configKey{}).(*config.Config)
	return cfg
}

func newLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	return app.NewLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
}
