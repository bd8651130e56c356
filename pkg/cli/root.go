// Package cli implements the warehouse command-line interface.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"duck-warehouse/internal/app"
	"duck-warehouse/internal/config"
	"duck-warehouse/internal/domain"
)

var (
	version = "dev"
	commit  = "none"
)

// Execute runs the CLI.
func Execute() int {
	return run(os.Args[1:], os.Stdout, os.Stderr)
}

func run(args []string, stdout, stderr io.Writer) int {
	rootCmd := newRootCmd()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.Execute(); err != nil {
		output, _ := rootCmd.PersistentFlags().GetString("output")
		if output == "json" {
			_ = printJSON(stdout, errorObject(err))
		} else {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	envFile    string
	output     string
	username   string
	roles      []string
	attributes map[string]string
}

// user builds the caller the request runs on behalf of.
func (o *rootOptions) user() domain.User {
	return domain.User{Username: o.username, Roles: o.roles, Attributes: o.attributes}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "warehouse",
		Short:         "Analytical query engine over aggregate warehouse tables",
		Long:          "Run aggregate, timeseries and raw queries against the realms of a DuckDB or SQLite warehouse.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return validateOutputFormat(opts.output)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.envFile, "env-file", ".env", "Path to a .env file read before the environment")
	flags.StringVarP(&opts.output, "output", "o", "json", "Output format (table, json)")
	flags.StringVar(&opts.username, "user", "", "Username the request runs as")
	flags.StringSliceVar(&opts.roles, "user-role", nil, "Role of the user (repeatable)")
	flags.StringToStringVar(&opts.attributes, "user-attr", nil, "User attribute as key=value, e.g. person_id=2 (repeatable)")

	// Query commands
	rootCmd.AddCommand(newAggregateCmd(opts))
	rootCmd.AddCommand(newTimeseriesCmd(opts))
	rootCmd.AddCommand(newCountCmd(opts))
	rootCmd.AddCommand(newExplainCmd(opts))
	rootCmd.AddCommand(newRawCmd(opts))
	rootCmd.AddCommand(newValuesCmd(opts))

	// Administration commands
	rootCmd.AddCommand(newRealmsCmd(opts))
	rootCmd.AddCommand(newRolesCmd(opts))
	rootCmd.AddCommand(newMigrateCmd(opts))
	rootCmd.AddCommand(newSeedCmd(opts))

	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// loadConfig reads the .env file and the environment.
func loadConfig(opts *rootOptions) (*config.Config, error) {
	if err := config.LoadDotEnv(opts.envFile); err != nil {
		return nil, fmt.Errorf("load %s: %w", opts.envFile, err)
	}
	return config.LoadFromEnv()
}

func newLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}
	return logger
}

// withApp opens the application for the duration of fn.
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, a *app.App) error) (err error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := app.Open(ctx, cfg, newLogger(cmd, cfg))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	ctx = domain.WithUser(ctx, opts.user())
	return fn(ctx, a)
}
