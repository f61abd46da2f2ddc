package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/gazette-watcher/internal/config"
	"github.com/JakeFAU/gazette-watcher/internal/server"
	"github.com/JakeFAU/gazette-watcher/internal/watcher"
)

// appKeyType is the key for storing the App in the command context.
type appKeyType string

const appKey appKeyType = "app"

// App is what subcommands need from the application graph.
type App interface {
	Run(ctx context.Context) error
	Close(ctx context.Context) error
	Logger() *zap.Logger
	Watcher() *watcher.Watcher
}

// newApp is the application factory, replaced in tests.
var newApp = func(ctx context.Context, cfgPath string) (App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	app, err := server.Build(ctx, &cfg)
	if err != nil {
		return nil, fmt.Errorf("build application: %w", err)
	}
	return app, nil
}

func newRootCmd() *cobra.Command {
	var (
		cfgFile string
		envFile string
	)

	cmd := &cobra.Command{
		Use:   "gazettewatch",
		Short: "Watches the Maldives gazette for new postings.",
		Long: `gazettewatch scrapes the gazette listing page, stores postings it has
not seen before, and relays them to a Telegram chat on request.`,
		SilenceUsage: true,

		// Builds the application once the flags are parsed and hands it to the
		// subcommand through the context.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadEnvFile(envFile); err != nil {
				return err
			}
			app, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, app))
			return nil
		},

		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if app, ok := cmd.Context().Value(appKey).(App); ok && app != nil {
				return app.Close(context.WithoutCancel(cmd.Context()))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config; skipped when absent")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newFetchCmd())
	cmd.AddCommand(newNotifyCmd())
	return cmd
}

// loadEnvFile exports variables from path without overriding ones already set.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

func resolveApp(ctx context.Context) (App, error) {
	app, ok := ctx.Value(appKey).(App)
	if !ok || app == nil {
		return nil, errors.New("application not initialized")
	}
	return app, nil
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "gazettewatch:", err)
		os.Exit(1)
	}
}
