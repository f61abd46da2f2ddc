package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/gazette-watcher/internal/metrics"
)

func newFetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Run one fetch-and-store cycle and print the result",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			res, err := app.Watcher().FetchAndStore(cmd.Context(), metrics.TriggerCLI)
			if err != nil {
				return fmt.Errorf("fetch: %w", err)
			}
			app.Logger().Debug("fetch command finished", zap.Int("new", res.New))

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return fmt.Errorf("encode result: %w", err)
			}
			return nil
		},
	}
}
