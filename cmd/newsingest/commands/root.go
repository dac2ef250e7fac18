package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/use-agent/newsingest/app"
	"github.com/use-agent/newsingest/config"
)

var rootCmd = &cobra.Command{
	Use:   "newsingest",
	Short: "newsingest scrapes financial news from Reuters and Finnhub into a deduplicated store.",
	// Errors are printed once by ExecuteContext.
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		cfg = config.Load()
		if storeDriver != "" {
			cfg.Store.Driver = storeDriver
		}
		if storeDSN != "" {
			cfg.Store.DSN = storeDSN
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		app.InitLogger(cfg.Log, cmd.ErrOrStderr())
	},
}

var (
	cfg *config.Config

	storeDriver string
	storeDSN    string
	logLevel    string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&storeDriver, "store", "", "Store driver: memory, sqlite or postgres (default from NEWSINGEST_STORE).")
	rootCmd.PersistentFlags().StringVar(&storeDSN, "dsn", "", "Store DSN (default from NEWSINGEST_DSN).")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error.")
}

// ExecuteContext runs the CLI and exits non-zero on error.
func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
