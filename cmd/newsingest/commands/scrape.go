package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/use-agent/newsingest/app"
	"github.com/use-agent/newsingest/models"
)

var scrapeReq models.ScrapeRequest

var scrapeCmd = &cobra.Command{
	Use:   "scrape --source <reuters|finnhub|all> [--max N] [--symbol TICKER]",
	Short: "Runs one scraping session and prints it as JSON.",
	Long: `Runs one scraping session and prints the finalized session as JSON.

The command exits non-zero when the session fails. Interrupting it
(Ctrl-C) cancels the run; articles already stored are kept.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		noSave, _ := cmd.Flags().GetBool("no-save")
		save := !noSave
		scrapeReq.SaveToDB = &save

		a, err := app.New(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		s, err := a.Run(cmd.Context(), scrapeReq.RunConfig())
		if err != nil {
			return err
		}
		if err := printJSON(cmd.OutOrStdout(), s); err != nil {
			return err
		}
		if s.Status == models.SessionFailed {
			if s.TopLevelError != nil {
				return fmt.Errorf("session %s failed: %s: %s", s.ID, s.TopLevelError.Kind, s.TopLevelError.Message)
			}
			return fmt.Errorf("session %s failed", s.ID)
		}
		return nil
	},
}

func init() {
	f := scrapeCmd.Flags()
	f.StringVar(&scrapeReq.Source, "source", "", "Source to scrape: reuters, finnhub or all.")
	f.IntVar(&scrapeReq.MaxArticles, "max", 50, "Maximum articles per source.")
	f.StringVar(&scrapeReq.Symbol, "symbol", "", "Ticker for Finnhub company news.")
	f.StringVar(&scrapeReq.Category, "category", "", "Finnhub market news category (default \"general\").")
	f.BoolVar(&scrapeReq.FastMode, "fast", false, "Skip URLs that are already stored.")
	f.IntVar(&scrapeReq.Concurrency, "concurrency", 0, "Parallel item workers per source (default from NEWSINGEST_CONCURRENCY).")
	f.Bool("no-save", false, "Normalize without persisting articles.")
	_ = scrapeCmd.MarkFlagRequired("source")
	rootCmd.AddCommand(scrapeCmd)
}
