package commands

import (
	"github.com/spf13/cobra"

	"github.com/use-agent/newsingest/store"
)

var sessionsLimit int

var sessionsCmd = &cobra.Command{
	Use:   "sessions [id]",
	Short: "Lists recent sessions, or prints one session by ID.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.Open(cmd.Context(), cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close()

		if len(args) == 1 {
			s, err := st.GetSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), s)
		}

		list, err := st.ListSessions(cmd.Context(), sessionsLimit)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), list)
	},
}

func init() {
	sessionsCmd.Flags().IntVar(&sessionsLimit, "limit", 20, "Number of sessions to list, newest first.")
	rootCmd.AddCommand(sessionsCmd)
}
