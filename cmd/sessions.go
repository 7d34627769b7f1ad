package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/curator-cli/internal/model"
	"github.com/sells-group/curator-cli/internal/store"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect the session audit trail",
	Long:  "Commands for listing and viewing completed daily sessions.",
}

// -- sessions list --

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List completed sessions, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		action, _ := cmd.Flags().GetString("action")
		limit, _ := cmd.Flags().GetInt("limit")
		since, _ := cmd.Flags().GetDuration("since")

		filter := store.SessionFilter{Action: model.Action(action), Limit: limit}
		if since > 0 {
			filter.Since = time.Now().UTC().Add(-since)
		}

		sessions, err := st.ListSessions(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "sessions list")
		}

		if len(sessions) == 0 {
			fmt.Fprintln(os.Stderr, "No sessions found.")
			return nil
		}

		formatSessionsList(os.Stdout, sessions)
		return nil
	},
}

// -- sessions show --

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show the full audit record of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		ds, err := st.GetSession(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "sessions show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(ds)
	},
}

func init() {
	sessionsListCmd.Flags().String("action", "", "filter by outcome action (acquire, wait, pass)")
	sessionsListCmd.Flags().Int("limit", 30, "max number of sessions to display")
	sessionsListCmd.Flags().Duration("since", 0, "only sessions started within this window (e.g. 168h)")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	rootCmd.AddCommand(sessionsCmd)
}

// formatSessionsList writes a tabular list of sessions to w.
func formatSessionsList(out io.Writer, sessions []model.DailySession) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tDATE\tACTION\tTARGET\tSEEN\tSURVIVED\tLEDGER")
	_, _ = fmt.Fprintln(w, "--\t----\t------\t------\t----\t--------\t------")

	for _, s := range sessions {
		action, target := "", ""
		if s.Outcome != nil {
			action = string(s.Outcome.Action)
			if s.Outcome.Target != nil {
				target = s.Outcome.Target.Title
				if len(target) > 30 {
					target = target[:27] + "..."
				}
			}
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			truncateID(s.ID),
			s.Date.Format(time.DateOnly),
			action,
			target,
			s.CandidatesSeen,
			s.CandidatesSurvivingFilter,
			s.LedgerStatus,
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
