package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run today's selection session",
	Long:  "Runs one daily session end to end and prints the audited session as JSON.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initCurator(ctx, "run")
		if err != nil {
			return err
		}
		defer env.Close()

		ds, err := env.Runner.Run(ctx)
		if err != nil {
			return eris.Wrap(err, "session run")
		}

		report := ds.Report()
		zap.L().Info("session finished",
			zap.String("session_id", ds.ID),
			zap.String("action", string(report.Outcome.Action)),
			zap.String("ledger_status", string(report.LedgerStatus)),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(ds); err != nil {
			return err
		}

		if report.NeedsReconciliation() {
			return eris.Errorf("session %s acquired but the ledger write was not confirmed: %s", ds.ID, ds.LedgerError)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
