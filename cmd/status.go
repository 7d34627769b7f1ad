package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/curator-cli/internal/monitoring"
)

var statusAlert bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the monitoring snapshot and evaluate alert thresholds",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		snap, err := monitoring.NewCollector(st, st, nil).Collect(ctx, cfg.Monitoring.LookbackDays)
		if err != nil {
			return eris.Wrap(err, "status")
		}

		alerter := monitoring.NewAlerter(cfg.Monitoring)
		alerts := alerter.Evaluate(snap)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(struct {
			Snapshot *monitoring.MetricsSnapshot `json:"snapshot"`
			Alerts   []monitoring.Alert          `json:"alerts"`
		}{snap, alerts}); err != nil {
			return err
		}

		if statusAlert && len(alerts) > 0 {
			sent := alerter.SendAlerts(ctx, alerts)
			zap.L().Info("status: alerts delivered", zap.Int("triggered", len(alerts)), zap.Int("sent", sent))
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusAlert, "alert", false, "send triggered alerts to monitoring.webhook_url")
	rootCmd.AddCommand(statusCmd)
}
