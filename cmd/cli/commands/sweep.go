package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sweeply/sweeply/internal/matching"
	"github.com/sweeply/sweeply/internal/notify"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one arrival sweep by hand",
	Long: `Runs a single pass of the arrival monitor: warns providers close to
their arrival deadline and redistributes bookings whose provider is past the
grace period. The same pass the server runs on its interval.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		dispatcher, err := buildDispatcher(cmd.Context())
		if err != nil {
			return err
		}

		monitor := matching.NewMonitor(database, dispatcher, notify.NewLogNotifier(), matching.MonitorConfig{
			SweepInterval:      cfg.SweepInterval,
			ArrivalTolerance:   cfg.ArrivalTolerance,
			RedistributeGrace:  cfg.RedistributeGrace,
			WarnWindow:         cfg.WarnWindow,
			WarnOnce:           cfg.WarnOnce,
			PunctualityPenalty: cfg.PunctualityPenalty,
		})

		if err := monitor.Sweep(cmd.Context()); err != nil {
			return fmt.Errorf("sweep failed: %w", err)
		}
		fmt.Println("sweep complete")
		return nil
	},
}
