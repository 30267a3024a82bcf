package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/turtacn/TransitLedger/internal/application/settlement"
	"github.com/turtacn/TransitLedger/internal/infrastructure/monitoring/logging"
)

// ScanReport is the printable outcome of one overdue scan.
type ScanReport struct {
	*settlement.ScanResult
}

func (r ScanReport) TableHeaders() []string {
	return []string{"JOUR", "EN RETARD", "NOTIFIEES", "DEJA NOTIFIEES"}
}

func (r ScanReport) TableRows() [][]string {
	return [][]string{{
		r.Day.Format("02/01/2006"),
		strconv.Itoa(r.Overdue),
		strconv.Itoa(r.Notified),
		strconv.Itoa(r.Skipped),
	}}
}

// NewMissionsCmd groups mission maintenance commands.
func NewMissionsCmd(newScanner func(ctx context.Context, cctx *CLIContext) (OverdueScanner, func(), error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "missions",
		Short: "Mission maintenance",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "check-overdue",
		Short: "Notify once per day about en_cours missions past their return deadline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if newScanner == nil {
				return fmt.Errorf("check-overdue is not available in this build")
			}
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			if err := cliCtx.RequireConfig(); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cliCtx.Timeout)
			defer cancel()

			scanner, cleanup, err := newScanner(ctx, cliCtx)
			if err != nil {
				return err
			}
			if cleanup != nil {
				defer cleanup()
			}

			res, err := scanner.Scan(ctx)
			if err != nil {
				return err
			}
			cliCtx.Logger.Info("overdue scan finished",
				logging.Int("overdue", res.Overdue),
				logging.Int("notified", res.Notified))
			return PrintResult(cmd, ScanReport{res})
		},
	})

	return cmd
}
