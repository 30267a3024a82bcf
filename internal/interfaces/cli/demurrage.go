package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/TransitLedger/internal/application/settlement"
	domain "github.com/turtacn/TransitLedger/internal/domain/settlement"
)

// DemurrageReport is the printable outcome of the demurrage command.
type DemurrageReport struct {
	Arrival   time.Time              `json:"date_arrivee"`
	Unloading *time.Time             `json:"date_dechargement,omitempty"`
	Result    domain.DemurrageResult `json:"stationnement"`
}

func (r DemurrageReport) TableHeaders() []string { return []string{"CHAMP", "VALEUR"} }

func (r DemurrageReport) TableRows() [][]string {
	rows := [][]string{
		{"Date d'arrivée", r.Arrival.Format("02/01/2006")},
	}
	if r.Unloading != nil {
		rows = append(rows, []string{"Date de déchargement", r.Unloading.Format("02/01/2006")})
	}
	if d := r.Result.DateDebutGratuit; d != nil {
		rows = append(rows, []string{"Début période gratuite", d.Format("02/01/2006")})
	}
	if d := r.Result.DateFinGratuit; d != nil {
		rows = append(rows, []string{"Fin période gratuite", d.Format("02/01/2006")})
	}
	return append(rows,
		[]string{"Jours au total", strconv.Itoa(r.Result.JoursTotal)},
		[]string{"Jours facturables", strconv.Itoa(r.Result.JoursFacturables)},
		[]string{"Montant", domain.FCFA(r.Result.Montant)},
		[]string{"Statut", string(r.Result.Statut)},
		[]string{"Message", r.Result.Message},
	)
}

// NewDemurrageCmd prices a container stay with the configured policy.
func NewDemurrageCmd() *cobra.Command {
	var arrival, unloading, today string

	cmd := &cobra.Command{
		Use:   "demurrage",
		Short: "Compute demurrage for an arrival and optional unloading date",
		Long: "Compute the free window and the billable demurrage days of a container.\n" +
			"Without --unloading the container is still waiting and the stay runs until today.",
		Example: "  transitctl demurrage --arrival 2025-01-06 --unloading 2025-01-13\n" +
			"  transitctl demurrage --arrival 2025-01-06 -o json",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			policy, err := settlement.PolicyFromConfig(cliCtx.Config.Settlement)
			if err != nil {
				return fmt.Errorf("invalid settlement configuration: %w", err)
			}

			arr, err := parseDay("arrival", arrival)
			if err != nil {
				return err
			}
			report := DemurrageReport{Arrival: arr}
			if unloading != "" {
				u, err := parseDay("unloading", unloading)
				if err != nil {
					return err
				}
				if u.Before(arr) {
					return fmt.Errorf("--unloading %s is before --arrival %s", unloading, arrival)
				}
				report.Unloading = &u
			}

			day := policy.Today(time.Now())
			if today != "" {
				if day, err = parseDay("today", today); err != nil {
					return err
				}
			}

			report.Result = domain.NewDemurrageCalculator(policy).Compute(&report.Arrival, report.Unloading, day)
			return PrintResult(cmd, report)
		},
	}

	cmd.Flags().StringVar(&arrival, "arrival", "", "arrival date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&unloading, "unloading", "", "unloading date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&today, "today", "", "override today's date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("arrival")
	return cmd
}

func parseDay(flag, value string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s %q: expected YYYY-MM-DD", flag, value)
	}
	return t, nil
}
