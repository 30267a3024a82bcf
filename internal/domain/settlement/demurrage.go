package settlement

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// StationnementStatus describes where a mission stands in the demurrage flow.
type StationnementStatus string

const (
	StationnementAttente         StationnementStatus = "attente"
	StationnementEnStationnement StationnementStatus = "en_stationnement"
	StationnementDecharge        StationnementStatus = "decharge"
)

// DemurrageResult is the outcome of a demurrage computation.
type DemurrageResult struct {
	JoursTotal       int                 `json:"jours_total"`
	JoursGratuits    int                 `json:"jours_gratuits"`
	JoursFacturables int                 `json:"jours_facturables"`
	Montant          decimal.Decimal     `json:"montant"`
	DateDebutGratuit *time.Time          `json:"date_debut_gratuit,omitempty"`
	DateFinGratuit   *time.Time          `json:"date_fin_gratuit,omitempty"`
	Statut           StationnementStatus `json:"statut,omitempty"`
	Message          string              `json:"message"`
}

// MessageArrivalMissing is returned when no arrival date has been recorded.
const MessageArrivalMissing = "Date d'arrivée non renseignée"

// DemurrageCalculator prices the days a container waits to be unloaded.
type DemurrageCalculator struct {
	freeDays int
	rate     decimal.Decimal
}

// NewDemurrageCalculator builds a calculator from p.
func NewDemurrageCalculator(p Policy) *DemurrageCalculator {
	return &DemurrageCalculator{freeDays: p.FreeDays, rate: p.DemurrageRate}
}

// Compute applies the free-window rule:
//
//  1. the free window starts on the first business day at or after arrival;
//  2. it ends on the day the business-day counter reaches the free-day count;
//  3. every calendar day after that, weekends included, is billed.
//
// When unloading is nil the container is still waiting and today is used as
// the end date.
func (c *DemurrageCalculator) Compute(arrival, unloading *time.Time, today time.Time) DemurrageResult {
	if arrival == nil {
		return DemurrageResult{Montant: decimal.Zero, Message: MessageArrivalMissing}
	}

	start := Date(*arrival)
	end := Date(today)
	if unloading != nil {
		end = Date(*unloading)
	}

	debut := NextBusinessDay(start)
	fin := NthBusinessDay(debut, c.freeDays)

	billable := 0
	if end.After(fin) {
		billable = DaysBetween(fin, end)
	}

	statut := StationnementAttente
	if billable > 0 {
		statut = StationnementEnStationnement
	}
	if unloading != nil {
		statut = StationnementDecharge
	}

	total := DaysBetween(start, end) + 1

	return DemurrageResult{
		JoursTotal:       total,
		JoursGratuits:    c.freeDays,
		JoursFacturables: billable,
		Montant:          c.rate.Mul(decimal.NewFromInt(int64(billable))),
		DateDebutGratuit: &debut,
		DateFinGratuit:   &fin,
		Statut:           statut,
		Message: fmt.Sprintf("%d jours total depuis arrivée, %d jours ouvrables gratuits, %d jours facturables",
			total, c.freeDays, billable),
	}
}
