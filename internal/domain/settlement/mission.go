package settlement

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/turtacn/TransitLedger/pkg/errors"
)

// MissionStatus is the lifecycle status of a mission.
type MissionStatus string

const (
	MissionEnCours  MissionStatus = "en_cours"
	MissionTerminee MissionStatus = "terminee"
	MissionAnnulee  MissionStatus = "annulee"
)

// IsTerminal reports whether no transition leaves s.
func (s MissionStatus) IsTerminal() bool {
	return s == MissionTerminee || s == MissionAnnulee
}

var missionTransitions = map[MissionStatus][]MissionStatus{
	MissionEnCours: {MissionTerminee, MissionAnnulee},
}

func canTransition(from, to MissionStatus) bool {
	for _, t := range missionTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Mission is one trip executed under a contract.
type Mission struct {
	ID                            string              `json:"id"`
	ContractID                    string              `json:"contrat_id"`
	PrestationID                  string              `json:"prestation_id"`
	DateDepart                    time.Time           `json:"date_depart"`
	DateRetour                    *time.Time          `json:"date_retour,omitempty"`
	Origine                       string              `json:"origine"`
	Destination                   string              `json:"destination"`
	Itineraire                    string              `json:"itineraire,omitempty"`
	Statut                        MissionStatus       `json:"statut"`
	DateArrivee                   *time.Time          `json:"date_arrivee,omitempty"`
	DateDechargement              *time.Time          `json:"date_dechargement,omitempty"`
	StatutStationnement           StationnementStatus `json:"statut_stationnement"`
	JoursStationnementFacturables int                 `json:"jours_stationnement_facturables"`
	MontantStationnement          decimal.Decimal     `json:"montant_stationnement"`
	CreatedAt                     time.Time           `json:"created_at"`
	UpdatedAt                     time.Time           `json:"updated_at"`

	journal
}

// LatenessInfo describes how late a mission came back.
type LatenessInfo struct {
	EnRetard    bool            `json:"en_retard"`
	JoursRetard int             `json:"jours_retard"`
	Penalite    decimal.Decimal `json:"penalite"`
	Message     string          `json:"message,omitempty"`
}

// NewMission seeds the mission of a freshly created contract.
func NewMission(id string, c *Contract, prestationID string, now time.Time) *Mission {
	m := &Mission{
		ID:                   id,
		ContractID:           c.ID,
		PrestationID:         prestationID,
		DateDepart:           c.DateDebut,
		Origine:              c.LieuChargement,
		Destination:          c.Destinataire,
		Statut:               MissionEnCours,
		StatutStationnement:  StationnementAttente,
		MontantStationnement: decimal.Zero,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	m.record(EntityMission, m.ID, EventMissionCreated, map[string]interface{}{
		"contrat_id":  c.ID,
		"date_depart": m.DateDepart.Format(time.DateOnly),
	}, now)
	return m
}

// Validate checks the mission against its own invariants and, when c is
// non-nil, against the contract dates.
func (m *Mission) Validate(c *Contract) error {
	errs := map[string]string{}

	if strings.TrimSpace(m.Origine) == "" {
		errs["origine"] = "L'origine est obligatoire"
	}
	if strings.TrimSpace(m.Destination) == "" {
		errs["destination"] = "La destination est obligatoire"
	}
	if m.DateDepart.IsZero() {
		errs["date_depart"] = "La date de départ est obligatoire"
	} else if c != nil && m.DateDepart.Before(c.DateDebut) {
		errs["date_depart"] = fmt.Sprintf("La date de départ (%s) doit être >= à la date de début du contrat (%s)",
			m.DateDepart.Format(time.DateOnly), c.DateDebut.Format(time.DateOnly))
	}
	if m.DateRetour != nil && m.DateRetour.Before(m.DateDepart) {
		errs["date_retour"] = "La date de retour doit être après la date de départ"
	}
	if m.JoursStationnementFacturables < 0 {
		errs["jours_stationnement_facturables"] = "Le nombre de jours facturables ne peut pas être négatif"
	}
	if m.MontantStationnement.IsNegative() {
		errs["montant_stationnement"] = "Le montant de stationnement ne peut pas être négatif"
	}
	switch m.Statut {
	case MissionEnCours, MissionTerminee, MissionAnnulee:
	default:
		errs["statut"] = fmt.Sprintf("Statut de mission inconnu: %q", m.Statut)
	}

	return apperrors.ValidationFields("Mission invalide", errs)
}

// Lateness computes the delay of a return on dateRetour against deadline.
func Lateness(dateRetour, deadline time.Time, p Policy) LatenessInfo {
	retour, limit := Date(dateRetour), Date(deadline)
	if !retour.After(limit) {
		return LatenessInfo{Penalite: decimal.Zero}
	}
	jours := DaysBetween(limit, retour)
	penalite := p.LatePenaltyRate.Mul(decimal.NewFromInt(int64(jours)))
	return LatenessInfo{
		EnRetard:    true,
		JoursRetard: jours,
		Penalite:    penalite,
		Message:     fmt.Sprintf("Mission terminée avec %d jour(s) de retard. Pénalité: %s", jours, FCFA(penalite)),
	}
}

// Terminate closes the mission on dateRetour. A late return without force
// fails with the delay and penalty in the error metadata and leaves the
// mission untouched.
func (m *Mission) Terminate(dateRetour, deadline time.Time, force bool, p Policy, now time.Time) (LatenessInfo, error) {
	if !canTransition(m.Statut, MissionTerminee) {
		return LatenessInfo{}, apperrors.InvalidTransition(
			fmt.Sprintf("Impossible de terminer une mission au statut '%s'", m.Statut))
	}

	retour := Date(dateRetour)
	if retour.Before(m.DateDepart) {
		return LatenessInfo{}, apperrors.Validation(
			fmt.Sprintf("La date de retour (%s) ne peut pas être avant la date de départ (%s)",
				retour.Format(time.DateOnly), m.DateDepart.Format(time.DateOnly))).
			WithField("date_retour", "La date de retour doit être après la date de départ")
	}

	info := Lateness(retour, deadline, p)
	if info.EnRetard && !force {
		return info, apperrors.Validation(
			fmt.Sprintf("La date de retour (%s) dépasse la date limite du contrat (%s) de %d jour(s). Pénalité: %s. Confirmez pour terminer quand même.",
				retour.Format(time.DateOnly), Date(deadline).Format(time.DateOnly), info.JoursRetard, FCFA(info.Penalite))).
			WithMeta("jours_retard", info.JoursRetard).
			WithMeta("penalite", info.Penalite)
	}

	m.DateRetour = &retour
	m.Statut = MissionTerminee
	m.UpdatedAt = now
	m.record(EntityMission, m.ID, EventMissionTerminated, map[string]interface{}{
		"date_retour":  retour.Format(time.DateOnly),
		"en_retard":    info.EnRetard,
		"jours_retard": info.JoursRetard,
		"penalite":     info.Penalite.String(),
		"force":        force,
	}, now)
	return info, nil
}

// AdjustDeparture moves DateDepart to date. It is only reachable through an
// explicit request flag and never lets the mission start before its contract.
func (m *Mission) AdjustDeparture(date time.Time, c *Contract, now time.Time) error {
	if m.Statut != MissionEnCours {
		return apperrors.InvalidTransition(
			fmt.Sprintf("Impossible de modifier la date de départ d'une mission au statut '%s'", m.Statut))
	}
	d := Date(date)
	if c != nil && d.Before(c.DateDebut) {
		return apperrors.Validation(
			fmt.Sprintf("La date de départ (%s) doit être >= à la date de début du contrat (%s)",
				d.Format(time.DateOnly), c.DateDebut.Format(time.DateOnly))).
			WithField("date_depart", "Date antérieure au début du contrat")
	}
	if d.Equal(m.DateDepart) {
		return nil
	}
	from := m.DateDepart
	m.DateDepart = d
	m.UpdatedAt = now
	m.record(EntityMission, m.ID, EventDepartureAdjusted, map[string]interface{}{
		"ancienne_date": from.Format(time.DateOnly),
		"nouvelle_date": d.Format(time.DateOnly),
	}, now)
	return nil
}

// Cancel annuls the mission. Finished or already annulled missions are
// rejected.
func (m *Mission) Cancel(reason string, now time.Time) error {
	switch m.Statut {
	case MissionTerminee:
		return apperrors.InvalidTransition("Impossible d'annuler une mission déjà terminée")
	case MissionAnnulee:
		return apperrors.InvalidTransition("Cette mission est déjà annulée")
	}
	m.Statut = MissionAnnulee
	m.UpdatedAt = now
	m.record(EntityMission, m.ID, EventMissionCancelled, map[string]interface{}{
		"raison": reason,
	}, now)
	return nil
}

// RecordArrival stores the arrival at destination and the demurrage accrued
// so far.
func (m *Mission) RecordArrival(date time.Time, calc *DemurrageCalculator, today, now time.Time) (DemurrageResult, error) {
	if m.Statut == MissionAnnulee {
		return DemurrageResult{}, apperrors.InvalidTransition("La mission est annulée")
	}
	d := Date(date)
	if d.Before(m.DateDepart) {
		return DemurrageResult{}, apperrors.Validation(
			fmt.Sprintf("La date d'arrivée (%s) ne peut pas être avant la date de départ (%s)",
				d.Format(time.DateOnly), m.DateDepart.Format(time.DateOnly))).
			WithField("date_arrivee", "Date antérieure au départ")
	}
	if m.DateDechargement != nil && m.DateDechargement.Before(d) {
		return DemurrageResult{}, apperrors.Validation("La date d'arrivée ne peut pas être après le déchargement").
			WithField("date_arrivee", "Date postérieure au déchargement")
	}

	m.DateArrivee = &d
	res := m.applyDemurrage(calc, today)
	m.UpdatedAt = now
	m.record(EntityMission, m.ID, EventArrivalRecorded, map[string]interface{}{
		"date_arrivee":      d.Format(time.DateOnly),
		"jours_facturables": res.JoursFacturables,
		"montant":           res.Montant.String(),
	}, now)
	return res, nil
}

// RecordUnloading stores the unloading date and finalizes the demurrage.
func (m *Mission) RecordUnloading(date time.Time, calc *DemurrageCalculator, now time.Time) (DemurrageResult, error) {
	if m.Statut == MissionAnnulee {
		return DemurrageResult{}, apperrors.InvalidTransition("La mission est annulée")
	}
	if m.DateArrivee == nil {
		return DemurrageResult{}, apperrors.Validation("La date d'arrivée doit être renseignée avant le déchargement").
			WithField("date_dechargement", "Arrivée non renseignée")
	}
	d := Date(date)
	if d.Before(*m.DateArrivee) {
		return DemurrageResult{}, apperrors.Validation(
			fmt.Sprintf("La date de déchargement (%s) ne peut pas être avant la date d'arrivée (%s)",
				d.Format(time.DateOnly), m.DateArrivee.Format(time.DateOnly))).
			WithField("date_dechargement", "Date antérieure à l'arrivée")
	}

	m.DateDechargement = &d
	res := m.applyDemurrage(calc, d)
	m.UpdatedAt = now
	m.record(EntityMission, m.ID, EventUnloadingRecorded, map[string]interface{}{
		"date_dechargement": d.Format(time.DateOnly),
		"jours_facturables": res.JoursFacturables,
		"montant":           res.Montant.String(),
	}, now)
	return res, nil
}

// Demurrage recomputes the current demurrage without changing the mission.
func (m *Mission) Demurrage(calc *DemurrageCalculator, today time.Time) DemurrageResult {
	return calc.Compute(m.DateArrivee, m.DateDechargement, today)
}

func (m *Mission) applyDemurrage(calc *DemurrageCalculator, today time.Time) DemurrageResult {
	res := m.Demurrage(calc, today)
	m.JoursStationnementFacturables = res.JoursFacturables
	m.MontantStationnement = res.Montant
	m.StatutStationnement = res.Statut
	return res
}
