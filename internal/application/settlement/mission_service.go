package settlement

import (
	"context"
	"fmt"
	"strings"
	"time"

	domain "github.com/turtacn/TransitLedger/internal/domain/settlement"
	"github.com/turtacn/TransitLedger/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TransitLedger/internal/infrastructure/monitoring/prometheus"
	apperrors "github.com/turtacn/TransitLedger/pkg/errors"
)

// TerminateMissionInput describes a mission return.
type TerminateMissionInput struct {
	// DateRetour defaults to today.
	DateRetour *time.Time
	// Force confirms a late return.
	Force bool
	// AdjustDeparture moves DateDepart back to DateRetour when the return
	// precedes the recorded departure.
	AdjustDeparture bool
}

// TerminateMissionResult is the outcome of a termination.
type TerminateMissionResult struct {
	Mission   *domain.Mission     `json:"mission"`
	Lateness  domain.LatenessInfo `json:"retard"`
	Completed bool                `json:"contrat_termine"`
}

// CancelMissionResult summarizes a mission cancellation cascade.
type CancelMissionResult struct {
	Mission          *domain.Mission `json:"mission"`
	CautionsAnnulees int             `json:"cautions_annulees"`
	PaiementsAnnules int             `json:"paiements_annules"`
	ConteneurLibere  bool            `json:"conteneur_libere"`
}

// DemurrageUpdate is the outcome of an arrival or unloading record.
type DemurrageUpdate struct {
	Mission   *domain.Mission        `json:"mission"`
	Demurrage domain.DemurrageResult `json:"stationnement"`
	Payments  []*domain.Payment      `json:"paiements,omitempty"`
}

// MissionService drives the mission state machine.
type MissionService interface {
	GetMission(ctx context.Context, id string) (*domain.Mission, error)

	// TerminateMission closes an en_cours mission. A late return fails with a
	// validation error carrying the delay and penalty unless forced.
	TerminateMission(ctx context.Context, id string, in TerminateMissionInput, meta domain.RequestMeta) (*TerminateMissionResult, error)

	// CancelMission annuls an en_cours mission and cascades to the cautions
	// of its contract, its unvalidated payments and its container.
	CancelMission(ctx context.Context, id, reason string, meta domain.RequestMeta) (*CancelMissionResult, error)

	// RecordArrival stores the arrival date and the demurrage accrued so far.
	RecordArrival(ctx context.Context, id string, date time.Time, meta domain.RequestMeta) (*DemurrageUpdate, error)

	// RecordUnloading stores the unloading date and the final demurrage.
	RecordUnloading(ctx context.Context, id string, date time.Time, meta domain.RequestMeta) (*DemurrageUpdate, error)

	// Demurrage recomputes the current demurrage of a mission without
	// changing it.
	Demurrage(ctx context.Context, id string) (domain.DemurrageResult, error)
}

type missionServiceImpl struct {
	base
}

// NewMissionService constructs a MissionService.
func NewMissionService(d Deps) MissionService {
	return &missionServiceImpl{base: newBase(d, "missions")}
}

func (s *missionServiceImpl) GetMission(ctx context.Context, id string) (*domain.Mission, error) {
	if id == "" {
		return nil, apperrors.InvalidParam("mission id is required")
	}
	return s.repo.GetMission(ctx, id)
}

func (s *missionServiceImpl) TerminateMission(ctx context.Context, id string, in TerminateMissionInput, meta domain.RequestMeta) (res *TerminateMissionResult, err error) {
	timer := prometheus.StartOperation(s.metrics, "mission.terminate")
	defer func() { timer.Stop(err) }()

	now := s.now()
	dateRetour := s.today()
	if in.DateRetour != nil {
		dateRetour = domain.Date(*in.DateRetour)
	}

	fx := &effects{}
	err = s.repo.WithTx(ctx, func(tx domain.Repository) error {
		m, err := tx.GetMission(ctx, id)
		if err != nil {
			return err
		}
		c, err := tx.GetContract(ctx, m.ContractID)
		if err != nil {
			return err
		}

		if in.AdjustDeparture && dateRetour.Before(m.DateDepart) {
			if err := m.AdjustDeparture(dateRetour, c, now); err != nil {
				return err
			}
		}

		info, err := m.Terminate(dateRetour, c.DateLimiteRetour, in.Force, s.policy, now)
		if err != nil {
			return err
		}
		if err := m.Validate(c); err != nil {
			return err
		}
		if err := tx.UpdateMission(ctx, m); err != nil {
			return err
		}
		if err := s.releaseContainer(ctx, tx, c.ContainerID); err != nil {
			return err
		}

		completed := c.Complete(now)
		if completed {
			if err := tx.UpdateContract(ctx, c); err != nil {
				return err
			}
		}
		if err := appendEvents(ctx, tx, meta.ActorOrSystem(), m, c); err != nil {
			return err
		}

		res = &TerminateMissionResult{Mission: m, Lateness: info, Completed: completed}

		msg := fmt.Sprintf("La mission du contrat %s est terminée", c.NumeroBL)
		if info.EnRetard {
			msg = fmt.Sprintf("%s avec %d jour(s) de retard (pénalité %s)", msg, info.JoursRetard, domain.FCFA(info.Penalite))
		}
		fx.notify(domain.Notification{
			Type:         domain.NotifyMissionTerminee,
			Title:        "Mission terminée",
			Message:      msg,
			EntityType:   domain.EntityMission,
			EntityID:     m.ID,
			EntrepriseID: c.EntrepriseID,
			Data: map[string]interface{}{
				"contrat_id":   c.ID,
				"en_retard":    info.EnRetard,
				"jours_retard": info.JoursRetard,
				"penalite":     info.Penalite.String(),
			},
			CreatedAt: now,
		})
		if info.EnRetard {
			fx.notify(lateReturnNotification(m, c, info, now))
		}
		return s.audit(ctx, tx, fx, meta, domain.AuditTerminerMission, domain.EntityMission, m.ID, c.NumeroBL,
			map[string]interface{}{
				"date_retour":  dateString(m.DateRetour),
				"en_retard":    info.EnRetard,
				"jours_retard": info.JoursRetard,
				"penalite":     info.Penalite.String(),
				"force":        in.Force,
			})
	})
	if err != nil {
		if apperrors.IsValidation(err) {
			s.logger.Info("mission termination rejected", logging.String("mission_id", id), logging.Err(err))
		}
		return nil, err
	}

	s.flush(ctx, fx)
	s.logger.Info("mission terminated",
		logging.String("mission_id", id),
		logging.Bool("late", res.Lateness.EnRetard),
		logging.Int("days_late", res.Lateness.JoursRetard))
	return res, nil
}

// lateReturnNotification reports a return confirmed past the contract
// deadline.
func lateReturnNotification(m *domain.Mission, c *domain.Contract, info domain.LatenessInfo, now time.Time) domain.Notification {
	return domain.Notification{
		Type:  domain.NotifyMissionEnRetard,
		Title: fmt.Sprintf("Retour en retard - %s", m.Destination),
		Message: fmt.Sprintf("La mission du contrat %s est rentrée avec %d jour(s) de retard sur la date limite du %s. Pénalité: %s.",
			c.NumeroBL, info.JoursRetard, c.DateLimiteRetour.Format("02/01/2006"), domain.FCFA(info.Penalite)),
		EntityType:   domain.EntityMission,
		EntityID:     m.ID,
		EntrepriseID: c.EntrepriseID,
		Data: map[string]interface{}{
			"contrat_id":   c.ID,
			"numero_bl":    c.NumeroBL,
			"jours_retard": info.JoursRetard,
			"penalite":     info.Penalite.String(),
		},
		CreatedAt: now,
	}
}

func (s *missionServiceImpl) CancelMission(ctx context.Context, id, reason string, meta domain.RequestMeta) (res *CancelMissionResult, err error) {
	timer := prometheus.StartOperation(s.metrics, "mission.cancel")
	defer func() { timer.Stop(err) }()

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.Validation("La raison de l'annulation est obligatoire").
			WithField("raison", "La raison est obligatoire")
	}

	fx := &effects{}
	now := s.now()
	err = s.repo.WithTx(ctx, func(tx domain.Repository) error {
		m, err := tx.GetMission(ctx, id)
		if err != nil {
			return err
		}
		c, err := tx.GetContract(ctx, m.ContractID)
		if err != nil {
			return err
		}

		out, err := cancelMissionCascade(ctx, tx, c, m, reason, now, meta.ActorOrSystem())
		if err != nil {
			return err
		}
		if err := tx.UpdateContract(ctx, c); err != nil {
			return err
		}
		if err := appendEvents(ctx, tx, meta.ActorOrSystem(), c); err != nil {
			return err
		}
		res = out

		fx.notify(domain.Notification{
			Type:         domain.NotifyMissionAnnulee,
			Title:        "Mission annulée",
			Message:      fmt.Sprintf("La mission du contrat %s a été annulée: %s", c.NumeroBL, reason),
			EntityType:   domain.EntityMission,
			EntityID:     m.ID,
			EntrepriseID: c.EntrepriseID,
			Data: map[string]interface{}{
				"contrat_id":        c.ID,
				"cautions_annulees": out.CautionsAnnulees,
				"paiements_annules": out.PaiementsAnnules,
			},
			CreatedAt: now,
		})
		return s.audit(ctx, tx, fx, meta, domain.AuditAnnulerMission, domain.EntityMission, m.ID, c.NumeroBL,
			map[string]interface{}{
				"raison":            reason,
				"cautions_annulees": out.CautionsAnnulees,
				"paiements_annules": out.PaiementsAnnules,
			})
	})
	if err != nil {
		return nil, err
	}

	s.flush(ctx, fx)
	s.logger.Info("mission cancelled",
		logging.String("mission_id", id),
		logging.Int("cautions", res.CautionsAnnulees),
		logging.Int("payments", res.PaiementsAnnules))
	return res, nil
}

// cancelMissionCascade annuls m and everything that depended on it. The
// contract's annotation event is recorded on c; saving c is left to the
// caller, which may have further changes to make.
func cancelMissionCascade(ctx context.Context, tx domain.Repository, c *domain.Contract, m *domain.Mission,
	reason string, now time.Time, actor string) (*CancelMissionResult, error) {
	if err := m.Cancel(reason, now); err != nil {
		return nil, err
	}
	if err := tx.UpdateMission(ctx, m); err != nil {
		return nil, err
	}
	res := &CancelMissionResult{Mission: m}
	sources := []domain.EventSource{m}

	cautions, err := tx.ListCautionsByContract(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	for _, ca := range cautions {
		if !ca.Annul(fmt.Sprintf("Mission annulée: %s", reason), now) {
			continue
		}
		if err := tx.UpdateCaution(ctx, ca); err != nil {
			return nil, err
		}
		sources = append(sources, ca)
		res.CautionsAnnulees++
	}

	payments, err := tx.ListPaymentsByMission(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	for _, p := range payments {
		if !p.CancelForMission(reason, now) {
			continue
		}
		if err := tx.UpdatePayment(ctx, p); err != nil {
			return nil, err
		}
		sources = append(sources, p)
		res.PaiementsAnnules++
	}

	container, err := tx.GetContainer(ctx, c.ContainerID)
	if err != nil {
		return nil, err
	}
	if container.ReleaseToPort() {
		if err := tx.UpdateContainer(ctx, container); err != nil {
			return nil, err
		}
		res.ConteneurLibere = true
	}

	c.NoteMissionCancelled(m.ID, reason, now)
	if err := appendEvents(ctx, tx, actor, sources...); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *missionServiceImpl) releaseContainer(ctx context.Context, tx domain.Repository, containerID string) error {
	container, err := tx.GetContainer(ctx, containerID)
	if err != nil {
		return err
	}
	if !container.ReleaseToPort() {
		return nil
	}
	return tx.UpdateContainer(ctx, container)
}

func (s *missionServiceImpl) RecordArrival(ctx context.Context, id string, date time.Time, meta domain.RequestMeta) (*DemurrageUpdate, error) {
	return s.recordStationnement(ctx, "mission.arrival", id, meta, func(m *domain.Mission) (domain.DemurrageResult, error) {
		return m.RecordArrival(date, s.calc, s.today(), s.now())
	})
}

func (s *missionServiceImpl) RecordUnloading(ctx context.Context, id string, date time.Time, meta domain.RequestMeta) (*DemurrageUpdate, error) {
	return s.recordStationnement(ctx, "mission.unloading", id, meta, func(m *domain.Mission) (domain.DemurrageResult, error) {
		return m.RecordUnloading(date, s.calc, s.now())
	})
}

// recordStationnement applies a demurrage mutation to the mission and copies
// the resulting fees onto its unvalidated payments.
func (s *missionServiceImpl) recordStationnement(ctx context.Context, op, id string, meta domain.RequestMeta,
	mutate func(*domain.Mission) (domain.DemurrageResult, error)) (res *DemurrageUpdate, err error) {
	timer := prometheus.StartOperation(s.metrics, op)
	defer func() { timer.Stop(err) }()

	fx := &effects{}
	err = s.repo.WithTx(ctx, func(tx domain.Repository) error {
		m, err := tx.GetMission(ctx, id)
		if err != nil {
			return err
		}
		previous := m.MontantStationnement
		result, err := mutate(m)
		if err != nil {
			return err
		}
		if err := m.Validate(nil); err != nil {
			return err
		}
		if err := tx.UpdateMission(ctx, m); err != nil {
			return err
		}
		sources := []domain.EventSource{m}

		payments, err := tx.ListPaymentsByMission(ctx, m.ID)
		if err != nil {
			return err
		}
		var synced []*domain.Payment
		for _, p := range payments {
			if p.StatutPaiement == domain.PaymentAnnule || !p.SyncDemurrage(m, s.now()) {
				continue
			}
			if err := p.Validate(); err != nil {
				return err
			}
			if err := tx.UpdatePayment(ctx, p); err != nil {
				return err
			}
			sources = append(sources, p)
			synced = append(synced, p)
		}
		if err := appendEvents(ctx, tx, meta.ActorOrSystem(), sources...); err != nil {
			return err
		}

		res = &DemurrageUpdate{Mission: m, Demurrage: result, Payments: synced}
		if delta := m.MontantStationnement.Sub(previous); delta.IsPositive() {
			prometheus.RecordDemurrage(s.metrics, strings.TrimPrefix(op, "mission."), delta.InexactFloat64())
		}
		return s.audit(ctx, tx, fx, meta, domain.AuditUpdate, domain.EntityMission, m.ID, m.ID,
			map[string]interface{}{
				"date_arrivee":      dateString(m.DateArrivee),
				"date_dechargement": dateString(m.DateDechargement),
				"jours_facturables": result.JoursFacturables,
				"montant":           result.Montant.String(),
			})
	})
	if err != nil {
		return nil, err
	}

	s.flush(ctx, fx)
	s.logger.Info("demurrage recorded",
		logging.String("mission_id", id),
		logging.String("operation", op),
		logging.Int("billable_days", res.Demurrage.JoursFacturables),
		logging.String("amount", res.Demurrage.Montant.String()))
	return res, nil
}

func (s *missionServiceImpl) Demurrage(ctx context.Context, id string) (domain.DemurrageResult, error) {
	m, err := s.repo.GetMission(ctx, id)
	if err != nil {
		return domain.DemurrageResult{}, err
	}
	return m.Demurrage(s.calc, s.today()), nil
}
