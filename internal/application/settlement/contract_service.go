package settlement

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/turtacn/TransitLedger/internal/domain/settlement"
	"github.com/turtacn/TransitLedger/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TransitLedger/internal/infrastructure/monitoring/prometheus"
	apperrors "github.com/turtacn/TransitLedger/pkg/errors"
)

// ---------------------------------------------------------------------------
// DTOs
// ---------------------------------------------------------------------------

// CreateContractInput carries the fields a user supplies for a new contract.
type CreateContractInput struct {
	NumeroBL         string
	EntrepriseID     string
	TruckID          string
	DriverID         string
	ClientID         string
	TransitaireID    string
	ContainerID      string
	LieuChargement   string
	Destinataire     string
	MontantTotal     decimal.Decimal
	AvanceTransport  decimal.Decimal
	Caution          decimal.Decimal
	DateDebut        time.Time
	DateLimiteRetour *time.Time
	Commentaire      string
}

// UpdateContractInput carries the editable fields of an active contract. Nil
// fields are left unchanged.
type UpdateContractInput struct {
	TruckID          *string
	DriverID         *string
	Destinataire     *string
	LieuChargement   *string
	MontantTotal     *decimal.Decimal
	AvanceTransport  *decimal.Decimal
	Caution          *decimal.Decimal
	DateLimiteRetour *time.Time
	Commentaire      *string
}

// ContractAggregate is a contract with the records generated for it.
type ContractAggregate struct {
	Contract   *domain.Contract   `json:"contrat"`
	Prestation *domain.Prestation `json:"prestation"`
	Caution    *domain.Caution    `json:"caution"`
	Mission    *domain.Mission    `json:"mission"`
	Payment    *domain.Payment    `json:"paiement"`
}

// CancelContractResult summarizes a contract cancellation cascade.
type CancelContractResult struct {
	MissionsAnnulees int `json:"missions_annulees"`
	CautionsAnnulees int `json:"cautions_annulees"`
	PaiementsAnnules int `json:"paiements_annules"`
	Prestations      int `json:"prestations"`
}

// ---------------------------------------------------------------------------
// Service interface
// ---------------------------------------------------------------------------

// ContractService manages transport contracts.
type ContractService interface {
	// CreateContract validates the contract, reserves its truck and driver
	// and creates the prestation, caution, mission and payment with it.
	CreateContract(ctx context.Context, in CreateContractInput, meta domain.RequestMeta) (*ContractAggregate, error)

	// UpdateContract edits an active contract under the same resource checks
	// as creation.
	UpdateContract(ctx context.Context, id string, in UpdateContractInput, meta domain.RequestMeta) (*domain.Contract, error)

	// GetContract returns a contract.
	GetContract(ctx context.Context, id string) (*domain.Contract, error)

	// DeleteContract removes a contract that owns no mission and no caution.
	DeleteContract(ctx context.Context, id string, meta domain.RequestMeta) error

	// CancelContract annuls the contract and cascades to its missions and
	// cautions.
	CancelContract(ctx context.Context, id, reason string, meta domain.RequestMeta) (*CancelContractResult, error)

	// BlockCaution puts the contract deposit on hold.
	BlockCaution(ctx context.Context, id string, meta domain.RequestMeta) (*domain.Contract, error)

	// ReleaseCaution lifts the hold on the contract deposit.
	ReleaseCaution(ctx context.Context, id string, meta domain.RequestMeta) (*domain.Contract, error)

	// ListEvents returns the event log of an entity.
	ListEvents(ctx context.Context, entity domain.EntityType, id string) ([]*domain.Event, error)
}

// ---------------------------------------------------------------------------
// Implementation
// ---------------------------------------------------------------------------

type contractServiceImpl struct {
	base
}

// NewContractService constructs a ContractService.
func NewContractService(d Deps) ContractService {
	return &contractServiceImpl{base: newBase(d, "contracts")}
}

func (s *contractServiceImpl) CreateContract(ctx context.Context, in CreateContractInput, meta domain.RequestMeta) (agg *ContractAggregate, err error) {
	timer := prometheus.StartOperation(s.metrics, "contract.create")
	defer func() { timer.Stop(err) }()

	c := in.toContract(s.newID())
	c.Normalize(s.policy)
	if err := c.Validate(); err != nil {
		return nil, err
	}

	release, err := s.reserve(ctx, c.TruckID, c.DriverID)
	if err != nil {
		return nil, err
	}
	defer s.unlock(ctx, release)

	fx := &effects{}
	now := s.now()
	err = s.repo.WithTx(ctx, func(tx domain.Repository) error {
		if err := s.checkAvailability(ctx, tx, c); err != nil {
			return err
		}
		c.MarkCreated(now)
		if err := tx.CreateContract(ctx, c); err != nil {
			return err
		}
		a, err := s.bootstrapWorkflow(ctx, tx, c, now)
		if err != nil {
			return err
		}
		agg = a
		if err := appendEvents(ctx, tx, meta.ActorOrSystem(), c, a.Prestation, a.Caution, a.Mission, a.Payment); err != nil {
			return err
		}
		return s.audit(ctx, tx, fx, meta, domain.AuditCreate, domain.EntityContract, c.ID, c.NumeroBL,
			map[string]interface{}{
				"numero_bl":          c.NumeroBL,
				"montant_total":      c.MontantTotal.String(),
				"avance_transport":   c.AvanceTransport.String(),
				"caution":            c.Caution.String(),
				"date_debut":         c.DateDebut.Format(time.DateOnly),
				"date_limite_retour": c.DateLimiteRetour.Format(time.DateOnly),
			})
	})
	if err != nil {
		s.logger.Warn("contract not created", logging.String("numero_bl", c.NumeroBL), logging.Err(err))
		return nil, err
	}

	s.flush(ctx, fx)
	s.logger.Info("contract created",
		logging.String("contract_id", c.ID),
		logging.String("numero_bl", c.NumeroBL),
		logging.String("mission_id", agg.Mission.ID),
		logging.String("payment_id", agg.Payment.ID))
	return agg, nil
}

// bootstrapWorkflow creates the prestation, caution, mission and pending
// payment of a freshly saved contract and dispatches its container.
func (s *contractServiceImpl) bootstrapWorkflow(ctx context.Context, tx domain.Repository, c *domain.Contract, now time.Time) (*ContractAggregate, error) {
	prestation := domain.NewPrestation(s.newID(), c, now)
	if err := tx.CreatePrestation(ctx, prestation); err != nil {
		return nil, err
	}

	caution := domain.NewCaution(s.newID(), c, now)
	if err := caution.Validate(); err != nil {
		return nil, err
	}
	if err := tx.CreateCaution(ctx, caution); err != nil {
		return nil, err
	}

	mission := domain.NewMission(s.newID(), c, prestation.ID, now)
	if err := mission.Validate(c); err != nil {
		return nil, err
	}
	if err := tx.CreateMission(ctx, mission); err != nil {
		return nil, err
	}

	transitaire, err := tx.GetTransitaire(ctx, c.TransitaireID)
	if err != nil {
		return nil, err
	}
	payment := domain.NewPayment(s.newID(), mission, caution, prestation.ID,
		c.MontantTotal, transitaire.Commission(c.MontantTotal), now)
	if err := payment.Validate(); err != nil {
		return nil, err
	}
	if err := tx.CreatePayment(ctx, payment); err != nil {
		return nil, err
	}

	container, err := tx.GetContainer(ctx, c.ContainerID)
	if err != nil {
		return nil, err
	}
	container.Dispatch()
	if err := tx.UpdateContainer(ctx, container); err != nil {
		return nil, err
	}

	return &ContractAggregate{
		Contract:   c,
		Prestation: prestation,
		Caution:    caution,
		Mission:    mission,
		Payment:    payment,
	}, nil
}

func (s *contractServiceImpl) UpdateContract(ctx context.Context, id string, in UpdateContractInput, meta domain.RequestMeta) (c *domain.Contract, err error) {
	timer := prometheus.StartOperation(s.metrics, "contract.update")
	defer func() { timer.Stop(err) }()

	current, err := s.repo.GetContract(ctx, id)
	if err != nil {
		return nil, err
	}
	truckID, driverID := current.TruckID, current.DriverID
	if in.TruckID != nil {
		truckID = *in.TruckID
	}
	if in.DriverID != nil {
		driverID = *in.DriverID
	}

	release, err := s.reserve(ctx, truckID, driverID)
	if err != nil {
		return nil, err
	}
	defer s.unlock(ctx, release)

	fx := &effects{}
	err = s.repo.WithTx(ctx, func(tx domain.Repository) error {
		loaded, err := tx.GetContract(ctx, id)
		if err != nil {
			return err
		}
		if loaded.Statut != domain.ContractActif {
			return apperrors.InvalidTransition(
				fmt.Sprintf("Le contrat %s n'est plus modifiable (statut '%s')", loaded.NumeroBL, loaded.Statut))
		}
		changes := in.apply(loaded)
		loaded.Normalize(s.policy)
		if err := loaded.Validate(); err != nil {
			return err
		}
		if err := s.checkAvailability(ctx, tx, loaded); err != nil {
			return err
		}
		if len(changes) == 0 {
			c = loaded
			return nil
		}
		loaded.UpdatedAt = s.now()
		if err := tx.UpdateContract(ctx, loaded); err != nil {
			return err
		}
		c = loaded
		return s.audit(ctx, tx, fx, meta, domain.AuditUpdate, domain.EntityContract, loaded.ID, loaded.NumeroBL, changes)
	})
	if err != nil {
		return nil, err
	}

	s.flush(ctx, fx)
	s.logger.Info("contract updated", logging.String("contract_id", c.ID))
	return c, nil
}

func (s *contractServiceImpl) GetContract(ctx context.Context, id string) (*domain.Contract, error) {
	if id == "" {
		return nil, apperrors.InvalidParam("contract id is required")
	}
	return s.repo.GetContract(ctx, id)
}

func (s *contractServiceImpl) DeleteContract(ctx context.Context, id string, meta domain.RequestMeta) (err error) {
	timer := prometheus.StartOperation(s.metrics, "contract.delete")
	defer func() { timer.Stop(err) }()

	fx := &effects{}
	err = s.repo.WithTx(ctx, func(tx domain.Repository) error {
		c, err := tx.GetContract(ctx, id)
		if err != nil {
			return err
		}
		deps, err := tx.CountContractDependents(ctx, id)
		if err != nil {
			return err
		}
		if deps.Any() {
			return apperrors.Validation(fmt.Sprintf(
				"Le contrat %s possède %d mission(s) et %d caution(s) et ne peut pas être supprimé. Utilisez l'annulation.",
				c.NumeroBL, deps.Missions, deps.Cautions)).
				WithMeta("missions", deps.Missions).
				WithMeta("cautions", deps.Cautions)
		}
		if err := tx.DeleteContract(ctx, id); err != nil {
			return err
		}
		return s.audit(ctx, tx, fx, meta, domain.AuditDelete, domain.EntityContract, c.ID, c.NumeroBL, nil)
	})
	if err != nil {
		return err
	}

	s.flush(ctx, fx)
	s.logger.Info("contract deleted", logging.String("contract_id", id))
	return nil
}

func (s *contractServiceImpl) CancelContract(ctx context.Context, id, reason string, meta domain.RequestMeta) (res *CancelContractResult, err error) {
	timer := prometheus.StartOperation(s.metrics, "contract.cancel")
	defer func() { timer.Stop(err) }()

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.Validation("La raison de l'annulation est obligatoire").
			WithField("raison", "La raison est obligatoire")
	}

	fx := &effects{}
	now := s.now()
	var contract *domain.Contract
	err = s.repo.WithTx(ctx, func(tx domain.Repository) error {
		c, err := tx.GetContract(ctx, id)
		if err != nil {
			return err
		}
		if err := c.Cancel(reason, now); err != nil {
			return err
		}
		contract = c
		res = &CancelContractResult{}

		missions, err := tx.ListMissionsByContract(ctx, c.ID)
		if err != nil {
			return err
		}
		missionReason := fmt.Sprintf("Annulation du contrat %s: %s", c.NumeroBL, reason)
		for _, m := range missions {
			if m.Statut.IsTerminal() {
				continue
			}
			out, err := cancelMissionCascade(ctx, tx, c, m, missionReason, now, meta.ActorOrSystem())
			if err != nil {
				return err
			}
			res.MissionsAnnulees++
			res.CautionsAnnulees += out.CautionsAnnulees
			res.PaiementsAnnules += out.PaiementsAnnules
		}

		// Cautions not reached through a mission.
		cautions, err := tx.ListCautionsByContract(ctx, c.ID)
		if err != nil {
			return err
		}
		for _, ca := range cautions {
			if !ca.Annul(reason, now) {
				continue
			}
			if err := tx.UpdateCaution(ctx, ca); err != nil {
				return err
			}
			if err := appendEvents(ctx, tx, meta.ActorOrSystem(), ca); err != nil {
				return err
			}
			res.CautionsAnnulees++
		}

		prestations, err := tx.ListPrestationsByContract(ctx, c.ID)
		if err != nil {
			return err
		}
		res.Prestations = len(prestations)

		if err := tx.UpdateContract(ctx, c); err != nil {
			return err
		}
		if err := appendEvents(ctx, tx, meta.ActorOrSystem(), c); err != nil {
			return err
		}

		fx.notify(domain.Notification{
			Type:         domain.NotifyContratAnnule,
			Title:        "Contrat annulé",
			Message:      fmt.Sprintf("Le contrat %s a été annulé: %s", c.NumeroBL, reason),
			EntityType:   domain.EntityContract,
			EntityID:     c.ID,
			EntrepriseID: c.EntrepriseID,
			Data: map[string]interface{}{
				"missions_annulees": res.MissionsAnnulees,
				"cautions_annulees": res.CautionsAnnulees,
				"paiements_annules": res.PaiementsAnnules,
			},
			CreatedAt: now,
		})
		return s.audit(ctx, tx, fx, meta, domain.AuditAnnulerContrat, domain.EntityContract, c.ID, c.NumeroBL,
			map[string]interface{}{
				"raison":            reason,
				"missions_annulees": res.MissionsAnnulees,
				"cautions_annulees": res.CautionsAnnulees,
				"paiements_annules": res.PaiementsAnnules,
				"prestations":       res.Prestations,
			})
	})
	if err != nil {
		return nil, err
	}

	s.flush(ctx, fx)
	s.logger.Info("contract cancelled",
		logging.String("contract_id", contract.ID),
		logging.String("numero_bl", contract.NumeroBL),
		logging.Int("missions", res.MissionsAnnulees),
		logging.Int("cautions", res.CautionsAnnulees),
		logging.Int("payments", res.PaiementsAnnules))
	return res, nil
}

func (s *contractServiceImpl) BlockCaution(ctx context.Context, id string, meta domain.RequestMeta) (*domain.Contract, error) {
	return s.setCautionHold(ctx, id, true, meta)
}

func (s *contractServiceImpl) ReleaseCaution(ctx context.Context, id string, meta domain.RequestMeta) (*domain.Contract, error) {
	return s.setCautionHold(ctx, id, false, meta)
}

func (s *contractServiceImpl) setCautionHold(ctx context.Context, id string, block bool, meta domain.RequestMeta) (c *domain.Contract, err error) {
	op, action := "contract.caution_release", domain.AuditDebloquerCaution
	if block {
		op, action = "contract.caution_block", domain.AuditBloquerCaution
	}
	timer := prometheus.StartOperation(s.metrics, op)
	defer func() { timer.Stop(err) }()

	fx := &effects{}
	now := s.now()
	err = s.repo.WithTx(ctx, func(tx domain.Repository) error {
		loaded, err := tx.GetContract(ctx, id)
		if err != nil {
			return err
		}
		if block {
			err = loaded.BlockCaution(now)
		} else {
			err = loaded.ReleaseCaution(now)
		}
		if err != nil {
			return err
		}
		if err := tx.UpdateContract(ctx, loaded); err != nil {
			return err
		}
		if err := appendEvents(ctx, tx, meta.ActorOrSystem(), loaded); err != nil {
			return err
		}
		c = loaded
		if block {
			fx.notify(domain.Notification{
				Type:         domain.NotifyCautionBloquee,
				Title:        "Caution bloquée",
				Message:      fmt.Sprintf("La caution de %s du contrat %s est bloquée", domain.FCFA(loaded.Caution), loaded.NumeroBL),
				EntityType:   domain.EntityContract,
				EntityID:     loaded.ID,
				EntrepriseID: loaded.EntrepriseID,
				CreatedAt:    now,
			})
		}
		return s.audit(ctx, tx, fx, meta, action, domain.EntityContract, loaded.ID, loaded.NumeroBL,
			map[string]interface{}{"statut_caution": string(loaded.CautionHold)})
	})
	if err != nil {
		return nil, err
	}

	s.flush(ctx, fx)
	s.logger.Info("contract caution hold changed",
		logging.String("contract_id", c.ID),
		logging.String("statut_caution", string(c.CautionHold)))
	return c, nil
}

func (s *contractServiceImpl) ListEvents(ctx context.Context, entity domain.EntityType, id string) ([]*domain.Event, error) {
	if id == "" {
		return nil, apperrors.InvalidParam("entity id is required")
	}
	return s.repo.ListEvents(ctx, entity, id)
}

// ---------------------------------------------------------------------------
// Resource reservation
// ---------------------------------------------------------------------------

func truckLockKey(id string) string  { return "camion:" + id }
func driverLockKey(id string) string { return "chauffeur:" + id }

// reserve takes the distributed locks on a truck and a driver. The check that
// they are free happens afterwards, inside the transaction.
func (s *contractServiceImpl) reserve(ctx context.Context, truckID, driverID string) (func(context.Context) error, error) {
	release, err := s.locker.Acquire(ctx, s.lockTTL, truckLockKey(truckID), driverLockKey(driverID))
	if err != nil {
		prometheus.RecordLockContention(s.metrics, "truck_driver")
		s.logger.Warn("resource lock not acquired",
			logging.String("truck_id", truckID),
			logging.String("driver_id", driverID),
			logging.Err(err))
		if apperrors.IsConflict(err) {
			return nil, err
		}
		return nil, apperrors.New(apperrors.ErrCodeLockNotAcquired, "Ressources verrouillées, réessayez").WithCause(err)
	}
	return release, nil
}

func (s *contractServiceImpl) unlock(ctx context.Context, release func(context.Context) error) {
	if err := release(context.WithoutCancel(ctx)); err != nil {
		s.logger.Warn("resource lock release failed", logging.Err(err))
	}
}

// checkAvailability row-locks the truck and driver, then verifies no other
// contract has them on an en_cours mission.
func (s *contractServiceImpl) checkAvailability(ctx context.Context, tx domain.Repository, c *domain.Contract) error {
	truck, err := tx.LockTruck(ctx, c.TruckID)
	if err != nil {
		return err
	}
	driver, err := tx.LockDriver(ctx, c.DriverID)
	if err != nil {
		return err
	}

	fields := map[string]string{}
	busy, err := tx.FindActiveMissionForTruck(ctx, c.TruckID, c.ID)
	if err != nil {
		return err
	}
	if busy != nil {
		fields["camion"] = fmt.Sprintf("Le camion %s est déjà affecté à une mission en cours", truck.Immatriculation)
	}
	busy, err = tx.FindActiveMissionForDriver(ctx, c.DriverID, c.ID)
	if err != nil {
		return err
	}
	if busy != nil {
		fields["chauffeur"] = fmt.Sprintf("Le chauffeur %s est déjà affecté à une mission en cours", driver.FullName())
	}
	if len(fields) == 0 {
		return nil
	}

	msgs := make([]string, 0, 2)
	for _, k := range []string{"camion", "chauffeur"} {
		if m, ok := fields[k]; ok {
			msgs = append(msgs, m)
		}
	}
	appErr := apperrors.New(apperrors.ErrCodeResourceConflict, strings.Join(msgs, "; "))
	for k, m := range fields {
		appErr = appErr.WithField(k, m)
	}
	s.logger.Warn("resource conflict", logging.String("numero_bl", c.NumeroBL), logging.String("detail", appErr.Message))
	return appErr
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (in CreateContractInput) toContract(id string) *domain.Contract {
	c := &domain.Contract{
		ID:              id,
		NumeroBL:        in.NumeroBL,
		EntrepriseID:    in.EntrepriseID,
		TruckID:         in.TruckID,
		DriverID:        in.DriverID,
		ClientID:        in.ClientID,
		TransitaireID:   in.TransitaireID,
		ContainerID:     in.ContainerID,
		LieuChargement:  in.LieuChargement,
		Destinataire:    in.Destinataire,
		MontantTotal:    in.MontantTotal,
		AvanceTransport: in.AvanceTransport,
		Caution:         in.Caution,
		DateDebut:       in.DateDebut,
		Commentaire:     in.Commentaire,
	}
	if in.DateLimiteRetour != nil {
		c.DateLimiteRetour = *in.DateLimiteRetour
	}
	return c
}

// apply copies the set fields onto c and returns the old/new pairs.
func (in UpdateContractInput) apply(c *domain.Contract) map[string]interface{} {
	changes := map[string]interface{}{}
	setString := func(key string, dst *string, v *string) {
		if v != nil && *v != *dst {
			changes[key] = map[string]interface{}{"ancien": *dst, "nouveau": *v}
			*dst = *v
		}
	}
	setAmount := func(key string, dst *decimal.Decimal, v *decimal.Decimal) {
		if v != nil && !v.Equal(*dst) {
			changes[key] = map[string]interface{}{"ancien": dst.String(), "nouveau": v.String()}
			*dst = *v
		}
	}

	setString("camion_id", &c.TruckID, in.TruckID)
	setString("chauffeur_id", &c.DriverID, in.DriverID)
	setString("destinataire", &c.Destinataire, in.Destinataire)
	setString("lieu_chargement", &c.LieuChargement, in.LieuChargement)
	setString("commentaire", &c.Commentaire, in.Commentaire)
	setAmount("montant_total", &c.MontantTotal, in.MontantTotal)
	setAmount("avance_transport", &c.AvanceTransport, in.AvanceTransport)
	setAmount("caution", &c.Caution, in.Caution)
	if in.DateLimiteRetour != nil {
		d := domain.Date(*in.DateLimiteRetour)
		if !d.Equal(c.DateLimiteRetour) {
			changes["date_limite_retour"] = map[string]interface{}{
				"ancien":  c.DateLimiteRetour.Format(time.DateOnly),
				"nouveau": d.Format(time.DateOnly),
			}
			c.DateLimiteRetour = d
		}
	}
	return changes
}
