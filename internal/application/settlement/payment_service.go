package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/turtacn/TransitLedger/internal/domain/settlement"
	"github.com/turtacn/TransitLedger/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TransitLedger/internal/infrastructure/monitoring/prometheus"
	apperrors "github.com/turtacn/TransitLedger/pkg/errors"
)

// PaymentService validates payments and settles cautions.
type PaymentService interface {
	GetPayment(ctx context.Context, id string) (*domain.Payment, error)
	GetCaution(ctx context.Context, id string) (*domain.Caution, error)

	// ValidatePayment approves a payment once its mission is finished and its
	// caution is refunded or consumed. The caution is read, never written.
	ValidatePayment(ctx context.Context, id string, meta domain.RequestMeta) (*domain.Payment, error)

	// RefundCaution marks a caution refunded for amount.
	RefundCaution(ctx context.Context, id string, amount decimal.Decimal, meta domain.RequestMeta) (*domain.Caution, error)

	// ConsumeCaution marks a caution kept to cover costs.
	ConsumeCaution(ctx context.Context, id string, meta domain.RequestMeta) (*domain.Caution, error)

	// MarkCautionNotRefunded records that a caution will not be returned.
	MarkCautionNotRefunded(ctx context.Context, id string, meta domain.RequestMeta) (*domain.Caution, error)
}

type paymentServiceImpl struct {
	base
}

// NewPaymentService constructs a PaymentService.
func NewPaymentService(d Deps) PaymentService {
	return &paymentServiceImpl{base: newBase(d, "payments")}
}

func (s *paymentServiceImpl) GetPayment(ctx context.Context, id string) (*domain.Payment, error) {
	if id == "" {
		return nil, apperrors.InvalidParam("payment id is required")
	}
	return s.repo.GetPayment(ctx, id)
}

func (s *paymentServiceImpl) GetCaution(ctx context.Context, id string) (*domain.Caution, error) {
	if id == "" {
		return nil, apperrors.InvalidParam("caution id is required")
	}
	return s.repo.GetCaution(ctx, id)
}

func (s *paymentServiceImpl) ValidatePayment(ctx context.Context, id string, meta domain.RequestMeta) (p *domain.Payment, err error) {
	timer := prometheus.StartOperation(s.metrics, "payment.validate")
	defer func() { timer.Stop(err) }()

	fx := &effects{}
	now := s.now()
	err = s.repo.WithTx(ctx, func(tx domain.Repository) error {
		payment, err := tx.GetPayment(ctx, id)
		if err != nil {
			return err
		}
		m, err := tx.GetMission(ctx, payment.MissionID)
		if err != nil {
			return err
		}
		var caution *domain.Caution
		if payment.CautionID != "" {
			if caution, err = tx.GetCaution(ctx, payment.CautionID); err != nil {
				return err
			}
		}

		if err := payment.Approve(m, caution, now); err != nil {
			return err
		}
		if err := payment.Validate(); err != nil {
			return err
		}
		if err := tx.UpdatePayment(ctx, payment); err != nil {
			return err
		}
		if err := appendEvents(ctx, tx, meta.ActorOrSystem(), payment); err != nil {
			return err
		}
		p = payment

		c, err := tx.GetContract(ctx, m.ContractID)
		if err != nil {
			return err
		}
		fx.notify(domain.Notification{
			Type:  domain.NotifyPaiementValide,
			Title: "Paiement validé",
			Message: fmt.Sprintf("Le paiement de %s du contrat %s a été validé",
				domain.FCFA(payment.MontantTotal), c.NumeroBL),
			EntityType:   domain.EntityPayment,
			EntityID:     payment.ID,
			EntrepriseID: c.EntrepriseID,
			Data: map[string]interface{}{
				"mission_id":          m.ID,
				"montant_total":       payment.MontantTotal.String(),
				"frais_stationnement": payment.FraisStationnement.String(),
			},
			CreatedAt: now,
		})

		changes := map[string]interface{}{
			"montant_total":          payment.MontantTotal.String(),
			"commission_transitaire": payment.CommissionTransitaire.String(),
			"frais_stationnement":    payment.FraisStationnement.String(),
		}
		if snap := payment.CautionSnapshot; snap != nil {
			changes["caution_snapshot"] = map[string]interface{}{
				"statut":             string(snap.Statut),
				"montant":            snap.Montant.String(),
				"montant_rembourser": snap.MontantRembourser.String(),
			}
		}
		return s.audit(ctx, tx, fx, meta, domain.AuditValiderPaiement, domain.EntityPayment, payment.ID, c.NumeroBL, changes)
	})
	if err != nil {
		if apperrors.IsValidation(err) {
			s.logger.Info("payment validation refused", logging.String("payment_id", id), logging.Err(err))
		}
		return nil, err
	}

	s.flush(ctx, fx)
	s.logger.Info("payment validated", logging.String("payment_id", p.ID), logging.String("mission_id", p.MissionID))
	return p, nil
}

func (s *paymentServiceImpl) RefundCaution(ctx context.Context, id string, amount decimal.Decimal, meta domain.RequestMeta) (*domain.Caution, error) {
	return s.settleCaution(ctx, "caution.refund", id, meta, func(c *domain.Caution, now time.Time) error {
		return c.Refund(amount, now)
	})
}

func (s *paymentServiceImpl) ConsumeCaution(ctx context.Context, id string, meta domain.RequestMeta) (*domain.Caution, error) {
	return s.settleCaution(ctx, "caution.consume", id, meta, func(c *domain.Caution, now time.Time) error {
		return c.Consume(now)
	})
}

func (s *paymentServiceImpl) MarkCautionNotRefunded(ctx context.Context, id string, meta domain.RequestMeta) (*domain.Caution, error) {
	return s.settleCaution(ctx, "caution.not_refunded", id, meta, func(c *domain.Caution, now time.Time) error {
		return c.MarkNotRefunded(now)
	})
}

func (s *paymentServiceImpl) settleCaution(ctx context.Context, op, id string, meta domain.RequestMeta,
	mutate func(*domain.Caution, time.Time) error) (c *domain.Caution, err error) {
	timer := prometheus.StartOperation(s.metrics, op)
	defer func() { timer.Stop(err) }()

	fx := &effects{}
	err = s.repo.WithTx(ctx, func(tx domain.Repository) error {
		caution, err := tx.GetCaution(ctx, id)
		if err != nil {
			return err
		}
		from := caution.Statut
		if err := mutate(caution, s.now()); err != nil {
			return err
		}
		if err := caution.Validate(); err != nil {
			return err
		}
		if err := tx.UpdateCaution(ctx, caution); err != nil {
			return err
		}
		if err := appendEvents(ctx, tx, meta.ActorOrSystem(), caution); err != nil {
			return err
		}
		c = caution
		return s.audit(ctx, tx, fx, meta, domain.AuditUpdate, domain.EntityCaution, caution.ID, domain.FCFA(caution.Montant),
			map[string]interface{}{
				"statut":             map[string]interface{}{"ancien": string(from), "nouveau": string(caution.Statut)},
				"montant_rembourser": caution.MontantRembourser.String(),
			})
	})
	if err != nil {
		return nil, err
	}

	s.flush(ctx, fx)
	s.logger.Info("caution updated", logging.String("caution_id", c.ID), logging.String("statut", string(c.Statut)))
	return c, nil
}
