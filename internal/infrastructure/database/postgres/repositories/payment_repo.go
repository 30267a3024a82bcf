package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/turtacn/TransitLedger/internal/domain/settlement"
	apperrors "github.com/turtacn/TransitLedger/pkg/errors"
)

const paymentColumns = `id, mission_id, caution_id, prestation_id, montant_total, commission_transitaire,
	frais_stationnement, caution_est_retiree, date_paiement, mode_paiement, observation, est_valide,
	date_validation, statut_paiement, caution_snapshot, created_at, updated_at`

func (r *postgresSettlementRepo) CreatePayment(ctx context.Context, p *settlement.Payment) error {
	snapshot, err := snapshotJSON(p.CautionSnapshot)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO paiements (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err = r.executor.ExecContext(ctx, query,
		p.ID, p.MissionID, nullString(p.CautionID), nullString(p.PrestationID), p.MontantTotal,
		p.CommissionTransitaire, p.FraisStationnement, p.CautionEstRetiree, p.DatePaiement, p.ModePaiement,
		p.Observation, p.EstValide, nullTime(p.DateValidation), string(p.StatutPaiement), snapshot,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to create payment")
	}
	return nil
}

func (r *postgresSettlementRepo) UpdatePayment(ctx context.Context, p *settlement.Payment) error {
	snapshot, err := snapshotJSON(p.CautionSnapshot)
	if err != nil {
		return err
	}
	query := `
		UPDATE paiements SET
			montant_total = $2, commission_transitaire = $3, frais_stationnement = $4,
			caution_est_retiree = $5, mode_paiement = $6, observation = $7, est_valide = $8,
			date_validation = $9, statut_paiement = $10, caution_snapshot = $11, updated_at = $12
		WHERE id = $1
	`
	res, err := r.executor.ExecContext(ctx, query,
		p.ID, p.MontantTotal, p.CommissionTransitaire, p.FraisStationnement,
		p.CautionEstRetiree, p.ModePaiement, p.Observation, p.EstValide,
		nullTime(p.DateValidation), string(p.StatutPaiement), snapshot, p.UpdatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to update payment")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return paymentNotFound(p.ID)
	}
	return nil
}

func (r *postgresSettlementRepo) GetPayment(ctx context.Context, id string) (*settlement.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM paiements WHERE id = $1`
	p, err := scanPayment(r.executor.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, paymentNotFound(id)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to get payment")
	}
	return p, nil
}

func (r *postgresSettlementRepo) ListPaymentsByMission(ctx context.Context, missionID string) ([]*settlement.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM paiements WHERE mission_id = $1 ORDER BY created_at, id`
	rows, err := r.executor.QueryContext(ctx, query, missionID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to list payments")
	}
	defer rows.Close()

	var out []*settlement.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to scan payment")
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to iterate payments")
	}
	return out, nil
}

func scanPayment(row scanner) (*settlement.Payment, error) {
	p := &settlement.Payment{}
	var (
		cautionID, prestationID sql.NullString
		validation              sql.NullTime
		status                  string
		snapshot                []byte
	)
	err := row.Scan(
		&p.ID, &p.MissionID, &cautionID, &prestationID, &p.MontantTotal, &p.CommissionTransitaire,
		&p.FraisStationnement, &p.CautionEstRetiree, &p.DatePaiement, &p.ModePaiement, &p.Observation,
		&p.EstValide, &validation, &status, &snapshot, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.CautionID = cautionID.String
	p.PrestationID = prestationID.String
	p.DateValidation = timePtr(validation)
	p.StatutPaiement = settlement.PaymentStatus(status)
	if len(snapshot) > 0 {
		p.CautionSnapshot = &settlement.CautionSnapshot{}
		if err := json.Unmarshal(snapshot, p.CautionSnapshot); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func snapshotJSON(s *settlement.CautionSnapshot) ([]byte, error) {
	if s == nil {
		return nil, nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeSerialization, "failed to encode caution snapshot")
	}
	return b, nil
}

func paymentNotFound(id string) error {
	return apperrors.New(apperrors.ErrCodePaymentNotFound, "Paiement introuvable").WithDetail("id=" + id)
}
