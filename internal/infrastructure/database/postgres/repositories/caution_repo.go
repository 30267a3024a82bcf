package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/turtacn/TransitLedger/internal/domain/settlement"
	apperrors "github.com/turtacn/TransitLedger/pkg/errors"
)

const cautionColumns = `id, contrat_id, conteneur_id, transitaire_id, client_id, chauffeur_id, camion_id,
	montant, statut, montant_rembourser, created_at, updated_at`

func (r *postgresSettlementRepo) CreateCaution(ctx context.Context, c *settlement.Caution) error {
	query := `
		INSERT INTO cautions (` + cautionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.executor.ExecContext(ctx, query,
		c.ID, c.ContractID, c.ContainerID, c.TransitaireID, c.ClientID, c.DriverID, c.TruckID,
		c.Montant, string(c.Statut), c.MontantRembourser, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to create caution")
	}
	return nil
}

func (r *postgresSettlementRepo) UpdateCaution(ctx context.Context, c *settlement.Caution) error {
	query := `
		UPDATE cautions SET montant = $2, statut = $3, montant_rembourser = $4, updated_at = $5
		WHERE id = $1
	`
	res, err := r.executor.ExecContext(ctx, query, c.ID, c.Montant, string(c.Statut), c.MontantRembourser, c.UpdatedAt)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to update caution")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return cautionNotFound(c.ID)
	}
	return nil
}

func (r *postgresSettlementRepo) GetCaution(ctx context.Context, id string) (*settlement.Caution, error) {
	query := `SELECT ` + cautionColumns + ` FROM cautions WHERE id = $1`
	c, err := scanCaution(r.executor.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cautionNotFound(id)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to get caution")
	}
	return c, nil
}

func (r *postgresSettlementRepo) ListCautionsByContract(ctx context.Context, contractID string) ([]*settlement.Caution, error) {
	query := `SELECT ` + cautionColumns + ` FROM cautions WHERE contrat_id = $1 ORDER BY created_at, id`
	rows, err := r.executor.QueryContext(ctx, query, contractID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to list cautions")
	}
	defer rows.Close()

	var out []*settlement.Caution
	for rows.Next() {
		c, err := scanCaution(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to scan caution")
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to iterate cautions")
	}
	return out, nil
}

func scanCaution(row scanner) (*settlement.Caution, error) {
	c := &settlement.Caution{}
	var status string
	err := row.Scan(
		&c.ID, &c.ContractID, &c.ContainerID, &c.TransitaireID, &c.ClientID, &c.DriverID, &c.TruckID,
		&c.Montant, &status, &c.MontantRembourser, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Statut = settlement.CautionStatus(status)
	return c, nil
}

func cautionNotFound(id string) error {
	return apperrors.New(apperrors.ErrCodeCautionNotFound, "Caution introuvable").WithDetail("id=" + id)
}
