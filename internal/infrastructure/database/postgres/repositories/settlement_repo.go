package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/turtacn/TransitLedger/internal/domain/settlement"
	"github.com/turtacn/TransitLedger/internal/infrastructure/database/postgres"
	"github.com/turtacn/TransitLedger/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/TransitLedger/pkg/errors"
)

const blUniqueConstraint = "contrats_numero_bl_key"

type postgresSettlementRepo struct {
	conn     *postgres.Connection
	log      logging.Logger
	executor queryExecutor
	inTx     bool
}

// NewPostgresSettlementRepo returns the Postgres implementation of
// settlement.Repository.
func NewPostgresSettlementRepo(conn *postgres.Connection, log logging.Logger) settlement.Repository {
	return &postgresSettlementRepo{
		conn:     conn,
		log:      log,
		executor: conn.DB(),
	}
}

// WithTx runs fn inside a transaction. A repository that is already bound to a
// transaction runs fn directly so services can compose.
func (r *postgresSettlementRepo) WithTx(ctx context.Context, fn func(settlement.Repository) error) error {
	if r.inTx {
		return fn(r)
	}

	tx, err := r.conn.DB().BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to begin transaction")
	}

	txRepo := &postgresSettlementRepo{
		conn:     r.conn,
		log:      r.log,
		executor: tx,
		inTx:     true,
	}

	if err := fn(txRepo); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.log.Error("transaction rollback failed", logging.Err(rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to commit transaction")
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Contract
// ─────────────────────────────────────────────────────────────────────────────

const contractColumns = `id, numero_bl, entreprise_id, camion_id, chauffeur_id, client_id, transitaire_id,
	conteneur_id, lieu_chargement, destinataire, montant_total, avance_transport, reliquat_transport,
	caution, statut_caution, date_debut, date_limite_retour, statut, commentaire, created_at, updated_at`

func (r *postgresSettlementRepo) CreateContract(ctx context.Context, c *settlement.Contract) error {
	defer logSlow(ctx, r.log, "CreateContract", time.Now())
	query := `
		INSERT INTO contrats (` + contractColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`
	_, err := r.executor.ExecContext(ctx, query,
		c.ID, c.NumeroBL, c.EntrepriseID, c.TruckID, c.DriverID, c.ClientID, c.TransitaireID,
		c.ContainerID, c.LieuChargement, c.Destinataire, c.MontantTotal, c.AvanceTransport, c.ReliquatTransport,
		c.Caution, string(c.CautionHold), c.DateDebut, c.DateLimiteRetour, string(c.Statut), c.Commentaire,
		c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			if constraint == blUniqueConstraint {
				return apperrors.Wrap(err, apperrors.ErrCodeDuplicateBL, "Un contrat avec ce numéro de BL existe déjà").
					WithField("numero_bl", c.NumeroBL)
			}
			return apperrors.Wrap(err, apperrors.ErrCodeDuplicateBL, "violation d'intégrité")
		}
		return apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to create contract")
	}
	return nil
}

func (r *postgresSettlementRepo) UpdateContract(ctx context.Context, c *settlement.Contract) error {
	query := `
		UPDATE contrats SET
			numero_bl = $2, camion_id = $3, chauffeur_id = $4, client_id = $5, transitaire_id = $6,
			conteneur_id = $7, lieu_chargement = $8, destinataire = $9, montant_total = $10,
			avance_transport = $11, reliquat_transport = $12, caution = $13, statut_caution = $14,
			date_debut = $15, date_limite_retour = $16, statut = $17, commentaire = $18, updated_at = $19
		WHERE id = $1
	`
	res, err := r.executor.ExecContext(ctx, query,
		c.ID, c.NumeroBL, c.TruckID, c.DriverID, c.ClientID, c.TransitaireID,
		c.ContainerID, c.LieuChargement, c.Destinataire, c.MontantTotal,
		c.AvanceTransport, c.ReliquatTransport, c.Caution, string(c.CautionHold),
		c.DateDebut, c.DateLimiteRetour, string(c.Statut), c.Commentaire, c.UpdatedAt,
	)
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return apperrors.Wrap(err, apperrors.ErrCodeDuplicateBL, "Un contrat avec ce numéro de BL existe déjà")
		}
		return apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to update contract")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return contractNotFound(c.ID)
	}
	return nil
}

func (r *postgresSettlementRepo) GetContract(ctx context.Context, id string) (*settlement.Contract, error) {
	query := `SELECT ` + contractColumns + ` FROM contrats WHERE id = $1`
	c, err := scanContract(r.executor.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contractNotFound(id)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to get contract")
	}
	return c, nil
}

func (r *postgresSettlementRepo) DeleteContract(ctx context.Context, id string) error {
	res, err := r.executor.ExecContext(ctx, `DELETE FROM contrats WHERE id = $1`, id)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to delete contract")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return contractNotFound(id)
	}
	return nil
}

func (r *postgresSettlementRepo) CountContractDependents(ctx context.Context, id string) (settlement.ContractDependents, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM missions WHERE contrat_id = $1),
			(SELECT COUNT(*) FROM cautions WHERE contrat_id = $1)
	`
	var d settlement.ContractDependents
	if err := r.executor.QueryRowContext(ctx, query, id).Scan(&d.Missions, &d.Cautions); err != nil {
		return d, apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to count contract dependents")
	}
	return d, nil
}

func scanContract(row scanner) (*settlement.Contract, error) {
	c := &settlement.Contract{}
	var hold, status string
	err := row.Scan(
		&c.ID, &c.NumeroBL, &c.EntrepriseID, &c.TruckID, &c.DriverID, &c.ClientID, &c.TransitaireID,
		&c.ContainerID, &c.LieuChargement, &c.Destinataire, &c.MontantTotal, &c.AvanceTransport,
		&c.ReliquatTransport, &c.Caution, &hold, &c.DateDebut, &c.DateLimiteRetour, &status,
		&c.Commentaire, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.CautionHold = settlement.CautionHold(hold)
	c.Statut = settlement.ContractStatus(status)
	c.DateDebut = settlement.Date(c.DateDebut)
	c.DateLimiteRetour = settlement.Date(c.DateLimiteRetour)
	return c, nil
}

func contractNotFound(id string) error {
	return apperrors.New(apperrors.ErrCodeContractNotFound, "Contrat introuvable").WithDetail("id=" + id)
}

// ─────────────────────────────────────────────────────────────────────────────
// Prestation
// ─────────────────────────────────────────────────────────────────────────────

func (r *postgresSettlementRepo) CreatePrestation(ctx context.Context, p *settlement.Prestation) error {
	query := `
		INSERT INTO prestations (id, contrat_id, camion_id, client_id, transitaire_id,
			prix_transport, avance, caution, solde, date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.executor.ExecContext(ctx, query,
		p.ID, p.ContractID, p.TruckID, p.ClientID, p.TransitaireID,
		p.PrixTransport, p.Avance, p.Caution, p.Solde, p.Date,
	)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to create prestation")
	}
	return nil
}

func (r *postgresSettlementRepo) ListPrestationsByContract(ctx context.Context, contractID string) ([]*settlement.Prestation, error) {
	query := `
		SELECT id, contrat_id, camion_id, client_id, transitaire_id, prix_transport, avance, caution, solde, date
		FROM prestations WHERE contrat_id = $1 ORDER BY date, id
	`
	rows, err := r.executor.QueryContext(ctx, query, contractID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to list prestations")
	}
	defer rows.Close()

	var out []*settlement.Prestation
	for rows.Next() {
		p := &settlement.Prestation{}
		if err := rows.Scan(&p.ID, &p.ContractID, &p.TruckID, &p.ClientID, &p.TransitaireID,
			&p.PrixTransport, &p.Avance, &p.Caution, &p.Solde, &p.Date); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to scan prestation")
		}
		p.Date = settlement.Date(p.Date)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to iterate prestations")
	}
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Resources
// ─────────────────────────────────────────────────────────────────────────────

func (r *postgresSettlementRepo) LockTruck(ctx context.Context, id string) (*settlement.Truck, error) {
	query := `SELECT id, entreprise_id, immatriculation, modele FROM camions WHERE id = $1 FOR UPDATE`
	t := &settlement.Truck{}
	err := r.executor.QueryRowContext(ctx, query, id).Scan(&t.ID, &t.EntrepriseID, &t.Immatriculation, &t.Modele)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("Camion introuvable").WithField("camion", id)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to lock truck")
	}
	return t, nil
}

func (r *postgresSettlementRepo) LockDriver(ctx context.Context, id string) (*settlement.Driver, error) {
	query := `SELECT id, nom, prenom, telephone FROM chauffeurs WHERE id = $1 FOR UPDATE`
	d := &settlement.Driver{}
	err := r.executor.QueryRowContext(ctx, query, id).Scan(&d.ID, &d.Nom, &d.Prenom, &d.Telephone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("Chauffeur introuvable").WithField("chauffeur", id)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to lock driver")
	}
	return d, nil
}

func (r *postgresSettlementRepo) GetTransitaire(ctx context.Context, id string) (*settlement.Transitaire, error) {
	query := `SELECT id, nom, commission_percentage FROM transitaires WHERE id = $1`
	t := &settlement.Transitaire{}
	err := r.executor.QueryRowContext(ctx, query, id).Scan(&t.ID, &t.Nom, &t.CommissionPercentage)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("Transitaire introuvable").WithField("transitaire", id)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to get transitaire")
	}
	return t, nil
}

func (r *postgresSettlementRepo) GetContainer(ctx context.Context, id string) (*settlement.Container, error) {
	query := `SELECT id, numero_conteneur, statut FROM conteneurs WHERE id = $1`
	c := &settlement.Container{}
	var status string
	err := r.executor.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.NumeroConteneur, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("Conteneur introuvable").WithField("conteneur", id)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to get container")
	}
	c.Statut = settlement.ContainerStatus(status)
	return c, nil
}

func (r *postgresSettlementRepo) UpdateContainer(ctx context.Context, c *settlement.Container) error {
	_, err := r.executor.ExecContext(ctx, `UPDATE conteneurs SET statut = $2 WHERE id = $1`, c.ID, string(c.Statut))
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to update container")
	}
	return nil
}
