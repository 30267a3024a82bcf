package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/turtacn/TransitLedger/internal/domain/settlement"
	apperrors "github.com/turtacn/TransitLedger/pkg/errors"
)

const missionColumns = `m.id, m.contrat_id, m.prestation_id, m.date_depart, m.date_retour, m.origine,
	m.destination, m.itineraire, m.statut, m.date_arrivee, m.date_dechargement, m.statut_stationnement,
	m.jours_stationnement_facturables, m.montant_stationnement, m.created_at, m.updated_at`

func (r *postgresSettlementRepo) CreateMission(ctx context.Context, m *settlement.Mission) error {
	query := `
		INSERT INTO missions (id, contrat_id, prestation_id, date_depart, date_retour, origine, destination,
			itineraire, statut, date_arrivee, date_dechargement, statut_stationnement,
			jours_stationnement_facturables, montant_stationnement, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err := r.executor.ExecContext(ctx, query,
		m.ID, m.ContractID, nullString(m.PrestationID), m.DateDepart, nullTime(m.DateRetour), m.Origine,
		m.Destination, m.Itineraire, string(m.Statut), nullTime(m.DateArrivee), nullTime(m.DateDechargement),
		string(m.StatutStationnement), m.JoursStationnementFacturables, m.MontantStationnement,
		m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to create mission")
	}
	return nil
}

func (r *postgresSettlementRepo) UpdateMission(ctx context.Context, m *settlement.Mission) error {
	query := `
		UPDATE missions SET
			date_depart = $2, date_retour = $3, origine = $4, destination = $5, itineraire = $6,
			statut = $7, date_arrivee = $8, date_dechargement = $9, statut_stationnement = $10,
			jours_stationnement_facturables = $11, montant_stationnement = $12, updated_at = $13
		WHERE id = $1
	`
	res, err := r.executor.ExecContext(ctx, query,
		m.ID, m.DateDepart, nullTime(m.DateRetour), m.Origine, m.Destination, m.Itineraire,
		string(m.Statut), nullTime(m.DateArrivee), nullTime(m.DateDechargement), string(m.StatutStationnement),
		m.JoursStationnementFacturables, m.MontantStationnement, m.UpdatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to update mission")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return missionNotFound(m.ID)
	}
	return nil
}

func (r *postgresSettlementRepo) GetMission(ctx context.Context, id string) (*settlement.Mission, error) {
	query := `SELECT ` + missionColumns + ` FROM missions m WHERE m.id = $1`
	m, err := scanMission(r.executor.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, missionNotFound(id)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to get mission")
	}
	return m, nil
}

func (r *postgresSettlementRepo) ListMissionsByContract(ctx context.Context, contractID string) ([]*settlement.Mission, error) {
	query := `SELECT ` + missionColumns + ` FROM missions m WHERE m.contrat_id = $1 ORDER BY m.created_at, m.id`
	return r.queryMissions(ctx, "failed to list missions", query, contractID)
}

// FindActiveMissionForTruck returns an en_cours mission whose contract uses
// truckID, ignoring excludeContractID. It returns (nil, nil) when none.
func (r *postgresSettlementRepo) FindActiveMissionForTruck(ctx context.Context, truckID, excludeContractID string) (*settlement.Mission, error) {
	return r.findActiveMission(ctx, "c.camion_id", truckID, excludeContractID)
}

// FindActiveMissionForDriver is FindActiveMissionForTruck for drivers.
func (r *postgresSettlementRepo) FindActiveMissionForDriver(ctx context.Context, driverID, excludeContractID string) (*settlement.Mission, error) {
	return r.findActiveMission(ctx, "c.chauffeur_id", driverID, excludeContractID)
}

func (r *postgresSettlementRepo) findActiveMission(ctx context.Context, column, resourceID, excludeContractID string) (*settlement.Mission, error) {
	query := `
		SELECT ` + missionColumns + `
		FROM missions m JOIN contrats c ON c.id = m.contrat_id
		WHERE ` + column + ` = $1 AND m.statut = 'en_cours' AND ($2 = '' OR m.contrat_id <> $2)
		ORDER BY m.created_at
		LIMIT 1
	`
	m, err := scanMission(r.executor.QueryRowContext(ctx, query, resourceID, excludeContractID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to look up active mission")
	}
	return m, nil
}

// ListOverdueMissions returns en_cours missions whose contract deadline is
// strictly before day.
func (r *postgresSettlementRepo) ListOverdueMissions(ctx context.Context, day time.Time, limit int) ([]*settlement.OverdueMission, error) {
	defer logSlow(ctx, r.log, "ListOverdueMissions", time.Now())
	query := `
		SELECT ` + missionColumns + `, c.numero_bl, c.entreprise_id, c.date_limite_retour
		FROM missions m JOIN contrats c ON c.id = m.contrat_id
		WHERE m.statut = 'en_cours' AND c.date_limite_retour < $1
		ORDER BY c.date_limite_retour, m.id
		LIMIT $2
	`
	rows, err := r.executor.QueryContext(ctx, query, day, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to list overdue missions")
	}
	defer rows.Close()

	var out []*settlement.OverdueMission
	for rows.Next() {
		o := &settlement.OverdueMission{}
		m, err := scanMission(rows, &o.NumeroBL, &o.EntrepriseID, &o.DateLimiteRetour)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to scan overdue mission")
		}
		o.Mission = m
		o.DateLimiteRetour = settlement.Date(o.DateLimiteRetour)
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to iterate overdue missions")
	}
	return out, nil
}

func (r *postgresSettlementRepo) queryMissions(ctx context.Context, failMsg, query string, args ...interface{}) ([]*settlement.Mission, error) {
	rows, err := r.executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, failMsg)
	}
	defer rows.Close()

	var out []*settlement.Mission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to scan mission")
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, failMsg)
	}
	return out, nil
}

// scanMission scans the mission columns followed by any extra destinations.
func scanMission(row scanner, extra ...interface{}) (*settlement.Mission, error) {
	m := &settlement.Mission{}
	var (
		prestationID                  sql.NullString
		retour, arrivee, dechargement sql.NullTime
		status, stationnement         string
	)
	dest := []interface{}{
		&m.ID, &m.ContractID, &prestationID, &m.DateDepart, &retour, &m.Origine,
		&m.Destination, &m.Itineraire, &status, &arrivee, &dechargement, &stationnement,
		&m.JoursStationnementFacturables, &m.MontantStationnement, &m.CreatedAt, &m.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	m.PrestationID = prestationID.String
	m.DateDepart = settlement.Date(m.DateDepart)
	m.DateRetour = timePtr(retour)
	m.DateArrivee = timePtr(arrivee)
	m.DateDechargement = timePtr(dechargement)
	m.Statut = settlement.MissionStatus(status)
	m.StatutStationnement = settlement.StationnementStatus(stationnement)
	return m, nil
}

func missionNotFound(id string) error {
	return apperrors.New(apperrors.ErrCodeMissionNotFound, "Mission introuvable").WithDetail("id=" + id)
}
