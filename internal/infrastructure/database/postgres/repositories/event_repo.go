package repositories

import (
	"context"
	"encoding/json"

	"github.com/turtacn/TransitLedger/internal/domain/settlement"
	apperrors "github.com/turtacn/TransitLedger/pkg/errors"
)

// AppendEvents inserts events in order. The log is append-only.
func (r *postgresSettlementRepo) AppendEvents(ctx context.Context, events []*settlement.Event) error {
	query := `
		INSERT INTO settlement_events (id, entity_type, entity_id, event_type, payload, actor, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for _, e := range events {
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeSerialization, "failed to encode event payload")
		}
		if e.Payload == nil {
			payload = []byte("{}")
		}
		if _, err := r.executor.ExecContext(ctx, query,
			e.ID, string(e.EntityType), e.EntityID(), string(e.EventType), payload, e.Actor, e.Timestamp,
		); err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to append settlement event")
		}
	}
	return nil
}

func (r *postgresSettlementRepo) ListEvents(ctx context.Context, entityType settlement.EntityType, entityID string) ([]*settlement.Event, error) {
	query := `
		SELECT id, entity_type, entity_id, event_type, payload, actor, occurred_at
		FROM settlement_events
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY occurred_at, id
	`
	rows, err := r.executor.QueryContext(ctx, query, string(entityType), entityID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to list settlement events")
	}
	defer rows.Close()

	var out []*settlement.Event
	for rows.Next() {
		e := &settlement.Event{}
		var typ, evt string
		var payload []byte
		if err := rows.Scan(&e.ID, &typ, &e.AggID, &evt, &payload, &e.Actor, &e.Timestamp); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to scan settlement event")
		}
		e.EntityType = settlement.EntityType(typ)
		e.EventType = settlement.EventType(evt)
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &e.Payload); err != nil {
				return nil, apperrors.Wrap(err, apperrors.ErrCodeSerialization, "failed to decode event payload")
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to iterate settlement events")
	}
	return out, nil
}

func (r *postgresSettlementRepo) CreateAuditRecord(ctx context.Context, rec *settlement.AuditRecord) error {
	changes, err := marshalJSON(rec.Changes)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeSerialization, "failed to encode audit changes")
	}
	query := `
		INSERT INTO audit_logs (id, actor, action, entity_type, entity_id, representation, changes,
			ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = r.executor.ExecContext(ctx, query,
		rec.ID, rec.Actor, string(rec.Action), string(rec.EntityType), rec.EntityID, rec.Representation,
		changes, rec.IPAddress, rec.UserAgent, rec.Timestamp,
	)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to create audit record")
	}
	return nil
}
