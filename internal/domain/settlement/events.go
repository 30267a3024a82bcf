package settlement

import (
	"time"

	"github.com/turtacn/TransitLedger/pkg/types/common"
)

// EntityType names the aggregate an event or audit record belongs to.
type EntityType string

const (
	EntityContract   EntityType = "contrat"
	EntityMission    EntityType = "mission"
	EntityCaution    EntityType = "caution"
	EntityPayment    EntityType = "paiement"
	EntityPrestation EntityType = "prestation"
	EntityUser       EntityType = "utilisateur"
)

// EventType identifies a settlement event in the append-only log.
type EventType string

const (
	EventContractCreated         EventType = "contrat_cree"
	EventContractCancelled       EventType = "contrat_annule"
	EventContractMissionAnnulled EventType = "mission_annulee_note"
	EventCautionBlocked          EventType = "caution_bloquee"
	EventCautionReleased         EventType = "caution_debloquee"

	EventMissionCreated       EventType = "mission_creee"
	EventMissionTerminated    EventType = "mission_terminee"
	EventMissionCancelled     EventType = "mission_annulee"
	EventDepartureAdjusted    EventType = "date_depart_ajustee"
	EventArrivalRecorded      EventType = "arrivee_enregistree"
	EventUnloadingRecorded    EventType = "dechargement_enregistre"
	EventCautionCreated       EventType = "caution_creee"
	EventCautionRefunded      EventType = "caution_remboursee"
	EventCautionConsumed      EventType = "caution_consommee"
	EventCautionNotRefunded   EventType = "caution_non_remboursee"
	EventCautionAnnulled      EventType = "caution_annulee"
	EventPaymentCreated       EventType = "paiement_cree"
	EventPaymentCancelled     EventType = "paiement_annule"
	EventCautionSnapshot      EventType = "caution_snapshot"
	EventFraisStationnement   EventType = "frais_stationnement"
	EventPrestationRegistered EventType = "prestation_creee"
)

// Event is one entry of the append-only settlement log. It replaces free-text
// observation fields: each state change an aggregate performs is recorded
// here with a structured payload.
type Event struct {
	common.BaseEvent
	EntityType EntityType             `json:"entity_type"`
	EventType  EventType              `json:"event_type"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	Actor      string                 `json:"actor,omitempty"`
}

var _ common.DomainEvent = (*Event)(nil)

// NewEvent builds an event for the given entity.
func NewEvent(entity EntityType, entityID string, typ EventType, payload map[string]interface{}, at time.Time) *Event {
	return &Event{
		BaseEvent:  common.NewBaseEvent(entityID, at),
		EntityType: entity,
		EventType:  typ,
		Payload:    payload,
	}
}

// EntityID returns the id of the aggregate the event belongs to.
func (e *Event) EntityID() string { return e.AggID }

// journal buffers events raised by an aggregate until the service persists
// them in the same transaction as the aggregate itself.
type journal struct {
	pending []*Event
}

func (j *journal) record(entity EntityType, id string, typ EventType, payload map[string]interface{}, at time.Time) {
	j.pending = append(j.pending, NewEvent(entity, id, typ, payload, at))
}

// PendingEvents returns the buffered events without clearing them.
func (j *journal) PendingEvents() []*Event {
	return j.pending
}

// DrainEvents returns and clears the buffered events.
func (j *journal) DrainEvents() []*Event {
	out := j.pending
	j.pending = nil
	return out
}

// EventSource is implemented by every aggregate that records events.
type EventSource interface {
	DrainEvents() []*Event
}

// Drain collects the pending events of every source, stamping actor on each.
func Drain(actor string, sources ...EventSource) []*Event {
	var out []*Event
	for _, s := range sources {
		if s == nil {
			continue
		}
		for _, e := range s.DrainEvents() {
			e.Actor = actor
			out = append(out, e)
		}
	}
	return out
}
