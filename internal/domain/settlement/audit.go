package settlement

import "time"

// AuditAction is the verb recorded by the audit trail.
type AuditAction string

const (
	AuditCreate           AuditAction = "CREATE"
	AuditUpdate           AuditAction = "UPDATE"
	AuditDelete           AuditAction = "DELETE"
	AuditValiderPaiement  AuditAction = "VALIDER_PAIEMENT"
	AuditTerminerMission  AuditAction = "TERMINER_MISSION"
	AuditAnnulerMission   AuditAction = "ANNULER_MISSION"
	AuditAnnulerContrat   AuditAction = "ANNULER_CONTRAT"
	AuditBloquerCaution   AuditAction = "BLOQUER_CAUTION"
	AuditDebloquerCaution AuditAction = "DEBLOQUER_CAUTION"
	AuditLogin            AuditAction = "LOGIN"
	AuditLogout           AuditAction = "LOGOUT"
	AuditFailedLogin      AuditAction = "FAILED_LOGIN"
	AuditChangePassword   AuditAction = "CHANGE_PASSWORD"
)

// AuditRecord is one entry of the audit trail.
type AuditRecord struct {
	ID             string                 `json:"id"`
	Actor          string                 `json:"actor"`
	Action         AuditAction            `json:"action"`
	EntityType     EntityType             `json:"entity_type"`
	EntityID       string                 `json:"entity_id"`
	Representation string                 `json:"representation"`
	Changes        map[string]interface{} `json:"changes,omitempty"`
	IPAddress      string                 `json:"ip_address,omitempty"`
	UserAgent      string                 `json:"user_agent,omitempty"`
	Timestamp      time.Time              `json:"timestamp"`
}

// RequestMeta identifies who triggered an operation and from where.
type RequestMeta struct {
	Actor     string
	IPAddress string
	UserAgent string
}

// SystemActor is used when no user drives an operation.
const SystemActor = "system"

// ActorOrSystem returns the actor, falling back to SystemActor.
func (r RequestMeta) ActorOrSystem() string {
	if r.Actor == "" {
		return SystemActor
	}
	return r.Actor
}
