package settlement

import "time"

// NotificationType identifies a user-facing notification.
type NotificationType string

const (
	NotifyMissionEnRetard NotificationType = "mission_en_retard"
	NotifyMissionTerminee NotificationType = "mission_terminee"
	NotifyMissionAnnulee  NotificationType = "mission_annulee"
	NotifyContratAnnule   NotificationType = "contrat_annule"
	NotifyPaiementValide  NotificationType = "paiement_valide"
	NotifyCautionBloquee  NotificationType = "caution_bloquee"
)

// Notification is published to the notification topic.
type Notification struct {
	Type         NotificationType       `json:"type"`
	Title        string                 `json:"title"`
	Message      string                 `json:"message"`
	EntityType   EntityType             `json:"entity_type"`
	EntityID     string                 `json:"entity_id"`
	EntrepriseID string                 `json:"entreprise_id,omitempty"`
	Data         map[string]interface{} `json:"data,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}
