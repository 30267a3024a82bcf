package settlement

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/turtacn/TransitLedger/pkg/errors"
)

// ContractStatus is the lifecycle status of a transport contract.
type ContractStatus string

const (
	ContractActif   ContractStatus = "actif"
	ContractTermine ContractStatus = "termine"
	ContractAnnule  ContractStatus = "annule"
)

// CautionHold records whether the contract's deposit is held.
type CautionHold string

const (
	CautionBloquee   CautionHold = "bloquee"
	CautionDebloquee CautionHold = "debloquee"
)

// Contract is a transport contract identified by its bill of lading.
type Contract struct {
	ID                string          `json:"id"`
	NumeroBL          string          `json:"numero_bl"`
	EntrepriseID      string          `json:"entreprise_id"`
	TruckID           string          `json:"camion_id"`
	DriverID          string          `json:"chauffeur_id"`
	ClientID          string          `json:"client_id"`
	TransitaireID     string          `json:"transitaire_id"`
	ContainerID       string          `json:"conteneur_id"`
	LieuChargement    string          `json:"lieu_chargement"`
	Destinataire      string          `json:"destinataire"`
	MontantTotal      decimal.Decimal `json:"montant_total"`
	AvanceTransport   decimal.Decimal `json:"avance_transport"`
	ReliquatTransport decimal.Decimal `json:"reliquat_transport"`
	Caution           decimal.Decimal `json:"caution"`
	CautionHold       CautionHold     `json:"statut_caution"`
	DateDebut         time.Time       `json:"date_debut"`
	DateLimiteRetour  time.Time       `json:"date_limite_retour"`
	Statut            ContractStatus  `json:"statut"`
	Commentaire       string          `json:"commentaire,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`

	journal
}

// Normalize fills derived fields: the default return deadline, the
// reliquat and the initial statuses. It is called before every save.
func (c *Contract) Normalize(p Policy) {
	if !c.DateDebut.IsZero() {
		c.DateDebut = Date(c.DateDebut)
	}
	if c.DateLimiteRetour.IsZero() && !c.DateDebut.IsZero() {
		c.DateLimiteRetour = c.DateDebut.AddDate(0, 0, p.DeadlineDays)
	} else if !c.DateLimiteRetour.IsZero() {
		c.DateLimiteRetour = Date(c.DateLimiteRetour)
	}
	c.ReliquatTransport = c.MontantTotal.Sub(c.AvanceTransport)
	if c.Statut == "" {
		c.Statut = ContractActif
	}
	if c.CautionHold == "" {
		c.CautionHold = CautionBloquee
	}
	if c.LieuChargement == "" {
		c.LieuChargement = "Bamako"
	}
	c.NumeroBL = strings.TrimSpace(c.NumeroBL)
}

// Validate checks every field-level invariant and reports all violations at
// once. Resource availability is checked by the service under lock.
func (c *Contract) Validate() error {
	errs := map[string]string{}

	if c.NumeroBL == "" {
		errs["numero_bl"] = "Le numéro de BL est obligatoire"
	}
	if !isSet(c.TruckID) {
		errs["camion"] = "Le camion est obligatoire"
	}
	if !isSet(c.DriverID) {
		errs["chauffeur"] = "Le chauffeur est obligatoire"
	}
	if !isSet(c.ClientID) {
		errs["client"] = "Le client est obligatoire"
	}
	if !isSet(c.TransitaireID) {
		errs["transitaire"] = "Le transitaire est obligatoire"
	}
	if !isSet(c.ContainerID) {
		errs["conteneur"] = "Le conteneur est obligatoire"
	}
	if !isSet(c.EntrepriseID) {
		errs["entreprise"] = "L'entreprise est obligatoire"
	}
	if c.Destinataire == "" {
		errs["destinataire"] = "Le destinataire est obligatoire"
	}

	if !c.MontantTotal.IsPositive() {
		errs["montant_total"] = "Le montant total doit être supérieur à 0"
	}
	if c.AvanceTransport.IsNegative() {
		errs["avance_transport"] = "L'avance ne peut pas être négative"
	} else if c.AvanceTransport.GreaterThan(c.MontantTotal) {
		errs["avance_transport"] = "L'avance ne peut pas dépasser le montant total"
	}
	if c.Caution.IsNegative() {
		errs["caution"] = "La caution ne peut pas être négative"
	} else if c.Caution.GreaterThan(c.MontantTotal.Mul(MaxCautionRatio)) {
		errs["caution"] = "La caution ne peut pas dépasser 50% du montant total"
	}

	if c.DateDebut.IsZero() {
		errs["date_debut"] = "La date de début est obligatoire"
	} else if c.DateLimiteRetour.Before(c.DateDebut) {
		errs["date_limite_retour"] = "La date limite de retour doit être après la date de début"
	}

	switch c.Statut {
	case ContractActif, ContractTermine, ContractAnnule:
	default:
		errs["statut"] = fmt.Sprintf("Statut de contrat inconnu: %q", c.Statut)
	}
	switch c.CautionHold {
	case CautionBloquee, CautionDebloquee:
	default:
		errs["statut_caution"] = fmt.Sprintf("Statut de caution inconnu: %q", c.CautionHold)
	}

	return apperrors.ValidationFields("Contrat invalide", errs)
}

// MarkCreated records the creation event.
func (c *Contract) MarkCreated(now time.Time) {
	c.CreatedAt, c.UpdatedAt = now, now
	c.record(EntityContract, c.ID, EventContractCreated, map[string]interface{}{
		"numero_bl":     c.NumeroBL,
		"montant_total": c.MontantTotal.String(),
		"caution":       c.Caution.String(),
	}, now)
}

// Cancel annuls the contract. An already annulled contract cannot be
// annulled again.
func (c *Contract) Cancel(reason string, now time.Time) error {
	if c.Statut == ContractAnnule {
		return apperrors.InvalidTransition(fmt.Sprintf("Le contrat %s est déjà annulé", c.NumeroBL))
	}
	from := c.Statut
	c.Statut = ContractAnnule
	c.UpdatedAt = now
	c.record(EntityContract, c.ID, EventContractCancelled, map[string]interface{}{
		"raison":         reason,
		"statut_initial": string(from),
	}, now)
	return nil
}

// Complete marks an active contract as finished once its mission is done.
func (c *Contract) Complete(now time.Time) bool {
	if c.Statut != ContractActif {
		return false
	}
	c.Statut = ContractTermine
	c.UpdatedAt = now
	return true
}

// NoteMissionCancelled appends an annotation event about a cancelled mission.
// The contract status is left unchanged.
func (c *Contract) NoteMissionCancelled(missionID, reason string, now time.Time) {
	c.UpdatedAt = now
	c.record(EntityContract, c.ID, EventContractMissionAnnulled, map[string]interface{}{
		"mission_id": missionID,
		"raison":     reason,
	}, now)
}

// BlockCaution puts the contract deposit on hold.
func (c *Contract) BlockCaution(now time.Time) error {
	return c.setCautionHold(CautionBloquee, EventCautionBlocked, now)
}

// ReleaseCaution lifts the hold on the contract deposit.
func (c *Contract) ReleaseCaution(now time.Time) error {
	return c.setCautionHold(CautionDebloquee, EventCautionReleased, now)
}

func (c *Contract) setCautionHold(to CautionHold, typ EventType, now time.Time) error {
	if c.Statut == ContractAnnule {
		return apperrors.InvalidTransition(fmt.Sprintf("Le contrat %s est annulé", c.NumeroBL))
	}
	if c.CautionHold == to {
		return apperrors.InvalidTransition(fmt.Sprintf("La caution du contrat %s est déjà %s", c.NumeroBL, to))
	}
	c.CautionHold = to
	c.UpdatedAt = now
	c.record(EntityContract, c.ID, typ, map[string]interface{}{
		"caution": c.Caution.String(),
	}, now)
	return nil
}

// IsOverdue reports whether day is past the return deadline.
func (c *Contract) IsOverdue(day time.Time) bool {
	return Date(day).After(c.DateLimiteRetour)
}
