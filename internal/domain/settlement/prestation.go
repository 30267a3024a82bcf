package settlement

import (
	"time"

	"github.com/shopspring/decimal"
)

// Prestation is the service record of a contract: price, advance, deposit
// and the balance left to collect.
type Prestation struct {
	ID            string          `json:"id"`
	ContractID    string          `json:"contrat_id"`
	TruckID       string          `json:"camion_id"`
	ClientID      string          `json:"client_id"`
	TransitaireID string          `json:"transitaire_id"`
	PrixTransport decimal.Decimal `json:"prix_transport"`
	Avance        decimal.Decimal `json:"avance"`
	Caution       decimal.Decimal `json:"caution"`
	Solde         decimal.Decimal `json:"solde"`
	Date          time.Time       `json:"date"`

	journal
}

// NewPrestation derives the service record from c.
func NewPrestation(id string, c *Contract, now time.Time) *Prestation {
	p := &Prestation{
		ID:            id,
		ContractID:    c.ID,
		TruckID:       c.TruckID,
		ClientID:      c.ClientID,
		TransitaireID: c.TransitaireID,
		PrixTransport: c.MontantTotal,
		Avance:        c.AvanceTransport,
		Caution:       c.Caution,
		Solde:         c.ReliquatTransport,
		Date:          now,
	}
	p.record(EntityPrestation, p.ID, EventPrestationRegistered, map[string]interface{}{
		"prix_transport": p.PrixTransport.String(),
		"solde":          p.Solde.String(),
	}, now)
	return p
}
