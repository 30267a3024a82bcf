package settlement

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Truck is a vehicle of the fleet.
type Truck struct {
	ID              string `json:"id"`
	EntrepriseID    string `json:"entreprise_id"`
	Immatriculation string `json:"immatriculation"`
	Modele          string `json:"modele,omitempty"`
}

// Driver is a chauffeur.
type Driver struct {
	ID        string `json:"id"`
	Nom       string `json:"nom"`
	Prenom    string `json:"prenom"`
	Telephone string `json:"telephone,omitempty"`
}

// FullName returns "Nom Prenom".
func (d *Driver) FullName() string {
	return strings.TrimSpace(d.Nom + " " + d.Prenom)
}

// ContainerStatus tracks where a container is.
type ContainerStatus string

const (
	ContainerAuPort    ContainerStatus = "au_port"
	ContainerEnTransit ContainerStatus = "en_transit"
)

// Container is a shipping container moved by a contract.
type Container struct {
	ID              string          `json:"id"`
	NumeroConteneur string          `json:"numero_conteneur"`
	Statut          ContainerStatus `json:"statut"`
}

// ReleaseToPort returns the container to the port. It reports whether the
// status changed.
func (c *Container) ReleaseToPort() bool {
	if c.Statut == ContainerAuPort {
		return false
	}
	c.Statut = ContainerAuPort
	return true
}

// Dispatch marks the container as travelling.
func (c *Container) Dispatch() {
	c.Statut = ContainerEnTransit
}

// Transitaire is the freight forwarder earning a commission on payments.
type Transitaire struct {
	ID                   string          `json:"id"`
	Nom                  string          `json:"nom"`
	CommissionPercentage decimal.Decimal `json:"commission_percentage"`
}

// Commission returns total * CommissionPercentage / 100 rounded to the FCFA.
func (t *Transitaire) Commission(total decimal.Decimal) decimal.Decimal {
	if t == nil {
		return decimal.Zero
	}
	return total.Mul(t.CommissionPercentage).Div(decimal.NewFromInt(100)).Round(0)
}

// Client is the customer billed by a contract.
type Client struct {
	ID  string `json:"id"`
	Nom string `json:"nom"`
}
