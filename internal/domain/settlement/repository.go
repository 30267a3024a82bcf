package settlement

import (
	"context"
	"time"
)

// OverdueMission is an en_cours mission whose contract deadline has passed.
type OverdueMission struct {
	Mission          *Mission
	NumeroBL         string
	EntrepriseID     string
	DateLimiteRetour time.Time
}

// ContractDependents counts the rows that forbid deleting a contract.
type ContractDependents struct {
	Missions int
	Cautions int
}

// Any reports whether at least one dependent exists.
func (d ContractDependents) Any() bool { return d.Missions > 0 || d.Cautions > 0 }

// Repository defines the persistence contract for the settlement domain.
// Getters return an AppError with a not-found code when the row is absent;
// Find* lookups return (nil, nil) instead.
type Repository interface {
	// Contract
	CreateContract(ctx context.Context, c *Contract) error
	UpdateContract(ctx context.Context, c *Contract) error
	GetContract(ctx context.Context, id string) (*Contract, error)
	DeleteContract(ctx context.Context, id string) error
	CountContractDependents(ctx context.Context, id string) (ContractDependents, error)

	// Mission
	CreateMission(ctx context.Context, m *Mission) error
	UpdateMission(ctx context.Context, m *Mission) error
	GetMission(ctx context.Context, id string) (*Mission, error)
	ListMissionsByContract(ctx context.Context, contractID string) ([]*Mission, error)
	FindActiveMissionForTruck(ctx context.Context, truckID, excludeContractID string) (*Mission, error)
	FindActiveMissionForDriver(ctx context.Context, driverID, excludeContractID string) (*Mission, error)
	ListOverdueMissions(ctx context.Context, day time.Time, limit int) ([]*OverdueMission, error)

	// Caution
	CreateCaution(ctx context.Context, c *Caution) error
	UpdateCaution(ctx context.Context, c *Caution) error
	GetCaution(ctx context.Context, id string) (*Caution, error)
	ListCautionsByContract(ctx context.Context, contractID string) ([]*Caution, error)

	// Payment
	CreatePayment(ctx context.Context, p *Payment) error
	UpdatePayment(ctx context.Context, p *Payment) error
	GetPayment(ctx context.Context, id string) (*Payment, error)
	ListPaymentsByMission(ctx context.Context, missionID string) ([]*Payment, error)

	// Prestation
	CreatePrestation(ctx context.Context, p *Prestation) error
	ListPrestationsByContract(ctx context.Context, contractID string) ([]*Prestation, error)

	// Resources. Lock* take a row lock held until the transaction ends.
	LockTruck(ctx context.Context, id string) (*Truck, error)
	LockDriver(ctx context.Context, id string) (*Driver, error)
	GetTransitaire(ctx context.Context, id string) (*Transitaire, error)
	GetContainer(ctx context.Context, id string) (*Container, error)
	UpdateContainer(ctx context.Context, c *Container) error

	// Event log & audit trail
	AppendEvents(ctx context.Context, events []*Event) error
	ListEvents(ctx context.Context, entityType EntityType, entityID string) ([]*Event, error)
	CreateAuditRecord(ctx context.Context, r *AuditRecord) error

	// Transaction
	WithTx(ctx context.Context, fn func(Repository) error) error
}
