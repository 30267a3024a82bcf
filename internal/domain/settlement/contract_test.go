package settlement

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/turtacn/TransitLedger/pkg/errors"
)

var testNow = time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)

func newTestContract() *Contract {
	c := &Contract{
		ID:              "contrat-1",
		NumeroBL:        " BL-001 ",
		EntrepriseID:    "ent-1",
		TruckID:         "truck-1",
		DriverID:        "driver-1",
		ClientID:        "client-1",
		TransitaireID:   "trans-1",
		ContainerID:     "cont-1",
		Destinataire:    "Dakar",
		MontantTotal:    decimal.NewFromInt(1000000),
		AvanceTransport: decimal.NewFromInt(400000),
		Caution:         decimal.NewFromInt(200000),
		DateDebut:       NewDate(2025, 1, 6),
	}
	c.Normalize(DefaultPolicy())
	return c
}

func validationFields(t *testing.T, err error) map[string]string {
	t.Helper()
	require.Error(t, err)
	ae, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeSettlementValidation, ae.Code)
	return ae.Fields
}

func TestContract_Normalize(t *testing.T) {
	t.Parallel()
	c := newTestContract()

	assert.Equal(t, "BL-001", c.NumeroBL)
	assert.Equal(t, NewDate(2025, 1, 29), c.DateLimiteRetour)
	assert.True(t, decimal.NewFromInt(600000).Equal(c.ReliquatTransport))
	assert.Equal(t, ContractActif, c.Statut)
	assert.Equal(t, CautionBloquee, c.CautionHold)
	assert.Equal(t, "Bamako", c.LieuChargement)
	require.NoError(t, c.Validate())
}

func TestContract_Normalize_KeepsExplicitDeadline(t *testing.T) {
	t.Parallel()
	c := newTestContract()
	c.DateLimiteRetour = NewDate(2025, 1, 20)
	c.AvanceTransport = decimal.NewFromInt(100000)
	c.Normalize(DefaultPolicy())

	assert.Equal(t, NewDate(2025, 1, 20), c.DateLimiteRetour)
	assert.True(t, decimal.NewFromInt(900000).Equal(c.ReliquatTransport))
}

func TestContract_Validate_Financials(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*Contract)
		field  string
	}{
		{"advance above total", func(c *Contract) { c.AvanceTransport = decimal.NewFromInt(1000001) }, "avance_transport"},
		{"caution above half", func(c *Contract) { c.Caution = decimal.NewFromInt(500001) }, "caution"},
		{"zero total", func(c *Contract) { c.MontantTotal = decimal.Zero }, "montant_total"},
		{"deadline before start", func(c *Contract) { c.DateLimiteRetour = NewDate(2025, 1, 1) }, "date_limite_retour"},
		{"missing truck", func(c *Contract) { c.TruckID = "" }, "camion"},
		{"missing driver", func(c *Contract) { c.DriverID = "" }, "chauffeur"},
		{"missing client", func(c *Contract) { c.ClientID = "" }, "client"},
		{"missing transitaire", func(c *Contract) { c.TransitaireID = "" }, "transitaire"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := newTestContract()
			tt.mutate(c)
			fields := validationFields(t, c.Validate())
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestContract_Validate_CautionAtHalfIsAllowed(t *testing.T) {
	t.Parallel()
	c := newTestContract()
	c.Caution = decimal.NewFromInt(500000)
	assert.NoError(t, c.Validate())
}

func TestContract_Validate_ReportsAllFields(t *testing.T) {
	t.Parallel()
	c := &Contract{Statut: ContractActif, CautionHold: CautionBloquee}
	fields := validationFields(t, c.Validate())
	for _, f := range []string{"numero_bl", "camion", "chauffeur", "client", "transitaire", "montant_total", "date_debut"} {
		assert.Contains(t, fields, f)
	}
}

func TestContract_Cancel(t *testing.T) {
	t.Parallel()
	c := newTestContract()

	require.NoError(t, c.Cancel("client absent", testNow))
	assert.Equal(t, ContractAnnule, c.Statut)

	err := c.Cancel("again", testNow)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidTransition))

	events := c.DrainEvents()
	require.Len(t, events, 1)
	assert.Equal(t, EventContractCancelled, events[0].EventType)
	assert.Equal(t, "client absent", events[0].Payload["raison"])
	assert.Empty(t, c.PendingEvents())
}

func TestContract_CautionHold(t *testing.T) {
	t.Parallel()
	c := newTestContract()

	err := c.BlockCaution(testNow)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidTransition))

	require.NoError(t, c.ReleaseCaution(testNow))
	assert.Equal(t, CautionDebloquee, c.CautionHold)
	require.NoError(t, c.BlockCaution(testNow))
	assert.Equal(t, CautionBloquee, c.CautionHold)

	events := c.DrainEvents()
	require.Len(t, events, 2)
	assert.Equal(t, EventCautionReleased, events[0].EventType)
	assert.Equal(t, EventCautionBlocked, events[1].EventType)

	require.NoError(t, c.Cancel("x", testNow))
	assert.Error(t, c.ReleaseCaution(testNow))
}

func TestContract_NoteMissionCancelled_KeepsStatus(t *testing.T) {
	t.Parallel()
	c := newTestContract()
	c.NoteMissionCancelled("mission-1", "panne", testNow)

	assert.Equal(t, ContractActif, c.Statut)
	events := c.DrainEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "mission-1", events[0].Payload["mission_id"])
	assert.Equal(t, c.ID, events[0].EntityID())
}

func TestContract_CompleteAndOverdue(t *testing.T) {
	t.Parallel()
	c := newTestContract()

	assert.False(t, c.IsOverdue(NewDate(2025, 1, 29)))
	assert.True(t, c.IsOverdue(NewDate(2025, 1, 30)))

	assert.True(t, c.Complete(testNow))
	assert.False(t, c.Complete(testNow))
	assert.Equal(t, ContractTermine, c.Statut)
}

func TestDrain_StampsActor(t *testing.T) {
	t.Parallel()
	c := newTestContract()
	c.MarkCreated(testNow)
	ca := NewCaution("caution-1", c, testNow)

	events := Drain("alice@example.com", c, ca)
	require.Len(t, events, 2)
	for _, e := range events {
		assert.Equal(t, "alice@example.com", e.Actor)
		assert.NotEmpty(t, e.EventID())
	}
	assert.Empty(t, Drain("x", c, ca))
}
