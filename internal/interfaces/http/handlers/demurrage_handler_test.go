package handlers

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/turtacn/TransitLedger/internal/domain/settlement"
	"github.com/turtacn/TransitLedger/internal/infrastructure/monitoring/logging"
)

func newDemurrageHandler(today time.Time) *DemurrageHandler {
	h := NewDemurrageHandler(domain.DefaultPolicy(), logging.NewNopLogger())
	h.now = func() time.Time { return today.Add(14 * time.Hour) }
	return h
}

func TestDemurrageHandler_Compute(t *testing.T) {
	h := newDemurrageHandler(domain.NewDate(2025, time.January, 10))

	tests := []struct {
		name     string
		body     map[string]string
		billable int
		montant  int64
		statut   domain.StationnementStatus
	}{
		{
			name:     "unloaded a week after a monday arrival",
			body:     map[string]string{"date_arrivee": "2025-01-06", "date_dechargement": "2025-01-13"},
			billable: 5, montant: 125000,
			statut: domain.StationnementDecharge,
		},
		{
			name:     "still waiting runs until today",
			body:     map[string]string{"date_arrivee": "2025-01-06"},
			billable: 2, montant: 50000,
			statut: domain.StationnementEnStationnement,
		},
		{
			name:     "inside the free window",
			body:     map[string]string{"date_arrivee": "2025-01-03", "date_dechargement": "2025-01-07"},
			billable: 0, montant: 0,
			statut: domain.StationnementDecharge,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(t, http.MethodPost, "/demurrage/compute", "/demurrage/compute", h.Compute, tt.body)

			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			var res domain.DemurrageResult
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
			assert.Equal(t, tt.billable, res.JoursFacturables)
			assert.True(t, decimal.NewFromInt(tt.montant).Equal(res.Montant), res.Montant.String())
			assert.Equal(t, tt.statut, res.Statut)
		})
	}
}

func TestDemurrageHandler_Compute_Rejections(t *testing.T) {
	h := newDemurrageHandler(domain.NewDate(2025, time.January, 10))

	w := serve(t, http.MethodPost, "/demurrage/compute", "/demurrage/compute", h.Compute, map[string]string{})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, decodeError(t, w).Fields, "date_arrivee")

	w = serve(t, http.MethodPost, "/demurrage/compute", "/demurrage/compute", h.Compute,
		map[string]string{"date_arrivee": "", "date_dechargement": "2025-01-10"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "Ce champ est requis", decodeError(t, w).Fields["date_arrivee"])

	w = serve(t, http.MethodPost, "/demurrage/compute", "/demurrage/compute", h.Compute,
		map[string]string{"date_arrivee": "2025-01-10", "date_dechargement": "2025-01-06"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, decodeError(t, w).Fields, "date_dechargement")

	w = serve(t, http.MethodPost, "/demurrage/compute", "/demurrage/compute", h.Compute,
		map[string]string{"date_arrivee": "10-01-2025"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
